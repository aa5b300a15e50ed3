package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

const upSuffix = ".up.sql"

// migrationLockID keys the advisory lock that keeps two API instances from
// migrating at the same time.
const migrationLockID = 7261504

// ApplyMigrations runs every *.up.sql file in fsys that schema_migrations
// does not list yet, in name order, each in its own transaction. It returns
// the versions it applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, fsys fs.FS) ([]string, error) {
	names, err := fs.Glob(fsys, "*"+upSuffix)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire migration conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return nil, fmt.Errorf("lock migrations: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockID)
	}()

	if err := ensureMigrationsTable(ctx, conn); err != nil {
		return nil, err
	}

	applied := make([]string, 0)
	for _, name := range names {
		version := strings.TrimSuffix(name, upSuffix)
		migrated, err := isMigrated(ctx, conn, version)
		if err != nil {
			return applied, err
		}
		if migrated {
			continue
		}

		contents, err := fs.ReadFile(fsys, name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", version, err)
		}
		if err := runMigration(ctx, conn, version, string(contents)); err != nil {
			return applied, err
		}
		applied = append(applied, version)
	}
	return applied, nil
}

func runMigration(ctx context.Context, conn *sql.Conn, version, contents string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, contents); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, conn *sql.Conn, version string) (bool, error) {
	var exists bool
	err := conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
