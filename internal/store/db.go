package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	pingAttempts = 5
	pingBackoff  = time.Second
)

// Open connects through the pgx driver and waits for the server to answer,
// retrying while it is still starting up.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := waitForPing(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func waitForPing(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if attempt == pingAttempts {
			break
		}
		logger.Warn("database not ready", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping db: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * pingBackoff):
		}
	}
	return fmt.Errorf("ping db: %w", err)
}
