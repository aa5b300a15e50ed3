package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"policyforge/api/internal/block"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

const policyColumns = `id, topic, blocks, generated_by, created_at, modified_at`

// CreatePolicy inserts p as given. Callers assign the id, canonical blocks
// and both timestamps.
func (s *PostgresStore) CreatePolicy(ctx context.Context, p block.Policy) (block.Policy, error) {
	blocksJSON, err := encodeBlocks(p.Blocks)
	if err != nil {
		return block.Policy{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO policies (id, topic, blocks, generated_by, created_at, modified_at, search_text)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7)
		RETURNING `+policyColumns,
		p.ID,
		p.Topic,
		blocksJSON,
		p.Meta.GeneratedBy,
		dbTime(p.Meta.CreatedAt),
		dbTime(p.Meta.ModifiedAt),
		block.BodyText(p.Blocks),
	)
	created, err := scanPolicy(row)
	if err != nil {
		return block.Policy{}, fmt.Errorf("insert policy: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetPolicy(ctx context.Context, id string) (block.Policy, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE id=$1`, id)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return block.Policy{}, ErrNotFound
	}
	if err != nil {
		return block.Policy{}, fmt.Errorf("get policy: %w", err)
	}
	return p, nil
}

// UpdateBlocks swaps the whole block array of policy id in one statement.
func (s *PostgresStore) UpdateBlocks(ctx context.Context, id string, blocks []block.Block, modifiedAt time.Time) (block.Policy, error) {
	blocksJSON, err := encodeBlocks(blocks)
	if err != nil {
		return block.Policy{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE policies
		SET blocks=$2::jsonb, modified_at=$3, search_text=$4
		WHERE id=$1
		RETURNING `+policyColumns,
		id,
		blocksJSON,
		dbTime(modifiedAt),
		block.BodyText(blocks),
	)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return block.Policy{}, ErrNotFound
	}
	if err != nil {
		return block.Policy{}, fmt.Errorf("update blocks: %w", err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (block.Policy, error) {
	var (
		p          block.Policy
		blocksJSON []byte
	)
	if err := row.Scan(&p.ID, &p.Topic, &blocksJSON, &p.Meta.GeneratedBy, &p.Meta.CreatedAt, &p.Meta.ModifiedAt); err != nil {
		return block.Policy{}, err
	}
	blocks, err := block.Decode(blocksJSON)
	if err != nil {
		return block.Policy{}, fmt.Errorf("decode blocks for %s: %w", p.ID, err)
	}
	p.Blocks = block.Sorted(blocks)
	p.Meta.CreatedAt = p.Meta.CreatedAt.UTC()
	p.Meta.ModifiedAt = p.Meta.ModifiedAt.UTC()
	return p, nil
}

func encodeBlocks(blocks []block.Block) (string, error) {
	if blocks == nil {
		blocks = []block.Block{}
	}
	data, err := json.Marshal(blocks)
	if err != nil {
		return "", fmt.Errorf("encode blocks: %w", err)
	}
	return string(data), nil
}

// dbTime drops precision Postgres would not keep, so values read back
// compare equal to the ones written.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
