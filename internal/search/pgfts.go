package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const ftsQuery = "plainto_tsquery('english', $1)"

// Search ranks policies by ts_rank over the weighted fts column, with
// ts_headline snippets taken from the block text.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	q = normalizeQuery(q)

	var total int
	countSQL := `SELECT count(*) FROM policies WHERE fts @@ ` + ftsQuery
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, topic,
			ts_headline('english', search_text, %s, 'StartSel=<mark>, StopSel=</mark>, MaxFragments=1, MaxWords=30') AS snippet
		FROM policies
		WHERE fts @@ %s
		ORDER BY ts_rank(fts, %s) DESC, modified_at DESC
		LIMIT $2 OFFSET $3`, ftsQuery, ftsQuery, ftsQuery)

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Topic, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every policy for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PolicyRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, topic, search_text, EXTRACT(EPOCH FROM modified_at)::bigint
		FROM policies
	`)
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	defer rows.Close()

	records := make([]PolicyRecord, 0)
	for rows.Next() {
		var rec PolicyRecord
		if err := rows.Scan(&rec.ID, &rec.Topic, &rec.Text, &rec.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}
	return records, nil
}
