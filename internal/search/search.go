package search

import (
	"context"

	"policyforge/api/internal/block"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Snippet string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push policies into a search index.
type Indexer interface {
	IndexPolicy(rec PolicyRecord) error
	IndexPolicies(recs []PolicyRecord) error
}

// Engine is an external index that both searches and accepts documents.
type Engine interface {
	Searcher
	Indexer
}

// RecordLoader reads every searchable policy for a full reindex.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]PolicyRecord, error)
}

// PolicyRecord is the data we index for a policy.
type PolicyRecord struct {
	ID         string `json:"id"`
	Topic      string `json:"topic"`
	Text       string `json:"text"`
	ModifiedAt int64  `json:"modifiedAt"`
}

func RecordFromPolicy(p block.Policy) PolicyRecord {
	return PolicyRecord{
		ID:         p.ID,
		Topic:      p.Topic,
		Text:       block.BodyText(p.Blocks),
		ModifiedAt: p.Meta.ModifiedAt.Unix(),
	}
}

func normalizeQuery(q Query) Query {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
