package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const idxPolicies = "policyforge_policies"

// Meili implements Engine via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the policy index.
// An unreachable server is not an error: the client reports unhealthy and
// a background loop reconnects.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		logger: logger,
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop(10 * time.Second)
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxPolicies,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.String("index", idxPolicies), zap.Error(err))
	}

	index := m.client.Index(idxPolicies)
	searchable := []string{"topic", "text"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.String("index", idxPolicies), zap.Error(err))
	}
	sortable := []string{"modifiedAt"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		m.logger.Warn("update sortable attributes", zap.String("index", idxPolicies), zap.Error(err))
	}
}

func (m *Meili) healthLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	q = normalizeQuery(q)

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:              idxPolicies,
			Query:                 q.Text,
			Limit:                 int64(q.Limit),
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"topic", "text"},
			AttributesToCrop:      []string{"text"},
			CropLength:            30,
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:      decodeString(hit, "id"),
		Topic:   decodeString(hit, "topic"),
		Snippet: firstNonBlank(decodeFormattedString(hit, "text"), decodeString(hit, "text")),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexPolicy adds or replaces a policy in the search index.
func (m *Meili) IndexPolicy(rec PolicyRecord) error {
	_, err := m.client.Index(idxPolicies).AddDocuments([]PolicyRecord{rec}, nil)
	return err
}

// IndexPolicies bulk-indexes policies.
func (m *Meili) IndexPolicies(recs []PolicyRecord) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPolicies).AddDocuments(recs, nil)
	return err
}
