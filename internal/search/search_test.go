package search

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"policyforge/api/internal/block"
)

type fakeEngine struct {
	mu      sync.Mutex
	healthy bool
	results []Result
	err     error
	indexed chan PolicyRecord
	bulk    []PolicyRecord
	calls   int
}

func (f *fakeEngine) Healthy() bool { return f.healthy }

func (f *fakeEngine) Search(_ context.Context, q Query) ([]Result, int, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

func (f *fakeEngine) IndexPolicy(rec PolicyRecord) error {
	f.indexed <- rec
	return nil
}

func (f *fakeEngine) IndexPolicies(recs []PolicyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulk = append(f.bulk, recs...)
	return nil
}

func newPgFTS(t *testing.T) (*PgFTS, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPgFTS(db), mock
}

func TestServiceUsesHealthyEngine(t *testing.T) {
	engine := &fakeEngine{healthy: true, results: []Result{{ID: "p1", Topic: "Water"}}}
	pg, mock := newPgFTS(t)
	svc := NewService(engine, pg, zaptest.NewLogger(t))

	resp := svc.Search(context.Background(), Query{Text: "water"})
	assert.Equal(t, "water", resp.Query)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "p1", resp.Results[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceFallsBackToPgFTS(t *testing.T) {
	tests := []struct {
		name   string
		engine *fakeEngine
	}{
		{"engine unhealthy", &fakeEngine{healthy: false}},
		{"engine error", &fakeEngine{healthy: true, err: errors.New("timeout")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pg, mock := newPgFTS(t)
			mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM policies`)).
				WithArgs("leak").
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
			mock.ExpectQuery(regexp.QuoteMeta(`ts_headline`)).
				WithArgs("leak", 20, 0).
				WillReturnRows(sqlmock.NewRows([]string{"id", "topic", "snippet"}).
					AddRow("p2", "Water Conservation", "Fix <mark>leaks</mark> quickly"))

			resp := NewService(tt.engine, pg, zaptest.NewLogger(t)).Search(context.Background(), Query{Text: "leak"})
			require.Len(t, resp.Results, 1)
			assert.Equal(t, "p2", resp.Results[0].ID)
			assert.Equal(t, 1, resp.Total)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestServiceBlankQueryReturnsNothing(t *testing.T) {
	engine := &fakeEngine{healthy: true, results: []Result{{ID: "p1", Topic: "Water"}}}
	pg, mock := newPgFTS(t)
	svc := NewService(engine, pg, zaptest.NewLogger(t))

	for _, text := range []string{"", "   ", "\t\n"} {
		resp := svc.Search(context.Background(), Query{Text: text})
		assert.Equal(t, text, resp.Query)
		assert.NotNil(t, resp.Results)
		assert.Empty(t, resp.Results)
		assert.Zero(t, resp.Total)
	}
	assert.Zero(t, engine.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceNilEngine(t *testing.T) {
	pg, _ := newPgFTS(t)
	resp := NewService(nil, pg, nil).Search(context.Background(), Query{Text: "  "})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestServicePgFTSErrorDegrades(t *testing.T) {
	pg, mock := newPgFTS(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM policies`)).
		WillReturnError(errors.New("db down"))

	resp := NewService(nil, pg, zaptest.NewLogger(t)).Search(context.Background(), Query{Text: "water"})
	assert.Equal(t, 0, resp.Total)
	assert.NotNil(t, resp.Results)
}

func TestPgFTSClampsLimit(t *testing.T) {
	pg, mock := newPgFTS(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM policies`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`ts_headline`)).
		WithArgs("water", 100, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "topic", "snippet"}))

	results, total, err := pg.Search(context.Background(), Query{Text: "water", Limit: 5000, Offset: -3})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, total)
}

func TestIndexPolicyIsFireAndForget(t *testing.T) {
	engine := &fakeEngine{healthy: true, indexed: make(chan PolicyRecord, 1)}
	svc := NewService(engine, nil, zaptest.NewLogger(t))

	svc.IndexPolicy(PolicyRecord{ID: "p1", Topic: "Water"})

	select {
	case rec := <-engine.indexed:
		assert.Equal(t, "p1", rec.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("policy was not indexed")
	}
}

func TestIndexPolicySkipsUnhealthyEngine(t *testing.T) {
	engine := &fakeEngine{healthy: false, indexed: make(chan PolicyRecord, 1)}
	NewService(engine, nil, nil).IndexPolicy(PolicyRecord{ID: "p1"})
	assert.Empty(t, engine.indexed)
}

func TestReindexAllFromPG(t *testing.T) {
	pg, mock := newPgFTS(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, topic, search_text`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "topic", "search_text", "modified_at"}).
			AddRow("p1", "Water", "Scope", int64(100)).
			AddRow("p2", "Energy", "Targets", int64(200)))

	engine := &fakeEngine{healthy: true}
	NewService(engine, pg, zaptest.NewLogger(t)).ReindexAllFromPG(context.Background())

	require.Len(t, engine.bulk, 2)
	assert.Equal(t, PolicyRecord{ID: "p2", Topic: "Energy", Text: "Targets", ModifiedAt: 200}, engine.bulk[1])
}

func TestRecordFromPolicy(t *testing.T) {
	modified := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := RecordFromPolicy(block.Policy{
		ID:    "p1",
		Topic: "Water",
		Blocks: []block.Block{
			{ID: "b", Type: block.TypeParagraph, Content: block.Content{Format: block.FormatInline, Text: "<p>Use <strong>less</strong></p>"}, Order: 2},
			{ID: "a", Type: block.TypeHeading, Title: "Scope", Content: block.Content{Format: block.FormatPlain, Text: "Scope"}, Order: 1},
		},
		Meta: block.Meta{ModifiedAt: modified},
	})
	assert.Equal(t, "Scope\nUse less", rec.Text)
	assert.Equal(t, modified.Unix(), rec.ModifiedAt)
}

func TestHitToResultPrefersFormattedSnippet(t *testing.T) {
	hit := meili.Hit{
		"id":         json.RawMessage(`"p1"`),
		"topic":      json.RawMessage(`"Water Conservation"`),
		"text":       json.RawMessage(`"Fix leaks"`),
		"_formatted": json.RawMessage(`{"text":"Fix <mark>leaks</mark>","modifiedAt":"100"}`),
	}
	r := hitToResult(hit)
	assert.Equal(t, Result{ID: "p1", Topic: "Water Conservation", Snippet: "Fix <mark>leaks</mark>"}, r)

	delete(hit, "_formatted")
	assert.Equal(t, "Fix leaks", hitToResult(hit).Snippet)
}
