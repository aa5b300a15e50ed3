package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"policyforge/api/internal/block"
	"policyforge/api/internal/export"
	"policyforge/api/internal/generate"
	"policyforge/api/internal/history"
	"policyforge/api/internal/search"
	"policyforge/api/internal/store"
	"policyforge/api/internal/validate"
)

type memStore struct {
	mu       sync.Mutex
	policies map[string]block.Policy
	pingErr  error
	writes   int
}

func newMemStore() *memStore {
	return &memStore{policies: map[string]block.Policy{}}
}

func (m *memStore) CreatePolicy(_ context.Context, p block.Policy) (block.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	p.Blocks = block.Sorted(p.Blocks)
	m.policies[p.ID] = p
	return p, nil
}

func (m *memStore) GetPolicy(_ context.Context, id string) (block.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok {
		return block.Policy{}, store.ErrNotFound
	}
	return p, nil
}

func (m *memStore) UpdateBlocks(_ context.Context, id string, blocks []block.Block, modifiedAt time.Time) (block.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok {
		return block.Policy{}, store.ErrNotFound
	}
	m.writes++
	p.Blocks = block.Sorted(blocks)
	p.Meta.ModifiedAt = modifiedAt
	m.policies[id] = p
	return p, nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.policies)
}

type failingGenerator struct{ err error }

func (g failingGenerator) Generate(context.Context, string) (generate.Result, error) {
	return generate.Result{}, g.err
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRenderer) RenderPDF(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

type fakeSearch struct {
	mu      sync.Mutex
	queries []search.Query
	indexed []search.PolicyRecord
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return search.Response{
		Results: []search.Result{{ID: "p1", Topic: "Water Conservation", Snippet: "<mark>water</mark>"}},
		Total:   1,
		Query:   q.Text,
	}
}

func (f *fakeSearch) IndexPolicy(rec search.PolicyRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, rec)
}

type brokenHistory struct{}

func (brokenHistory) Record(string, []block.Block, string) (history.Commit, error) {
	return history.Commit{}, errors.New("disk full")
}

func (brokenHistory) Log(string, int) ([]history.Commit, error) { return []history.Commit{}, nil }

func (brokenHistory) At(string, string) ([]block.Block, history.Commit, error) {
	return nil, history.Commit{}, history.ErrNotFound
}

type testEnv struct {
	store    *memStore
	renderer *fakeRenderer
	search   *fakeSearch
	history  *history.Service
	service  *Service
	server   *HTTPServer
}

type envOptions struct {
	generator generate.Generator
	noHistory bool
	noSearch  bool
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	env := &testEnv{
		store:    newMemStore(),
		renderer: &fakeRenderer{},
		search:   &fakeSearch{},
	}
	generator := opts.generator
	if generator == nil {
		generator = generate.StubGenerator{}
	}

	var serviceOpts []Option
	if !opts.noHistory {
		env.history = history.New(t.TempDir())
		serviceOpts = append(serviceOpts, WithHistory(env.history))
	}
	if !opts.noSearch {
		serviceOpts = append(serviceOpts, WithSearch(env.search))
	}

	env.service = New(env.store, generator, export.NewService(env.renderer, logger), logger, serviceOpts...)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	env.service.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	v, err := validate.New(3)
	require.NoError(t, err)
	env.server = NewHTTPServer(env.service, v, "*", logger)
	return env
}

// seed stores a policy directly, bypassing generation.
func (e *testEnv) seed(t *testing.T, p block.Policy) block.Policy {
	t.Helper()
	if p.Meta.CreatedAt.IsZero() {
		p.Meta.CreatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		p.Meta.ModifiedAt = p.Meta.CreatedAt
	}
	created, err := e.store.CreatePolicy(context.Background(), p)
	require.NoError(t, err)
	return created
}

func heading(id, title string, order float64) block.Block {
	return block.Block{ID: id, Type: block.TypeHeading, Title: title, Content: block.Content{Format: block.FormatPlain, Text: title}, Order: order}
}

func paragraph(id, text string, order float64) block.Block {
	return block.Block{ID: id, Type: block.TypeParagraph, Content: block.Content{Format: block.FormatPlain, Text: text}, Order: order}
}
