package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"policyforge/api/internal/block"
	"policyforge/api/internal/editor"
	"policyforge/api/internal/export"
	"policyforge/api/internal/generate"
	"policyforge/api/internal/history"
	"policyforge/api/internal/search"
	"policyforge/api/internal/util"
)

type policyStore interface {
	CreatePolicy(ctx context.Context, p block.Policy) (block.Policy, error)
	GetPolicy(ctx context.Context, id string) (block.Policy, error)
	UpdateBlocks(ctx context.Context, id string, blocks []block.Block, modifiedAt time.Time) (block.Policy, error)
	Ping(ctx context.Context) error
}

type exporter interface {
	Export(ctx context.Context, p block.Policy, format export.Format) (*export.Result, error)
}

type historyService interface {
	Record(policyID string, blocks []block.Block, message string) (history.Commit, error)
	Log(policyID string, limit int) ([]history.Commit, error)
	At(policyID, rev string) ([]block.Block, history.Commit, error)
}

type searchService interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexPolicy(rec search.PolicyRecord)
}

type generationObserver interface {
	ObserveGeneration(backend string, err error)
}

// Service holds the policy use cases. The HTTP layer validates input before
// calling it.
type Service struct {
	store     policyStore
	generator generate.Generator
	exporter  exporter
	history   historyService
	search    searchService
	observer  generationObserver
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

var _ editor.Saver = (*Service)(nil)

type Option func(*Service)

func WithHistory(h historyService) Option { return func(s *Service) { s.history = h } }
func WithSearch(ss searchService) Option  { return func(s *Service) { s.search = ss } }
func WithGenerationObserver(o generationObserver) Option {
	return func(s *Service) { s.observer = o }
}

func New(dataStore policyStore, generator generate.Generator, exp exporter, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     dataStore,
		generator: generator,
		exporter:  exp,
		logger:    logger,
		now:       time.Now,
		newID:     util.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GeneratePolicy asks the generator for blocks on topic and stores them as a
// new policy. Nothing is stored when generation fails.
func (s *Service) GeneratePolicy(ctx context.Context, topic string) (block.Policy, error) {
	topic = strings.TrimSpace(topic)
	res, err := s.generator.Generate(ctx, topic)
	if s.observer != nil {
		backend := res.GeneratedBy
		if backend == "" {
			backend = "unknown"
		}
		s.observer.ObserveGeneration(backend, err)
	}
	if err != nil {
		return block.Policy{}, err
	}

	now := s.timestamp()
	p := block.Policy{
		ID:     s.newID(),
		Topic:  topic,
		Blocks: block.Renumber(res.Blocks),
		Meta: block.Meta{
			GeneratedBy: res.GeneratedBy,
			CreatedAt:   now,
			ModifiedAt:  now,
		},
	}
	created, err := s.store.CreatePolicy(ctx, p)
	if err != nil {
		return block.Policy{}, err
	}
	s.afterWrite(created, "Generate policy")
	return created, nil
}

func (s *Service) GetPolicy(ctx context.Context, id string) (block.Policy, error) {
	return s.store.GetPolicy(ctx, id)
}

// UpdateBlocks replaces the whole block array of a policy. Blocks are
// renumbered 1..N in display order before the write.
func (s *Service) UpdateBlocks(ctx context.Context, id string, blocks []block.Block) (block.Policy, error) {
	updated, err := s.store.UpdateBlocks(ctx, id, block.Renumber(blocks), s.timestamp())
	if err != nil {
		return block.Policy{}, err
	}
	s.afterWrite(updated, "Update blocks")
	return updated, nil
}

func (s *Service) Export(ctx context.Context, id, format string) (*export.Result, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Export(ctx, p, f)
	if err != nil {
		return nil, fmt.Errorf("export %s as %s: %w", id, f, err)
	}
	return result, nil
}

func (s *Service) Clipboard(ctx context.Context, id string) (export.Clipboard, error) {
	p, err := s.store.GetPolicy(ctx, id)
	if err != nil {
		return export.Clipboard{}, err
	}
	return export.BuildClipboard(p.Topic, p.Blocks), nil
}

func (s *Service) History(ctx context.Context, id string, limit int) ([]history.Commit, error) {
	if _, err := s.store.GetPolicy(ctx, id); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []history.Commit{}, nil
	}
	return s.history.Log(id, limit)
}

type Revision struct {
	Commit history.Commit `json:"commit"`
	Blocks []block.Block  `json:"blocks"`
}

func (s *Service) Revision(ctx context.Context, id, rev string) (Revision, error) {
	if _, err := s.store.GetPolicy(ctx, id); err != nil {
		return Revision{}, err
	}
	if s.history == nil {
		return Revision{}, history.ErrNotFound
	}
	blocks, commit, err := s.history.At(id, rev)
	if err != nil {
		return Revision{}, err
	}
	return Revision{Commit: commit, Blocks: blocks}, nil
}

func (s *Service) Search(ctx context.Context, text string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(ctx, search.Query{Text: text, Limit: limit, Offset: offset})
}

// afterWrite feeds history and the search index. Both are best effort.
func (s *Service) afterWrite(p block.Policy, message string) {
	if s.history != nil {
		if _, err := s.history.Record(p.ID, p.Blocks, message); err != nil {
			s.logger.Warn("history record failed", zap.String("policy_id", p.ID), zap.Error(err))
		}
	}
	if s.search != nil {
		s.search.IndexPolicy(search.RecordFromPolicy(p))
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
