package search

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Service is the facade that tries the external engine first and falls back
// to PG FTS.
type Service struct {
	engine   Engine
	fallback Searcher
	loader   RecordLoader
	logger   *zap.Logger
}

// NewService creates a search service. engine may be nil if Meilisearch is
// not configured.
func NewService(engine Engine, pgfts *PgFTS, logger *zap.Logger) *Service {
	s := &Service{engine: engine, logger: logger}
	if pgfts != nil {
		s.fallback = pgfts
		s.loader = pgfts
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Search tries the engine if healthy, otherwise falls back to PG FTS.
// Failures degrade to an empty response, and so does a blank query, which
// the engine would otherwise answer with every indexed policy.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if strings.TrimSpace(q.Text) == "" {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	if s.engine != nil && s.engine.Healthy() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("search engine error, falling back to pgfts", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexPolicy indexes a policy (fire-and-forget).
func (s *Service) IndexPolicy(rec PolicyRecord) {
	if s.engine == nil || !s.engine.Healthy() {
		return
	}
	go func() {
		if err := s.engine.IndexPolicy(rec); err != nil {
			s.logger.Warn("index policy failed", zap.String("policy_id", rec.ID), zap.Error(err))
		}
	}()
}

// ReindexAllFromPG pushes every stored policy into the engine.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.engine == nil || !s.engine.Healthy() || s.loader == nil {
		return
	}
	records, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Warn("reindex load failed", zap.Error(err))
		return
	}
	if err := s.engine.IndexPolicies(records); err != nil {
		s.logger.Warn("reindex policies failed", zap.Int("count", len(records)), zap.Error(err))
		return
	}
	s.logger.Info("reindexed policies", zap.Int("count", len(records)))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
