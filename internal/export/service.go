package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"policyforge/api/internal/block"
)

// Cache stores rendered exports keyed by CacheKey.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
}

// Archive keeps a durable copy of every produced file.
type Archive interface {
	Put(ctx context.Context, policyID, ext, mimeType string, data []byte) (string, error)
}

// Observer receives one call per export.
type Observer interface {
	ObserveExport(format string, cached bool, duration time.Duration, err error)
}

// Service provides policy export functionality
type Service struct {
	renderer Renderer
	cache    Cache
	archive  Archive
	observer Observer
	logger   *zap.Logger
}

type Option func(*Service)

func WithCache(c Cache) Option       { return func(s *Service) { s.cache = c } }
func WithArchive(a Archive) Option   { return func(s *Service) { s.archive = a } }
func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

// NewService creates a new export service. renderer may be nil, in which
// case PDF exports fail with ErrPDFDependencyMissing.
func NewService(renderer Renderer, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{renderer: renderer, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CacheKey identifies one rendering of one revision of a policy.
func CacheKey(p block.Policy, format Format) string {
	return fmt.Sprintf("%s:%s:%d", p.ID, format, p.Meta.ModifiedAt.UnixNano())
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, p block.Policy, format Format) (result *Result, err error) {
	start := time.Now()
	cached := false
	defer func() {
		if s.observer != nil {
			s.observer.ObserveExport(string(format), cached, time.Since(start), err)
		}
	}()

	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	topic := p.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	result = &Result{
		Filename: sanitizeFilename(topic) + "." + format.Ext(),
		MimeType: format.MimeType(),
	}

	key := CacheKey(p, format)
	if s.cache != nil {
		data, ok, cacheErr := s.cache.Get(ctx, key)
		if cacheErr != nil {
			s.logger.Warn("export cache read failed", zap.String("key", key), zap.Error(cacheErr))
		} else if ok {
			cached = true
			result.Data = data
			return result, nil
		}
	}

	switch format {
	case FormatPDF:
		result.Data, err = s.exportPDF(ctx, topic, p.Blocks)
	case FormatDOCX:
		result.Data, err = s.exportDOCX(topic, p)
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, key, result.Data); cacheErr != nil {
			s.logger.Warn("export cache write failed", zap.String("key", key), zap.Error(cacheErr))
		}
	}
	if s.archive != nil {
		objectKey, archiveErr := s.archive.Put(ctx, p.ID, format.Ext(), result.MimeType, result.Data)
		if archiveErr != nil {
			s.logger.Warn("export archive failed", zap.String("policy_id", p.ID), zap.Error(archiveErr))
		} else {
			s.logger.Debug("export archived", zap.String("policy_id", p.ID), zap.String("object", objectKey))
		}
	}
	return result, nil
}

func (s *Service) exportPDF(ctx context.Context, topic string, blocks []block.Block) ([]byte, error) {
	if s.renderer == nil {
		return nil, fmt.Errorf("%w: no renderer configured", ErrPDFDependencyMissing)
	}
	html, err := RenderDocumentHTML(topic, blocks)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	data, err := s.renderer.RenderPDF(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return data, nil
}

func (s *Service) exportDOCX(topic string, p block.Policy) ([]byte, error) {
	doc := BuildDocument(topic, p.Blocks)
	doc.Modified = p.Meta.ModifiedAt
	data, err := WriteDOCX(doc)
	if err != nil {
		return nil, fmt.Errorf("write docx: %w", err)
	}
	return data, nil
}
