// Package bulk analyzes batches of catalog items: vision analysis, category
// classification, and embedding, persisted per item. Items are processed with
// a bounded fan-out; one item failing never cancels its siblings.
package bulk

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/framelens/promptforge/internal/domain"
	"github.com/framelens/promptforge/internal/ratelimit"
	"github.com/framelens/promptforge/internal/usecase/classify"
)

// DefaultConcurrency bounds the per-batch fan-out so upstream rate limits
// are respected.
const DefaultConcurrency = 5

// DefaultMaxItems caps one batch request.
const DefaultMaxItems = 50

// Catalog is the item store surface the batch worker needs.
type Catalog interface {
	GetItem(ctx context.Context, id string) (domain.ContentItem, error)
	UpdateAnalysis(ctx context.Context, item *domain.ContentItem) error
}

// Vision analyzes one item image.
type Vision interface {
	Analyze(ctx context.Context, imageURL string) (domain.AnalysisResult, error)
}

// Limiter gates batch admission per caller key.
type Limiter interface {
	TryAcquire(ctx context.Context, bucket, key string) ratelimit.Decision
}

// ItemResult is the per-item outcome of one batch run.
type ItemResult struct {
	ItemID   string
	Category string
	// Embedded reports whether a fresh embedding was stored.
	Embedded bool
	Err      error
}

// Config tunes one batch service.
type Config struct {
	Bucket      string
	Concurrency int
	MaxItems    int
}

func (c *Config) applyDefaults() {
	if c.Bucket == "" {
		c.Bucket = "bulk"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxItems <= 0 {
		c.MaxItems = DefaultMaxItems
	}
}

// Service runs bounded-concurrency batch analysis.
type Service struct {
	catalog  Catalog
	vision   Vision
	embedder domain.Embedder
	limiter  Limiter
	cfg      Config
	logger   *zap.Logger
}

// New creates a batch service.
func New(catalog Catalog, vision Vision, embedder domain.Embedder, limiter Limiter, cfg Config, logger *zap.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		catalog: catalog, vision: vision, embedder: embedder,
		limiter: limiter, cfg: cfg, logger: logger,
	}
}

// Run analyzes the given items. Admission is charged once per batch. The
// returned slice always holds one entry per requested item, in input order,
// regardless of individual failures.
func (s *Service) Run(ctx context.Context, callerKey string, itemIDs []string) ([]ItemResult, error) {
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("bulk run: no items given")
	}
	if len(itemIDs) > s.cfg.MaxItems {
		return nil, fmt.Errorf("bulk run: %d items exceeds the limit of %d", len(itemIDs), s.cfg.MaxItems)
	}
	if callerKey == "" {
		callerKey = "anonymous"
	}
	if d := s.limiter.TryAcquire(ctx, s.cfg.Bucket, callerKey); !d.Allowed {
		return nil, domain.NewAdmissionDenied(s.cfg.Bucket, d.RetryAfter)
	}

	results := make([]ItemResult, len(itemIDs))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, id := range itemIDs {
		i, id := i, id
		g.Go(func() error {
			results[i] = s.processItem(ctx, id)
			return nil
		})
	}
	// Workers never return errors; failures live in the per-item results.
	_ = g.Wait()

	return results, nil
}

// processItem analyzes and persists one item. An item whose analysis call
// fails but that already carries a prompt is re-embedded from that prompt,
// so items with missing embeddings heal on the next batch pass.
func (s *Service) processItem(ctx context.Context, id string) ItemResult {
	res := ItemResult{ItemID: id}

	item, err := s.catalog.GetItem(ctx, id)
	if err != nil {
		res.Err = fmt.Errorf("load item %s: %w", id, err)
		return res
	}

	var embedText string
	analysis, err := s.vision.Analyze(ctx, item.MediaURL())
	switch {
	case err == nil:
		item.SetPrompt(analysis.Description())
		item.SetTags(analysis.Tags())
		item.SetCategory(string(classify.Classify(analysis.Tags(), analysis.Description())))
		embedText = analysis.EmbeddingText()
	case item.Prompt() != "":
		s.logger.Warn("analysis failed, re-embedding from stored prompt",
			zap.String("item_id", id), zap.Error(err))
		embedText = domain.TruncateForEmbedding(item.Prompt())
	default:
		res.Err = fmt.Errorf("analyze item %s: %w", id, err)
		return res
	}
	res.Category = item.Category()

	if out, err := s.embedder.Embed(ctx, embedText); err != nil {
		s.logger.Warn("embedding failed, persisting item without a vector",
			zap.String("item_id", id), zap.Error(err))
	} else {
		item.SetEmbedding(out.Embedding)
		res.Embedded = true
	}

	if err := s.catalog.UpdateAnalysis(ctx, &item); err != nil {
		res.Err = fmt.Errorf("persist item %s: %w", id, err)
		res.Embedded = false
		return res
	}
	return res
}
