package index

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/pipeline"
)

// Ingestor adapts the normalize-then-index path to the crawler's document
// sink, reporting per-document errors without aborting the crawl batch.
type Ingestor struct {
	normalizer pipeline.Normalizer
	indexer    *Indexer
	logger     *zap.Logger
}

// NewIngestor builds an Ingestor.
func NewIngestor(normalizer pipeline.Normalizer, indexer *Indexer, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		normalizer: normalizer,
		indexer:    indexer,
		logger:     logger,
	}
}

// Consume implements pipeline.DocumentSink. Unsupported and empty documents
// are skipped quietly; index consistency violations propagate because they
// must halt, never be papered over.
func (g *Ingestor) Consume(ctx context.Context, result pipeline.FetchResult) error {
	chunks, err := g.normalizer.Normalize(result)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnsupportedContent) || errors.Is(err, pipeline.ErrEmptyContent) {
			g.logger.Debug("document skipped", zap.String("url", result.URL), zap.Error(err))
			return nil
		}
		return fmt.Errorf("normalize %s: %w", result.URL, err)
	}

	stats, err := g.indexer.Upsert(ctx, chunks)
	if err != nil {
		return fmt.Errorf("index %s: %w", result.URL, err)
	}

	g.logger.Info("document indexed",
		zap.String("url", result.URL),
		zap.Int("added", stats.Added),
		zap.Int("updated", stats.Updated),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("failed", stats.Failed),
	)
	return nil
}
