// Package retrieve performs similarity search and assembles the bounded
// context handed to the generation step.
package retrieve

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/ai"
	"github.com/teamindigo/ragline/internal/metrics"
	"github.com/teamindigo/ragline/internal/pipeline"
)

// Config holds retrieval defaults.
type Config struct {
	TopK          int
	ContextBudget int
	MinSimilarity float32
}

// Retriever reads the vector store. It holds no locks of its own: reads may
// run concurrently with ingestion and observe a recent snapshot.
type Retriever struct {
	cfg      Config
	store    pipeline.VectorStore
	embedder ai.Embedder
	clock    pipeline.Clock
	logger   *zap.Logger
}

// New builds a Retriever.
func New(cfg Config, store pipeline.VectorStore, embedder ai.Embedder, clock pipeline.Clock, logger *zap.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 8
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = 4096
	}
	return &Retriever{cfg: cfg, store: store, embedder: embedder, clock: clock, logger: logger}
}

// Retrieve embeds the query, ranks nearest chunks and greedily fills the
// context budget. Ties in score prefer the chunk earlier in its source so
// repeated calls on a fixed index return identical results. An index with
// nothing above the similarity threshold yields an empty, low-confidence
// context, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK, budget int) (pipeline.RetrievalContext, error) {
	start := r.clock.Now()
	defer func() { metrics.ObserveRetrieval(r.clock.Now().Sub(start)) }()

	if topK <= 0 {
		topK = r.cfg.TopK
	}
	if budget <= 0 {
		budget = r.cfg.ContextBudget
	}

	embedding, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return pipeline.RetrievalContext{}, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.store.QueryNearest(ctx, embedding, topK)
	if err != nil {
		return pipeline.RetrievalContext{}, fmt.Errorf("query nearest: %w", err)
	}

	ranked := make([]pipeline.ScoredEntry, 0, len(hits))
	for _, h := range hits {
		if h.Score >= r.cfg.MinSimilarity {
			ranked = append(ranked, h)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Entry.Sequence != ranked[j].Entry.Sequence {
			return ranked[i].Entry.Sequence < ranked[j].Entry.Sequence
		}
		return ranked[i].Entry.ContentHash < ranked[j].Entry.ContentHash
	})

	rc := pipeline.RetrievalContext{Query: query}
	used := 0
	for _, h := range ranked {
		cost := len(h.Entry.Text)
		if used+cost > budget {
			continue
		}
		used += cost
		rc.Chunks = append(rc.Chunks, pipeline.ScoredChunk{
			Chunk: pipeline.Chunk{
				ContentHash:   h.Entry.ContentHash,
				SourceURL:     h.Entry.SourceURL,
				SequenceIndex: h.Entry.Sequence,
				Text:          h.Entry.Text,
			},
			Score: h.Score,
		})
	}

	if len(rc.Chunks) == 0 {
		rc.LowConfidence = true
	}
	return rc, nil
}

// BudgetRemaining reports how much of the budget the vector chunks left
// over for structured rows.
func BudgetRemaining(rc pipeline.RetrievalContext, budget int) int {
	used := 0
	for _, c := range rc.Chunks {
		used += len(c.Chunk.Text)
	}
	if used >= budget {
		return 0
	}
	return budget - used
}
