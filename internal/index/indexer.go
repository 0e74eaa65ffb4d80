// Package index embeds chunks and maintains the vector store: content-hash
// deduplication, atomic per-source supersede, and per-chunk failure
// isolation.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/ai"
	"github.com/teamindigo/ragline/internal/metrics"
	"github.com/teamindigo/ragline/internal/pipeline"
)

// Config bounds indexer concurrency.
type Config struct {
	Workers int
}

// Indexer owns the IndexEntry lifecycle. No other component mutates the
// vector store.
type Indexer struct {
	store    pipeline.VectorStore
	embedder ai.Embedder
	pool     *ants.Pool
	logger   *zap.Logger

	mu      sync.Mutex
	sources map[string]*sync.Mutex
}

// New builds an Indexer with a worker pool for embedding calls.
func New(cfg Config, store pipeline.VectorStore, embedder ai.Embedder, logger *zap.Logger) (*Indexer, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	return &Indexer{
		store:    store,
		embedder: embedder,
		pool:     pool,
		logger:   logger,
		sources:  make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the embedding pool.
func (ix *Indexer) Close() {
	ix.pool.Release()
}

// Upsert indexes a batch of chunks. Chunks whose content hash is already
// live for their source are counted unchanged and never re-embedded; text
// already live under any other source reuses the stored embedding. A
// changed source has all of its prior entries superseded atomically.
// Embedding failures are per-chunk: they are reported in the stats and the
// chunks are simply absent until the next ingestion pass retries them.
func (ix *Indexer) Upsert(ctx context.Context, chunks []pipeline.Chunk) (pipeline.IndexStats, error) {
	var stats pipeline.IndexStats

	bySource := make(map[string][]pipeline.Chunk)
	for _, c := range chunks {
		bySource[c.SourceURL] = append(bySource[c.SourceURL], c)
	}

	for source, group := range bySource {
		sort.Slice(group, func(i, j int) bool { return group[i].SequenceIndex < group[j].SequenceIndex })
		s, err := ix.upsertSource(ctx, source, group)
		stats.Added += s.Added
		stats.Updated += s.Updated
		stats.Unchanged += s.Unchanged
		stats.Failed += s.Failed
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// upsertSource serializes writes for a single source URL so two re-crawls
// of the same page never interleave their supersede transactions.
func (ix *Indexer) upsertSource(ctx context.Context, source string, chunks []pipeline.Chunk) (pipeline.IndexStats, error) {
	lock := ix.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	var stats pipeline.IndexStats

	prior, err := ix.store.ListBySource(ctx, source)
	if err != nil {
		return stats, fmt.Errorf("list prior entries for %s: %w", source, err)
	}
	priorByHash := make(map[string]pipeline.IndexEntry, len(prior))
	for _, e := range prior {
		priorByHash[e.ContentHash] = e
	}

	var (
		unchanged []pipeline.IndexEntry
		toEmbed   []pipeline.Chunk
	)
	for _, c := range chunks {
		if e, ok := priorByHash[c.ContentHash]; ok {
			e.Sequence = c.SequenceIndex
			unchanged = append(unchanged, e)
			continue
		}
		toEmbed = append(toEmbed, c)
	}

	stats.Unchanged = len(unchanged)
	metrics.ObserveEmbeddingSkipped(len(unchanged))

	// Unchanged content, same shape: nothing to write, no index churn.
	if len(toEmbed) == 0 && len(unchanged) == len(prior) {
		return stats, nil
	}

	// Text already live under another source reuses that record's embedding
	// instead of re-embedding.
	var (
		reused  []pipeline.IndexEntry
		pending []pipeline.Chunk
	)
	for _, c := range toEmbed {
		live, ok, err := ix.store.GetByHash(ctx, c.ContentHash)
		if err != nil {
			return stats, fmt.Errorf("look up hash %s: %w", c.ContentHash, err)
		}
		if ok {
			reused = append(reused, pipeline.IndexEntry{
				ContentHash: c.ContentHash,
				Embedding:   live.Embedding,
				SourceURL:   source,
				Text:        c.Text,
				Sequence:    c.SequenceIndex,
			})
			continue
		}
		pending = append(pending, c)
	}
	metrics.ObserveEmbeddingSkipped(len(reused))

	embedded, failed := ix.embedChunks(ctx, pending)
	stats.Failed = failed

	entries := append(unchanged, append(reused, embedded...)...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })

	if len(prior) == 0 {
		stats.Added = len(embedded) + len(reused)
	} else {
		stats.Updated = len(embedded) + len(reused)
		metrics.ObserveIndexDeletes(len(prior) - len(unchanged))
	}

	if err := ix.store.ReplaceSource(ctx, source, entries); err != nil {
		return stats, fmt.Errorf("replace source %s: %w", source, err)
	}

	if err := ix.verify(ctx, source, len(entries)); err != nil {
		return stats, err
	}
	return stats, nil
}

// embedChunks runs embedding calls on the worker pool, collecting per-chunk
// failures instead of aborting the batch.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []pipeline.Chunk) ([]pipeline.IndexEntry, int) {
	if len(chunks) == 0 {
		return nil, 0
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		entries []pipeline.IndexEntry
		failed  int
	)

	for _, chunk := range chunks {
		chunk := chunk
		wg.Add(1)
		submitErr := ix.pool.Submit(func() {
			defer wg.Done()
			vector, err := ix.embedder.EmbedText(ctx, chunk.Text)
			if err != nil {
				embedErr := &pipeline.EmbeddingError{
					ContentHash: chunk.ContentHash,
					SourceURL:   chunk.SourceURL,
					Err:         err,
				}
				ix.logger.Warn("chunk embedding failed; will retry next pass", zap.Error(embedErr))
				metrics.ObserveEmbeddingFailure()
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			metrics.ObserveEmbeddingComputed(1)
			mu.Lock()
			entries = append(entries, pipeline.IndexEntry{
				ContentHash: chunk.ContentHash,
				Embedding:   vector,
				SourceURL:   chunk.SourceURL,
				Text:        chunk.Text,
				Sequence:    chunk.SequenceIndex,
			})
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			ix.logger.Warn("embedding pool rejected task", zap.Error(submitErr))
			failed++
		}
	}
	wg.Wait()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })
	return entries, failed
}

// verify confirms the supersede left exactly the expected entries. A
// mismatch means the atomic replace was violated; indexing for the source
// halts loudly rather than proceeding on a corrupt view.
func (ix *Indexer) verify(ctx context.Context, source string, want int) error {
	got, err := ix.store.ListBySource(ctx, source)
	if err != nil {
		return fmt.Errorf("verify %s: %w", source, err)
	}
	if len(got) != want {
		return fmt.Errorf("%w: source %s has %d entries, expected %d",
			pipeline.ErrIndexConsistency, source, len(got), want)
	}
	return nil
}

// RemoveBySource deletes every live entry for a source.
func (ix *Indexer) RemoveBySource(ctx context.Context, sourceURL string) error {
	lock := ix.sourceLock(sourceURL)
	lock.Lock()
	defer lock.Unlock()

	if err := ix.store.ReplaceSource(ctx, sourceURL, nil); err != nil {
		return fmt.Errorf("remove source %s: %w", sourceURL, err)
	}
	return nil
}

func (ix *Indexer) sourceLock(source string) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	lock, ok := ix.sources[source]
	if !ok {
		lock = &sync.Mutex{}
		ix.sources[source] = lock
	}
	return lock
}
