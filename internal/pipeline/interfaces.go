package pipeline

import (
	"context"
	"time"
)

// Fetcher fetches a single URL, applying politeness and retry policy.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Normalizer converts a raw fetch result into ordered chunks.
type Normalizer interface {
	Normalize(result FetchResult) ([]Chunk, error)
}

// VectorStore is the opaque storage capability behind the indexer. Any
// backend implementing these operations is compatible. One record is live
// per content hash; sources sharing identical text reference the same
// record, and a record stays live until its last source releases it.
type VectorStore interface {
	Upsert(ctx context.Context, entries []IndexEntry) error
	QueryNearest(ctx context.Context, embedding []float32, k int) ([]ScoredEntry, error)
	// GetByHash returns the live record for a content hash regardless of
	// which source first produced it.
	GetByHash(ctx context.Context, contentHash string) (IndexEntry, bool, error)
	Delete(ctx context.Context, contentHash string) error
	ListBySource(ctx context.Context, sourceURL string) ([]IndexEntry, error)
	ReplaceSource(ctx context.Context, sourceURL string, entries []IndexEntry) error
}

// ScoredEntry is a vector store hit with its similarity score.
type ScoredEntry struct {
	Entry IndexEntry
	Score float32
}

// Hasher computes content fingerprints for deduplication.
type Hasher interface {
	Hash(data []byte) string
}

// Clock returns the current time and sleeps; injected so retry/backoff logic
// is testable without real delays.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// DocumentSink consumes fetched documents from the crawler. A sink must not
// retain the result past the call.
type DocumentSink interface {
	Consume(ctx context.Context, result FetchResult) error
}

// DocumentSinkFunc adapts a function to the DocumentSink interface.
type DocumentSinkFunc func(ctx context.Context, result FetchResult) error

// Consume implements DocumentSink.
func (f DocumentSinkFunc) Consume(ctx context.Context, result FetchResult) error {
	return f(ctx, result)
}

// IDGenerator produces crawl run IDs.
type IDGenerator interface {
	NewID() string
}
