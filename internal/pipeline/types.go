// Package pipeline defines core types shared across the ingestion and
// retrieval subsystems.
package pipeline

import (
	"net/http"
	"time"
)

// TargetStatus represents the lifecycle state of a crawl target.
type TargetStatus string

// Target status values tracked by the frontier.
const (
	TargetStatusPending    TargetStatus = "pending"
	TargetStatusInProgress TargetStatus = "in_progress"
	TargetStatusDone       TargetStatus = "done"
	TargetStatusFailed     TargetStatus = "failed"
	// TargetStatusSkipped marks a target the page budget excluded before it
	// was ever fetched.
	TargetStatusSkipped TargetStatus = "skipped"
)

// CrawlTarget is a discovered URL awaiting fetch. The frontier is the sole
// owner of its status transitions.
type CrawlTarget struct {
	URL          string
	Depth        int
	DiscoveredAt time.Time
	Status       TargetStatus
}

// Seed pairs a start URL with its crawl behavior. Non-recursive seeds are
// fetched once and never expanded.
type Seed struct {
	URL     string `json:"url" mapstructure:"url"`
	Scope   string `json:"scope,omitempty" mapstructure:"scope"`
	Recurse bool   `json:"recurse" mapstructure:"recurse"`
}

// FetchResult is the outcome of fetching one URL. Either Body/StatusCode are
// populated (success) or Err is set. Immutable once produced.
type FetchResult struct {
	URL         string
	StatusCode  int
	Body        []byte
	ContentType string
	Headers     http.Header
	FetchedAt   time.Time
	Attempts    int
	Err         error
}

// Chunk is a bounded span of normalized document text, the atomic unit of
// indexing and retrieval. (SourceURL, SequenceIndex) is unique; ContentHash
// deduplicates identical text across sources and re-crawls.
type Chunk struct {
	ContentHash   string
	SourceURL     string
	SequenceIndex int
	Text          string
	SpanStart     int
	SpanEnd       int
}

// IndexEntry is the persisted unit of the vector store: exactly one live
// entry per content hash.
type IndexEntry struct {
	ContentHash string
	Embedding   []float32
	SourceURL   string
	Text        string
	Sequence    int
}

// ScoredChunk pairs a chunk with its similarity score for one query.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// Row is one structured-query result row.
type Row map[string]string

// RetrievalContext is the query-scoped, ordered retrieval result handed to
// the generation step. It exists only for the lifetime of one query.
type RetrievalContext struct {
	Query         string
	Chunks        []ScoredChunk
	StructuredRow []Row
	LowConfidence bool
}

// Empty reports whether retrieval produced nothing usable.
func (rc RetrievalContext) Empty() bool {
	return len(rc.Chunks) == 0 && len(rc.StructuredRow) == 0
}

// CrawlSummary is returned when a crawl run finishes or is cancelled.
type CrawlSummary struct {
	RunID        string    `json:"run_id"`
	PagesFetched int       `json:"pages_fetched"`
	PagesFailed  int       `json:"pages_failed"`
	Cancelled    bool      `json:"cancelled"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// IndexStats reports the outcome of one upsert batch.
type IndexStats struct {
	Added     int
	Updated   int
	Unchanged int
	Failed    int
}
