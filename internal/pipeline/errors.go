package pipeline

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies fetch failures for retry decisions.
type FetchErrorKind string

// Fetch failure classes.
const (
	// FetchTransient covers timeouts, connection resets, 5xx and 429.
	FetchTransient FetchErrorKind = "transient"
	// FetchPermanent covers 4xx other than 429, DNS failures, malformed
	// URLs and scope violations.
	FetchPermanent FetchErrorKind = "permanent"
)

// FetchError reports a failed fetch with its classification and how many
// attempts were consumed.
type FetchError struct {
	URL      string
	Kind     FetchErrorKind
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.URL, e.Kind, e.Attempts, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether another ingestion pass may succeed.
func (e *FetchError) Retryable() bool { return e.Kind == FetchTransient }

// EmbeddingError reports a per-chunk embedding failure. Failed chunks are
// retried on the next ingestion pass.
type EmbeddingError struct {
	ContentHash string
	SourceURL   string
	Err         error
}

// Error implements the error interface.
func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed chunk %s from %s: %v", e.ContentHash, e.SourceURL, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *EmbeddingError) Unwrap() error { return e.Err }

var (
	// ErrUnsupportedContent is returned by the normalizer for content
	// types it has no strategy for.
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrEmptyContent is returned when extraction leaves no text after
	// boilerplate removal.
	ErrEmptyContent = errors.New("no text content after extraction")

	// ErrIndexConsistency signals the delete-then-insert supersede was
	// violated. Indexing for the affected source must halt, never proceed
	// silently.
	ErrIndexConsistency = errors.New("index consistency violated")

	// ErrGenerationUnavailable signals the generation capability failed;
	// callers surface retrieved context without a synthesized answer.
	ErrGenerationUnavailable = errors.New("generation capability unavailable")

	// ErrNoStructuredMatch is the normal negative result of a structured
	// query. It is not a failure.
	ErrNoStructuredMatch = errors.New("no structured match")
)
