// Package ai defines the narrow contracts for the opaque model-backed
// capabilities the pipeline depends on, so core logic tests can substitute
// deterministic fakes.
package ai

import "context"

// Embedder generates vector embeddings from text. Implementations must be
// safe for concurrent use.
type Embedder interface {
	// EmbedText embeds a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts embeds a batch, returning vectors in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator synthesizes an answer from retrieved context and the user
// query. Failures surface as pipeline.ErrGenerationUnavailable so callers
// can degrade to context-without-answer.
type Generator interface {
	Generate(ctx context.Context, contextText, queryText string) (string, error)
}

// Transcriber converts a recorded audio clip to text. Kept as an interface
// so the speech endpoint survives without binding a provider.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Provider aggregates the model-backed services for wiring convenience.
type Provider interface {
	Embedder() Embedder
	Generator() Generator
	Close() error
}
