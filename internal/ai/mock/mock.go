// Package mock provides deterministic ai capability fakes for tests and
// offline development.
package mock

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
)

// Embedder produces deterministic unit vectors derived from the text, so
// identical text always embeds identically and similar runs are repeatable.
type Embedder struct {
	Dim   int
	calls atomic.Int64
	// Fail, when set, simulates a provider outage for texts containing it.
	Fail string
}

// NewEmbedder returns a deterministic embedder of the given dimension.
func NewEmbedder(dim int) *Embedder {
	if dim <= 0 {
		dim = 16
	}
	return &Embedder{Dim: dim}
}

// EmbedText implements ai.Embedder.
func (e *Embedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if e.Fail != "" && strings.Contains(text, e.Fail) {
		return nil, fmt.Errorf("mock embedder outage")
	}
	e.calls.Add(1)
	return deterministicVector(text, e.Dim), nil
}

// EmbedTexts implements ai.Embedder.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Calls reports how many embeddings were actually computed.
func (e *Embedder) Calls() int { return int(e.calls.Load()) }

func deterministicVector(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, dim)
	var norm float64
	for i := 0; i < dim; i++ {
		b := sum[i%len(sum)] ^ byte(i)
		v[i] = float32(b) - 128
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// Generator echoes a canned answer, or fails when Unavailable is set.
type Generator struct {
	Answer      string
	Unavailable error
}

// Generate implements ai.Generator.
func (g *Generator) Generate(_ context.Context, _, queryText string) (string, error) {
	if g.Unavailable != nil {
		return "", g.Unavailable
	}
	if g.Answer != "" {
		return g.Answer, nil
	}
	return "mock answer for: " + queryText, nil
}

// Transcriber returns fixed text for any clip.
type Transcriber struct {
	Text string
}

// Transcribe implements ai.Transcriber.
func (t *Transcriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	return t.Text, nil
}
