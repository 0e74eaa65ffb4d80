package retrieve

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/pipeline"
	"github.com/teamindigo/ragline/internal/store/memstore"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Unix(1700000000, 0) }

func (fixedClock) Sleep(_ context.Context, _ time.Duration) error { return nil }

// tableEmbedder returns pre-assigned vectors per text so tests control
// similarity exactly.
type tableEmbedder struct {
	vectors map[string][]float32
}

func (e *tableEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no vector for %q", text)
}

func (e *tableEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
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

// axis returns a unit vector along the given axis of a 3-dim space.
func axis(i int) []float32 {
	v := make([]float32, 3)
	v[i] = 1
	return v
}

// blend returns a unit-normalized mix of two axes, giving a controllable
// cosine score against axis(a).
func blend(a, b int, wa, wb float32) []float32 {
	v := make([]float32, 3)
	v[a] = wa
	v[b] = wb
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	norm = float32(1) / float32(sqrt64(float64(norm)))
	for i := range v {
		v[i] *= norm
	}
	return v
}

func sqrt64(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 40; i++ {
		z = (z + x/z) / 2
	}
	return z
}

func seedEntry(st *memstore.Store, hash, source, text string, seq int, embedding []float32) {
	_ = st.Upsert(context.Background(), []pipeline.IndexEntry{{
		ContentHash: hash,
		Embedding:   embedding,
		SourceURL:   source,
		Text:        text,
		Sequence:    seq,
	}})
}

func newTestRetriever(cfg Config, st *memstore.Store, embedder *tableEmbedder) *Retriever {
	return New(cfg, st, embedder, fixedClock{}, zap.NewNop())
}

func TestRetrieveEmptyIndexLowConfidence(t *testing.T) {
	t.Parallel()

	embedder := &tableEmbedder{vectors: map[string][]float32{"anything": axis(0)}}
	r := newTestRetriever(Config{TopK: 5, ContextBudget: 1000, MinSimilarity: 0.6}, memstore.New(), embedder)

	rc, err := r.Retrieve(context.Background(), "anything", 0, 0)
	require.NoError(t, err)
	require.Empty(t, rc.Chunks)
	require.True(t, rc.LowConfidence)
}

func TestRetrieveFiltersBelowThreshold(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	// Scores against axis(0): close=0.9..., far=0.1...
	seedEntry(st, "h-close", "https://example.org/a", "close text", 0, blend(0, 1, 0.9, 0.45))
	seedEntry(st, "h-far", "https://example.org/b", "far text", 0, blend(0, 1, 0.1, 0.99))

	embedder := &tableEmbedder{vectors: map[string][]float32{"q": axis(0)}}
	r := newTestRetriever(Config{TopK: 5, ContextBudget: 1000, MinSimilarity: 0.6}, st, embedder)

	rc, err := r.Retrieve(context.Background(), "q", 0, 0)
	require.NoError(t, err)
	require.Len(t, rc.Chunks, 1)
	require.Equal(t, "h-close", rc.Chunks[0].Chunk.ContentHash)
	require.False(t, rc.LowConfidence)
}

func TestRetrieveOrdersByScoreThenSequence(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	tied := blend(0, 1, 0.8, 0.6)
	seedEntry(st, "h-best", "https://example.org/a", "best", 5, blend(0, 1, 0.95, 0.3122499))
	seedEntry(st, "h-tie-late", "https://example.org/a", "tie late", 3, tied)
	seedEntry(st, "h-tie-early", "https://example.org/a", "tie early", 1, tied)

	embedder := &tableEmbedder{vectors: map[string][]float32{"q": axis(0)}}
	r := newTestRetriever(Config{TopK: 5, ContextBudget: 1000, MinSimilarity: 0.5}, st, embedder)

	rc, err := r.Retrieve(context.Background(), "q", 0, 0)
	require.NoError(t, err)
	require.Len(t, rc.Chunks, 3)
	require.Equal(t, "h-best", rc.Chunks[0].Chunk.ContentHash)
	require.Equal(t, "h-tie-early", rc.Chunks[1].Chunk.ContentHash)
	require.Equal(t, "h-tie-late", rc.Chunks[2].Chunk.ContentHash)
}

func TestRetrieveStableAcrossCalls(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	v := blend(0, 1, 0.9, 0.45)
	for i := 0; i < 5; i++ {
		seedEntry(st, fmt.Sprintf("h-%d", i), "https://example.org/a", fmt.Sprintf("text %d", i), i, v)
	}

	embedder := &tableEmbedder{vectors: map[string][]float32{"q": axis(0)}}
	r := newTestRetriever(Config{TopK: 5, ContextBudget: 1000, MinSimilarity: 0.5}, st, embedder)

	first, err := r.Retrieve(context.Background(), "q", 0, 0)
	require.NoError(t, err)
	second, err := r.Retrieve(context.Background(), "q", 0, 0)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestRetrieveRespectsContextBudget(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	long := strings.Repeat("a", 80)
	short := "tiny"
	seedEntry(st, "h-long", "https://example.org/a", long, 0, blend(0, 1, 0.95, 0.3122499))
	seedEntry(st, "h-short", "https://example.org/a", short, 1, blend(0, 1, 0.9, 0.45))

	embedder := &tableEmbedder{vectors: map[string][]float32{"q": axis(0)}}
	// Budget fits the long chunk only with nothing to spare, so the short
	// chunk is skipped... or fits both when generous.
	r := newTestRetriever(Config{TopK: 5, ContextBudget: 80, MinSimilarity: 0.5}, st, embedder)
	rc, err := r.Retrieve(context.Background(), "q", 0, 0)
	require.NoError(t, err)
	require.Len(t, rc.Chunks, 1)
	require.Equal(t, "h-long", rc.Chunks[0].Chunk.ContentHash)

	rc, err = r.Retrieve(context.Background(), "q", 0, 200)
	require.NoError(t, err)
	require.Len(t, rc.Chunks, 2)
}

func TestRetrieveSkipsOversizedKeepsSmaller(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	seedEntry(st, "h-huge", "https://example.org/a", strings.Repeat("a", 500), 0, blend(0, 1, 0.95, 0.3122499))
	seedEntry(st, "h-small", "https://example.org/a", "fits fine", 1, blend(0, 1, 0.9, 0.45))

	embedder := &tableEmbedder{vectors: map[string][]float32{"q": axis(0)}}
	r := newTestRetriever(Config{TopK: 5, ContextBudget: 50, MinSimilarity: 0.5}, st, embedder)

	rc, err := r.Retrieve(context.Background(), "q", 0, 0)
	require.NoError(t, err)
	require.Len(t, rc.Chunks, 1)
	require.Equal(t, "h-small", rc.Chunks[0].Chunk.ContentHash)
}

func TestBudgetRemaining(t *testing.T) {
	t.Parallel()

	rc := pipeline.RetrievalContext{Chunks: []pipeline.ScoredChunk{
		{Chunk: pipeline.Chunk{Text: strings.Repeat("a", 30)}},
	}}
	require.Equal(t, 70, BudgetRemaining(rc, 100))
	require.Equal(t, 0, BudgetRemaining(rc, 20))
}
