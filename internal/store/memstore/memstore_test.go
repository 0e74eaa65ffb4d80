package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teamindigo/ragline/internal/pipeline"
)

func entry(hash, source string, seq int, embedding []float32) pipeline.IndexEntry {
	return pipeline.IndexEntry{
		ContentHash: hash,
		Embedding:   embedding,
		SourceURL:   source,
		Text:        "text " + hash,
		Sequence:    seq,
	}
}

func TestUpsertAndListBySource(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []pipeline.IndexEntry{
		entry("h2", "https://example.org/a", 1, []float32{0, 1}),
		entry("h1", "https://example.org/a", 0, []float32{1, 0}),
		entry("h3", "https://example.org/b", 0, []float32{1, 1}),
	}))

	list, err := s.ListBySource(ctx, "https://example.org/a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "h1", list[0].ContentHash)
	require.Equal(t, "h2", list[1].ContentHash)
	require.Equal(t, 3, s.Len())
}

func TestQueryNearestRanksByCosine(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []pipeline.IndexEntry{
		entry("h-exact", "https://example.org/a", 0, []float32{1, 0}),
		entry("h-mid", "https://example.org/a", 1, []float32{1, 1}),
		entry("h-orth", "https://example.org/a", 2, []float32{0, 1}),
	}))

	hits, err := s.QueryNearest(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "h-exact", hits[0].Entry.ContentHash)
	require.Equal(t, "h-mid", hits[1].Entry.ContentHash)
	require.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []pipeline.IndexEntry{
		entry("h1", "https://example.org/a", 0, []float32{1, 0}),
	}))
	require.NoError(t, s.Delete(ctx, "h1"))
	require.Zero(t, s.Len())

	list, err := s.ListBySource(ctx, "https://example.org/a")
	require.NoError(t, err)
	require.Empty(t, list)

	// Deleting a missing hash is a no-op.
	require.NoError(t, s.Delete(ctx, "missing"))
}

func TestReplaceSourceSwapsAtomically(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []pipeline.IndexEntry{
		entry("old1", "https://example.org/a", 0, []float32{1, 0}),
		entry("old2", "https://example.org/a", 1, []float32{0, 1}),
		entry("keep", "https://example.org/b", 0, []float32{1, 1}),
	}))

	require.NoError(t, s.ReplaceSource(ctx, "https://example.org/a", []pipeline.IndexEntry{
		entry("new1", "https://example.org/a", 0, []float32{1, 0}),
	}))

	list, err := s.ListBySource(ctx, "https://example.org/a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "new1", list[0].ContentHash)

	other, err := s.ListBySource(ctx, "https://example.org/b")
	require.NoError(t, err)
	require.Len(t, other, 1)
	require.Equal(t, 2, s.Len())
}

func TestReplaceSourceNeverExposesMixedState(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	source := "https://example.org/a"
	require.NoError(t, s.ReplaceSource(ctx, source, []pipeline.IndexEntry{
		entry("gen0-0", source, 0, []float32{1, 0}),
		entry("gen0-1", source, 1, []float32{0, 1}),
	}))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i < 50; i++ {
			_ = s.ReplaceSource(ctx, source, []pipeline.IndexEntry{
				entry(fmt.Sprintf("gen%d-0", i), source, 0, []float32{1, 0}),
				entry(fmt.Sprintf("gen%d-1", i), source, 1, []float32{0, 1}),
			})
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		list, err := s.ListBySource(ctx, source)
		require.NoError(t, err)
		require.Len(t, list, 2)
		gen0 := list[0].ContentHash[:len(list[0].ContentHash)-2]
		gen1 := list[1].ContentHash[:len(list[1].ContentHash)-2]
		require.Equal(t, gen0, gen1, "reader observed entries from two generations")
	}
}

func TestReplaceSourceWithNilClears(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []pipeline.IndexEntry{
		entry("h1", "https://example.org/a", 0, []float32{1, 0}),
	}))
	require.NoError(t, s.ReplaceSource(ctx, "https://example.org/a", nil))
	require.Zero(t, s.Len())
}

func TestSharedHashSurvivesOtherSourceSupersede(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	a := "https://example.org/a"
	b := "https://example.org/b"

	// Identical text indexed under two sources shares one record.
	require.NoError(t, s.Upsert(ctx, []pipeline.IndexEntry{entry("shared", a, 0, []float32{1, 0})}))
	require.NoError(t, s.Upsert(ctx, []pipeline.IndexEntry{entry("shared", b, 3, []float32{1, 0})}))
	require.Equal(t, 1, s.Len())

	// Re-crawling A with new content must not disturb B's live entry.
	require.NoError(t, s.ReplaceSource(ctx, a, []pipeline.IndexEntry{
		entry("changed", a, 0, []float32{0, 1}),
	}))

	other, err := s.ListBySource(ctx, b)
	require.NoError(t, err)
	require.Len(t, other, 1)
	require.Equal(t, "shared", other[0].ContentHash)
	require.Equal(t, b, other[0].SourceURL)
	require.Equal(t, 3, other[0].Sequence)

	// The record dies only with its last source.
	require.NoError(t, s.ReplaceSource(ctx, b, nil))
	_, ok, err := s.GetByHash(ctx, "shared")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListBySourceUsesPerSourceSequence(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []pipeline.IndexEntry{
		entry("shared", "https://example.org/a", 5, []float32{1, 0}),
		entry("shared", "https://example.org/b", 0, []float32{1, 0}),
		entry("solo", "https://example.org/b", 1, []float32{0, 1}),
	}))

	b, err := s.ListBySource(ctx, "https://example.org/b")
	require.NoError(t, err)
	require.Len(t, b, 2)
	require.Equal(t, "shared", b[0].ContentHash)
	require.Equal(t, 0, b[0].Sequence)
	require.Equal(t, "solo", b[1].ContentHash)

	a, err := s.ListBySource(ctx, "https://example.org/a")
	require.NoError(t, err)
	require.Len(t, a, 1)
	require.Equal(t, 5, a[0].Sequence)
}

func TestDeleteClearsEverySourceClaim(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []pipeline.IndexEntry{
		entry("shared", "https://example.org/a", 0, []float32{1, 0}),
		entry("shared", "https://example.org/b", 0, []float32{1, 0}),
	}))

	require.NoError(t, s.Delete(ctx, "shared"))
	require.Zero(t, s.Len())

	for _, source := range []string{"https://example.org/a", "https://example.org/b"} {
		list, err := s.ListBySource(ctx, source)
		require.NoError(t, err)
		require.Empty(t, list)
	}
}

func TestGetByHash(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, []pipeline.IndexEntry{
		entry("h1", "https://example.org/a", 0, []float32{1, 0}),
	}))

	e, ok, err := s.GetByHash(ctx, "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float32{1, 0}, e.Embedding)

	_, ok, err = s.GetByHash(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}
