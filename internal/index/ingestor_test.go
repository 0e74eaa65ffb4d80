package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	aimock "github.com/teamindigo/ragline/internal/ai/mock"
	"github.com/teamindigo/ragline/internal/hash/sha256"
	"github.com/teamindigo/ragline/internal/normalize"
	"github.com/teamindigo/ragline/internal/pipeline"
	"github.com/teamindigo/ragline/internal/store/memstore"
)

func newTestIngestor(t *testing.T) (*Ingestor, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	ix, err := New(Config{Workers: 2}, st, aimock.NewEmbedder(16), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(ix.Close)

	normalizer := normalize.New(normalize.NewChunker(512, 10, sha256.New()))
	return NewIngestor(normalizer, ix, zap.NewNop()), st
}

func TestIngestorConsumesHTMLDocument(t *testing.T) {
	t.Parallel()

	ing, st := newTestIngestor(t)
	err := ing.Consume(context.Background(), pipeline.FetchResult{
		URL:         "https://example.org/pantries",
		StatusCode:  200,
		Body:        []byte("<html><body><p>The pantry is open daily.</p></body></html>"),
		ContentType: "text/html",
	})
	require.NoError(t, err)
	require.NotZero(t, st.Len())
}

func TestIngestorSkipsUnsupportedContentQuietly(t *testing.T) {
	t.Parallel()

	ing, st := newTestIngestor(t)
	err := ing.Consume(context.Background(), pipeline.FetchResult{
		URL:         "https://example.org/archive.zip",
		StatusCode:  200,
		Body:        []byte{0x50, 0x4b, 0x03, 0x04},
		ContentType: "application/zip",
	})
	require.NoError(t, err)
	require.Zero(t, st.Len())
}

func TestIngestorSkipsEmptyDocumentQuietly(t *testing.T) {
	t.Parallel()

	ing, st := newTestIngestor(t)
	err := ing.Consume(context.Background(), pipeline.FetchResult{
		URL:         "https://example.org/blank",
		StatusCode:  200,
		Body:        []byte("   "),
		ContentType: "text/plain",
	})
	require.NoError(t, err)
	require.Zero(t, st.Len())
}
