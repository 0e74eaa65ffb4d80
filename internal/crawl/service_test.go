package crawl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/frontier"
	"github.com/teamindigo/ragline/internal/pipeline"
)

func newTestService(fetcher pipeline.Fetcher) *Service {
	factory := func() (*Crawler, *frontier.Frontier) {
		return newTestCrawler(Config{Concurrency: 2, MaxPages: 10, MaxDepth: 1}, fetcher, &collectingSink{})
	}
	return NewService(factory, &seqIDGen{}, zap.NewNop())
}

func TestServiceRunLifecycle(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.addHTML("https://example.org/", "<p>home</p>")
	svc := newTestService(fetcher)

	id, err := svc.Start([]pipeline.Seed{{URL: "https://example.org/", Recurse: true}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		status, serr := svc.Status(id)
		return serr == nil && status.State == RunStateSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	status, err := svc.Status(id)
	require.NoError(t, err)
	require.Equal(t, id, status.Summary.RunID)
	require.Equal(t, 1, status.Summary.PagesFetched)
}

func TestServiceRejectsConcurrentRuns(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.delay = 200 * time.Millisecond
	fetcher.addHTML("https://example.org/", "<p>home</p>")
	svc := newTestService(fetcher)

	id, err := svc.Start([]pipeline.Seed{{URL: "https://example.org/", Recurse: false}})
	require.NoError(t, err)

	_, err = svc.Start([]pipeline.Seed{{URL: "https://example.org/", Recurse: false}})
	require.ErrorIs(t, err, ErrRunInProgress)

	require.Eventually(t, func() bool {
		status, serr := svc.Status(id)
		return serr == nil && status.State == RunStateSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	_, err = svc.Start([]pipeline.Seed{{URL: "https://example.org/", Recurse: false}})
	require.NoError(t, err)
}

func TestServiceCancel(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.delay = 100 * time.Millisecond
	fetcher.addHTML("https://example.org/", "<p>home</p>")
	svc := newTestService(fetcher)

	id, err := svc.Start([]pipeline.Seed{{URL: "https://example.org/", Recurse: false}})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(id))

	require.Eventually(t, func() bool {
		status, serr := svc.Status(id)
		return serr == nil && status.State == RunStateCancelled
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServiceUnknownRun(t *testing.T) {
	t.Parallel()

	svc := newTestService(newStubFetcher())
	_, err := svc.Status("missing")
	require.ErrorIs(t, err, ErrRunNotFound)
	require.ErrorIs(t, svc.Cancel("missing"), ErrRunNotFound)
}
