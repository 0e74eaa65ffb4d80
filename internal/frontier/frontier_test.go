package frontier

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teamindigo/ragline/internal/pipeline"
)

func newTestFrontier(cfg Config) *Frontier {
	return New(cfg, pipeline.SystemClock{})
}

func TestEnqueueDeduplicatesEquivalentURLs(t *testing.T) {
	t.Parallel()

	f := newTestFrontier(Config{MaxDepth: 2})
	require.True(t, f.Enqueue("https://example.org/a", 0))
	require.False(t, f.Enqueue("HTTPS://EXAMPLE.ORG/a/", 1))
	require.False(t, f.Enqueue("https://example.org:443/a#frag", 1))
	require.Equal(t, 1, f.Pending())
}

func TestEnqueueScopesToSeedHosts(t *testing.T) {
	t.Parallel()

	f := newTestFrontier(Config{MaxDepth: 1})
	require.True(t, f.Enqueue("https://example.org/services", 0))
	require.True(t, f.Enqueue("https://example.org/services/contact", 1))
	require.False(t, f.Enqueue("https://external.com/partners", 1))
	require.Equal(t, 2, f.Pending())
}

func TestEnqueueAllowsSubdomainsOfSeedHost(t *testing.T) {
	t.Parallel()

	f := newTestFrontier(Config{MaxDepth: 1})
	require.True(t, f.Enqueue("https://example.org/", 0))
	require.True(t, f.Enqueue("https://docs.example.org/guide", 1))
}

func TestEnqueueRespectsAllowedHostPathPrefix(t *testing.T) {
	t.Parallel()

	f := newTestFrontier(Config{MaxDepth: 2, AllowedHosts: []string{"example.org/services"}})
	require.True(t, f.Enqueue("https://example.org/services/food", 0))
	require.False(t, f.Enqueue("https://example.org/blog/post", 0))
}

func TestEnqueueRejectsBeyondMaxDepth(t *testing.T) {
	t.Parallel()

	f := newTestFrontier(Config{MaxDepth: 1})
	require.True(t, f.Enqueue("https://example.org/", 0))
	require.True(t, f.Enqueue("https://example.org/a", 1))
	require.False(t, f.Enqueue("https://example.org/b", 2))
}

func TestDequeueInterleavesHosts(t *testing.T) {
	t.Parallel()

	f := newTestFrontier(Config{MaxDepth: 1, AllowedHosts: []string{"a.org", "b.org"}})
	for i := 0; i < 3; i++ {
		require.True(t, f.Enqueue(fmt.Sprintf("https://a.org/p%d", i), 0))
		require.True(t, f.Enqueue(fmt.Sprintf("https://b.org/p%d", i), 0))
	}

	var hosts []string
	for {
		target, ok := f.Dequeue()
		if !ok {
			break
		}
		hosts = append(hosts, pipeline.Host(target.URL))
	}
	require.Len(t, hosts, 6)
	require.Equal(t, []string{"a.org", "b.org", "a.org", "b.org", "a.org", "b.org"}, hosts)
}

func TestDequeuePreservesPerHostFIFO(t *testing.T) {
	t.Parallel()

	f := newTestFrontier(Config{MaxDepth: 1})
	require.True(t, f.Enqueue("https://example.org/first", 0))
	require.True(t, f.Enqueue("https://example.org/second", 0))

	first, ok := f.Dequeue()
	require.True(t, ok)
	require.Equal(t, "https://example.org/first", first.URL)

	second, ok := f.Dequeue()
	require.True(t, ok)
	require.Equal(t, "https://example.org/second", second.URL)
}

func TestDequeueHandsOutEachTargetOnce(t *testing.T) {
	t.Parallel()

	f := newTestFrontier(Config{MaxDepth: 1})
	require.True(t, f.Enqueue("https://example.org/only", 0))

	target, ok := f.Dequeue()
	require.True(t, ok)
	require.Equal(t, pipeline.TargetStatusInProgress, mustStatus(t, f, target.URL))

	_, ok = f.Dequeue()
	require.False(t, ok)
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	f := newTestFrontier(Config{MaxDepth: 1})
	require.True(t, f.Enqueue("https://example.org/a", 0))
	require.Equal(t, pipeline.TargetStatusPending, mustStatus(t, f, "https://example.org/a"))

	target, ok := f.Dequeue()
	require.True(t, ok)

	f.MarkDone(target.URL)
	require.Equal(t, pipeline.TargetStatusDone, mustStatus(t, f, target.URL))

	require.True(t, f.Enqueue("https://example.org/b", 0))
	b, ok := f.Dequeue()
	require.True(t, ok)
	f.MarkFailed(b.URL)
	require.Equal(t, pipeline.TargetStatusFailed, mustStatus(t, f, b.URL))
}

func mustStatus(t *testing.T, f *Frontier, url string) pipeline.TargetStatus {
	t.Helper()
	status, ok := f.Status(url)
	require.True(t, ok)
	return status
}

func TestAddScopeExtendsAllowedPatterns(t *testing.T) {
	t.Parallel()

	f := newTestFrontier(Config{MaxDepth: 2})
	f.AddScope("example.org/docs")

	require.True(t, f.Enqueue("https://example.org/docs/intro", 0))
	require.False(t, f.Enqueue("https://example.org/blog/post", 1))
	require.True(t, f.Enqueue("https://example.org/docs/advanced", 1))
}

func TestScopedSeedIsNotWidenedToWholeHost(t *testing.T) {
	t.Parallel()

	f := newTestFrontier(Config{MaxDepth: 2})
	f.AddScope("example.org/docs")
	require.True(t, f.Enqueue("https://example.org/docs/intro", 0))

	// Links outside the seed's scope stay out even on the seed's own host.
	require.False(t, f.Enqueue("https://example.org/careers", 1))
}

func TestUnscopedSeedStillLearnsItsHost(t *testing.T) {
	t.Parallel()

	f := newTestFrontier(Config{MaxDepth: 2})
	f.AddScope("example.org/docs")

	require.True(t, f.Enqueue("https://other.net/start", 0))
	require.True(t, f.Enqueue("https://other.net/next", 1))
	require.False(t, f.Enqueue("https://unrelated.io/x", 1))
}

func TestMarkSkipped(t *testing.T) {
	t.Parallel()

	f := newTestFrontier(Config{MaxDepth: 1})
	require.True(t, f.Enqueue("https://example.org/a", 0))

	target, ok := f.Dequeue()
	require.True(t, ok)

	f.MarkSkipped(target.URL)
	require.Equal(t, pipeline.TargetStatusSkipped, mustStatus(t, f, target.URL))
}
