package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRobotsEnforcerHonorsDisallow(t *testing.T) {
	t.Parallel()

	var robotsFetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsFetches.Add(1)
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	policy := NewRobotsEnforcer(true, "test-agent", zap.NewNop())
	ctx := context.Background()

	require.True(t, policy.Allowed(ctx, srv.URL+"/public/page"))
	require.False(t, policy.Allowed(ctx, srv.URL+"/private/page"))
	require.False(t, policy.Allowed(ctx, srv.URL+"/private/deeper/page"))

	// Parsed rules are cached per host.
	require.EqualValues(t, 1, robotsFetches.Load())
}

func TestRobotsEnforcerAllowsOnMissingFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	policy := NewRobotsEnforcer(true, "test-agent", zap.NewNop())
	require.True(t, policy.Allowed(context.Background(), srv.URL+"/anything"))
}

func TestRobotsDisabledAllowsEverything(t *testing.T) {
	t.Parallel()

	policy := NewRobotsEnforcer(false, "test-agent", zap.NewNop())
	require.True(t, policy.Allowed(context.Background(), "https://example.org/private/page"))
}
