// Package fetch implements the rate-limited, retrying HTTP fetcher on top
// of the Colly collector.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/metrics"
	"github.com/teamindigo/ragline/internal/pipeline"
)

// Config controls fetcher behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Backoff   BackoffPolicy
}

// Fetcher implements pipeline.Fetcher. One Fetch call drives the retry state
// machine for a single URL; every attempt consumes a token from the host's
// rate budget.
type Fetcher struct {
	cfg     Config
	limiter *HostLimiter
	robots  RobotsPolicy
	clock   pipeline.Clock
	logger  *zap.Logger
	base    *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config, limiter *HostLimiter, robots RobotsPolicy, clock pipeline.Clock, logger *zap.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Backoff.MaxAttempts == 0 {
		cfg.Backoff = DefaultBackoffPolicy()
	}
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true // enforced by RobotsPolicy, once per host
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:     cfg,
		limiter: limiter,
		robots:  robots,
		clock:   clock,
		logger:  logger,
		base:    c,
	}
}

// Fetch executes the bounded retry loop for one URL. Transient failures
// (timeouts, 5xx, 429, connection reset) back off and retry until the
// attempt budget is spent; permanent failures return immediately.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (pipeline.FetchResult, error) {
	host := pipeline.Host(rawURL)

	if !f.robots.Allowed(ctx, rawURL) {
		return pipeline.FetchResult{}, &pipeline.FetchError{
			URL:      rawURL,
			Kind:     pipeline.FetchPermanent,
			Attempts: 0,
			Err:      errors.New("disallowed by robots.txt"),
		}
	}

	state := attemptState{}
	for {
		if err := f.limiter.Wait(ctx, host); err != nil {
			return pipeline.FetchResult{}, fmt.Errorf("politeness wait: %w", err)
		}

		state.attempts++
		if state.attempts > 1 {
			metrics.ObserveFetchRetry()
		}

		start := f.clock.Now()
		result, retryAfter, err := f.attempt(ctx, rawURL)
		if err == nil {
			result.FetchedAt = f.clock.Now()
			result.Attempts = state.attempts
			metrics.ObservePageFetched(host, "ok", f.clock.Now().Sub(start))
			return result, nil
		}

		kind := classify(result.StatusCode, err)
		if kind == pipeline.FetchPermanent {
			metrics.ObservePageFetched(host, "permanent_failure", f.clock.Now().Sub(start))
			return pipeline.FetchResult{}, &pipeline.FetchError{
				URL:      rawURL,
				Kind:     pipeline.FetchPermanent,
				Attempts: state.attempts,
				Err:      err,
			}
		}

		if f.cfg.Backoff.Exhausted(state.attempts) {
			metrics.ObservePageFetched(host, "retries_exhausted", f.clock.Now().Sub(start))
			return pipeline.FetchResult{}, &pipeline.FetchError{
				URL:      rawURL,
				Kind:     pipeline.FetchTransient,
				Attempts: state.attempts,
				Err:      err,
			}
		}

		delay := f.cfg.Backoff.Backoff(state.attempts)
		if retryAfter > delay {
			delay = retryAfter
		}
		state.nextEligible = f.clock.Now().Add(delay)
		f.logger.Debug("fetch backing off",
			zap.String("url", rawURL),
			zap.Int("attempt", state.attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := f.clock.Sleep(ctx, delay); err != nil {
			return pipeline.FetchResult{}, fmt.Errorf("backoff interrupted: %w", err)
		}
	}
}

// attempt issues exactly one HTTP request. On HTTP-level failure the
// returned result still carries the status code for classification, and
// retryAfter holds any server-provided 429/503 hint.
func (f *Fetcher) attempt(ctx context.Context, rawURL string) (pipeline.FetchResult, time.Duration, error) {
	var (
		result     pipeline.FetchResult
		fetchErr   error
		retryAfter time.Duration
	)

	collector := f.base.Clone()
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = pipeline.FetchResult{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			Body:        append([]byte(nil), r.Body...),
			ContentType: r.Headers.Get("Content-Type"),
			Headers:     r.Headers.Clone(),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			result.StatusCode = r.StatusCode
			if r.Headers != nil {
				retryAfter = parseRetryAfter(r.Headers.Get("Retry-After"))
			}
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return pipeline.FetchResult{}, 0, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return result, retryAfter, fetchErr
		}
		if err != nil {
			return result, retryAfter, fmt.Errorf("visit failed: %w", err)
		}
		return result, retryAfter, nil
	}
}

// classify maps a failed attempt onto the retry taxonomy. Status code wins
// over the transport error when both are present.
func classify(statusCode int, err error) pipeline.FetchErrorKind {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return pipeline.FetchTransient
	case statusCode >= 500:
		return pipeline.FetchTransient
	case statusCode >= 400:
		return pipeline.FetchPermanent
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return pipeline.FetchPermanent
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pipeline.FetchTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pipeline.FetchTransient
	}
	if err != nil && strings.Contains(err.Error(), "connection reset") {
		return pipeline.FetchTransient
	}
	// Unclassified transport errors get the retry benefit of the doubt.
	return pipeline.FetchTransient
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
