// Package crawl drives the fetcher against the frontier with a bounded
// worker pool and feeds fetched documents to a downstream sink.
package crawl

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/frontier"
	"github.com/teamindigo/ragline/internal/metrics"
	"github.com/teamindigo/ragline/internal/pipeline"
	"github.com/teamindigo/ragline/internal/progress"
)

// idlePollInterval is how long an idle worker waits before re-checking the
// frontier while siblings still have targets in flight.
const idlePollInterval = 20 * time.Millisecond

// Config bounds a crawl run.
type Config struct {
	Concurrency int
	MaxPages    int
	MaxDepth    int
}

// Crawler coordinates workers, the frontier and the document sink for one
// crawl session.
type Crawler struct {
	cfg      Config
	fetcher  pipeline.Fetcher
	frontier *frontier.Frontier
	sink     pipeline.DocumentSink
	idGen    pipeline.IDGenerator
	clock    pipeline.Clock
	emitter  progress.Emitter
	logger   *zap.Logger

	runID string

	fetched  atomic.Int64
	failed   atomic.Int64
	reserved atomic.Int64
	inflight atomic.Int64
}

// New builds a Crawler.
func New(
	cfg Config,
	fetcher pipeline.Fetcher,
	fr *frontier.Frontier,
	sink pipeline.DocumentSink,
	idGen pipeline.IDGenerator,
	clock pipeline.Clock,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Crawler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Crawler{
		cfg:      cfg,
		fetcher:  fetcher,
		frontier: fr,
		sink:     sink,
		idGen:    idGen,
		clock:    clock,
		emitter:  emitter,
		logger:   logger,
	}
}

// SetRunID fixes the run ID before Run starts, so callers tracking the run
// externally and the emitted events agree on one identifier. Run mints its
// own when unset.
func (c *Crawler) SetRunID(id string) {
	c.runID = id
}

// emit reports a milestone when an emitter is wired.
func (c *Crawler) emit(evt progress.Event) {
	if c.emitter == nil {
		return
	}
	evt.RunID = c.runID
	evt.TS = c.clock.Now()
	c.emitter.Emit(evt)
}

// Run seeds the frontier and blocks until it drains, the page cap is hit, or
// ctx is cancelled. On cancellation workers finish their current fetch and
// drain no further targets; the summary carries the Cancelled flag.
func (c *Crawler) Run(ctx context.Context, seeds []pipeline.Seed) (pipeline.CrawlSummary, error) {
	if c.runID == "" {
		c.runID = c.idGen.NewID()
	}
	summary := pipeline.CrawlSummary{
		RunID:     c.runID,
		StartedAt: c.clock.Now(),
	}
	c.emit(progress.Event{Stage: progress.StageRunStarted})

	// Scopes register before any seed enqueues so a seed covered by another
	// seed's pattern is not widened to its whole host.
	for _, seed := range seeds {
		if seed.Scope != "" {
			c.frontier.AddScope(seed.Scope)
		}
	}

	noRecurse := make(map[string]struct{})
	for _, seed := range seeds {
		normalized, err := pipeline.NormalizeURL(seed.URL)
		if err != nil {
			c.logger.Warn("skipping malformed seed", zap.String("url", seed.URL), zap.Error(err))
			continue
		}
		if !seed.Recurse {
			noRecurse[normalized] = struct{}{}
		}
		c.frontier.Enqueue(seed.URL, 0)
	}

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, noRecurse)
		}()
	}
	wg.Wait()

	summary.PagesFetched = int(c.fetched.Load())
	summary.PagesFailed = int(c.failed.Load())
	summary.Cancelled = ctx.Err() != nil
	summary.FinishedAt = c.clock.Now()
	c.emit(progress.Event{
		Stage: progress.StageRunFinished,
		Dur:   summary.FinishedAt.Sub(summary.StartedAt),
	})

	c.logger.Info("crawl finished",
		zap.String("run_id", summary.RunID),
		zap.Int("fetched", summary.PagesFetched),
		zap.Int("failed", summary.PagesFailed),
		zap.Bool("cancelled", summary.Cancelled),
	)
	return summary, nil
}

func (c *Crawler) worker(ctx context.Context, noRecurse map[string]struct{}) {
	metrics.WorkerStarted()
	defer metrics.WorkerStopped()

	for {
		if ctx.Err() != nil {
			return
		}
		if c.capReached() {
			return
		}

		target, ok := c.frontier.Dequeue()
		if !ok {
			if c.inflight.Load() == 0 {
				return
			}
			// Siblings may still discover links; idle briefly and retry.
			if err := c.clock.Sleep(ctx, idlePollInterval); err != nil {
				return
			}
			continue
		}

		c.inflight.Add(1)
		c.process(ctx, target, noRecurse)
		c.inflight.Add(-1)
	}
}

// process fetches one target and hands the document downstream. The page cap
// is reserved before the fetch and released on failure so successful pages
// never exceed MaxPages.
func (c *Crawler) process(ctx context.Context, target pipeline.CrawlTarget, noRecurse map[string]struct{}) {
	if c.cfg.MaxPages > 0 && c.reserved.Add(1) > int64(c.cfg.MaxPages) {
		c.reserved.Add(-1)
		c.frontier.MarkSkipped(target.URL)
		return
	}

	result, err := c.fetcher.Fetch(ctx, target.URL)
	if err != nil {
		if c.cfg.MaxPages > 0 {
			c.reserved.Add(-1)
		}
		c.failed.Add(1)
		c.frontier.MarkFailed(target.URL)
		c.emit(progress.Event{
			Stage: progress.StagePageFailed,
			URL:   target.URL,
			Host:  pipeline.Host(target.URL),
			Note:  err.Error(),
		})

		var fetchErr *pipeline.FetchError
		if errors.As(err, &fetchErr) {
			c.logger.Warn("target failed",
				zap.String("url", target.URL),
				zap.String("kind", string(fetchErr.Kind)),
				zap.Int("attempts", fetchErr.Attempts),
				zap.Error(fetchErr.Err),
			)
		} else {
			c.logger.Warn("target failed", zap.String("url", target.URL), zap.Error(err))
		}
		return
	}

	c.fetched.Add(1)
	c.frontier.MarkDone(target.URL)
	c.emit(progress.Event{
		Stage: progress.StagePageFetched,
		URL:   target.URL,
		Host:  pipeline.Host(target.URL),
		Bytes: int64(len(result.Body)),
	})

	c.discoverLinks(target, result, noRecurse)

	// A cancelled run never hands a partial document downstream.
	if ctx.Err() != nil {
		return
	}
	if err := c.sink.Consume(ctx, result); err != nil {
		c.logger.Warn("document sink rejected page", zap.String("url", target.URL), zap.Error(err))
	}
}

func (c *Crawler) discoverLinks(target pipeline.CrawlTarget, result pipeline.FetchResult, noRecurse map[string]struct{}) {
	if !isHTML(result.ContentType) {
		return
	}
	if target.Depth >= c.cfg.MaxDepth {
		return
	}
	if _, stop := noRecurse[target.URL]; stop {
		return
	}

	links, err := extractLinks(result.URL, result.Body)
	if err != nil {
		c.logger.Debug("link extraction failed", zap.String("url", target.URL), zap.Error(err))
		return
	}
	admitted := 0
	for _, link := range links {
		if c.frontier.Enqueue(link, target.Depth+1) {
			admitted++
		}
	}
	if admitted > 0 {
		c.logger.Debug("links discovered",
			zap.String("url", target.URL),
			zap.Int("admitted", admitted),
			zap.Int("total", len(links)),
		)
	}
}

func (c *Crawler) capReached() bool {
	return c.cfg.MaxPages > 0 && c.fetched.Load() >= int64(c.cfg.MaxPages)
}
