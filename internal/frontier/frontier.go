// Package frontier implements the crawl work queue: discovered URLs, the
// visited set, depth and scope limits, and per-host FIFO ordering.
package frontier

import (
	"strings"
	"sync"

	"github.com/teamindigo/ragline/internal/metrics"
	"github.com/teamindigo/ragline/internal/pipeline"
)

// Config bounds what the frontier will accept.
type Config struct {
	MaxDepth int
	// AllowedHosts scopes the crawl globally. A bare host matches that host
	// and its subdomains; host/path prefixes narrow further. Per-seed scope
	// patterns added with AddScope extend the list. When neither is set the
	// scope is fixed by the seed hosts on first enqueue.
	AllowedHosts []string
}

// Frontier owns all CrawlTarget state transitions behind a single mutex.
// Targets come back out in discovery order per host, interleaved round-robin
// across hosts so no single host's politeness window starves the workers.
type Frontier struct {
	mu        sync.Mutex
	cfg       Config
	allowed   []string
	seen      map[string]*pipeline.CrawlTarget
	lanes     map[string][]string
	hostOrder []string
	nextLane  int
	pending   int
	seedHosts map[string]struct{}
	clock     pipeline.Clock
}

// New builds an empty frontier.
func New(cfg Config, clock pipeline.Clock) *Frontier {
	f := &Frontier{
		cfg:       cfg,
		seen:      make(map[string]*pipeline.CrawlTarget),
		lanes:     make(map[string][]string),
		seedHosts: make(map[string]struct{}),
		clock:     clock,
	}
	for _, pattern := range cfg.AllowedHosts {
		if p := strings.ToLower(strings.TrimSpace(pattern)); p != "" {
			f.allowed = append(f.allowed, p)
		}
	}
	return f
}

// AddScope admits URLs matching a host or host/path pattern, alongside the
// configured allow-list. Seeds carrying an explicit scope register it here
// before they enqueue.
func (f *Frontier) AddScope(pattern string) {
	p := strings.ToLower(strings.TrimSpace(pattern))
	if p == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowed = append(f.allowed, p)
}

// Enqueue admits a URL at the given depth. Out-of-scope, too-deep, malformed
// and already-seen URLs are silently dropped; the bool reports admission.
func (f *Frontier) Enqueue(rawURL string, depth int) bool {
	normalized, err := pipeline.NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	if depth > f.cfg.MaxDepth {
		return false
	}
	host := pipeline.Host(normalized)

	f.mu.Lock()
	defer f.mu.Unlock()

	// A seed without any matching scope pattern fixes its own host as the
	// crawl boundary; a seed already covered by a pattern stays narrowed to
	// that pattern.
	if depth == 0 && len(f.cfg.AllowedHosts) == 0 && !f.matchesAllowed(host, normalized) {
		f.seedHosts[host] = struct{}{}
	}
	if !f.inScope(host, normalized) {
		return false
	}
	if _, ok := f.seen[normalized]; ok {
		return false
	}
	f.seen[normalized] = &pipeline.CrawlTarget{
		URL:          normalized,
		Depth:        depth,
		DiscoveredAt: f.clock.Now(),
		Status:       pipeline.TargetStatusPending,
	}
	if _, ok := f.lanes[host]; !ok {
		f.hostOrder = append(f.hostOrder, host)
	}
	f.lanes[host] = append(f.lanes[host], normalized)
	f.pending++
	metrics.SetFrontierPending(f.pending)
	return true
}

// Dequeue hands out the next pending target, or ok=false when none remain.
// The returned target is marked in-progress; no other caller can receive the
// same URL.
func (f *Frontier) Dequeue() (pipeline.CrawlTarget, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending == 0 {
		return pipeline.CrawlTarget{}, false
	}

	for range f.hostOrder {
		host := f.hostOrder[f.nextLane%len(f.hostOrder)]
		f.nextLane++
		lane := f.lanes[host]
		if len(lane) == 0 {
			continue
		}
		url := lane[0]
		f.lanes[host] = lane[1:]
		target := f.seen[url]
		target.Status = pipeline.TargetStatusInProgress
		f.pending--
		metrics.SetFrontierPending(f.pending)
		return *target, true
	}
	return pipeline.CrawlTarget{}, false
}

// MarkDone retires a fetched target.
func (f *Frontier) MarkDone(url string) {
	f.setStatus(url, pipeline.TargetStatusDone)
}

// MarkFailed retires a target whose retry budget is exhausted.
func (f *Frontier) MarkFailed(url string) {
	f.setStatus(url, pipeline.TargetStatusFailed)
}

// MarkSkipped retires a target that was never fetched because the page
// budget ran out.
func (f *Frontier) MarkSkipped(url string) {
	f.setStatus(url, pipeline.TargetStatusSkipped)
}

func (f *Frontier) setStatus(url string, status pipeline.TargetStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if target, ok := f.seen[url]; ok {
		target.Status = status
	}
}

// Pending reports how many admitted targets await dequeue.
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// Status returns the recorded state of a URL and whether it was ever
// admitted.
func (f *Frontier) Status(url string) (pipeline.TargetStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.seen[url]
	if !ok {
		return "", false
	}
	return target.Status, true
}

func (f *Frontier) inScope(host, normalized string) bool {
	if host == "" {
		return false
	}
	return f.matchesSeedHost(host) || f.matchesAllowed(host, normalized)
}

func (f *Frontier) matchesSeedHost(host string) bool {
	if _, ok := f.seedHosts[host]; ok {
		return true
	}
	for seed := range f.seedHosts {
		if strings.HasSuffix(host, "."+seed) {
			return true
		}
	}
	return false
}

func (f *Frontier) matchesAllowed(host, normalized string) bool {
	for _, allowed := range f.allowed {
		allowedHost := allowed
		var allowedPath string
		if i := strings.IndexByte(allowed, '/'); i >= 0 {
			allowedHost, allowedPath = allowed[:i], allowed[i:]
		}
		if host != allowedHost && !strings.HasSuffix(host, "."+allowedHost) {
			continue
		}
		if allowedPath == "" {
			return true
		}
		if u := pathOf(normalized); strings.HasPrefix(u, allowedPath) {
			return true
		}
	}
	return false
}

func pathOf(normalized string) string {
	rest := normalized
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i:]
	}
	return "/"
}
