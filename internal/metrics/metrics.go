// Package metrics exposes Prometheus collectors for the ingestion and
// retrieval pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal        *prometheus.CounterVec
	fetchRetriesTotal        prometheus.Counter
	fetchDurationSeconds     *prometheus.HistogramVec
	chunksProducedTotal      prometheus.Counter
	embeddingsComputedTotal  prometheus.Counter
	embeddingsSkippedTotal   prometheus.Counter
	embeddingFailuresTotal   prometheus.Counter
	indexEntriesDeletedTotal prometheus.Counter
	retrievalSeconds         prometheus.Histogram
	frontierDepth            prometheus.Gauge
	activeCrawlWorkers       prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragline_pages_fetched_total",
				Help: "Pages fetched, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)
		fetchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ragline_fetch_retries_total",
			Help: "Fetch attempts beyond the first.",
		})
		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ragline_fetch_duration_seconds",
				Help:    "Wall time of individual fetches.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"host"},
		)
		chunksProducedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ragline_chunks_produced_total",
			Help: "Chunks produced by the normalizer.",
		})
		embeddingsComputedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ragline_embeddings_computed_total",
			Help: "Embedding calls actually issued.",
		})
		embeddingsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ragline_embeddings_skipped_total",
			Help: "Embeddings skipped because the content hash was already live.",
		})
		embeddingFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ragline_embedding_failures_total",
			Help: "Per-chunk embedding failures queued for the next pass.",
		})
		indexEntriesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "ragline_index_entries_deleted_total",
			Help: "Superseded index entries removed on re-crawl.",
		})
		retrievalSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragline_retrieval_duration_seconds",
			Help:    "Wall time of retrieve calls.",
			Buckets: prometheus.DefBuckets,
		})
		frontierDepth = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ragline_frontier_pending",
			Help: "URLs waiting in the frontier.",
		})
		activeCrawlWorkers = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ragline_crawl_workers_active",
			Help: "Crawl workers currently processing a target.",
		})
	})
}

// ObservePageFetched records one finished fetch.
func ObservePageFetched(host, outcome string, d time.Duration) {
	if pagesFetchedTotal == nil {
		return
	}
	pagesFetchedTotal.WithLabelValues(host, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveFetchRetry counts one retry attempt.
func ObserveFetchRetry() {
	if fetchRetriesTotal != nil {
		fetchRetriesTotal.Inc()
	}
}

// ObserveChunks counts chunks emitted by the normalizer.
func ObserveChunks(n int) {
	if chunksProducedTotal != nil {
		chunksProducedTotal.Add(float64(n))
	}
}

// ObserveEmbeddingComputed counts issued embedding calls.
func ObserveEmbeddingComputed(n int) {
	if embeddingsComputedTotal != nil {
		embeddingsComputedTotal.Add(float64(n))
	}
}

// ObserveEmbeddingSkipped counts hash-dedup hits.
func ObserveEmbeddingSkipped(n int) {
	if embeddingsSkippedTotal != nil {
		embeddingsSkippedTotal.Add(float64(n))
	}
}

// ObserveEmbeddingFailure counts one per-chunk embedding failure.
func ObserveEmbeddingFailure() {
	if embeddingFailuresTotal != nil {
		embeddingFailuresTotal.Inc()
	}
}

// ObserveIndexDeletes counts superseded entries removed.
func ObserveIndexDeletes(n int) {
	if indexEntriesDeletedTotal != nil {
		indexEntriesDeletedTotal.Add(float64(n))
	}
}

// ObserveRetrieval records the duration of one retrieve call.
func ObserveRetrieval(d time.Duration) {
	if retrievalSeconds != nil {
		retrievalSeconds.Observe(d.Seconds())
	}
}

// SetFrontierPending sets the pending-target gauge.
func SetFrontierPending(n int) {
	if frontierDepth != nil {
		frontierDepth.Set(float64(n))
	}
}

// WorkerStarted increments the active worker gauge.
func WorkerStarted() {
	if activeCrawlWorkers != nil {
		activeCrawlWorkers.Inc()
	}
}

// WorkerStopped decrements the active worker gauge.
func WorkerStopped() {
	if activeCrawlWorkers != nil {
		activeCrawlWorkers.Dec()
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
