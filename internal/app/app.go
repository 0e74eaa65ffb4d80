// Package app assembles the service from configuration: stores, model
// providers, the crawl pipeline and the retrieval orchestrator.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/ai"
	aimock "github.com/teamindigo/ragline/internal/ai/mock"
	"github.com/teamindigo/ragline/internal/ai/openai"
	"github.com/teamindigo/ragline/internal/config"
	"github.com/teamindigo/ragline/internal/crawl"
	"github.com/teamindigo/ragline/internal/fetch"
	"github.com/teamindigo/ragline/internal/frontier"
	"github.com/teamindigo/ragline/internal/hash/sha256"
	"github.com/teamindigo/ragline/internal/id/uuid"
	"github.com/teamindigo/ragline/internal/index"
	"github.com/teamindigo/ragline/internal/metrics"
	"github.com/teamindigo/ragline/internal/normalize"
	"github.com/teamindigo/ragline/internal/pipeline"
	"github.com/teamindigo/ragline/internal/progress"
	"github.com/teamindigo/ragline/internal/retrieve"
	"github.com/teamindigo/ragline/internal/store/badgerstore"
	"github.com/teamindigo/ragline/internal/store/memstore"
	"github.com/teamindigo/ragline/internal/structured"
)

// mockEmbeddingDim sizes the deterministic embedder used when no embedding
// endpoint is configured.
const mockEmbeddingDim = 64

// App holds every long-lived component of the service.
type App struct {
	Cfg          config.Config
	Logger       *zap.Logger
	Store        pipeline.VectorStore
	Embedder     ai.Embedder
	Generator    ai.Generator
	Transcriber  ai.Transcriber
	Indexer      *index.Indexer
	Ingestor     *index.Ingestor
	Structured   *structured.Store
	Retriever    *retrieve.Retriever
	Orchestrator *retrieve.Orchestrator
	Crawls       *crawl.Service
	Progress     *progress.Hub

	factory crawl.CrawlerFactory
	closers []func() error
}

// New builds the full component graph from cfg. Close must be called to
// release store and pool resources.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	a := &App{Cfg: cfg, Logger: logger}

	if err := a.buildStore(); err != nil {
		return nil, err
	}
	if err := a.buildModels(); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.buildPipeline(); err != nil {
		a.closeAll()
		return nil, err
	}
	return a, nil
}

func (a *App) buildStore() error {
	switch a.Cfg.Store.Backend {
	case "memory":
		a.Store = memstore.New()
	default:
		st, err := badgerstore.Open(a.Cfg.Store.Path, a.Logger)
		if err != nil {
			return fmt.Errorf("open vector store: %w", err)
		}
		a.Store = st
		a.closers = append(a.closers, st.Close)
	}

	if a.Cfg.Structured.Enabled {
		st, err := structured.Open(a.Cfg.Structured.Path)
		if err != nil {
			return fmt.Errorf("open structured store: %w", err)
		}
		a.Structured = st
		a.closers = append(a.closers, st.Close)
	}
	return nil
}

// buildModels selects the model provider. Without an embedding endpoint or
// token the service runs on deterministic local embeddings, which keeps
// crawling and retrieval usable offline.
func (a *App) buildModels() error {
	if a.Cfg.Embedding.BaseURL == "" && a.Cfg.Embedding.Token == "" {
		a.Logger.Warn("no embedding endpoint configured, using deterministic local embeddings")
		a.Embedder = aimock.NewEmbedder(mockEmbeddingDim)
		a.Generator = &aimock.Generator{Unavailable: pipeline.ErrGenerationUnavailable}
		return nil
	}

	provider, err := openai.NewProvider(openai.Config{
		BaseURL:        a.Cfg.Embedding.BaseURL,
		Token:          a.Cfg.Embedding.Token,
		EmbeddingModel: a.Cfg.Embedding.Model,
	})
	if err != nil {
		return fmt.Errorf("build model provider: %w", err)
	}
	a.Embedder = provider.Embedder()
	a.Generator = provider.Generator()
	a.closers = append(a.closers, provider.Close)
	return nil
}

func (a *App) buildPipeline() error {
	hasher := sha256.New()
	clock := pipeline.SystemClock{}
	idGen := uuid.New()

	chunker := normalize.NewChunker(a.Cfg.Normalize.ChunkSize, a.Cfg.Normalize.ChunkOverlap, hasher)
	normalizer := normalize.New(chunker)

	indexer, err := index.New(index.Config{Workers: a.Cfg.Index.Workers}, a.Store, a.Embedder, a.Logger)
	if err != nil {
		return fmt.Errorf("build indexer: %w", err)
	}
	a.Indexer = indexer
	a.closers = append(a.closers, func() error {
		indexer.Close()
		return nil
	})
	a.Ingestor = index.NewIngestor(normalizer, indexer, a.Logger)

	limiter := fetch.NewHostLimiter(a.Cfg.Crawler.PerHostRPS)
	robots := fetch.NewRobotsEnforcer(a.Cfg.Crawler.RespectRobots, a.Cfg.Crawler.UserAgent, a.Logger)
	fetcherCfg := fetch.Config{
		UserAgent: a.Cfg.Crawler.UserAgent,
		Timeout:   a.Cfg.FetchTimeout(),
		Backoff: fetch.BackoffPolicy{
			MaxAttempts: a.Cfg.HTTP.MaxRetries,
			BaseDelay:   a.Cfg.BackoffInitial(),
			MaxDelay:    a.Cfg.BackoffMax(),
		},
	}

	hub := progress.NewHub(progress.Config{Logger: a.Logger}, progress.NewLogSink(a.Logger))
	a.Progress = hub
	a.closers = append(a.closers, func() error {
		return hub.Close(context.Background())
	})

	factory := func() (*crawl.Crawler, *frontier.Frontier) {
		fr := frontier.New(frontier.Config{
			MaxDepth:     a.Cfg.Crawler.MaxDepth,
			AllowedHosts: a.Cfg.Crawler.AllowedHosts,
		}, clock)
		fetcher := fetch.New(fetcherCfg, limiter, robots, clock, a.Logger)
		crawler := crawl.New(crawl.Config{
			Concurrency: a.Cfg.Crawler.Concurrency,
			MaxPages:    a.Cfg.Crawler.MaxPages,
			MaxDepth:    a.Cfg.Crawler.MaxDepth,
		}, fetcher, fr, a.Ingestor, idGen, clock, hub, a.Logger)
		return crawler, fr
	}
	a.factory = factory
	a.Crawls = crawl.NewService(factory, idGen, a.Logger)

	a.Retriever = retrieve.New(retrieve.Config{
		TopK:          a.Cfg.Retrieval.TopK,
		ContextBudget: a.Cfg.Retrieval.ContextBudget,
		MinSimilarity: float32(a.Cfg.Retrieval.MinSimilarity),
	}, a.Store, a.Embedder, clock, a.Logger)

	var querier retrieve.StructuredQuerier
	if a.Structured != nil {
		querier = a.Structured
	}
	a.Orchestrator = retrieve.NewOrchestrator(
		a.Retriever,
		a.Generator,
		querier,
		a.Cfg.Retrieval.CacheSize,
		a.Logger,
	)
	return nil
}

// RunCrawl performs one synchronous ingestion pass over seeds.
func (a *App) RunCrawl(ctx context.Context, seeds []pipeline.Seed) (pipeline.CrawlSummary, error) {
	crawler, _ := a.factory()
	return crawler.Run(ctx, seeds)
}

// Close releases all held resources in reverse construction order.
func (a *App) Close() {
	a.closeAll()
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
