// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teamindigo/ragline/internal/pipeline"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Normalize  NormalizeConfig  `mapstructure:"normalize"`
	Index      IndexConfig      `mapstructure:"index"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Store      StoreConfig      `mapstructure:"store"`
	Structured StructuredConfig `mapstructure:"structured"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Seeds      []pipeline.Seed  `mapstructure:"seeds"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs crawl pipeline behavior.
type CrawlerConfig struct {
	Concurrency   int      `mapstructure:"concurrency"`
	MaxDepth      int      `mapstructure:"max_depth"`
	MaxPages      int      `mapstructure:"max_pages"`
	UserAgent     string   `mapstructure:"user_agent"`
	PerHostRPS    float64  `mapstructure:"per_host_rps"`
	RespectRobots bool     `mapstructure:"respect_robots"`
	AllowedHosts  []string `mapstructure:"allowed_hosts"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// NormalizeConfig sets chunking geometry.
type NormalizeConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// IndexConfig governs the embedding/upsert stage.
type IndexConfig struct {
	Workers int `mapstructure:"workers"`
}

// RetrievalConfig governs similarity search and context assembly.
type RetrievalConfig struct {
	TopK          int     `mapstructure:"top_k"`
	ContextBudget int     `mapstructure:"context_budget"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
	CacheSize     int     `mapstructure:"cache_size"`
}

// EmbeddingConfig points at an OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	Token   string `mapstructure:"token"`
}

// StoreConfig selects and locates the vector store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// StructuredConfig locates the sqlite resource database.
type StructuredConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RAGLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.max_depth", 2)
	v.SetDefault("crawler.max_pages", 200)
	v.SetDefault("crawler.user_agent", "ragline-bot/0.1 (+https://github.com/teamindigo/ragline)")
	v.SetDefault("crawler.per_host_rps", 1)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("normalize.chunk_size", 512)
	v.SetDefault("normalize.chunk_overlap", 10)
	v.SetDefault("index.workers", 4)
	v.SetDefault("retrieval.top_k", 8)
	v.SetDefault("retrieval.context_budget", 4096)
	v.SetDefault("retrieval.min_similarity", 0.60)
	v.SetDefault("retrieval.cache_size", 128)
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("store.backend", "badger")
	v.SetDefault("store.path", "data/index")
	v.SetDefault("structured.enabled", false)
	v.SetDefault("structured.path", "data/resources.db")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Normalize.ChunkSize <= 0 {
		return fmt.Errorf("normalize.chunk_size must be > 0")
	}
	if c.Normalize.ChunkOverlap < 0 || c.Normalize.ChunkOverlap >= c.Normalize.ChunkSize {
		return fmt.Errorf("normalize.chunk_overlap must be in [0, chunk_size)")
	}
	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("retrieval.min_similarity must be in [0, 1]")
	}
	if c.Store.Backend != "badger" && c.Store.Backend != "memory" {
		return fmt.Errorf("store.backend must be badger or memory, got %q", c.Store.Backend)
	}
	return nil
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the initial backoff config into a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the backoff ceiling config into a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
