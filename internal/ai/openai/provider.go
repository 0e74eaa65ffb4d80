// Package openai implements the ai capability contracts against any
// OpenAI-compatible endpoint via langchaingo.
package openai

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"

	"github.com/teamindigo/ragline/internal/ai"
)

// Config locates the OpenAI-compatible service.
type Config struct {
	BaseURL        string
	Token          string
	EmbeddingModel string
	ChatModel      string
}

// Provider wires embedder and generator over one client configuration.
type Provider struct {
	embedder  *Embedder
	generator *Generator
}

// NewProvider builds a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Token == "" {
		// Local OpenAI-compatible services accept any token.
		cfg.Token = "none"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}

	opts := []openai.Option{
		openai.WithToken(cfg.Token),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
		openai.WithModel(cfg.ChatModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("build openai client: %w", err)
	}

	embedder, err := newEmbedder(client)
	if err != nil {
		return nil, err
	}

	return &Provider{
		embedder:  embedder,
		generator: newGenerator(client),
	}, nil
}

// Embedder returns the embedding service.
func (p *Provider) Embedder() ai.Embedder { return p.embedder }

// Generator returns the generation service.
func (p *Provider) Generator() ai.Generator { return p.generator }

// Close releases provider resources.
func (p *Provider) Close() error { return nil }
