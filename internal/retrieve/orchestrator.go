package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/ai"
	"github.com/teamindigo/ragline/internal/pipeline"
)

// StructuredQuerier is the opaque structured-lookup capability.
type StructuredQuerier interface {
	Query(ctx context.Context, naturalLanguage string) ([]pipeline.Row, error)
}

// Answer is the user-visible outcome of one query. A query always produces
// one of an answer, a context-without-answer, or an explicit empty result.
type Answer struct {
	Query         string                    `json:"query"`
	Text          string                    `json:"answer,omitempty"`
	Context       pipeline.RetrievalContext `json:"-"`
	Sources       []string                  `json:"sources,omitempty"`
	Rows          []pipeline.Row            `json:"rows,omitempty"`
	Generated     bool                      `json:"generated"`
	LowConfidence bool                      `json:"low_confidence"`
}

// Orchestrator combines retrieval, the optional structured lookup and the
// generation capability, degrading gracefully when either model capability
// is down.
type Orchestrator struct {
	retriever  *Retriever
	generator  ai.Generator
	structured StructuredQuerier
	cache      *answerCache
	budget     int
	logger     *zap.Logger
}

// NewOrchestrator builds an Orchestrator; structured may be nil.
func NewOrchestrator(
	retriever *Retriever,
	generator ai.Generator,
	structured StructuredQuerier,
	cacheSize int,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		retriever:  retriever,
		generator:  generator,
		structured: structured,
		cache:      newAnswerCache(cacheSize),
		budget:     retriever.cfg.ContextBudget,
		logger:     logger,
	}
}

// Answer serves one query end to end.
func (o *Orchestrator) Answer(ctx context.Context, query string) (Answer, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if cached, ok := o.cache.get(key); ok {
		return cached, nil
	}

	rc, err := o.retriever.Retrieve(ctx, query, 0, 0)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve: %w", err)
	}

	o.mergeStructured(ctx, query, &rc)

	answer := Answer{
		Query:         query,
		Context:       rc,
		Rows:          rc.StructuredRow,
		Sources:       sourcesOf(rc),
		LowConfidence: rc.LowConfidence,
	}

	text, err := o.generator.Generate(ctx, RenderContext(rc), query)
	switch {
	case err == nil:
		answer.Text = text
		answer.Generated = true
	case errors.Is(err, pipeline.ErrGenerationUnavailable):
		// Surface the retrieved context without a synthesized answer.
		o.logger.Warn("generation unavailable; returning context only", zap.Error(err))
	default:
		o.logger.Warn("generation failed; returning context only", zap.Error(err))
	}

	o.cache.put(key, answer)
	return answer, nil
}

// mergeStructured appends structured rows after the vector chunks, under
// the remaining budget, never displacing a higher-ranked chunk.
func (o *Orchestrator) mergeStructured(ctx context.Context, query string, rc *pipeline.RetrievalContext) {
	if o.structured == nil {
		return
	}
	rows, err := o.structured.Query(ctx, query)
	if err != nil {
		if !errors.Is(err, pipeline.ErrNoStructuredMatch) {
			o.logger.Warn("structured lookup failed", zap.Error(err))
		}
		return
	}

	remaining := BudgetRemaining(*rc, o.budget)
	for _, row := range rows {
		cost := len(renderRow(row))
		if cost > remaining {
			break
		}
		remaining -= cost
		rc.StructuredRow = append(rc.StructuredRow, row)
	}
	if len(rc.StructuredRow) > 0 {
		rc.LowConfidence = false
	}
}

// RenderContext flattens a retrieval context into the text block handed to
// the generator.
func RenderContext(rc pipeline.RetrievalContext) string {
	var b strings.Builder
	for _, c := range rc.Chunks {
		b.WriteString(c.Chunk.Text)
		b.WriteString("\n\n")
	}
	for _, row := range rc.StructuredRow {
		b.WriteString(renderRow(row))
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func renderRow(row pipeline.Row) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+row[k])
	}
	return strings.Join(parts, "; ")
}

func sourcesOf(rc pipeline.RetrievalContext) []string {
	seen := make(map[string]struct{})
	var sources []string
	for _, c := range rc.Chunks {
		if _, ok := seen[c.Chunk.SourceURL]; ok {
			continue
		}
		seen[c.Chunk.SourceURL] = struct{}{}
		sources = append(sources, c.Chunk.SourceURL)
	}
	return sources
}
