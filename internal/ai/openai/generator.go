package openai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/teamindigo/ragline/internal/pipeline"
)

const systemPrompt = "You answer questions about local community resources. " +
	"Use only the retrieved context below. Keep answers to three sentences at most. " +
	"If the context does not cover the question, say you don't know."

// Generator implements ai.Generator over a langchaingo chat client.
type Generator struct {
	client *openai.LLM
}

func newGenerator(client *openai.LLM) *Generator {
	return &Generator{client: client}
}

// Generate synthesizes an answer from retrieved context. Provider failures
// are wrapped as pipeline.ErrGenerationUnavailable so the orchestrator can
// degrade instead of failing the query.
func (g *Generator) Generate(ctx context.Context, contextText, queryText string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeSystem, "Context:\n"+contextText),
		llms.TextParts(llms.ChatMessageTypeHuman, queryText),
	}

	resp, err := g.client.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", pipeline.ErrGenerationUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", pipeline.ErrGenerationUnavailable)
	}
	return resp.Choices[0].Content, nil
}
