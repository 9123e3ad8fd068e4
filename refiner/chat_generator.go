package refiner

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// ChatGenerator is a TextGenerator backed by an OpenAI-compatible chat
// completions endpoint. Small local models served by LM Studio, Ollama or
// llama.cpp all speak this API.
type ChatGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewChatGenerator creates a ChatGenerator for model.
func NewChatGenerator(client *openai.Client, model string) *ChatGenerator {
	return &ChatGenerator{client: client, model: model, temperature: 0.7}
}

// Generate sends instruction as a single user message. An empty choice list
// is reported as blank output so the refiner falls back. API errors are
// returned unwrapped.
func (g *ChatGenerator) Generate(ctx context.Context, instruction string, maxNewTokens int) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: instruction},
		},
		MaxTokens:   maxNewTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
