package generate

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mohammad-safakhou/docchat/config"
)

// LocalGenerator runs generation against an OpenAI-compatible inference
// server on this machine (ollama, llama.cpp, vLLM). Output length is
// bounded so a small local model cannot ramble; the first call may be
// slow while the server loads the model.
type LocalGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewLocalGenerator returns nil when no local base URL is configured,
// which skips the local tier entirely.
func NewLocalGenerator(cfg config.LocalLLMConfig) *LocalGenerator {
	if cfg.BaseURL == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig("docchat")
	clientCfg.BaseURL = cfg.BaseURL
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &LocalGenerator{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// Generate asks the local model for an answer to the grounded prompt.
func (g *LocalGenerator) Generate(ctx context.Context, question, contextText string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(question, contextText)},
		},
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("local model: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("local model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
