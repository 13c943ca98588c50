// Package chat is the client for the external chat completion service.
// Any OpenAI-compatible endpoint works, including Ollama's /v1 API.
package chat

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Engine is the completion interface the QA orchestrator depends on.
type Engine interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

type OpenAIEngine struct {
	client *openai.Client
	model  string
}

func NewOpenAIEngine(config Config) *OpenAIEngine {
	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	model := config.Model
	if model == "" {
		model = "llama3.1"
	}
	return &OpenAIEngine{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (e *OpenAIEngine) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
