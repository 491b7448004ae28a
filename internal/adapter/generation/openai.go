// Package generation answers prompts with an OpenAI-compatible chat model.
package generation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"policyrag/config"
)

var (
	// ErrEmptyCompletion is returned when the model answers with no text.
	ErrEmptyCompletion = errors.New("model returned an empty completion")
	// ErrGenerationUnavailable means the configured model cannot be reached
	// with the current settings.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)

// ChatGenerator sends a single user message per prompt.
type ChatGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
}

func NewChatGenerator(apiKey, model, baseURL string, temperature float32) *ChatGenerator {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	return &ChatGenerator{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		temperature: temperature,
	}
}

// New creates the generator selected by cfg.Provider.
func New(cfg config.GenerationConfig) (*ChatGenerator, error) {
	switch cfg.Provider {
	case "", "openai":
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("%w: API key not found in environment variable: %s", ErrGenerationUnavailable, cfg.APIKeyEnv)
		}
		return NewChatGenerator(apiKey, cfg.Model, cfg.BaseURL, cfg.Temperature), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		return NewChatGenerator("ollama", cfg.Model, baseURL, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("%w: unsupported provider %s", ErrGenerationUnavailable, cfg.Provider)
	}
}

func (g *ChatGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func (g *ChatGenerator) ModelName() string {
	return g.model
}
