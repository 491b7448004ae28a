package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sashabaranov/go-openai"
)

// ErrDimensionMismatch is returned when a model answers with vectors of an
// unexpected length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

const defaultBatchSize = 100

var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
}

// NewOpenAIEmbedder reads the API key from apiKeyEnv. An empty baseURL means
// the public OpenAI endpoint.
func NewOpenAIEmbedder(apiKeyEnv, model, baseURL string, dimension, batchSize int) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	return NewOpenAICompatibleEmbedder(apiKey, model, baseURL, dimension, batchSize), nil
}

// NewOllamaEmbedder targets a local Ollama server through its OpenAI API.
func NewOllamaEmbedder(model, baseURL string, dimension, batchSize int) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return NewOpenAICompatibleEmbedder("ollama", model, baseURL, dimension, batchSize)
}

// NewOpenAICompatibleEmbedder builds an embedder for any server speaking the
// OpenAI embeddings API. Known models override dimension.
func NewOpenAICompatibleEmbedder(apiKey, model, baseURL string, dimension, batchSize int) *OpenAIEmbedder {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if d, ok := knownDimensions[model]; ok {
		dimension = d
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))

		batch, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}

	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("embedding response index %d out of range", data.Index)
		}
		if len(data.Embedding) != e.dimension {
			return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, e.dimension, len(data.Embedding))
		}
		embeddings[data.Index] = data.Embedding
	}
	for i, v := range embeddings {
		if v == nil {
			return nil, fmt.Errorf("embedding response missing input %d", i)
		}
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
