package embedding

import (
	"fmt"

	"policyrag/config"
	"policyrag/internal/adapter/analyzer"
	"policyrag/internal/port"
)

// New creates the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	switch cfg.Provider {
	case "", "hash":
		return NewHashEmbedder(analyzer.NewTokenizer(true), cfg.Dimension), nil
	case "openai":
		e, err := NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, cfg.Dimension, cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "ollama":
		return NewOllamaEmbedder(cfg.Model, cfg.BaseURL, cfg.Dimension, cfg.BatchSize), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
