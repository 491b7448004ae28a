package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the policy retrieval engine.
type Config struct {
	Corpus     CorpusConfig     `yaml:"corpus"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Upload     ChunkingConfig   `yaml:"upload"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Generation GenerationConfig `yaml:"generation"`
	Enhanced   EnhancedConfig   `yaml:"enhanced"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CorpusConfig controls which files are picked up from the corpus directory.
type CorpusConfig struct {
	Dir      string   `yaml:"dir"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
	Workers  int      `yaml:"workers"`
}

// ChunkingConfig holds chunk window settings, in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // "hash", "openai", "ollama"
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"`
	BaseURL   string        `yaml:"base_url"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// IndexConfig holds the persisted index location.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// RetrieveConfig holds retrieval and answer assembly settings.
type RetrieveConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	ContextBudget  int     `yaml:"context_budget"` // characters of context handed to the synthesizer
	MaxSources     int     `yaml:"max_sources"`
}

// GenerationConfig holds answer generation settings.
type GenerationConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Provider    string        `yaml:"provider"` // "openai", "ollama"
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	BaseURL     string        `yaml:"base_url"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// EnhancedConfig holds the externally hosted vector store settings.
type EnhancedConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Address    string        `yaml:"address"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// CacheConfig holds retrieval cache settings.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Dir:      "policies",
			Includes: []string{"**/*.pdf", "**/*.docx", "**/*.md", "**/*.markdown", "**/*.txt"},
			Excludes: []string{"**/.git/**", "**/.policyrag/**", "**/~$*"},
			Workers:  4,
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Upload: ChunkingConfig{
			Size:    800,
			Overlap: 200,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "hash-384",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 384,
			BatchSize: 100,
			Timeout:   60 * time.Second,
		},
		Index: IndexConfig{
			Path: filepath.Join(".policyrag", "index.db"),
		},
		Retrieve: RetrieveConfig{
			TopK:           5,
			ScoreThreshold: 0.1,
			ContextBudget:  1500,
			MaxSources:     3,
		},
		Generation: GenerationConfig{
			Enabled:     false,
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   300,
			Temperature: 0.3,
			Timeout:     30 * time.Second,
		},
		Enhanced: EnhancedConfig{
			Enabled:    false,
			Address:    "localhost:19530",
			Collection: "policy_documents",
			Timeout:    10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxSize: 256,
			TTL:     5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for policyrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "policyrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".policyrag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Validate checks settings that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	for name, ch := range map[string]ChunkingConfig{"chunking": c.Chunking, "upload": c.Upload} {
		if ch.Size <= 0 {
			return fmt.Errorf("%s.size must be positive, got %d", name, ch.Size)
		}
		if ch.Overlap < 0 || ch.Overlap >= ch.Size {
			return fmt.Errorf("%s.overlap must be in [0, size), got %d", name, ch.Overlap)
		}
	}
	if c.Embedding.Dimension <= 0 {
		return errors.New("embedding.dimension must be positive")
	}
	if c.Retrieve.TopK <= 0 {
		return errors.New("retrieve.top_k must be positive")
	}
	if c.Enhanced.Enabled && c.Enhanced.Collection == "" {
		return errors.New("enhanced.collection is required when enhanced mode is enabled")
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexPath resolves the index database path against dir unless it is absolute.
func (c *Config) IndexPath(dir string) string {
	if filepath.IsAbs(c.Index.Path) {
		return c.Index.Path
	}
	return filepath.Join(dir, c.Index.Path)
}

// CorpusDir resolves the corpus directory against dir unless it is absolute.
func (c *Config) CorpusDir(dir string) string {
	if filepath.IsAbs(c.Corpus.Dir) {
		return c.Corpus.Dir
	}
	return filepath.Join(dir, c.Corpus.Dir)
}

// EnsureIndexDir ensures the directory holding the index database exists.
func EnsureIndexDir(indexPath string) error {
	return os.MkdirAll(filepath.Dir(indexPath), 0755)
}
