package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"policyrag/config"
)

// CurrentSchemaVersion is the current snapshot layout version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

// manifest describes a persisted snapshot and is written in the same
// transaction as the vectors and chunks it counts.
type manifest struct {
	Version    int       `json:"version"`
	ModelName  string    `json:"model_name"`
	Dimension  int       `json:"dimension"`
	Count      int       `json:"count"`
	ConfigHash string    `json:"config_hash"`
	BuiltAt    time.Time `json:"built_at"`
}

// ComputeConfigHash computes a hash of index-relevant configuration.
// A different hash means the persisted index was built with other settings
// and should be rebuilt.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		ChunkSize    int    `json:"chunk_size"`
		ChunkOverlap int    `json:"chunk_overlap"`
		EmbProvider  string `json:"emb_provider"`
		EmbModel     string `json:"emb_model"`
		EmbDimension int    `json:"emb_dimension"`
	}{
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
		EmbProvider:  cfg.Embedding.Provider,
		EmbModel:     cfg.Embedding.Model,
		EmbDimension: cfg.Embedding.Dimension,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}
