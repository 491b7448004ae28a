package embedding

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"policyrag/internal/port"
)

const trigramWeight = 0.3

// HashEmbedder maps text to a fixed-size vector by feature hashing: every
// stemmed token and every character trigram of a token is hashed with xxhash
// into one of dimension buckets, with the top hash bit choosing the sign.
// It needs no model server and is fully deterministic.
type HashEmbedder struct {
	tokenizer port.Tokenizer
	dimension int
	model     string
}

func NewHashEmbedder(tokenizer port.Tokenizer, dimension int) *HashEmbedder {
	return &HashEmbedder{
		tokenizer: tokenizer,
		dimension: dimension,
		model:     fmt.Sprintf("hash-%d", dimension),
	}
}

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		embeddings[i] = e.embedOne(text)
	}
	return embeddings, nil
}

func (e *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, tok := range e.tokenizer.Tokenize(text) {
		e.add(vec, tok, 1)
		r := []rune("^" + tok + "$")
		for j := 0; j+3 <= len(r); j++ {
			e.add(vec, "#"+string(r[j:j+3]), trigramWeight)
		}
	}
	return vec
}

func (e *HashEmbedder) add(vec []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	if h>>63 == 1 {
		weight = -weight
	}
	vec[h%uint64(e.dimension)] += weight
}

func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashEmbedder) ModelName() string {
	return e.model
}
