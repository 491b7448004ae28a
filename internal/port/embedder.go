package port

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorIndex is an in-memory similarity index addressed by insertion position.
type VectorIndex interface {
	// Add appends vectors; the first one lands at position Len().
	Add(vectors [][]float32) error

	// Search returns exactly k hits ordered by descending score. Slots with no
	// stored vector carry Position -1.
	Search(query []float32, k int) []Hit

	Len() int

	Dimension() int

	// Vectors returns the stored vectors in position order.
	Vectors() [][]float32
}

// Hit is a raw similarity match.
type Hit struct {
	Position int
	Score    float64
}

// NoMatch is the position reported for an empty search slot.
const NoMatch = -1
