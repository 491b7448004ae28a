// Package index holds the in-memory similarity index.
package index

import (
	"fmt"
	"sort"

	"policyrag/internal/port"
)

// FlatIndex scores a query against every stored vector by inner product.
// With unit-length vectors the score is cosine similarity. It is not safe
// for concurrent mutation; callers publish a finished index for reading.
type FlatIndex struct {
	dimension int
	vectors   [][]float32
}

var _ port.VectorIndex = (*FlatIndex)(nil)

func NewFlatIndex(dimension int) *FlatIndex {
	return &FlatIndex{dimension: dimension}
}

// Add appends vectors in order. Nothing is added if any vector has the
// wrong dimension.
func (ix *FlatIndex) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != ix.dimension {
			return fmt.Errorf("vector %d dimension mismatch: expected %d, got %d", i, ix.dimension, len(v))
		}
	}
	ix.vectors = append(ix.vectors, vectors...)
	return nil
}

// Search returns k hits ordered by descending score, ties broken by lower
// position. When fewer than k vectors are stored the remaining slots carry
// port.NoMatch.
func (ix *FlatIndex) Search(query []float32, k int) []port.Hit {
	if k <= 0 {
		return nil
	}
	if len(query) != ix.dimension {
		hits := make([]port.Hit, k)
		for i := range hits {
			hits[i] = port.Hit{Position: port.NoMatch}
		}
		return hits
	}

	scored := make([]port.Hit, len(ix.vectors))
	for p, v := range ix.vectors {
		scored[p] = port.Hit{Position: p, Score: innerProduct(query, v)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	hits := make([]port.Hit, k)
	for i := range hits {
		if i < len(scored) {
			hits[i] = scored[i]
		} else {
			hits[i] = port.Hit{Position: port.NoMatch}
		}
	}
	return hits
}

func (ix *FlatIndex) Len() int {
	return len(ix.vectors)
}

func (ix *FlatIndex) Dimension() int {
	return ix.dimension
}

func (ix *FlatIndex) Vectors() [][]float32 {
	return ix.vectors
}

// Clone returns an index sharing no slice header with ix, so appends to the
// clone never show through ix.
func (ix *FlatIndex) Clone() *FlatIndex {
	vectors := make([][]float32, len(ix.vectors))
	copy(vectors, ix.vectors)
	return &FlatIndex{dimension: ix.dimension, vectors: vectors}
}

func innerProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
