package port

import (
	"context"

	"policyrag/internal/domain"
)

// RemoteIndex is an externally hosted vector store ranking by distance.
type RemoteIndex interface {
	Ensure(ctx context.Context) error

	Insert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error

	// Search returns hits ordered by ascending distance with Distance set.
	Search(ctx context.Context, vector []float32, k int) ([]domain.RetrievalResult, error)

	Count(ctx context.Context) (int64, error)

	Drop(ctx context.Context) error

	Close(ctx context.Context) error
}
