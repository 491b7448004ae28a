package port

import (
	"time"

	"policyrag/internal/domain"
)

// Snapshot is a complete index: vectors and chunk metadata in position order.
type Snapshot struct {
	ModelName  string
	Dimension  int
	ConfigHash string
	BuiltAt    time.Time
	Vectors    [][]float32
	Chunks     []domain.Chunk
}

// IndexPersister stores an index snapshot durably. Vectors and chunks are
// always written and read as one unit.
type IndexPersister interface {
	Save(s *Snapshot) error

	// Load returns os.ErrNotExist (wrapped) when nothing was persisted yet.
	Load() (*Snapshot, error)

	// Remove deletes everything that was persisted.
	Remove() error

	Exists() bool
}
