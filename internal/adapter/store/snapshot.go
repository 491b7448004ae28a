package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"policyrag/internal/domain"
	"policyrag/internal/port"
)

var (
	bucketVectors  = []byte("vectors")
	bucketChunks   = []byte("chunks")
	bucketManifest = []byte("manifest")
	keyManifest    = []byte("manifest")
)

// ErrIndexCorrupt is returned when a persisted index is unreadable or its
// vectors and chunks disagree.
var ErrIndexCorrupt = errors.New("persisted index is corrupt")

const openTimeout = 2 * time.Second

// SnapshotStore persists index snapshots in a single bbolt file. Vectors,
// chunks and the manifest are replaced in one write transaction, so a reader
// sees either the old pair or the new pair.
type SnapshotStore struct {
	path string
}

var _ port.IndexPersister = (*SnapshotStore)(nil)

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

func (s *SnapshotStore) Path() string {
	return s.path
}

type storedVector struct {
	Vector []float32 `json:"v"`
}

func positionKey(p int) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(p))
	return k[:]
}

// Save replaces whatever was persisted with snap.
func (s *SnapshotStore) Save(snap *port.Snapshot) error {
	if len(snap.Vectors) != len(snap.Chunks) {
		return fmt.Errorf("refusing to save %d vectors with %d chunks", len(snap.Vectors), len(snap.Chunks))
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := bbolt.Open(s.path, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return fmt.Errorf("failed to open bolt db: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketVectors, bucketChunks, bucketManifest} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return fmt.Errorf("failed to reset bucket %s: %w", name, err)
				}
			}
		}
		vb, err := tx.CreateBucket(bucketVectors)
		if err != nil {
			return fmt.Errorf("failed to create vectors bucket: %w", err)
		}
		cb, err := tx.CreateBucket(bucketChunks)
		if err != nil {
			return fmt.Errorf("failed to create chunks bucket: %w", err)
		}
		mb, err := tx.CreateBucket(bucketManifest)
		if err != nil {
			return fmt.Errorf("failed to create manifest bucket: %w", err)
		}

		for p := range snap.Vectors {
			vdata, err := json.Marshal(storedVector{Vector: snap.Vectors[p]})
			if err != nil {
				return err
			}
			if err := vb.Put(positionKey(p), vdata); err != nil {
				return err
			}
			cdata, err := json.Marshal(snap.Chunks[p])
			if err != nil {
				return err
			}
			if err := cb.Put(positionKey(p), cdata); err != nil {
				return err
			}
		}

		mdata, err := json.Marshal(manifest{
			Version:    CurrentSchemaVersion,
			ModelName:  snap.ModelName,
			Dimension:  snap.Dimension,
			Count:      len(snap.Vectors),
			ConfigHash: snap.ConfigHash,
			BuiltAt:    snap.BuiltAt,
		})
		if err != nil {
			return err
		}
		return mb.Put(keyManifest, mdata)
	})
}

// Load reads the persisted snapshot. A missing file yields an error
// wrapping os.ErrNotExist; any inconsistency yields ErrIndexCorrupt.
func (s *SnapshotStore) Load() (*port.Snapshot, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, fmt.Errorf("failed to stat index: %w", err)
	}

	db, err := bbolt.Open(s.path, 0600, &bbolt.Options{Timeout: openTimeout, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	defer db.Close()

	var snap *port.Snapshot
	err = db.View(func(tx *bbolt.Tx) error {
		mb := tx.Bucket(bucketManifest)
		vb := tx.Bucket(bucketVectors)
		cb := tx.Bucket(bucketChunks)
		if mb == nil || vb == nil || cb == nil {
			return fmt.Errorf("%w: missing bucket", ErrIndexCorrupt)
		}

		var m manifest
		if err := json.Unmarshal(mb.Get(keyManifest), &m); err != nil {
			return fmt.Errorf("%w: manifest: %v", ErrIndexCorrupt, err)
		}
		if m.Version != CurrentSchemaVersion {
			return fmt.Errorf("%w: schema v%d, expected v%d", ErrIndexCorrupt, m.Version, CurrentSchemaVersion)
		}

		vectors, err := readVectors(vb, m)
		if err != nil {
			return err
		}
		chunks, err := readChunks(cb, m.Count)
		if err != nil {
			return err
		}

		snap = &port.Snapshot{
			ModelName:  m.ModelName,
			Dimension:  m.Dimension,
			ConfigHash: m.ConfigHash,
			BuiltAt:    m.BuiltAt,
			Vectors:    vectors,
			Chunks:     chunks,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func readVectors(b *bbolt.Bucket, m manifest) ([][]float32, error) {
	vectors := make([][]float32, 0, m.Count)
	err := b.ForEach(func(k, v []byte) error {
		if binary.BigEndian.Uint64(k) != uint64(len(vectors)) {
			return fmt.Errorf("%w: vector position gap at %d", ErrIndexCorrupt, len(vectors))
		}
		var sv storedVector
		if err := json.Unmarshal(v, &sv); err != nil {
			return fmt.Errorf("%w: vector %d: %v", ErrIndexCorrupt, len(vectors), err)
		}
		if len(sv.Vector) != m.Dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, expected %d", ErrIndexCorrupt, len(vectors), len(sv.Vector), m.Dimension)
		}
		vectors = append(vectors, sv.Vector)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != m.Count {
		return nil, fmt.Errorf("%w: %d vectors, manifest says %d", ErrIndexCorrupt, len(vectors), m.Count)
	}
	return vectors, nil
}

func readChunks(b *bbolt.Bucket, count int) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, 0, count)
	err := b.ForEach(func(k, v []byte) error {
		if binary.BigEndian.Uint64(k) != uint64(len(chunks)) {
			return fmt.Errorf("%w: chunk position gap at %d", ErrIndexCorrupt, len(chunks))
		}
		var c domain.Chunk
		if err := json.Unmarshal(v, &c); err != nil {
			return fmt.Errorf("%w: chunk %d: %v", ErrIndexCorrupt, len(chunks), err)
		}
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(chunks) != count {
		return nil, fmt.Errorf("%w: %d chunks, manifest says %d", ErrIndexCorrupt, len(chunks), count)
	}
	return chunks, nil
}

// Remove deletes the persisted index. Removing a missing index is not an error.
func (s *SnapshotStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove index: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
