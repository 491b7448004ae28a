package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"policyrag/internal/adapter/embedding"
	"policyrag/internal/adapter/index"
	"policyrag/internal/domain"
	"policyrag/internal/logging"
	"policyrag/internal/port"
)

// ProgressFunc reports how many of total chunks have been embedded.
type ProgressFunc func(done, total int)

// IndexOptions configures an EmbeddingIndex.
type IndexOptions struct {
	// ConfigHash identifies the chunking and embedding settings; a persisted
	// index with another hash still loads but is reported as stale.
	ConfigHash string
	// BatchSize bounds how many chunks are embedded per call. Zero means 100.
	BatchSize int
	// Timeout bounds each embedding call. Zero means no limit.
	Timeout  time.Duration
	Progress ProgressFunc
	Logger   *zap.Logger
}

// indexSnapshot is an immutable index and its chunk metadata. Position p of
// vectors and chunks always describes the same chunk.
type indexSnapshot struct {
	vectors    *index.FlatIndex
	chunks     []domain.Chunk
	configHash string
	builtAt    time.Time
}

// EmbeddingIndex maintains the searchable chunk index. Readers work on the
// published snapshot without locking; writers are serialized, build a
// complete replacement, persist it, then publish it with one pointer swap.
type EmbeddingIndex struct {
	embedder  port.Embedder
	persister port.IndexPersister
	opts      IndexOptions
	logger    *zap.Logger

	mu      sync.Mutex
	current atomic.Pointer[indexSnapshot]
	gen     atomic.Uint64
	stale   atomic.Bool
}

// NewEmbeddingIndex creates the index and loads any persisted snapshot.
func NewEmbeddingIndex(embedder port.Embedder, persister port.IndexPersister, opts IndexOptions) *EmbeddingIndex {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	ix := &EmbeddingIndex{
		embedder:  embedder,
		persister: persister,
		opts:      opts,
		logger:    logging.OrNop(opts.Logger),
	}
	ix.current.Store(ix.emptySnapshot())
	ix.Load()
	return ix
}

func (ix *EmbeddingIndex) emptySnapshot() *indexSnapshot {
	return &indexSnapshot{
		vectors:    index.NewFlatIndex(ix.embedder.Dimension()),
		configHash: ix.opts.ConfigHash,
	}
}

func (ix *EmbeddingIndex) publish(s *indexSnapshot) {
	ix.current.Store(s)
	ix.gen.Add(1)
}

// Embed returns one vector per text from the configured model.
func (ix *EmbeddingIndex) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if ix.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.opts.Timeout)
		defer cancel()
	}
	vecs, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// embedChunks embeds chunk contents in batches and normalizes the vectors.
func (ix *EmbeddingIndex) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vecs := make([][]float32, 0, len(chunks))
	for i := 0; i < len(chunks); i += ix.opts.BatchSize {
		end := min(i+ix.opts.BatchSize, len(chunks))

		texts := make([]string, end-i)
		for j, c := range chunks[i:end] {
			texts[j] = c.Content
		}
		batch, err := ix.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, embedding.NormalizeAll(batch)...)

		if ix.opts.Progress != nil {
			ix.opts.Progress(end, len(chunks))
		}
	}
	return vecs, nil
}

func (ix *EmbeddingIndex) newSnapshot(ctx context.Context, chunks []domain.Chunk) (*indexSnapshot, error) {
	vecs, err := ix.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}
	fi := index.NewFlatIndex(ix.embedder.Dimension())
	if err := fi.Add(vecs); err != nil {
		return nil, err
	}
	return &indexSnapshot{
		vectors:    fi,
		chunks:     append([]domain.Chunk(nil), chunks...),
		configHash: ix.opts.ConfigHash,
		builtAt:    time.Now().UTC(),
	}, nil
}

// BuildIndex replaces the index with exactly these chunks, in order, and
// persists it. On failure the previous index stays published.
func (ix *EmbeddingIndex) BuildIndex(ctx context.Context, chunks []domain.Chunk) error {
	_, err := ix.replace(ctx, chunks, "index built")
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	return nil
}

// replace embeds chunks into a new snapshot, persists it and publishes it.
// It returns the normalized vectors in chunk order.
func (ix *EmbeddingIndex) replace(ctx context.Context, chunks []domain.Chunk, event string) ([][]float32, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	snap, err := ix.newSnapshot(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if err := ix.persist(snap); err != nil {
		return nil, err
	}
	ix.publish(snap)
	ix.stale.Store(false)

	ix.logger.Info(event, zap.Int("vectors", len(chunks)), zap.String("model", ix.embedder.ModelName()))
	return snap.vectors.Vectors(), nil
}

// AddDocuments appends chunks after the existing entries and persists.
func (ix *EmbeddingIndex) AddDocuments(ctx context.Context, chunks []domain.Chunk) error {
	_, err := ix.addDocuments(ctx, chunks)
	return err
}

// addDocuments is AddDocuments returning the normalized vectors of chunks.
func (ix *EmbeddingIndex) addDocuments(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	vecs, err := ix.embedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}

	cur := ix.current.Load()
	fi := cur.vectors.Clone()
	if err := fi.Add(vecs); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}
	merged := make([]domain.Chunk, 0, len(cur.chunks)+len(chunks))
	merged = append(merged, cur.chunks...)
	merged = append(merged, chunks...)

	builtAt := cur.builtAt
	if builtAt.IsZero() {
		builtAt = time.Now().UTC()
	}
	next := &indexSnapshot{
		vectors:    fi,
		chunks:     merged,
		configHash: cur.configHash,
		builtAt:    builtAt,
	}
	if err := ix.persist(next); err != nil {
		return nil, err
	}
	ix.publish(next)

	ix.logger.Info("documents added", zap.Int("added", len(chunks)), zap.Int("vectors", fi.Len()))
	return vecs, nil
}

// Search returns at most k chunks scoring at least threshold, best first,
// ranked from 1. An empty index yields an empty result.
func (ix *EmbeddingIndex) Search(ctx context.Context, query string, k int, threshold float64) ([]domain.RetrievalResult, error) {
	snap := ix.current.Load()
	if snap.vectors.Len() == 0 || k <= 0 {
		return []domain.RetrievalResult{}, nil
	}

	vecs, err := ix.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	q := embedding.Normalize(vecs[0])

	results := make([]domain.RetrievalResult, 0, k)
	for _, hit := range snap.vectors.Search(q, k) {
		if hit.Position == port.NoMatch || hit.Position >= len(snap.chunks) {
			continue
		}
		if hit.Score < threshold {
			continue
		}
		c := snap.chunks[hit.Position]
		results = append(results, domain.RetrievalResult{
			Content:  c.Content,
			Score:    hit.Score,
			Rank:     len(results) + 1,
			Filename: c.SourceFilename,
			ChunkID:  c.ChunkID,
		})
	}
	return results, nil
}

// Save persists the published snapshot.
func (ix *EmbeddingIndex) Save() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.persist(ix.current.Load())
}

func (ix *EmbeddingIndex) persist(s *indexSnapshot) error {
	err := ix.persister.Save(&port.Snapshot{
		ModelName:  ix.embedder.ModelName(),
		Dimension:  ix.embedder.Dimension(),
		ConfigHash: s.configHash,
		BuiltAt:    s.builtAt,
		Vectors:    s.vectors.Vectors(),
		Chunks:     s.chunks,
	})
	if err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}
	return nil
}

// Load replaces the published snapshot with the persisted one. On any
// failure it publishes an empty index and returns false.
func (ix *EmbeddingIndex) Load() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	snap, err := ix.loadSnapshot()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ix.logger.Debug("no persisted index")
		} else {
			ix.logger.Warn("discarding persisted index", zap.Error(err))
		}
		ix.publish(ix.emptySnapshot())
		ix.stale.Store(false)
		return false
	}

	ix.publish(snap)
	ix.stale.Store(ix.opts.ConfigHash != "" && snap.configHash != ix.opts.ConfigHash)
	if ix.stale.Load() {
		ix.logger.Warn("persisted index was built with different settings, rebuild recommended",
			zap.String("index_hash", snap.configHash),
			zap.String("config_hash", ix.opts.ConfigHash))
	}
	ix.logger.Info("index loaded", zap.Int("vectors", snap.vectors.Len()))
	return true
}

func (ix *EmbeddingIndex) loadSnapshot() (*indexSnapshot, error) {
	ps, err := ix.persister.Load()
	if err != nil {
		return nil, err
	}
	if ps.ModelName != ix.embedder.ModelName() || ps.Dimension != ix.embedder.Dimension() {
		return nil, fmt.Errorf("index built with %s/%d, embedder is %s/%d",
			ps.ModelName, ps.Dimension, ix.embedder.ModelName(), ix.embedder.Dimension())
	}
	if len(ps.Vectors) != len(ps.Chunks) {
		return nil, fmt.Errorf("index has %d vectors but %d chunks", len(ps.Vectors), len(ps.Chunks))
	}
	fi := index.NewFlatIndex(ps.Dimension)
	if err := fi.Add(ps.Vectors); err != nil {
		return nil, err
	}
	return &indexSnapshot{
		vectors:    fi,
		chunks:     ps.Chunks,
		configHash: ps.ConfigHash,
		builtAt:    ps.BuiltAt,
	}, nil
}

// Clear removes the persisted index and publishes an empty one.
func (ix *EmbeddingIndex) Clear() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.persister.Remove(); err != nil {
		return err
	}
	ix.publish(ix.emptySnapshot())
	ix.stale.Store(false)
	ix.logger.Info("index cleared")
	return nil
}

// Rebuild discards the current index and builds a new one from chunks. The
// replacement is fully embedded before the persisted index is overwritten,
// so a failed rebuild leaves the old index in place on disk and in memory.
func (ix *EmbeddingIndex) Rebuild(ctx context.Context, chunks []domain.Chunk) error {
	_, err := ix.replace(ctx, chunks, "index rebuilt")
	if err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}
	return nil
}

// Stats reports index health.
func (ix *EmbeddingIndex) Stats() domain.IndexStats {
	snap := ix.current.Load()
	docs := make(map[string]struct{})
	for _, c := range snap.chunks {
		docs[c.SourceFilename] = struct{}{}
	}
	return domain.IndexStats{
		TotalVectors:       snap.vectors.Len(),
		EmbeddingDimension: ix.embedder.Dimension(),
		ModelName:          ix.embedder.ModelName(),
		IndexExists:        ix.persister.Exists(),
		TotalDocuments:     len(docs),
	}
}

// Len returns the number of indexed vectors.
func (ix *EmbeddingIndex) Len() int {
	return ix.current.Load().vectors.Len()
}

// Generation changes every time a new snapshot is published.
func (ix *EmbeddingIndex) Generation() uint64 {
	return ix.gen.Load()
}

// Stale reports whether the loaded index was built with other settings.
func (ix *EmbeddingIndex) Stale() bool {
	return ix.stale.Load()
}

// Entries returns the published index as position-ordered entries.
func (ix *EmbeddingIndex) Entries() []domain.IndexEntry {
	snap := ix.current.Load()
	vecs := snap.vectors.Vectors()
	entries := make([]domain.IndexEntry, len(snap.chunks))
	for p, c := range snap.chunks {
		entries[p] = domain.IndexEntry{Position: p, Chunk: c, Vector: vecs[p]}
	}
	return entries
}
