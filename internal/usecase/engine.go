package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"policyrag/config"
	"policyrag/internal/adapter/cache"
	"policyrag/internal/adapter/embedding"
	"policyrag/internal/adapter/fs"
	"policyrag/internal/adapter/generation"
	"policyrag/internal/adapter/loader"
	"policyrag/internal/adapter/store"
	"policyrag/internal/domain"
	"policyrag/internal/logging"
	"policyrag/internal/port"
)

// ErrIndexUnavailable is returned by administrative operations when no
// embedding model could be initialized.
var ErrIndexUnavailable = errors.New("embedding index unavailable")

// Capabilities records which optional backends initialized successfully.
// It is resolved once when the engine starts.
type Capabilities struct {
	IndexAvailable    bool
	GenerationEnabled bool
	EnhancedMode      bool
}

// EngineOptions overrides the backends the engine would otherwise build
// from configuration.
type EngineOptions struct {
	Logger    *zap.Logger
	Progress  ProgressFunc
	Embedder  port.Embedder
	Generator port.Generator
	Remote    port.RemoteIndex
}

// Engine wires ingestion, the embedding index, retrieval and synthesis
// behind the query, upload and status interfaces.
type Engine struct {
	cfg    *config.Config
	dir    string
	logger *zap.Logger
	caps   Capabilities

	ingest       *IngestUseCase
	index        *EmbeddingIndex
	remote       port.RemoteIndex
	orchestrator *Orchestrator
}

// NewEngine builds an engine rooted at dir. Backends that fail to
// initialize are logged and disabled; only invalid configuration is an
// error.
func NewEngine(ctx context.Context, cfg *config.Config, dir string, opts EngineOptions) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := logging.OrNop(opts.Logger)

	e := &Engine{
		cfg:    cfg,
		dir:    dir,
		logger: logger,
	}

	walker := fs.NewWalker(cfg.Corpus.Includes, cfg.Corpus.Excludes, logger)
	e.ingest = NewIngestUseCase(loader.NewLoader(walker, cfg.Corpus.Workers, logger), logger)

	embedder := opts.Embedder
	if embedder == nil {
		emb, err := embedding.New(cfg.Embedding)
		if err != nil {
			logger.Warn("embedding model unavailable", zap.Error(err))
		} else {
			embedder = emb
		}
	}
	if embedder != nil {
		indexPath := cfg.IndexPath(dir)
		e.index = NewEmbeddingIndex(embedder, store.NewSnapshotStore(indexPath), IndexOptions{
			ConfigHash: store.ComputeConfigHash(cfg),
			BatchSize:  cfg.Embedding.BatchSize,
			Timeout:    cfg.Embedding.Timeout,
			Progress:   opts.Progress,
			Logger:     logger,
		})
		e.caps.IndexAvailable = true
	}

	gen := opts.Generator
	if gen == nil && cfg.Generation.Enabled {
		g, err := generation.New(cfg.Generation)
		if err != nil {
			logger.Warn("answer generation disabled", zap.Error(err))
		} else {
			gen = g
		}
	}
	e.caps.GenerationEnabled = gen != nil

	e.remote = opts.Remote
	if e.remote == nil && cfg.Enhanced.Enabled && e.index != nil {
		e.remote = e.connectRemote(ctx, embedder.Dimension())
	}
	e.caps.EnhancedMode = e.remote != nil && e.index != nil

	var rc *cache.RetrievalCache
	if cfg.Cache.Enabled {
		rc = cache.NewRetrievalCache(cfg.Cache.MaxSize, cfg.Cache.TTL)
	}

	synth := NewSynthesizer(gen, SynthesizerOptions{
		ContextBudget: cfg.Retrieve.ContextBudget,
		MaxTokens:     cfg.Generation.MaxTokens,
		Timeout:       cfg.Generation.Timeout,
		Logger:        logger,
	})
	e.orchestrator = NewOrchestrator(e.index, synth, e.caps, OrchestratorOptions{
		TopK:           cfg.Retrieve.TopK,
		ScoreThreshold: cfg.Retrieve.ScoreThreshold,
		MaxSources:     cfg.Retrieve.MaxSources,
		Cache:          rc,
		Remote:         e.remote,
		Logger:         logger,
	})

	logger.Info("engine ready",
		zap.Bool("index", e.caps.IndexAvailable),
		zap.Bool("generation", e.caps.GenerationEnabled),
		zap.Bool("enhanced", e.caps.EnhancedMode))
	return e, nil
}

func (e *Engine) connectRemote(ctx context.Context, dimension int) port.RemoteIndex {
	m, err := store.NewMilvusIndex(ctx, e.cfg.Enhanced, dimension, e.logger)
	if err != nil {
		e.logger.Warn("enhanced mode disabled", zap.Error(err))
		return nil
	}
	if err := m.Ensure(ctx); err != nil {
		e.logger.Warn("enhanced mode disabled", zap.Error(err))
		_ = m.Close(ctx)
		return nil
	}
	return m
}

func (e *Engine) Capabilities() Capabilities {
	return e.caps
}

// Ask answers a question. It never returns an error.
func (e *Engine) Ask(ctx context.Context, query, requesterID string) domain.QueryAnswer {
	return e.orchestrator.Answer(ctx, query, requesterID)
}

// Upload indexes a single document under displayName, or under its file
// name when displayName is empty. It never returns an error.
func (e *Engine) Upload(ctx context.Context, path, displayName string) domain.UploadResult {
	name := displayName
	if name == "" {
		name = filepath.Base(path)
	}
	fail := func(msg string) domain.UploadResult {
		e.logger.Warn("upload failed", zap.String("document", name), zap.String("reason", msg))
		return domain.UploadResult{Success: false, Message: msg, DocumentName: name}
	}

	if e.index == nil {
		return fail(fmt.Sprintf("Error processing %s: %v", name, ErrIndexUnavailable))
	}

	_, chunks, err := e.ingest.ProcessFile(path, name, e.cfg.Upload.Size, e.cfg.Upload.Overlap)
	if errors.Is(err, loader.ErrEmptyText) || (err == nil && len(chunks) == 0) {
		return fail(fmt.Sprintf("No text content found in %s", name))
	}
	if err != nil {
		return fail(fmt.Sprintf("Error processing %s: %v", name, err))
	}

	vecs, err := e.index.addDocuments(ctx, chunks)
	if err != nil {
		return fail(fmt.Sprintf("Error processing %s: %v", name, err))
	}
	if e.caps.EnhancedMode {
		if err := e.remote.Insert(ctx, chunks, vecs); err != nil {
			e.logger.Warn("remote insert failed", zap.String("document", name), zap.Error(err))
		}
	}

	e.logger.Info("document uploaded", zap.String("document", name), zap.Int("chunks", len(chunks)))
	return domain.UploadResult{
		Success:      true,
		Message:      fmt.Sprintf("Successfully processed %s", name),
		ChunksAdded:  len(chunks),
		DocumentName: name,
	}
}

// Status reports which backends are active and how large the index is.
func (e *Engine) Status(ctx context.Context) domain.EngineStatus {
	status := domain.EngineStatus{
		EnhancedMode:      e.caps.EnhancedMode,
		GenerationEnabled: e.caps.GenerationEnabled,
	}
	if e.index != nil {
		status.Index = e.index.Stats()
	}
	if e.caps.EnhancedMode {
		n, err := e.remote.Count(ctx)
		if err != nil {
			e.logger.Warn("failed to count remote vectors", zap.Error(err))
		}
		status.RemoteVectors = n
	}
	return status
}

// Stale reports whether the loaded index was built with other chunking or
// embedding settings.
func (e *Engine) Stale() bool {
	return e.index != nil && e.index.Stale()
}

// Search queries the local index directly, without enhancement or
// fallbacks.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	if e.index == nil {
		return nil, ErrIndexUnavailable
	}
	return e.index.Search(ctx, query, k, e.cfg.Retrieve.ScoreThreshold)
}

func (e *Engine) loadChunks(ctx context.Context, corpusDir string) ([]domain.Chunk, error) {
	if e.index == nil {
		return nil, ErrIndexUnavailable
	}
	if corpusDir == "" {
		corpusDir = e.cfg.CorpusDir(e.dir)
	}
	chunks, err := e.ingest.ProcessDocumentsForRAG(ctx, corpusDir, e.cfg.Chunking.Size, e.cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no documents found in %s", corpusDir)
	}
	return chunks, nil
}

// Build indexes corpusDir, replacing the current index. An empty corpusDir
// means the configured corpus. It returns the number of chunks indexed.
func (e *Engine) Build(ctx context.Context, corpusDir string) (int, error) {
	chunks, err := e.loadChunks(ctx, corpusDir)
	if err != nil {
		return 0, err
	}
	vecs, err := e.index.replace(ctx, chunks, "index built")
	if err != nil {
		return 0, fmt.Errorf("failed to build index: %w", err)
	}
	if err := e.syncRemote(ctx, chunks, vecs); err != nil {
		return len(chunks), err
	}
	return len(chunks), nil
}

// Rebuild clears the index and builds it again from corpusDir. The old
// index stays in place if the new one cannot be built.
func (e *Engine) Rebuild(ctx context.Context, corpusDir string) (int, error) {
	chunks, err := e.loadChunks(ctx, corpusDir)
	if err != nil {
		return 0, err
	}
	vecs, err := e.index.replace(ctx, chunks, "index rebuilt")
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild index: %w", err)
	}
	if err := e.syncRemote(ctx, chunks, vecs); err != nil {
		return len(chunks), err
	}
	return len(chunks), nil
}

// AddCorpus appends every document under corpusDir to the existing index.
func (e *Engine) AddCorpus(ctx context.Context, corpusDir string) (int, error) {
	chunks, err := e.loadChunks(ctx, corpusDir)
	if err != nil {
		return 0, err
	}
	vecs, err := e.index.addDocuments(ctx, chunks)
	if err != nil {
		return 0, err
	}
	if e.caps.EnhancedMode {
		if err := e.remote.Insert(ctx, chunks, vecs); err != nil {
			return len(chunks), fmt.Errorf("failed to add to remote index: %w", err)
		}
	}
	return len(chunks), nil
}

// syncRemote replaces the remote collection contents with chunks and their
// already computed vectors.
func (e *Engine) syncRemote(ctx context.Context, chunks []domain.Chunk, vecs [][]float32) error {
	if !e.caps.EnhancedMode {
		return nil
	}
	if err := e.remote.Drop(ctx); err != nil {
		return fmt.Errorf("failed to reset remote index: %w", err)
	}
	if err := e.remote.Ensure(ctx); err != nil {
		return fmt.Errorf("failed to reset remote index: %w", err)
	}
	if err := e.remote.Insert(ctx, chunks, vecs); err != nil {
		return fmt.Errorf("failed to populate remote index: %w", err)
	}
	return nil
}

// Close releases the remote connection, if any.
func (e *Engine) Close(ctx context.Context) error {
	if e.remote == nil {
		return nil
	}
	return e.remote.Close(ctx)
}
