package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"policyrag/internal/adapter/chunker"
	"policyrag/internal/adapter/loader"
	"policyrag/internal/domain"
	"policyrag/internal/logging"
)

// IngestUseCase loads a corpus and splits it into chunks ready for indexing.
type IngestUseCase struct {
	loader *loader.Loader
	logger *zap.Logger
}

func NewIngestUseCase(l *loader.Loader, logger *zap.Logger) *IngestUseCase {
	return &IngestUseCase{loader: l, logger: logging.OrNop(logger)}
}

// ProcessDocumentsForRAG loads every supported file under root and chunks it
// with the given window. Chunks are ordered by document, then by position.
func (u *IngestUseCase) ProcessDocumentsForRAG(ctx context.Context, root string, size, overlap int) ([]domain.Chunk, error) {
	chk, err := chunker.NewTextChunker(size, overlap)
	if err != nil {
		return nil, err
	}

	docs, err := u.loader.LoadCorpus(ctx, root)
	if err != nil {
		return nil, err
	}

	var chunks []domain.Chunk
	for _, doc := range docs {
		chunks = append(chunks, chk.Chunk(doc)...)
	}

	u.logger.Info("documents chunked",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", size),
		zap.Int("overlap", overlap))
	return chunks, nil
}

// ProcessDocument chunks one already loaded document.
func (u *IngestUseCase) ProcessDocument(doc domain.RawDocument, size, overlap int) ([]domain.Chunk, error) {
	chk, err := chunker.NewTextChunker(size, overlap)
	if err != nil {
		return nil, err
	}
	return chk.Chunk(doc), nil
}

// ProcessFile loads and chunks a single file. displayName, when set,
// replaces the file name in chunk ids and citations.
func (u *IngestUseCase) ProcessFile(path, displayName string, size, overlap int) (domain.RawDocument, []domain.Chunk, error) {
	doc, err := u.loader.LoadFile(path)
	if err != nil {
		return domain.RawDocument{}, nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if displayName != "" {
		doc.Filename = displayName
	}
	chunks, err := u.ProcessDocument(doc, size, overlap)
	if err != nil {
		return domain.RawDocument{}, nil, err
	}
	return doc, chunks, nil
}

func (u *IngestUseCase) Supported(path string) bool {
	return u.loader.Supported(path)
}
