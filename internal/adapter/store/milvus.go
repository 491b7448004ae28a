package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"go.uber.org/zap"

	"policyrag/config"
	"policyrag/internal/domain"
	"policyrag/internal/logging"
	"policyrag/internal/port"
)

const (
	fieldID        = "id"
	fieldEmbedding = "embedding"
	fieldContent   = "content"
	fieldFilename  = "filename"
	fieldChunkID   = "chunk_id"
)

// MilvusIndex is the externally hosted chunk index. It ranks by L2 distance.
type MilvusIndex struct {
	client     *milvusclient.Client
	collection string
	dimension  int
	logger     *zap.Logger
}

var _ port.RemoteIndex = (*MilvusIndex)(nil)

// NewMilvusIndex connects to the Milvus server named in cfg.
func NewMilvusIndex(ctx context.Context, cfg config.EnhancedConfig, dimension int, logger *zap.Logger) (*MilvusIndex, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &MilvusIndex{
		client:     c,
		collection: cfg.Collection,
		dimension:  dimension,
		logger:     logging.OrNop(logger),
	}, nil
}

// Ensure creates, indexes and loads the collection if it does not exist yet.
func (m *MilvusIndex) Ensure(ctx context.Context) error {
	exists, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.collection))
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		if err := m.create(ctx); err != nil {
			return err
		}
	}

	loadTask, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(m.collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

func (m *MilvusIndex) create(ctx context.Context) error {
	schema := entity.NewSchema().
		WithName(m.collection).
		WithDescription("policy document chunks").
		WithAutoID(true).
		WithField(entity.NewField().
			WithName(fieldID).
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true).
			WithIsAutoID(true)).
		WithField(entity.NewField().
			WithName(fieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(m.dimension))).
		WithField(entity.NewField().
			WithName(fieldContent).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(65535)).
		WithField(entity.NewField().
			WithName(fieldFilename).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(512)).
		WithField(entity.NewField().
			WithName(fieldChunkID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(600))

	if err := m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(m.collection, schema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewIvfFlatIndex(entity.L2, 128)
	createIdxTask, err := m.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(m.collection, fieldEmbedding, idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}

	m.logger.Info("milvus collection created",
		zap.String("collection", m.collection),
		zap.Int("dimension", m.dimension))
	return nil
}

// Insert stores chunks with their vectors and flushes them.
func (m *MilvusIndex) Insert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("cannot insert %d chunks with %d vectors", len(chunks), len(vectors))
	}

	contents := make([]string, len(chunks))
	filenames := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
		filenames[i] = c.SourceFilename
		ids[i] = c.ChunkID
	}

	_, err := m.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(m.collection,
		column.NewColumnFloatVector(fieldEmbedding, m.dimension, vectors),
		column.NewColumnVarChar(fieldContent, contents),
		column.NewColumnVarChar(fieldFilename, filenames),
		column.NewColumnVarChar(fieldChunkID, ids),
	))
	if err != nil {
		return fmt.Errorf("failed to insert into milvus: %w", err)
	}

	flushTask, err := m.client.Flush(ctx, milvusclient.NewFlushOption(m.collection))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

// Search returns the k nearest chunks. Score and Distance both carry the L2
// distance, so lower is better.
func (m *MilvusIndex) Search(ctx context.Context, vector []float32, k int) ([]domain.RetrievalResult, error) {
	results, err := m.client.Search(ctx, milvusclient.NewSearchOption(
		m.collection,
		k,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(fieldEmbedding).
		WithSearchParam("nprobe", "16").
		WithOutputFields(fieldContent, fieldFilename, fieldChunkID))
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}
	if len(results) == 0 {
		return []domain.RetrievalResult{}, nil
	}

	rs := results[0]
	out := make([]domain.RetrievalResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		r := domain.RetrievalResult{
			Rank:     i + 1,
			Score:    float64(rs.Scores[i]),
			Distance: float64(rs.Scores[i]),
		}
		for _, field := range rs.Fields {
			col, ok := field.(*column.ColumnVarChar)
			if !ok {
				continue
			}
			switch col.Name() {
			case fieldContent:
				r.Content = col.Data()[i]
			case fieldFilename:
				r.Filename = col.Data()[i]
			case fieldChunkID:
				r.ChunkID = col.Data()[i]
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// Count returns the number of stored chunks.
func (m *MilvusIndex) Count(ctx context.Context) (int64, error) {
	stats, err := m.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(m.collection))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}
	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}

// Drop deletes the collection and everything in it.
func (m *MilvusIndex) Drop(ctx context.Context) error {
	if err := m.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(m.collection)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

func (m *MilvusIndex) Close(ctx context.Context) error {
	return m.client.Close(ctx)
}
