package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"policyrag/internal/adapter/analyzer"
	"policyrag/internal/adapter/embedding"
	"policyrag/internal/domain"
	"policyrag/internal/port"
)

var errEmbedDown = errors.New("embedding service down")

// switchEmbedder wraps the hash embedder and can be told to fail.
type switchEmbedder struct {
	*embedding.HashEmbedder
	mu    sync.Mutex
	fail  bool
	calls int
}

func newSwitchEmbedder(dim int) *switchEmbedder {
	return &switchEmbedder{HashEmbedder: embedding.NewHashEmbedder(analyzer.NewTokenizer(true), dim)}
}

func (e *switchEmbedder) setFail(fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = fail
}

func (e *switchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	fail := e.fail
	e.mu.Unlock()
	if fail {
		return nil, errEmbedDown
	}
	return e.HashEmbedder.Embed(ctx, texts)
}

// memPersister keeps the last saved snapshot in memory.
type memPersister struct {
	snap    *port.Snapshot
	saveErr error
	saves   int
}

func (p *memPersister) Save(s *port.Snapshot) error {
	if p.saveErr != nil {
		return p.saveErr
	}
	cp := *s
	cp.Vectors = append([][]float32(nil), s.Vectors...)
	cp.Chunks = append([]domain.Chunk(nil), s.Chunks...)
	p.snap = &cp
	p.saves++
	return nil
}

func (p *memPersister) Load() (*port.Snapshot, error) {
	if p.snap == nil {
		return nil, fmt.Errorf("no snapshot: %w", os.ErrNotExist)
	}
	cp := *p.snap
	return &cp, nil
}

func (p *memPersister) Remove() error {
	p.snap = nil
	return nil
}

func (p *memPersister) Exists() bool {
	return p.snap != nil
}

// stubGenerator returns a fixed answer or error and records the prompt.
type stubGenerator struct {
	answer    string
	err       error
	prompt    string
	maxTokens int
}

func (g *stubGenerator) Generate(_ context.Context, prompt string, maxTokens int) (string, error) {
	g.prompt = prompt
	g.maxTokens = maxTokens
	return g.answer, g.err
}

func (g *stubGenerator) ModelName() string {
	return "stub-model"
}

// stubRemote is an in-memory remote index returning canned results.
type stubRemote struct {
	results  []domain.RetrievalResult
	err      error
	inserted int
	drops    int
}

func (r *stubRemote) Ensure(context.Context) error { return nil }

func (r *stubRemote) Insert(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%d chunks, %d vectors", len(chunks), len(vectors))
	}
	r.inserted += len(chunks)
	return nil
}

func (r *stubRemote) Search(context.Context, []float32, int) ([]domain.RetrievalResult, error) {
	return r.results, r.err
}

func (r *stubRemote) Count(context.Context) (int64, error) { return int64(r.inserted), nil }

func (r *stubRemote) Drop(context.Context) error {
	r.drops++
	r.inserted = 0
	return nil
}

func (r *stubRemote) Close(context.Context) error { return nil }

func policyChunks() []domain.Chunk {
	docs := []struct {
		file string
		text string
	}{
		{"work_from_home_policy.md", "Employees may work remotely up to three days per week. Remote work from home requires manager approval and a dedicated home office with reliable internet."},
		{"expense_policy.md", "Expense reimbursement requires original receipts. Submit expense reports within 30 days of purchase for travel and meals."},
		{"leave_policy.md", "Employees receive 20 days of annual vacation leave. Sick leave and personal time off must be requested through the HR portal."},
		{"code_of_conduct.md", "All staff must treat colleagues with respect. Harassment and discrimination are prohibited and must be reported."},
	}
	chunks := make([]domain.Chunk, len(docs))
	for i, d := range docs {
		chunks[i] = domain.Chunk{
			Content:        d.text,
			SourceFilename: d.file,
			SourcePath:     "/policies/" + d.file,
			ChunkID:        d.file + "_chunk_0",
			ChunkIndex:     0,
			TotalChunks:    1,
		}
	}
	return chunks
}
