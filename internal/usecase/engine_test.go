package usecase

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyrag/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestEngine(t *testing.T, opts EngineOptions) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	corpus := filepath.Join(dir, "policies")
	writeFile(t, filepath.Join(corpus, "work_from_home_policy.md"),
		"# Work From Home\n\nEmployees may **work remotely** up to three days per week. Remote work requires manager approval and a home office.\n")
	writeFile(t, filepath.Join(corpus, "expenses", "expense_policy.txt"),
		"Expense reimbursement requires original receipts submitted within 30 days.")
	writeFile(t, filepath.Join(corpus, "leave_policy.md"),
		"## Leave\n\n- 20 days annual vacation\n- 10 days sick leave\n")

	cfg := config.DefaultConfig()
	cfg.Embedding.Dimension = 256
	cfg.Embedding.Model = "hash-256"

	e, err := NewEngine(context.Background(), cfg, dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e, dir
}

func TestEngine_BuildAndAsk(t *testing.T) {
	e, dir := newTestEngine(t, EngineOptions{})
	ctx := context.Background()

	assert.Equal(t, Capabilities{IndexAvailable: true}, e.Capabilities())

	n, err := e.Build(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.FileExists(t, filepath.Join(dir, ".policyrag", "index.db"))

	answer := e.Ask(ctx, "Can I work from home?", "emp-7")
	assert.True(t, answer.Success)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "work_from_home_policy.md", answer.Sources[0].Filename)

	status := e.Status(ctx)
	assert.False(t, status.EnhancedMode)
	assert.False(t, status.GenerationEnabled)
	assert.Equal(t, 3, status.Index.TotalVectors)
	assert.Equal(t, 3, status.Index.TotalDocuments)
	assert.Equal(t, "hash-256", status.Index.ModelName)
	assert.True(t, status.Index.IndexExists)

	results, err := e.Search(ctx, "company policy", 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 3)
}

func TestEngine_IndexSurvivesRestart(t *testing.T) {
	e, dir := newTestEngine(t, EngineOptions{})
	ctx := context.Background()
	_, err := e.Build(ctx, "")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Embedding.Dimension = 256
	cfg.Embedding.Model = "hash-256"
	restarted, err := NewEngine(ctx, cfg, dir, EngineOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, restarted.Status(ctx).Index.TotalVectors)
	assert.False(t, restarted.Stale())

	cfg.Chunking.Size = 500
	changed, err := NewEngine(ctx, cfg, dir, EngineOptions{})
	require.NoError(t, err)
	assert.True(t, changed.Stale())
}

func TestEngine_Upload(t *testing.T) {
	e, dir := newTestEngine(t, EngineOptions{})
	ctx := context.Background()

	path := filepath.Join(dir, "uploads", "badge.txt")
	writeFile(t, path, strings.Repeat("Visitors must wear a badge at all times. ", 40))

	res := e.Upload(ctx, path, "")
	assert.True(t, res.Success)
	assert.Equal(t, "Successfully processed badge.txt", res.Message)
	assert.Equal(t, "badge.txt", res.DocumentName)
	assert.Equal(t, 3, res.ChunksAdded)
	assert.Equal(t, 3, e.Status(ctx).Index.TotalVectors)

	res = e.Upload(ctx, path, "Visitor Badge Policy")
	assert.True(t, res.Success)
	assert.Equal(t, "Successfully processed Visitor Badge Policy", res.Message)
	assert.Equal(t, 6, e.Status(ctx).Index.TotalVectors)

	answer := e.Ask(ctx, "Do visitors need a badge?", "")
	assert.True(t, answer.Success)
	require.NotEmpty(t, answer.Sources)
	assert.Contains(t, []string{"badge.txt", "Visitor Badge Policy"}, answer.Sources[0].Filename)
}

func TestEngine_UploadFailures(t *testing.T) {
	e, dir := newTestEngine(t, EngineOptions{})
	ctx := context.Background()

	empty := filepath.Join(dir, "uploads", "empty.txt")
	writeFile(t, empty, "   \n\t ")
	res := e.Upload(ctx, empty, "")
	assert.False(t, res.Success)
	assert.Equal(t, "No text content found in empty.txt", res.Message)
	assert.Zero(t, res.ChunksAdded)

	binary := filepath.Join(dir, "uploads", "tool.exe")
	writeFile(t, binary, "MZ")
	res = e.Upload(ctx, binary, "")
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "Error processing tool.exe: "))

	res = e.Upload(ctx, filepath.Join(dir, "missing.md"), "")
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "Error processing missing.md: "))

	assert.Zero(t, e.Status(ctx).Index.TotalVectors)
}

func TestEngine_RebuildAndAdd(t *testing.T) {
	e, dir := newTestEngine(t, EngineOptions{})
	ctx := context.Background()
	_, err := e.Build(ctx, "")
	require.NoError(t, err)

	extra := filepath.Join(dir, "extra")
	writeFile(t, filepath.Join(extra, "travel.md"), "Book business travel through the travel desk.")

	n, err := e.AddCorpus(ctx, extra)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 4, e.Status(ctx).Index.TotalVectors)

	n, err = e.Rebuild(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, e.Status(ctx).Index.TotalVectors)

	_, err = e.Build(ctx, filepath.Join(dir, "nothing-here"))
	assert.Error(t, err)
	assert.Equal(t, 3, e.Status(ctx).Index.TotalVectors)
}

func TestEngine_EnhancedModeSyncsRemote(t *testing.T) {
	remote := &stubRemote{}
	e, dir := newTestEngine(t, EngineOptions{Remote: remote})
	ctx := context.Background()
	assert.True(t, e.Capabilities().EnhancedMode)

	_, err := e.Build(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, remote.drops)
	assert.Equal(t, 3, remote.inserted)

	path := filepath.Join(dir, "uploads", "note.txt")
	writeFile(t, path, "Parking permits are issued by facilities.")
	res := e.Upload(ctx, path, "")
	require.True(t, res.Success)
	assert.Equal(t, 4, remote.inserted)

	status := e.Status(ctx)
	assert.True(t, status.EnhancedMode)
	assert.Equal(t, int64(4), status.RemoteVectors)
}

func TestEngine_EnhancedModeEmbedsOnce(t *testing.T) {
	emb := newSwitchEmbedder(256)
	remote := &stubRemote{}
	progress := 0
	e, dir := newTestEngine(t, EngineOptions{
		Embedder: emb,
		Remote:   remote,
		Progress: func(done, total int) { progress++ },
	})
	ctx := context.Background()

	_, err := e.Build(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, 1, progress)
	assert.Equal(t, 3, remote.inserted)

	path := filepath.Join(dir, "uploads", "badges.txt")
	writeFile(t, path, "Visitor badges are collected at reception.")
	require.True(t, e.Upload(ctx, path, "").Success)
	assert.Equal(t, 2, emb.calls)
	assert.Equal(t, 2, progress)

	_, err = e.AddCorpus(ctx, filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	assert.Equal(t, 3, emb.calls)
	assert.Equal(t, 5, remote.inserted)
}

func TestEngine_GeneratorOverride(t *testing.T) {
	gen := &stubGenerator{answer: "Three days a week."}
	e, _ := newTestEngine(t, EngineOptions{Generator: gen})
	ctx := context.Background()
	_, err := e.Build(ctx, "")
	require.NoError(t, err)

	assert.True(t, e.Capabilities().GenerationEnabled)
	answer := e.Ask(ctx, "How often can I work from home?", "")
	assert.Equal(t, "Three days a week.", answer.Message)
}

func TestEngine_UnavailableEmbedder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.Model = "text-embedding-3-small"
	cfg.Embedding.Dimension = 1536
	cfg.Embedding.APIKeyEnv = "POLICYRAG_TEST_MISSING_KEY"
	t.Setenv("POLICYRAG_TEST_MISSING_KEY", "")

	e, err := NewEngine(context.Background(), cfg, t.TempDir(), EngineOptions{})
	require.NoError(t, err)
	assert.False(t, e.Capabilities().IndexAvailable)

	answer := e.Ask(context.Background(), "What is the dress code?", "")
	assert.True(t, answer.Success)
	assert.Equal(t, "general_policy.md", answer.Sources[0].Filename)
	assert.Equal(t, 0.5, answer.Confidence)

	_, err = e.Build(context.Background(), "")
	assert.ErrorIs(t, err, ErrIndexUnavailable)

	res := e.Upload(context.Background(), "doc.md", "")
	assert.False(t, res.Success)
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Chunking.Overlap = cfg.Chunking.Size
	_, err := NewEngine(context.Background(), cfg, t.TempDir(), EngineOptions{})
	assert.Error(t, err)
}
