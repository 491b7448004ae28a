package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyrag/internal/adapter/cache"
	"policyrag/internal/domain"
)

func newTestOrchestrator(t *testing.T, gen *stubGenerator, opts OrchestratorOptions) (*Orchestrator, *EmbeddingIndex, *switchEmbedder) {
	t.Helper()
	emb := newSwitchEmbedder(256)
	ix := NewEmbeddingIndex(emb, &memPersister{}, IndexOptions{})
	var synth *Synthesizer
	if gen != nil {
		synth = NewSynthesizer(gen, SynthesizerOptions{})
	} else {
		synth = NewSynthesizer(nil, SynthesizerOptions{})
	}
	caps := Capabilities{IndexAvailable: true, GenerationEnabled: gen != nil, EnhancedMode: opts.Remote != nil}
	return NewOrchestrator(ix, synth, caps, opts), ix, emb
}

func TestOrchestrator_WorkFromHome(t *testing.T) {
	o, ix, _ := newTestOrchestrator(t, nil, OrchestratorOptions{ScoreThreshold: 0.1})
	require.NoError(t, ix.BuildIndex(context.Background(), policyChunks()))

	answer := o.Answer(context.Background(), "Can I work from home?", "emp-42")

	assert.True(t, answer.Success)
	assert.Equal(t, "Can I work from home?", answer.Query)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "work_from_home_policy.md", answer.Sources[0].Filename)
	assert.Contains(t, answer.Message, "work_from_home_policy.md")
	assert.Greater(t, answer.Confidence, 0.0)
	assert.LessOrEqual(t, answer.Confidence, 1.0)
	assert.LessOrEqual(t, len(answer.Sources), 3)
}

func TestOrchestrator_SingleWorkFromHomeDocument(t *testing.T) {
	o, ix, _ := newTestOrchestrator(t, nil, OrchestratorOptions{ScoreThreshold: 0.1})
	require.NoError(t, ix.BuildIndex(context.Background(), []domain.Chunk{{
		Content:        "Employees may work from home with manager approval.",
		SourceFilename: "remote_work.txt",
		ChunkID:        "remote_work.txt_chunk_0",
		TotalChunks:    1,
	}}))

	enhanced := EnhanceQuery("Can I work from home?")
	assert.Contains(t, enhanced, "remote work policy")

	results, err := ix.Search(context.Background(), enhanced, 5, 0.1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Greater(t, results[0].Score, 0.1)

	answer := o.Answer(context.Background(), "Can I work from home?", "emp-7")

	assert.True(t, answer.Success)
	assert.Contains(t, answer.Message, "work from home")
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "remote_work.txt", answer.Sources[0].Filename)
	assert.Greater(t, answer.Sources[0].Score, 0.1)
}

func TestOrchestrator_EmptyIndexFallsBackToGeneralPassage(t *testing.T) {
	o, _, emb := newTestOrchestrator(t, nil, OrchestratorOptions{})

	answer := o.Answer(context.Background(), "What is the dress code?", "")

	assert.True(t, answer.Success)
	assert.Equal(t, []domain.Source{{Filename: "general_policy.md", Score: 0.6}}, answer.Sources)
	assert.Equal(t, 0.5, answer.Confidence)
	assert.Zero(t, emb.calls)
}

func TestOrchestrator_UnavailableIndexUsesCannedPassages(t *testing.T) {
	o := NewOrchestrator(nil, NewSynthesizer(nil, SynthesizerOptions{}), Capabilities{IndexAvailable: true}, OrchestratorOptions{})

	answer := o.Answer(context.Background(), "How do I submit an expense report?", "")

	assert.True(t, answer.Success)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "expense_policy.md", answer.Sources[0].Filename)
}

func TestOrchestrator_SearchFailureUsesCannedPassages(t *testing.T) {
	o, ix, emb := newTestOrchestrator(t, nil, OrchestratorOptions{})
	require.NoError(t, ix.BuildIndex(context.Background(), policyChunks()))
	emb.setFail(true)

	answer := o.Answer(context.Background(), "How many vacation days do I get?", "")

	assert.True(t, answer.Success)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "leave_policy.md", answer.Sources[0].Filename)
}

func TestOrchestrator_NoResultsAboveThreshold(t *testing.T) {
	o, ix, _ := newTestOrchestrator(t, nil, OrchestratorOptions{ScoreThreshold: 1.5})
	require.NoError(t, ix.BuildIndex(context.Background(), policyChunks()))

	answer := o.Answer(context.Background(), "Can I work from home?", "")

	assert.False(t, answer.Success)
	assert.Equal(t, noResultsMessage, answer.Message)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, answer.Confidence)
}

func TestOrchestrator_BlankQuery(t *testing.T) {
	o, _, emb := newTestOrchestrator(t, nil, OrchestratorOptions{})

	answer := o.Answer(context.Background(), "   ", "")

	assert.False(t, answer.Success)
	assert.Equal(t, noResultsMessage, answer.Message)
	assert.NotNil(t, answer.Sources)
	assert.Zero(t, emb.calls)
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	o, ix, _ := newTestOrchestrator(t, nil, OrchestratorOptions{})
	require.NoError(t, ix.BuildIndex(context.Background(), policyChunks()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	answer := o.Answer(ctx, "Can I work from home?", "")

	assert.False(t, answer.Success)
	assert.Equal(t, errorMessage, answer.Message)
}

func TestOrchestrator_UsesGenerator(t *testing.T) {
	gen := &stubGenerator{answer: "  You may work remotely three days a week.  "}
	o, ix, _ := newTestOrchestrator(t, gen, OrchestratorOptions{})
	require.NoError(t, ix.BuildIndex(context.Background(), policyChunks()))

	answer := o.Answer(context.Background(), "Can I work from home?", "")

	assert.True(t, answer.Success)
	assert.Equal(t, "You may work remotely three days a week.", answer.Message)
	assert.Contains(t, gen.prompt, "Employee question: Can I work from home?")
	assert.Equal(t, 300, gen.maxTokens)
}

func TestOrchestrator_GeneratorFailureFallsBackToTemplate(t *testing.T) {
	gen := &stubGenerator{err: errors.New("rate limited")}
	o, ix, _ := newTestOrchestrator(t, gen, OrchestratorOptions{})
	require.NoError(t, ix.BuildIndex(context.Background(), policyChunks()))

	answer := o.Answer(context.Background(), "Can I work from home?", "")

	assert.True(t, answer.Success)
	assert.Contains(t, answer.Message, "please refer to the work_from_home_policy.md or contact HR")
}

func TestOrchestrator_CacheServesRepeatQueries(t *testing.T) {
	rc := cache.NewRetrievalCache(10, time.Minute)
	o, ix, emb := newTestOrchestrator(t, nil, OrchestratorOptions{Cache: rc})
	ctx := context.Background()
	require.NoError(t, ix.BuildIndex(ctx, policyChunks()))

	first := o.Answer(ctx, "Can I work from home?", "")
	calls := emb.calls
	second := o.Answer(ctx, "Can I work from home?", "")
	assert.Equal(t, first, second)
	assert.Equal(t, calls, emb.calls)

	// A new index generation invalidates cached results.
	require.NoError(t, ix.AddDocuments(ctx, policyChunks()[:1]))
	calls = emb.calls
	o.Answer(ctx, "Can I work from home?", "")
	assert.Greater(t, emb.calls, calls)
}

func TestOrchestrator_RemoteUsesDistanceConfidence(t *testing.T) {
	remote := &stubRemote{results: []domain.RetrievalResult{
		{Content: "Remote work requires approval.", Score: 0.4, Distance: 0.4, Rank: 1, Filename: "remote.md"},
		{Content: "Home office equipment is reimbursed.", Score: 0.9, Distance: 0.9, Rank: 2, Filename: "equipment.md"},
	}}
	o, ix, _ := newTestOrchestrator(t, nil, OrchestratorOptions{Remote: remote})
	require.NoError(t, ix.BuildIndex(context.Background(), policyChunks()))

	answer := o.Answer(context.Background(), "Can I work from home?", "")

	assert.True(t, answer.Success)
	assert.Equal(t, 0.8, answer.Confidence)
	assert.Equal(t, "remote.md", answer.Sources[0].Filename)
}

func TestOrchestrator_RemoteFailureFallsBackToLocal(t *testing.T) {
	remote := &stubRemote{err: errors.New("connection refused")}
	o, ix, _ := newTestOrchestrator(t, nil, OrchestratorOptions{Remote: remote})
	require.NoError(t, ix.BuildIndex(context.Background(), policyChunks()))

	answer := o.Answer(context.Background(), "Can I work from home?", "")

	assert.True(t, answer.Success)
	assert.Equal(t, "work_from_home_policy.md", answer.Sources[0].Filename)
}

func TestOrchestrator_EmptyRemoteFallsBackToLocal(t *testing.T) {
	remote := &stubRemote{results: []domain.RetrievalResult{}}
	o, ix, _ := newTestOrchestrator(t, nil, OrchestratorOptions{Remote: remote, ScoreThreshold: 0.1})
	require.NoError(t, ix.BuildIndex(context.Background(), policyChunks()))

	answer := o.Answer(context.Background(), "Can I work from home?", "")

	assert.True(t, answer.Success)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "work_from_home_policy.md", answer.Sources[0].Filename)
	assert.Greater(t, answer.Confidence, 0.0)
}

func TestOrchestrator_EmptyRemoteAndEmptyIndexUseCannedPassages(t *testing.T) {
	remote := &stubRemote{results: []domain.RetrievalResult{}}
	o, _, _ := newTestOrchestrator(t, nil, OrchestratorOptions{Remote: remote})

	answer := o.Answer(context.Background(), "How do I submit an expense report?", "")

	assert.True(t, answer.Success)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "expense_policy.md", answer.Sources[0].Filename)
}

func TestConfidence(t *testing.T) {
	assert.Zero(t, Confidence(nil))

	one := []domain.RetrievalResult{{Score: 0.6}}
	assert.Equal(t, 0.5, Confidence(one))

	five := make([]domain.RetrievalResult, 5)
	five[0].Score = 0.9
	assert.Equal(t, 0.82, Confidence(five))

	many := make([]domain.RetrievalResult, 10)
	many[0].Score = 1
	assert.Equal(t, 1.0, Confidence(many))

	negative := []domain.RetrievalResult{{Score: -0.5}}
	assert.Equal(t, 0.0, Confidence(negative))
}

func TestDistanceConfidence(t *testing.T) {
	assert.Zero(t, DistanceConfidence(nil))
	assert.Equal(t, 1.0, DistanceConfidence([]domain.RetrievalResult{{Distance: 0}}))
	assert.Equal(t, 0.75, DistanceConfidence([]domain.RetrievalResult{{Distance: 0.5}}))
	assert.Equal(t, 0.0, DistanceConfidence([]domain.RetrievalResult{{Distance: 3}}))
}

func TestBuildSources(t *testing.T) {
	results := []domain.RetrievalResult{
		{Filename: "a.md", Score: 0.91234},
		{Filename: "a.md", Score: 0.8},
		{Filename: "b.md", Score: 0.7},
		{Filename: "c.md", Score: 0.65},
		{Filename: "d.md", Score: 0.6},
	}

	sources := BuildSources(results, 3)
	assert.Equal(t, []domain.Source{
		{Filename: "a.md", Score: 0.912},
		{Filename: "b.md", Score: 0.7},
		{Filename: "c.md", Score: 0.65},
	}, sources)

	assert.Empty(t, BuildSources(nil, 3))
}
