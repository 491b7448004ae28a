package usecase

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"policyrag/internal/adapter/cache"
	"policyrag/internal/adapter/embedding"
	"policyrag/internal/domain"
	"policyrag/internal/logging"
	"policyrag/internal/port"
)

const (
	noResultsMessage = "I couldn't find relevant information about that topic in our policy documents. " +
		"Please try rephrasing your question or contact HR directly."
	errorMessage = "I encountered an error while processing your question. " +
		"Please try again or contact HR for assistance."
)

// OrchestratorOptions configures retrieval.
type OrchestratorOptions struct {
	TopK           int
	ScoreThreshold float64
	MaxSources     int
	// Cache memoizes local search results. Nil disables caching.
	Cache *cache.RetrievalCache
	// Remote is searched instead of the local index in enhanced mode.
	Remote port.RemoteIndex
	Logger *zap.Logger
}

// Orchestrator answers one question end to end: enhancement, retrieval with
// fallbacks, synthesis, confidence and citations.
type Orchestrator struct {
	index *EmbeddingIndex
	synth *Synthesizer
	caps  Capabilities
	opts  OrchestratorOptions

	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator. index may be nil when no
// embedding model could be initialized.
func NewOrchestrator(index *EmbeddingIndex, synth *Synthesizer, caps Capabilities, opts OrchestratorOptions) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxSources <= 0 {
		opts.MaxSources = 3
	}
	if index == nil {
		caps.IndexAvailable = false
		caps.EnhancedMode = false
	}
	if opts.Remote == nil {
		caps.EnhancedMode = false
	}
	return &Orchestrator{
		index:  index,
		synth:  synth,
		caps:   caps,
		opts:   opts,
		logger: logging.OrNop(opts.Logger),
	}
}

// retrieval is the outcome of one retrieval pass.
type retrieval struct {
	results []domain.RetrievalResult
	backend string
}

const (
	backendRemote = "remote"
	backendLocal  = "local"
	backendMock   = "mock"
)

// Answer never fails; faults are reported in the returned message.
func (o *Orchestrator) Answer(ctx context.Context, query, requesterID string) domain.QueryAnswer {
	log := o.logger.With(zap.String("requester", requesterID))

	if strings.TrimSpace(query) == "" {
		return noResults(query)
	}

	enhanced, topic := enhanceQuery(query)
	log.Debug("query enhanced", zap.String("topic", topic), zap.String("enhanced", enhanced))

	r := o.retrieve(ctx, enhanced)
	if ctx.Err() != nil {
		log.Warn("query aborted", zap.Error(ctx.Err()))
		return domain.QueryAnswer{
			Success: false,
			Message: errorMessage,
			Sources: []domain.Source{},
			Query:   query,
		}
	}
	if len(r.results) == 0 {
		log.Info("no relevant chunks", zap.String("backend", r.backend))
		return noResults(query)
	}

	message, generated := o.synth.Synthesize(ctx, query, r.results)

	confidence := Confidence(r.results)
	if r.backend == backendRemote {
		confidence = DistanceConfidence(r.results)
	}

	log.Info("query answered",
		zap.String("backend", r.backend),
		zap.Int("results", len(r.results)),
		zap.Bool("generated", generated),
		zap.Float64("confidence", confidence))

	return domain.QueryAnswer{
		Success:    true,
		Message:    message,
		Sources:    BuildSources(r.results, o.opts.MaxSources),
		Confidence: confidence,
		Query:      query,
	}
}

func noResults(query string) domain.QueryAnswer {
	return domain.QueryAnswer{
		Success:    false,
		Message:    noResultsMessage,
		Sources:    []domain.Source{},
		Confidence: 0,
		Query:      query,
	}
}

// retrieve picks the backend for the enhanced query. A remote index that
// fails or has nothing to offer falls back to the local index, and local
// failures to the canned passages.
func (o *Orchestrator) retrieve(ctx context.Context, enhanced string) retrieval {
	if o.caps.EnhancedMode {
		results, err := o.searchRemote(ctx, enhanced)
		switch {
		case err != nil:
			o.logger.Warn("remote search failed, using local index", zap.Error(err))
		case len(results) == 0:
			o.logger.Info("remote index returned no results, using local index")
		default:
			return retrieval{results: results, backend: backendRemote}
		}
	}

	if !o.caps.IndexAvailable || o.index.Len() == 0 {
		o.logger.Info("index unavailable, using canned passages")
		return retrieval{results: MockDocuments(enhanced), backend: backendMock}
	}

	results, err := o.searchLocal(ctx, enhanced, o.opts.TopK)
	if err != nil {
		o.logger.Warn("search failed, using canned passages", zap.Error(err))
		return retrieval{results: MockDocuments(enhanced), backend: backendMock}
	}
	return retrieval{results: results, backend: backendLocal}
}

func (o *Orchestrator) searchLocal(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	gen := o.index.Generation()
	if o.opts.Cache != nil {
		if cached, ok := o.opts.Cache.Get(query, k, o.opts.ScoreThreshold, gen); ok {
			return cached, nil
		}
	}

	results, err := o.index.Search(ctx, query, k, o.opts.ScoreThreshold)
	if err != nil {
		return nil, err
	}
	if o.opts.Cache != nil {
		o.opts.Cache.Put(query, k, o.opts.ScoreThreshold, gen, results)
	}
	return results, nil
}

func (o *Orchestrator) searchRemote(ctx context.Context, query string) ([]domain.RetrievalResult, error) {
	vecs, err := o.index.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return o.opts.Remote.Search(ctx, embedding.Normalize(vecs[0]), o.opts.TopK)
}

// Confidence scores similarity-ranked results: the top score weighted 0.8
// plus a bonus for the number of results, capped at 1.
func Confidence(results []domain.RetrievalResult) float64 {
	if len(results) == 0 {
		return 0
	}
	c := results[0].Score*0.8 + float64(len(results))/10*0.2
	return round3(clamp01(c))
}

// DistanceConfidence scores distance-ranked results from the best distance.
func DistanceConfidence(results []domain.RetrievalResult) float64 {
	if len(results) == 0 {
		return 0
	}
	return round3(clamp01(1 - results[0].Distance/2))
}

// BuildSources cites the first limit distinct files in rank order.
func BuildSources(results []domain.RetrievalResult, limit int) []domain.Source {
	sources := make([]domain.Source, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, r := range results {
		if len(sources) == limit {
			break
		}
		if _, ok := seen[r.Filename]; ok {
			continue
		}
		seen[r.Filename] = struct{}{}
		sources = append(sources, domain.Source{Filename: r.Filename, Score: round3(r.Score)})
	}
	return sources
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
