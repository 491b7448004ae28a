package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"policyrag/internal/adapter/analyzer"
	"policyrag/internal/domain"
	"policyrag/internal/logging"
	"policyrag/internal/port"
)

//go:embed templates/answer_prompt.txt
var answerPromptText string

var answerPrompt = template.Must(template.New("answer").Parse(answerPromptText))

const (
	// templateSentences is how many matching sentences the extractive
	// answer keeps.
	templateSentences = 2
	// templatePreview is how much of the top chunk is quoted when no
	// sentence matches the question.
	templatePreview = 200
)

// SynthesizerOptions configures answer synthesis.
type SynthesizerOptions struct {
	ContextBudget int
	MaxTokens     int
	Timeout       time.Duration
	Logger        *zap.Logger
}

// Synthesizer turns retrieved chunks into an answer, with a language model
// when one is configured and with an extractive template otherwise.
type Synthesizer struct {
	generator port.Generator
	opts      SynthesizerOptions
	logger    *zap.Logger
}

// NewSynthesizer creates a synthesizer. A nil generator means every answer
// is extractive.
func NewSynthesizer(generator port.Generator, opts SynthesizerOptions) *Synthesizer {
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 1500
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 300
	}
	return &Synthesizer{
		generator: generator,
		opts:      opts,
		logger:    logging.OrNop(opts.Logger),
	}
}

// Synthesize answers query from results, which must be non-empty. The
// second return value reports whether the model produced the answer.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, results []domain.RetrievalResult) (string, bool) {
	if s.generator != nil {
		answer, err := s.generate(ctx, query, results)
		if err == nil {
			return answer, true
		}
		s.logger.Warn("generation failed, using extractive answer", zap.Error(err))
	}
	return TemplateAnswer(query, results[0]), false
}

func (s *Synthesizer) generate(ctx context.Context, query string, results []domain.RetrievalResult) (string, error) {
	prompt, err := BuildPrompt(PrepareContext(results, s.opts.ContextBudget), query)
	if err != nil {
		return "", err
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	answer, err := s.generator.Generate(ctx, prompt, s.opts.MaxTokens)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("model %s returned an empty answer", s.generator.ModelName())
	}
	return answer, nil
}

// PrepareContext joins chunk contents with blank lines, best first, until
// budget characters are used. The chunk that would overflow the budget is
// cut to fit and marked with an ellipsis, and nothing follows it.
func PrepareContext(results []domain.RetrievalResult, budget int) string {
	parts := make([]string, 0, len(results))
	used := 0
	for _, r := range results {
		content := []rune(r.Content)
		if used+len(content) > budget {
			parts = append(parts, string(content[:budget-used])+"...")
			break
		}
		parts = append(parts, r.Content)
		used += len(content)
	}
	return strings.Join(parts, "\n\n")
}

// BuildPrompt renders the generation prompt.
func BuildPrompt(contextText, question string) (string, error) {
	var buf bytes.Buffer
	err := answerPrompt.Execute(&buf, struct {
		Context  string
		Question string
	}{contextText, question})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// TemplateAnswer builds an extractive answer from the top result: the first
// sentences sharing a word with the query, or a preview of the chunk.
func TemplateAnswer(query string, top domain.RetrievalResult) string {
	queryWords := analyzer.WordSet(query)

	var relevant []string
	for _, sentence := range strings.Split(top.Content, ".") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if analyzer.Intersects(queryWords, analyzer.WordSet(sentence)) {
			relevant = append(relevant, sentence)
			if len(relevant) == templateSentences {
				break
			}
		}
	}

	if len(relevant) > 0 {
		return strings.Join(relevant, ". ") +
			fmt.Sprintf(". For more detailed information, please refer to the %s or contact HR.", top.Filename)
	}

	preview := []rune(top.Content)
	if len(preview) > templatePreview {
		preview = preview[:templatePreview]
	}
	return fmt.Sprintf("Based on our policy documents, here's what I found: %s... For complete details, please refer to the %s or contact HR.",
		string(preview), top.Filename)
}
