package port

import "context"

// Generator produces free text from a prompt using a language model.
type Generator interface {
	// Generate returns at most maxTokens tokens of completion for prompt.
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
