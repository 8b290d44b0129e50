package interfaces

import (
	"context"

	"github.com/ternarybob/suadeo/internal/models"
)

// GenerateOptions carries the per-call generation knobs. A nil options
// value means "use the provider's configured defaults".
type GenerateOptions struct {
	// MaxTokens caps the length of the completion. Zero means the
	// provider default from configuration.
	MaxTokens int

	// Temperature controls sampling randomness. Nil means the provider
	// default; zero is a valid explicit value.
	Temperature *float32
}

// LLMService defines the interface for hosted language model operations:
// embedding generation and chat completions. Implementations wrap one
// cloud provider (Claude via the Anthropic API, Gemini via the Google
// GenAI API).
type LLMService interface {
	// Embed generates an embedding vector for the given text. The vector
	// dimensionality is fixed per service instance and must match the
	// index the vectors are stored in.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - text: Input text to generate an embedding for
	//
	// Returns:
	//   - []float32: embedding vector of EmbeddingDimension() length
	//   - error: error if embedding generation fails or the provider
	//     does not support embeddings
	Embed(ctx context.Context, text string) ([]float32, error)

	// Generate produces a completion for the conversation. The messages
	// slice carries the full prompt in chronological order: system
	// instructions, prior turns, then the current user message.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - messages: full prompt in chronological order
	//   - opts: per-call overrides, nil for configured defaults
	//
	// Returns:
	//   - string: generated assistant response text
	//   - error: error if the completion fails
	Generate(ctx context.Context, messages []models.Message, opts *GenerateOptions) (string, error)

	// EmbeddingDimension returns the dimensionality of vectors produced
	// by Embed, or 0 when the provider does not embed.
	EmbeddingDimension() int

	// EmbeddingModel returns the embedding model identifier, or "" when
	// the provider does not embed.
	EmbeddingModel() string

	// Provider returns the provider name ("gemini" or "claude").
	Provider() string

	// HealthCheck verifies the provider is reachable and authenticated.
	HealthCheck(ctx context.Context) error

	// Close releases provider resources.
	Close() error
}
