package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
)

// Services bundles the provider pair the application runs with.
// Generator answers chat and summarization calls. Embedder produces
// vectors for indexing and query embedding. With the gemini provider
// both point at the same service, with claude the embedder is still
// Gemini because the Anthropic API has no embeddings endpoint.
type Services struct {
	Generator interfaces.LLMService
	Embedder  interfaces.LLMService
}

// NewServices creates the LLM provider pair based on configuration.
func NewServices(cfg *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (*Services, error) {
	logger.Info().Str("provider", string(cfg.LLM.DefaultProvider)).Msg("Initializing LLM services")

	switch cfg.LLM.DefaultProvider {
	case common.LLMProviderGemini:
		gemini, err := NewGeminiService(cfg, kvStorage, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini service: %w", err)
		}
		return &Services{Generator: gemini, Embedder: gemini}, nil

	case common.LLMProviderClaude:
		claude, err := NewClaudeService(cfg, kvStorage, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create claude service: %w", err)
		}
		gemini, err := NewGeminiService(cfg, kvStorage, logger)
		if err != nil {
			return nil, fmt.Errorf("claude provider still needs gemini for embeddings: %w", err)
		}
		return &Services{Generator: claude, Embedder: gemini}, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider '%s': must be 'gemini' or 'claude'", cfg.LLM.DefaultProvider)
	}
}

// Close releases both providers. Safe to call when generator and
// embedder are the same instance.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	if s.Generator != nil {
		if err := s.Generator.Close(); err != nil {
			firstErr = err
		}
	}
	if s.Embedder != nil && s.Embedder != s.Generator {
		if err := s.Embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
