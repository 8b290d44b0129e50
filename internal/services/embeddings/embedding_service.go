package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
)

// Service implements EmbeddingService on top of the embedding-capable
// LLM provider (always Gemini, see the llm factory).
type Service struct {
	llmService interfaces.LLMService
	logger     arbor.ILogger
}

// NewService creates a new embedding service
func NewService(llmService interfaces.LLMService, logger arbor.ILogger) interfaces.EmbeddingService {
	return &Service{
		llmService: llmService,
		logger:     logger,
	}
}

// GenerateEmbedding creates a vector embedding for text
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	start := time.Now()
	embedding, err := s.llmService.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if len(embedding) == 0 {
		return nil, fmt.Errorf("LLM service returned empty embedding")
	}

	s.logger.Debug().
		Int("embedding_dim", len(embedding)).
		Dur("duration", time.Since(start)).
		Msg("Generated embedding")

	return embedding, nil
}

// EmbedReview generates and sets the embedding for a review. The vector
// covers the product title and review body as one passage.
func (s *Service) EmbedReview(ctx context.Context, review *models.Review) error {
	text := review.PassageText()
	if text == "" {
		return fmt.Errorf("review %s has no text to embed", review.ID)
	}

	embedding, err := s.GenerateEmbedding(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed review %s: %w", review.ID, err)
	}

	review.Embedding = embedding
	review.EmbeddingModel = s.llmService.EmbeddingModel()

	s.logger.Debug().
		Str("review_id", review.ID).
		Int("embedding_dim", len(embedding)).
		Int("text_length", len(text)).
		Msg("Embedded review")

	return nil
}

// EmbedReviews generates embeddings for multiple reviews. Stops at the
// first failure so a broken provider doesn't burn quota on the rest.
func (s *Service) EmbedReviews(ctx context.Context, reviews []*models.Review) error {
	for i, review := range reviews {
		if err := s.EmbedReview(ctx, review); err != nil {
			s.logger.Error().
				Err(err).
				Str("review_id", review.ID).
				Int("index", i).
				Msg("Failed to embed review")
			return err
		}
	}

	return nil
}

// GenerateQueryEmbedding generates an embedding for a search query.
// Queries embed with the same model and dimensionality as passages so
// the similarity space lines up.
func (s *Service) GenerateQueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	return s.GenerateEmbedding(ctx, query)
}

// ModelName returns the embedding model identifier
func (s *Service) ModelName() string {
	return s.llmService.EmbeddingModel()
}

// Dimension returns the embedding dimension
func (s *Service) Dimension() int {
	return s.llmService.EmbeddingDimension()
}

// IsAvailable checks if the embedding provider is reachable
func (s *Service) IsAvailable(ctx context.Context) bool {
	if s.llmService == nil {
		return false
	}

	if err := s.llmService.HealthCheck(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("Embedding provider not available")
		return false
	}

	return true
}
