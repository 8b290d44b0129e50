package interfaces

import (
	"context"

	"github.com/ternarybob/suadeo/internal/models"
)

// EmbeddingService generates vector embeddings
type EmbeddingService interface {
	// Generate embedding for raw text
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// Generate and set the embedding on a review
	EmbedReview(ctx context.Context, review *models.Review) error

	// Generate and set embeddings for multiple reviews
	EmbedReviews(ctx context.Context, reviews []*models.Review) error

	// Generate query embedding (may have different prompt than review embedding)
	GenerateQueryEmbedding(ctx context.Context, query string) ([]float32, error)

	// Get model information
	ModelName() string
	Dimension() int

	// Check if service is available
	IsAvailable(ctx context.Context) bool
}
