package interfaces

import (
	"context"

	"github.com/ternarybob/suadeo/internal/models"
)

// VectorIndex stores review embeddings and answers nearest-neighbor
// queries. The dimensionality is fixed at Init and every vector passed
// afterwards must match it.
type VectorIndex interface {
	// Init prepares the backing collection for vectors of the given
	// dimensionality. Idempotent.
	Init(ctx context.Context, dimension int) error

	// Upsert stores the reviews' embeddings keyed by review ID. Every
	// review must carry an embedding of the Init dimensionality.
	Upsert(ctx context.Context, reviews []*models.Review) error

	// Nearest returns up to k passages ordered by descending relevance.
	// Ties preserve insertion order. An empty index yields an empty slice.
	Nearest(ctx context.Context, vector []float32, k int) ([]models.RetrievedPassage, error)

	// Count returns the number of indexed vectors.
	Count(ctx context.Context) (int, error)

	// Reset drops all indexed vectors.
	Reset(ctx context.Context) error

	// Name identifies the backend ("memory", "qdrant", "weaviate").
	Name() string
}
