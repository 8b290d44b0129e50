package interfaces

import (
	"context"

	"github.com/ternarybob/suadeo/internal/models"
)

// Retriever answers "which reviews are most relevant to this query".
//
// Search embeds the query and asks the vector index for the k nearest
// passages, ordered by descending score with ties in insertion order.
// Zero passages clearing the configured minimum score is a valid,
// non-error outcome (empty slice, nil error). When the embedder or the
// index cannot serve the query at all, Search fails with
// *models.RetrievalUnavailableError so callers can degrade instead of
// aborting the turn.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error)

	// TopK returns the configured default k.
	TopK() int

	// HealthCheck verifies the index can be reached.
	HealthCheck(ctx context.Context) error
}
