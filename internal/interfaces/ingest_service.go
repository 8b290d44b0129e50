package interfaces

import (
	"context"
	"io"

	"github.com/ternarybob/suadeo/internal/models"
)

// IngestStats reports the outcome of an ingestion run.
type IngestStats struct {
	ReviewsLoaded  int    `json:"reviews_loaded"`
	ReviewsSkipped int    `json:"reviews_skipped"` // load_existing: already embedded
	Embedded       int    `json:"embedded"`
	Indexed        int    `json:"indexed"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

// IngestService turns a raw review data set into an embedded, searchable
// corpus.
type IngestService interface {
	// Load parses raw CSV rows into reviews, preserving input order.
	// Any malformed row fails the whole batch with
	// *models.MalformedRecordError.
	Load(r io.Reader) ([]*models.Review, error)

	// Run ingests the file at path. With loadExisting, vectors persisted
	// from a previous run are reused and only unembedded reviews are
	// sent to the embedder; otherwise the corpus is rebuilt from the file.
	Run(ctx context.Context, path string, loadExisting bool) (*IngestStats, error)

	// Hydrate loads persisted embedded reviews into the vector index
	// without touching the embedder. Used at startup for volatile
	// backends.
	Hydrate(ctx context.Context) (int, error)
}
