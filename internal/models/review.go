package models

import (
	"strings"
	"time"
)

// Review represents one normalized customer review, the unit of retrieval.
// Reviews are immutable after ingestion; a re-ingest rebuilds the corpus.
type Review struct {
	// Identity
	ID string `json:"id"` // rev_{uuid}

	// Content
	ProductTitle string `json:"product_title"`
	ReviewText   string `json:"review_text"`

	// Source row fields beyond the required columns (rating, reviewer, ...)
	Metadata map[string]string `json:"metadata,omitempty"`

	// Embedding produced at ingestion time. Persisted so the index can be
	// rebuilt without re-embedding (load_existing path).
	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty" badgerhold:"index"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PassageText returns the text that is embedded and shown to the generator:
// product title and review body as a single unit.
func (r *Review) PassageText() string {
	title := strings.TrimSpace(r.ProductTitle)
	body := strings.TrimSpace(r.ReviewText)
	if title == "" {
		return body
	}
	return title + "\n" + body
}

// HasEmbedding reports whether a usable vector is stored on the review.
func (r *Review) HasEmbedding() bool {
	return len(r.Embedding) > 0 && r.EmbeddingModel != ""
}

// RetrievedPassage pairs a review with its relevance score for one query.
// Ephemeral: produced per search, never persisted.
type RetrievedPassage struct {
	Review *Review `json:"review"`
	Score  float32 `json:"score"`
}

// ReviewStats summarizes the ingested corpus for the status API.
type ReviewStats struct {
	TotalReviews   int       `json:"total_reviews"`
	EmbeddedCount  int       `json:"embedded_count"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	LastIngestedAt time.Time `json:"last_ingested_at,omitempty"`
}
