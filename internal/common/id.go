package common

import (
	"github.com/google/uuid"
)

// ReviewIDFromContent derives a stable review ID from the review content.
// Re-ingesting the same row yields the same ID, which keeps ingestion
// idempotent and lets load-existing runs match persisted vectors.
func ReviewIDFromContent(productTitle, reviewText string) string {
	return "rev_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(productTitle+"\x1f"+reviewText)).String()
}

// NewThreadID generates a unique conversation thread ID with the "thr_" prefix
// Format: thr_<uuid>
func NewThreadID() string {
	return "thr_" + uuid.New().String()
}
