// -----------------------------------------------------------------------
// Last Modified: Tuesday, 10th June 2025 3:20:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/suadeo/internal/models"
)

// ReviewStorage - interface for review corpus persistence
type ReviewStorage interface {
	// CRUD operations
	SaveReview(ctx context.Context, review *models.Review) error
	SaveReviews(ctx context.Context, reviews []*models.Review) error
	GetReview(ctx context.Context, id string) (*models.Review, error)
	DeleteReview(ctx context.Context, id string) error

	// List operations
	ListReviews(ctx context.Context, opts *ListOptions) ([]*models.Review, error)
	ListEmbedded(ctx context.Context) ([]*models.Review, error)

	// Stats operations
	CountReviews(ctx context.Context) (int, error)
	CountEmbedded(ctx context.Context) (int, error)
	GetStats(ctx context.Context) (*models.ReviewStats, error)

	// Bulk operations
	ClearAll(ctx context.Context) error
}

// ThreadStorage - interface for conversation thread persistence
type ThreadStorage interface {
	GetThread(ctx context.Context, threadID string) (*models.ConversationThread, error)
	SaveThread(ctx context.Context, thread *models.ConversationThread) error
	DeleteThread(ctx context.Context, threadID string) error
	ListThreads(ctx context.Context) ([]*models.ConversationThread, error)
	ListIdleThreads(ctx context.Context, lastActiveBefore time.Time) ([]*models.ConversationThread, error)
	CountThreads(ctx context.Context) (int, error)
}

// ListOptions for listing reviews
type ListOptions struct {
	Limit  int
	Offset int
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	ReviewStorage() ReviewStorage
	ThreadStorage() ThreadStorage
	KVStorage() KeyValueStorage
	LoadEnvFile(ctx context.Context, filePath string) error
	LoadVariablesFile(ctx context.Context, filePath string) error
	Close() error
}
