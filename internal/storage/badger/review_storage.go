package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ReviewStorage implements the ReviewStorage interface for Badger
type ReviewStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewReviewStorage creates a new ReviewStorage instance
func NewReviewStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReviewStorage {
	return &ReviewStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ReviewStorage) SaveReview(ctx context.Context, review *models.Review) error {
	if review.ID == "" {
		return fmt.Errorf("review ID is required")
	}

	now := time.Now()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now
	}
	review.UpdatedAt = now

	if err := s.db.Store().Upsert(review.ID, review); err != nil {
		return fmt.Errorf("failed to save review: %w", err)
	}
	return nil
}

func (s *ReviewStorage) SaveReviews(ctx context.Context, reviews []*models.Review) error {
	// BadgerHold doesn't expose bulk upsert through its encoding layer,
	// so persist one at a time.
	for _, review := range reviews {
		if err := s.SaveReview(ctx, review); err != nil {
			return err
		}
	}
	return nil
}

func (s *ReviewStorage) GetReview(ctx context.Context, id string) (*models.Review, error) {
	var review models.Review
	if err := s.db.Store().Get(id, &review); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", models.ErrReviewNotFound, id)
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return &review, nil
}

func (s *ReviewStorage) DeleteReview(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Review{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete review: %w", err)
	}
	return nil
}

func (s *ReviewStorage) ListReviews(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Review, error) {
	query := badgerhold.Where("ID").Ne("") // Select all

	if opts != nil {
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}

	var reviews []models.Review
	if err := s.db.Store().Find(&reviews, query); err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}

	result := make([]*models.Review, len(reviews))
	for i := range reviews {
		result[i] = &reviews[i]
	}
	return result, nil
}

// ListEmbedded returns every review that carries a persisted embedding.
// Used to hydrate the in-memory index on startup without re-embedding.
func (s *ReviewStorage) ListEmbedded(ctx context.Context) ([]*models.Review, error) {
	var reviews []models.Review
	if err := s.db.Store().Find(&reviews, badgerhold.Where("EmbeddingModel").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list embedded reviews: %w", err)
	}

	result := make([]*models.Review, 0, len(reviews))
	for i := range reviews {
		if reviews[i].HasEmbedding() {
			result = append(result, &reviews[i])
		}
	}
	return result, nil
}

func (s *ReviewStorage) CountReviews(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Review{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return int(count), nil
}

func (s *ReviewStorage) CountEmbedded(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Review{}, badgerhold.Where("EmbeddingModel").Ne(""))
	if err != nil {
		return 0, fmt.Errorf("failed to count embedded reviews: %w", err)
	}
	return int(count), nil
}

func (s *ReviewStorage) GetStats(ctx context.Context) (*models.ReviewStats, error) {
	total, err := s.CountReviews(ctx)
	if err != nil {
		return nil, err
	}

	embedded, err := s.CountEmbedded(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.ReviewStats{
		TotalReviews:  total,
		EmbeddedCount: embedded,
	}

	// Most recent write doubles as the last ingestion marker
	var latest []models.Review
	err = s.db.Store().Find(&latest, badgerhold.Where("ID").Ne("").SortBy("UpdatedAt").Reverse().Limit(1))
	if err == nil && len(latest) > 0 {
		stats.LastIngestedAt = latest[0].UpdatedAt
	}

	if embedded > 0 {
		var sample []models.Review
		err = s.db.Store().Find(&sample, badgerhold.Where("EmbeddingModel").Ne("").Limit(1))
		if err == nil && len(sample) > 0 {
			stats.EmbeddingModel = sample[0].EmbeddingModel
		}
	}

	return stats, nil
}

func (s *ReviewStorage) ClearAll(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&models.Review{}, nil); err != nil {
		return fmt.Errorf("failed to clear reviews: %w", err)
	}
	return nil
}
