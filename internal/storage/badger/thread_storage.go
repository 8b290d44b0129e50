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

// ThreadStorage implements the ThreadStorage interface for Badger
type ThreadStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewThreadStorage creates a new ThreadStorage instance
func NewThreadStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ThreadStorage {
	return &ThreadStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ThreadStorage) GetThread(ctx context.Context, threadID string) (*models.ConversationThread, error) {
	var thread models.ConversationThread
	if err := s.db.Store().Get(threadID, &thread); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", models.ErrThreadNotFound, threadID)
		}
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return &thread, nil
}

func (s *ThreadStorage) SaveThread(ctx context.Context, thread *models.ConversationThread) error {
	if thread.ThreadID == "" {
		return fmt.Errorf("thread ID is required")
	}

	now := time.Now().UTC()
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = now
	}
	thread.UpdatedAt = now

	if err := s.db.Store().Upsert(thread.ThreadID, thread); err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}
	return nil
}

func (s *ThreadStorage) DeleteThread(ctx context.Context, threadID string) error {
	if err := s.db.Store().Delete(threadID, &models.ConversationThread{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("%w: %s", models.ErrThreadNotFound, threadID)
		}
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

func (s *ThreadStorage) ListThreads(ctx context.Context) ([]*models.ConversationThread, error) {
	var threads []models.ConversationThread
	query := badgerhold.Where("ThreadID").Ne("").SortBy("LastActiveAt").Reverse()
	if err := s.db.Store().Find(&threads, query); err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	result := make([]*models.ConversationThread, len(threads))
	for i := range threads {
		result[i] = &threads[i]
	}
	return result, nil
}

// ListIdleThreads returns threads whose last activity predates the cutoff.
// Used by the eviction sweep.
func (s *ThreadStorage) ListIdleThreads(ctx context.Context, lastActiveBefore time.Time) ([]*models.ConversationThread, error) {
	var threads []models.ConversationThread
	query := badgerhold.Where("LastActiveAt").Lt(lastActiveBefore)
	if err := s.db.Store().Find(&threads, query); err != nil {
		return nil, fmt.Errorf("failed to list idle threads: %w", err)
	}

	result := make([]*models.ConversationThread, len(threads))
	for i := range threads {
		result[i] = &threads[i]
	}
	return result, nil
}

func (s *ThreadStorage) CountThreads(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.ConversationThread{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count threads: %w", err)
	}
	return int(count), nil
}
