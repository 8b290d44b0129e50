package conversations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
)

// Store implements ConversationStore over Badger-backed thread records.
// Every read-modify-write holds that thread's mutex, so two turns on the
// same thread serialize while distinct threads proceed in parallel.
type Store struct {
	threads   interfaces.ThreadStorage
	generator interfaces.LLMService
	config    *common.ConversationConfig
	logger    arbor.ILogger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewStore creates a conversation store. The generator condenses old
// messages into rolling summaries.
func NewStore(threads interfaces.ThreadStorage, generator interfaces.LLMService, config *common.ConversationConfig, logger arbor.ILogger) *Store {
	return &Store{
		threads:   threads,
		generator: generator,
		config:    config,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex that serializes access to one thread.
// Entries live for the process lifetime; eviction keeps the set small.
func (s *Store) lockFor(threadID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	lock, exists := s.locks[threadID]
	if !exists {
		lock = &sync.Mutex{}
		s.locks[threadID] = lock
	}
	return lock
}

// Append adds a message to the thread, creating the thread on first
// use. An unrecognized role is rejected before any state changes.
func (s *Store) Append(ctx context.Context, threadID string, msg models.Message) error {
	if threadID == "" {
		return fmt.Errorf("thread id cannot be empty")
	}
	if !models.ValidRole(msg.Role) {
		return &models.InvalidThreadStateError{
			ThreadID: threadID,
			Reason:   fmt.Sprintf("unknown message role %q", msg.Role),
		}
	}

	lock := s.lockFor(threadID)
	lock.Lock()
	defer lock.Unlock()

	thread, err := s.loadOrCreate(ctx, threadID)
	if err != nil {
		return err
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	now := time.Now().UTC()
	thread.Messages = append(thread.Messages, msg)
	thread.UpdatedAt = now
	thread.LastActiveAt = now

	if err := s.threads.SaveThread(ctx, thread); err != nil {
		return fmt.Errorf("failed to save thread %s: %w", threadID, err)
	}

	return nil
}

// GetContext returns the prompt view of the thread: the summary as a
// synthetic leading system message (when present) followed by the
// verbatim tail.
func (s *Store) GetContext(ctx context.Context, threadID string) ([]models.Message, error) {
	lock := s.lockFor(threadID)
	lock.Lock()
	defer lock.Unlock()

	thread, err := s.threads.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	return thread.ContextWindow(), nil
}

// MaybeSummarize compacts the thread when enough messages accumulated
// since the last summarization. A generator failure changes nothing;
// the pending count keeps growing so the next call retries.
func (s *Store) MaybeSummarize(ctx context.Context, threadID string) (bool, error) {
	lock := s.lockFor(threadID)
	lock.Lock()
	defer lock.Unlock()

	thread, err := s.threads.GetThread(ctx, threadID)
	if err != nil {
		return false, err
	}

	if thread.PendingMessages() < s.config.SummarizeAfter {
		return false, nil
	}

	// Condense everything older than the retained tail
	boundary := len(thread.Messages) - s.config.RetainTail
	if boundary <= thread.SummarizedThrough {
		return false, nil
	}
	toCondense := thread.Messages[thread.SummarizedThrough:boundary]

	summary, err := s.summarize(ctx, thread.Summary, toCondense)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("thread_id", threadID).
			Int("pending", thread.PendingMessages()).
			Msg("Summarization failed, keeping full history until next trigger")
		return false, err
	}

	thread.Summary = summary
	thread.SummarizedThrough = boundary
	thread.UpdatedAt = time.Now().UTC()

	if err := s.threads.SaveThread(ctx, thread); err != nil {
		return false, fmt.Errorf("failed to save summarized thread %s: %w", threadID, err)
	}

	s.logger.Info().
		Str("thread_id", threadID).
		Int("condensed", len(toCondense)).
		Int("summarized_through", boundary).
		Int("summary_length", len(summary)).
		Msg("Thread summarized")

	return true, nil
}

// Thread returns the full thread record
func (s *Store) Thread(ctx context.Context, threadID string) (*models.ConversationThread, error) {
	lock := s.lockFor(threadID)
	lock.Lock()
	defer lock.Unlock()

	return s.threads.GetThread(ctx, threadID)
}

// Threads lists all live threads, most recently active first
func (s *Store) Threads(ctx context.Context) ([]models.ThreadInfo, error) {
	threads, err := s.threads.ListThreads(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]models.ThreadInfo, 0, len(threads))
	for _, thread := range threads {
		infos = append(infos, thread.Info())
	}
	return infos, nil
}

// Delete removes a thread and its history
func (s *Store) Delete(ctx context.Context, threadID string) error {
	lock := s.lockFor(threadID)
	lock.Lock()
	defer lock.Unlock()

	return s.threads.DeleteThread(ctx, threadID)
}

// EvictIdle deletes threads whose last activity is older than the
// cutoff, returning how many were removed.
func (s *Store) EvictIdle(ctx context.Context, idleFor time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-idleFor)

	idle, err := s.threads.ListIdleThreads(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list idle threads: %w", err)
	}

	evicted := 0
	for _, thread := range idle {
		lock := s.lockFor(thread.ThreadID)
		lock.Lock()
		err := s.threads.DeleteThread(ctx, thread.ThreadID)
		lock.Unlock()

		if err != nil {
			if errors.Is(err, models.ErrThreadNotFound) {
				continue
			}
			return evicted, fmt.Errorf("failed to evict thread %s: %w", thread.ThreadID, err)
		}
		evicted++
	}

	if evicted > 0 {
		s.logger.Info().
			Int("evicted", evicted).
			Dur("idle_for", idleFor).
			Msg("Evicted idle threads")
	}

	return evicted, nil
}

// Count returns the number of live threads
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.threads.CountThreads(ctx)
}

// loadOrCreate fetches the thread or starts an empty one. Caller holds
// the thread lock.
func (s *Store) loadOrCreate(ctx context.Context, threadID string) (*models.ConversationThread, error) {
	thread, err := s.threads.GetThread(ctx, threadID)
	if err == nil {
		return thread, nil
	}
	if errors.Is(err, models.ErrThreadNotFound) {
		return models.NewConversationThread(threadID), nil
	}
	return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
}
