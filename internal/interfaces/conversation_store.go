package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/suadeo/internal/models"
)

// ConversationStore owns all per-thread conversation state. Threads are
// keyed by a caller-supplied thread id and created lazily on first
// append; no other component holds thread state across calls.
//
// Implementations must serialize mutations per thread id while letting
// distinct threads proceed in parallel.
type ConversationStore interface {
	// Append adds a message to the thread, creating the thread when
	// absent. An unrecognized role fails with
	// *models.InvalidThreadStateError before any state changes.
	Append(ctx context.Context, threadID string, msg models.Message) error

	// GetContext returns the prompt view of the thread: the summary as a
	// synthetic leading system message (when present) followed by the
	// messages accumulated since the last summarization, chronological.
	GetContext(ctx context.Context, threadID string) ([]models.Message, error)

	// MaybeSummarize compacts the thread when enough messages have
	// accumulated since the last summarization. Returns whether a
	// compaction ran. A failed generator call leaves the thread
	// untouched; the next trigger retries.
	MaybeSummarize(ctx context.Context, threadID string) (bool, error)

	// Thread returns the full thread record, models.ErrThreadNotFound
	// when absent.
	Thread(ctx context.Context, threadID string) (*models.ConversationThread, error)

	// Threads lists all live threads, most recently active first.
	Threads(ctx context.Context) ([]models.ThreadInfo, error)

	// Delete removes a thread and its history.
	Delete(ctx context.Context, threadID string) error

	// EvictIdle deletes threads whose last activity is older than the
	// cutoff, returning how many were removed.
	EvictIdle(ctx context.Context, idleFor time.Duration) (int, error)

	// Count returns the number of live threads.
	Count(ctx context.Context) (int, error)
}
