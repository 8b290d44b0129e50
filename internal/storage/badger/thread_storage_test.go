package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/models"
)

func TestThreadStorageSaveAndGet(t *testing.T) {
	db := newTestDB(t)
	storage := NewThreadStorage(db, arbor.NewLogger())
	ctx := context.Background()

	thread := models.NewConversationThread("thr_1")
	thread.Messages = append(thread.Messages,
		models.NewMessage(models.RoleUser, "Looking for running shoes"),
		models.NewMessage(models.RoleAssistant, "The Trail Runner gets strong reviews."),
	)
	thread.Summary = "User wants running shoes."
	thread.SummarizedThrough = 0

	if err := storage.SaveThread(ctx, thread); err != nil {
		t.Fatalf("Failed to save thread: %v", err)
	}

	got, err := storage.GetThread(ctx, "thr_1")
	if err != nil {
		t.Fatalf("Failed to get thread: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != models.RoleUser {
		t.Errorf("Expected first message role user, got %s", got.Messages[0].Role)
	}
	if got.Summary != "User wants running shoes." {
		t.Errorf("Expected summary to round-trip, got %q", got.Summary)
	}
}

func TestThreadStorageGetMissing(t *testing.T) {
	db := newTestDB(t)
	storage := NewThreadStorage(db, arbor.NewLogger())

	_, err := storage.GetThread(context.Background(), "thr_missing")
	if !errors.Is(err, models.ErrThreadNotFound) {
		t.Errorf("Expected ErrThreadNotFound, got %v", err)
	}
}

func TestThreadStorageDelete(t *testing.T) {
	db := newTestDB(t)
	storage := NewThreadStorage(db, arbor.NewLogger())
	ctx := context.Background()

	if err := storage.SaveThread(ctx, models.NewConversationThread("thr_1")); err != nil {
		t.Fatalf("Failed to save thread: %v", err)
	}

	if err := storage.DeleteThread(ctx, "thr_1"); err != nil {
		t.Fatalf("Failed to delete thread: %v", err)
	}

	if err := storage.DeleteThread(ctx, "thr_1"); !errors.Is(err, models.ErrThreadNotFound) {
		t.Errorf("Expected ErrThreadNotFound deleting twice, got %v", err)
	}
}

func TestThreadStorageListIdleThreads(t *testing.T) {
	db := newTestDB(t)
	storage := NewThreadStorage(db, arbor.NewLogger())
	ctx := context.Background()

	stale := models.NewConversationThread("thr_stale")
	stale.LastActiveAt = time.Now().UTC().Add(-48 * time.Hour)
	if err := storage.SaveThread(ctx, stale); err != nil {
		t.Fatalf("Failed to save stale thread: %v", err)
	}

	fresh := models.NewConversationThread("thr_fresh")
	if err := storage.SaveThread(ctx, fresh); err != nil {
		t.Fatalf("Failed to save fresh thread: %v", err)
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	idle, err := storage.ListIdleThreads(ctx, cutoff)
	if err != nil {
		t.Fatalf("Failed to list idle threads: %v", err)
	}
	if len(idle) != 1 {
		t.Fatalf("Expected 1 idle thread, got %d", len(idle))
	}
	if idle[0].ThreadID != "thr_stale" {
		t.Errorf("Expected stale thread to be listed, got %s", idle[0].ThreadID)
	}
}

func TestThreadStorageListAndCount(t *testing.T) {
	db := newTestDB(t)
	storage := NewThreadStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for _, id := range []string{"thr_1", "thr_2", "thr_3"} {
		if err := storage.SaveThread(ctx, models.NewConversationThread(id)); err != nil {
			t.Fatalf("Failed to save thread: %v", err)
		}
	}

	threads, err := storage.ListThreads(ctx)
	if err != nil {
		t.Fatalf("Failed to list threads: %v", err)
	}
	if len(threads) != 3 {
		t.Errorf("Expected 3 threads, got %d", len(threads))
	}

	count, err := storage.CountThreads(ctx)
	if err != nil {
		t.Fatalf("Failed to count threads: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 threads counted, got %d", count)
	}
}
