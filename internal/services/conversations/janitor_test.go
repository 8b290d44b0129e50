package conversations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/models"
)

func TestJanitorDisabledWhenTTLZero(t *testing.T) {
	store, _ := newTestStore(t, &mockGenerator{})
	config := &common.ConversationConfig{IdleTTLMinutes: 0}

	janitor := NewJanitor(store, config, arbor.NewLogger())
	if err := janitor.Start(); err != nil {
		t.Fatalf("Expected disabled janitor to start cleanly: %v", err)
	}
	if janitor.running {
		t.Error("Expected janitor to stay stopped with eviction disabled")
	}
	janitor.Stop()
}

func TestJanitorStartStop(t *testing.T) {
	store, _ := newTestStore(t, &mockGenerator{})
	config := &common.ConversationConfig{
		IdleTTLMinutes:   60,
		EvictionSchedule: "*/30 * * * *",
	}

	janitor := NewJanitor(store, config, arbor.NewLogger())
	if err := janitor.Start(); err != nil {
		t.Fatalf("Failed to start janitor: %v", err)
	}
	if !janitor.running {
		t.Error("Expected janitor to be running")
	}
	if err := janitor.Start(); err == nil {
		t.Error("Expected error starting an already-running janitor")
	}

	janitor.Stop()
	if janitor.running {
		t.Error("Expected janitor to be stopped")
	}
}

func TestJanitorRejectsBadSchedule(t *testing.T) {
	store, _ := newTestStore(t, &mockGenerator{})
	config := &common.ConversationConfig{
		IdleTTLMinutes:   60,
		EvictionSchedule: "not a schedule",
	}

	janitor := NewJanitor(store, config, arbor.NewLogger())
	if err := janitor.Start(); err == nil {
		t.Error("Expected error for invalid cron schedule")
	}
}

func TestJanitorSweepEvictsIdleThreads(t *testing.T) {
	store, threads := newTestStore(t, &mockGenerator{})
	ctx := context.Background()

	appendTurns(t, store, "thr_idle", 1)

	idle, err := threads.GetThread(ctx, "thr_idle")
	if err != nil {
		t.Fatalf("Failed to load thread: %v", err)
	}
	idle.LastActiveAt = time.Now().UTC().Add(-2 * time.Hour)
	if err := threads.SaveThread(ctx, idle); err != nil {
		t.Fatalf("Failed to backdate thread: %v", err)
	}

	config := &common.ConversationConfig{IdleTTLMinutes: 60}
	janitor := NewJanitor(store, config, arbor.NewLogger())
	janitor.sweep()

	if _, err := store.Thread(ctx, "thr_idle"); !errors.Is(err, models.ErrThreadNotFound) {
		t.Errorf("Expected idle thread evicted by sweep, got %v", err)
	}
}
