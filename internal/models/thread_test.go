package models

import (
	"fmt"
	"testing"
)

func TestValidRole(t *testing.T) {
	tests := []struct {
		role  string
		valid bool
	}{
		{RoleUser, true},
		{RoleAssistant, true},
		{RoleSystem, true},
		{"", false},
		{"operator", false},
		{"User", false},
	}

	for _, tt := range tests {
		if got := ValidRole(tt.role); got != tt.valid {
			t.Errorf("ValidRole(%q) = %v, want %v", tt.role, got, tt.valid)
		}
	}
}

func TestContextWindowWithoutSummary(t *testing.T) {
	thread := NewConversationThread("t1")
	for i := 0; i < 3; i++ {
		thread.Messages = append(thread.Messages, NewMessage(RoleUser, fmt.Sprintf("msg %d", i+1)))
	}

	window := thread.ContextWindow()
	if len(window) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(window))
	}
	for i, msg := range window {
		want := fmt.Sprintf("msg %d", i+1)
		if msg.Content != want {
			t.Errorf("window[%d].Content = %q, want %q", i, msg.Content, want)
		}
	}
}

func TestContextWindowWithSummary(t *testing.T) {
	thread := NewConversationThread("t2")
	for i := 0; i < 10; i++ {
		thread.Messages = append(thread.Messages, NewMessage(RoleUser, fmt.Sprintf("msg %d", i+1)))
	}
	thread.Summary = "the user asked about gadgets"
	thread.SummarizedThrough = 6

	window := thread.ContextWindow()
	if len(window) != 5 {
		t.Fatalf("expected summary + 4 tail messages, got %d", len(window))
	}
	if window[0].Role != RoleSystem {
		t.Errorf("leading message role = %q, want %q", window[0].Role, RoleSystem)
	}
	if window[1].Content != "msg 7" || window[4].Content != "msg 10" {
		t.Errorf("tail window wrong: first %q last %q", window[1].Content, window[4].Content)
	}
}

func TestContextWindowCopiesTail(t *testing.T) {
	thread := NewConversationThread("t3")
	thread.Messages = append(thread.Messages, NewMessage(RoleUser, "original"))

	window := thread.ContextWindow()
	window[0].Content = "mutated"

	if thread.Messages[0].Content != "original" {
		t.Error("ContextWindow must not share backing storage with the thread")
	}
}

func TestPendingMessages(t *testing.T) {
	thread := NewConversationThread("t4")
	for i := 0; i < 12; i++ {
		thread.Messages = append(thread.Messages, NewMessage(RoleUser, "m"))
	}
	thread.SummarizedThrough = 6

	if got := thread.PendingMessages(); got != 6 {
		t.Errorf("PendingMessages() = %d, want 6", got)
	}
}
