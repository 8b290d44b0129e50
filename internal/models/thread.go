package models

import "time"

// ConversationThread holds the full per-thread state: the append-only
// message sequence plus the rolling summary that bounds prompt size.
//
// SummarizedThrough counts the leading messages that have been absorbed
// into Summary; Messages[SummarizedThrough:] is the verbatim window an
// LLM prompt sees after the summary. Before the first successful
// summarization it is zero and the whole history is verbatim.
type ConversationThread struct {
	ThreadID string `json:"thread_id"` // caller-supplied, sole external handle

	Messages          []Message `json:"messages"`
	Summary           string    `json:"summary,omitempty"`
	SummarizedThrough int       `json:"summarized_through"`

	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastActiveAt time.Time `json:"last_active_at" badgerhold:"index"`
}

// NewConversationThread creates an empty thread for the given id.
func NewConversationThread(threadID string) *ConversationThread {
	now := time.Now().UTC()
	return &ConversationThread{
		ThreadID:     threadID,
		Messages:     []Message{},
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}
}

// PendingMessages returns how many messages have accumulated since the
// last summarization point. This is the summarization trigger counter.
func (t *ConversationThread) PendingMessages() int {
	return len(t.Messages) - t.SummarizedThrough
}

// ContextWindow returns the messages a prompt should carry: a synthetic
// leading system message with the summary (when present) followed by
// everything after the summarization point, in chronological order.
func (t *ConversationThread) ContextWindow() []Message {
	tail := t.Messages[t.SummarizedThrough:]
	if t.Summary == "" {
		out := make([]Message, len(tail))
		copy(out, tail)
		return out
	}
	out := make([]Message, 0, len(tail)+1)
	out = append(out, Message{
		Role:      RoleSystem,
		Content:   "Summary of the conversation so far: " + t.Summary,
		Timestamp: t.UpdatedAt,
	})
	return append(out, tail...)
}

// ThreadInfo is the list-view projection of a thread (no message bodies).
type ThreadInfo struct {
	ThreadID     string    `json:"thread_id"`
	MessageCount int       `json:"message_count"`
	HasSummary   bool      `json:"has_summary"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Info projects the thread into its list view.
func (t *ConversationThread) Info() ThreadInfo {
	return ThreadInfo{
		ThreadID:     t.ThreadID,
		MessageCount: len(t.Messages),
		HasSummary:   t.Summary != "",
		CreatedAt:    t.CreatedAt,
		LastActiveAt: t.LastActiveAt,
	}
}
