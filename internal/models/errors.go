package models

import (
	"errors"
	"fmt"
)

// Storage sentinels.
var (
	ErrThreadNotFound = errors.New("conversation thread not found")
	ErrReviewNotFound = errors.New("review not found")
)

// MalformedRecordError reports a bad row in an ingestion input. One
// malformed row fails the whole batch; nothing is partially ingested.
type MalformedRecordError struct {
	Line   int    // 1-based line number in the source file (0 when unknown)
	Field  string // offending column, when identifiable
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed record at line %d: field %q %s", e.Line, e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed record at line %d: %s", e.Line, e.Reason)
}

// RetrievalUnavailableError means the vector index or the query embedder
// could not serve a search. Recoverable: callers degrade to contextless
// generation instead of failing the turn.
type RetrievalUnavailableError struct {
	Err error
}

func (e *RetrievalUnavailableError) Error() string {
	return fmt.Sprintf("retrieval unavailable: %v", e.Err)
}

func (e *RetrievalUnavailableError) Unwrap() error { return e.Err }

// GenerationUnavailableError means the LLM could not produce a completion.
// Recoverable: the orchestrator substitutes a fixed fallback response.
type GenerationUnavailableError struct {
	Provider string
	Err      error
}

func (e *GenerationUnavailableError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("generation unavailable (%s): %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("generation unavailable: %v", e.Err)
}

func (e *GenerationUnavailableError) Unwrap() error { return e.Err }

// InvalidThreadStateError rejects a mutation that would corrupt a thread,
// e.g. appending a message with an unknown role. Raised before any state
// change.
type InvalidThreadStateError struct {
	ThreadID string
	Reason   string
}

func (e *InvalidThreadStateError) Error() string {
	return fmt.Sprintf("invalid state for thread %q: %s", e.ThreadID, e.Reason)
}
