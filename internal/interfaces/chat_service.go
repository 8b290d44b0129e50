package interfaces

import (
	"context"

	"github.com/ternarybob/suadeo/internal/models"
)

// ChatRequest represents one conversational turn
type ChatRequest struct {
	// Thread the turn belongs to; threads are created lazily
	ThreadID string `json:"thread_id"`

	// User's message
	Message string `json:"message"`

	// Override the configured top-k for this turn (optional)
	TopK int `json:"top_k,omitempty"`
}

// ChatResponse represents the outcome of a turn
type ChatResponse struct {
	ThreadID string `json:"thread_id"`

	// Generated response (or the fixed fallback text)
	Message string `json:"message"`

	// Reviews the response was grounded in
	Passages []models.RetrievedPassage `json:"passages,omitempty"`

	// True when retrieval was unavailable and generation ran without context
	Degraded bool `json:"degraded,omitempty"`

	// True when generation failed and Message carries the fallback text
	Fallback bool `json:"fallback,omitempty"`

	// Provider that produced the response
	Provider string `json:"provider"`
}

// ChatService runs the retrieve-generate-remember loop. HandleTurn is
// the sole conversational entry point for every front end (HTTP,
// WebSocket, MCP, CLI).
type ChatService interface {
	// HandleTurn processes one user turn on a thread. It always returns
	// a response with non-empty text; collaborator outages degrade the
	// turn instead of failing it.
	HandleTurn(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck verifies the generator is operational.
	HealthCheck(ctx context.Context) error
}
