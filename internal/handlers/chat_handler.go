package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
)

// ChatHandler handles chat-related HTTP requests
type ChatHandler struct {
	chatService interfaces.ChatService
	logger      arbor.ILogger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService interfaces.ChatService, logger arbor.ILogger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// ChatHandler handles POST /api/chat requests
func (h *ChatHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req interfaces.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if h.logger != nil {
			h.logger.Error().Err(err).Msg("Failed to decode chat request")
		}
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		WriteError(w, http.StatusBadRequest, "Message field is required")
		return
	}

	// Threads are created lazily; first-turn clients may omit the id
	if strings.TrimSpace(req.ThreadID) == "" {
		req.ThreadID = common.NewThreadID()
	}

	if h.logger != nil {
		h.logger.Info().
			Str("thread_id", req.ThreadID).
			Int("message_length", len(req.Message)).
			Msg("Processing chat request")
	}

	// The request context propagates client cancellation into the turn
	response, err := h.chatService.HandleTurn(r.Context(), &req)
	if err != nil {
		var stateErr *models.InvalidThreadStateError
		if errors.As(err, &stateErr) {
			WriteError(w, http.StatusBadRequest, stateErr.Error())
			return
		}
		if h.logger != nil {
			h.logger.Error().Err(err).Str("thread_id", req.ThreadID).Msg("Chat turn failed")
		}
		WriteError(w, http.StatusInternalServerError, "Failed to process chat turn")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"thread_id": response.ThreadID,
		"message":   response.Message,
		"passages":  passageViews(response.Passages),
		"degraded":  response.Degraded,
		"fallback":  response.Fallback,
		"provider":  response.Provider,
	})
}

// HealthHandler handles GET /api/chat/health requests
func (h *ChatHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	if err := h.chatService.HealthCheck(r.Context()); err != nil {
		if h.logger != nil {
			h.logger.Warn().Err(err).Msg("Chat service health check failed")
		}
		WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"healthy": true,
	})
}
