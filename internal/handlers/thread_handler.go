package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
)

// ThreadHandler handles conversation thread HTTP requests
type ThreadHandler struct {
	store  interfaces.ConversationStore
	logger arbor.ILogger
}

// NewThreadHandler creates a new thread handler
func NewThreadHandler(store interfaces.ConversationStore, logger arbor.ILogger) *ThreadHandler {
	return &ThreadHandler{
		store:  store,
		logger: logger,
	}
}

// threadIDFromPath extracts the thread id from /api/threads/{id} paths,
// tolerating an optional trailing segment such as /context
func threadIDFromPath(path string) (string, error) {
	id := strings.TrimPrefix(path, "/api/threads/")
	id = strings.TrimSuffix(id, "/context")
	id = strings.TrimSuffix(id, "/")
	return url.QueryUnescape(id)
}

// ListThreadsHandler handles GET /api/threads
func (h *ThreadHandler) ListThreadsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	threads, err := h.store.Threads(r.Context())
	if err != nil {
		if h.logger != nil {
			h.logger.Error().Err(err).Msg("Failed to list threads")
		}
		WriteError(w, http.StatusInternalServerError, "Failed to list threads")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"threads": threads,
		"count":   len(threads),
	})
}

// GetThreadHandler handles GET /api/threads/{id}
func (h *ThreadHandler) GetThreadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	threadID, err := threadIDFromPath(r.URL.Path)
	if err != nil || threadID == "" {
		WriteError(w, http.StatusBadRequest, "Missing or invalid thread id")
		return
	}

	thread, err := h.store.Thread(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, models.ErrThreadNotFound) {
			WriteError(w, http.StatusNotFound, "Thread not found")
			return
		}
		if h.logger != nil {
			h.logger.Error().Err(err).Str("thread_id", threadID).Msg("Failed to get thread")
		}
		WriteError(w, http.StatusInternalServerError, "Failed to retrieve thread")
		return
	}

	WriteJSON(w, http.StatusOK, thread)
}

// GetThreadContextHandler handles GET /api/threads/{id}/context. It returns
// the prompt view of the thread: summary as a leading system message plus
// the verbatim tail.
func (h *ThreadHandler) GetThreadContextHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	threadID, err := threadIDFromPath(r.URL.Path)
	if err != nil || threadID == "" {
		WriteError(w, http.StatusBadRequest, "Missing or invalid thread id")
		return
	}

	messages, err := h.store.GetContext(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, models.ErrThreadNotFound) {
			WriteError(w, http.StatusNotFound, "Thread not found")
			return
		}
		if h.logger != nil {
			h.logger.Error().Err(err).Str("thread_id", threadID).Msg("Failed to get thread context")
		}
		WriteError(w, http.StatusInternalServerError, "Failed to retrieve thread context")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"thread_id": threadID,
		"messages":  messages,
		"count":     len(messages),
	})
}

// DeleteThreadHandler handles DELETE /api/threads/{id}
func (h *ThreadHandler) DeleteThreadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	threadID, err := threadIDFromPath(r.URL.Path)
	if err != nil || threadID == "" {
		WriteError(w, http.StatusBadRequest, "Missing or invalid thread id")
		return
	}

	if err := h.store.Delete(r.Context(), threadID); err != nil {
		if errors.Is(err, models.ErrThreadNotFound) {
			WriteError(w, http.StatusNotFound, "Thread not found")
			return
		}
		if h.logger != nil {
			h.logger.Error().Err(err).Str("thread_id", threadID).Msg("Failed to delete thread")
		}
		WriteError(w, http.StatusInternalServerError, "Failed to delete thread")
		return
	}

	if h.logger != nil {
		h.logger.Info().Str("thread_id", threadID).Msg("Thread deleted")
	}
	WriteSuccess(w, "Thread deleted successfully")
}
