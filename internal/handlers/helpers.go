package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ternarybob/suadeo/internal/models"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteStarted writes a standard "started" JSON response for async operations.
func WriteStarted(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "started",
		"message": message,
	})
}

// GetListParams extracts limit/offset parameters from the query string.
// Returns limit (default 50, max 100) and offset (default 0).
func GetListParams(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, 100)
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}

// passageView shapes a retrieved passage for API responses. The stored
// embedding vector never leaves the server.
func passageView(p models.RetrievedPassage) map[string]interface{} {
	view := map[string]interface{}{
		"id":            p.Review.ID,
		"product_title": p.Review.ProductTitle,
		"review_text":   p.Review.ReviewText,
		"score":         p.Score,
	}
	if len(p.Review.Metadata) > 0 {
		view["metadata"] = p.Review.Metadata
	}
	return view
}

// passageViews maps retrieved passages preserving rank order.
func passageViews(passages []models.RetrievedPassage) []map[string]interface{} {
	views := make([]map[string]interface{}, len(passages))
	for i, p := range passages {
		views[i] = passageView(p)
	}
	return views
}
