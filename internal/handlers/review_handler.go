package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
)

// ReviewHandler handles review corpus HTTP requests
type ReviewHandler struct {
	reviews   interfaces.ReviewStorage
	retriever interfaces.Retriever
	logger    arbor.ILogger
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(reviews interfaces.ReviewStorage, retriever interfaces.Retriever, logger arbor.ILogger) *ReviewHandler {
	return &ReviewHandler{
		reviews:   reviews,
		retriever: retriever,
		logger:    logger,
	}
}

// briefText truncates review text for list views
func briefText(text string) string {
	if len(text) <= 200 {
		return text
	}
	return text[:200] + "..."
}

// ListReviewsHandler handles GET /api/reviews
func (h *ReviewHandler) ListReviewsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit, offset := GetListParams(r)

	reviews, err := h.reviews.ListReviews(r.Context(), &interfaces.ListOptions{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		if h.logger != nil {
			h.logger.Error().Err(err).Msg("Failed to list reviews")
		}
		WriteError(w, http.StatusInternalServerError, "Failed to list reviews")
		return
	}

	results := make([]map[string]interface{}, len(reviews))
	for i, review := range reviews {
		results[i] = map[string]interface{}{
			"id":            review.ID,
			"product_title": review.ProductTitle,
			"brief":         briefText(review.ReviewText),
			"has_embedding": review.HasEmbedding(),
			"created_at":    review.CreatedAt,
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reviews": results,
		"count":   len(results),
		"limit":   limit,
		"offset":  offset,
	})
}

// GetReviewHandler handles GET /api/reviews/{id}
func (h *ReviewHandler) GetReviewHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	encodedID := strings.TrimPrefix(r.URL.Path, "/api/reviews/")
	id, err := url.QueryUnescape(strings.TrimSuffix(encodedID, "/"))
	if err != nil || id == "" {
		WriteError(w, http.StatusBadRequest, "Missing or invalid review id")
		return
	}

	review, err := h.reviews.GetReview(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrReviewNotFound) {
			WriteError(w, http.StatusNotFound, "Review not found")
			return
		}
		if h.logger != nil {
			h.logger.Error().Err(err).Str("review_id", id).Msg("Failed to get review")
		}
		WriteError(w, http.StatusInternalServerError, "Failed to retrieve review")
		return
	}

	// The raw vector stays server-side; its shape is enough for inspection
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":                  review.ID,
		"product_title":       review.ProductTitle,
		"review_text":         review.ReviewText,
		"metadata":            review.Metadata,
		"embedding_model":     review.EmbeddingModel,
		"embedding_dimension": len(review.Embedding),
		"created_at":          review.CreatedAt,
		"updated_at":          review.UpdatedAt,
	})
}

// SearchReviewsHandler handles POST /api/reviews/search requests for
// direct retrieval against the corpus without a conversation
func (h *ReviewHandler) SearchReviewsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		WriteError(w, http.StatusBadRequest, "Query field is required")
		return
	}

	passages, err := h.retriever.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		var unavailable *models.RetrievalUnavailableError
		if errors.As(err, &unavailable) {
			if h.logger != nil {
				h.logger.Warn().Err(err).Msg("Retrieval unavailable for direct search")
			}
			WriteError(w, http.StatusServiceUnavailable, "Retrieval is currently unavailable")
			return
		}
		if h.logger != nil {
			h.logger.Error().Err(err).Msg("Review search failed")
		}
		WriteError(w, http.StatusInternalServerError, "Failed to execute search")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"query":   req.Query,
		"results": passageViews(passages),
		"count":   len(passages),
	})
}

// StatsHandler handles GET /api/reviews/stats
func (h *ReviewHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats, err := h.reviews.GetStats(r.Context())
	if err != nil {
		if h.logger != nil {
			h.logger.Error().Err(err).Msg("Failed to get review stats")
		}
		WriteError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}
