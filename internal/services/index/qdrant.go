package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/models"
)

// QdrantIndex stores vectors in a Qdrant server over its REST API.
// Collections use cosine distance, so search scores are cosine
// similarity directly.
type QdrantIndex struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
	logger     arbor.ILogger
}

// NewQdrantIndex creates a Qdrant-backed index from configuration
func NewQdrantIndex(cfg *common.QdrantConfig, logger arbor.ILogger) *QdrantIndex {
	return &QdrantIndex{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Init creates the collection if it does not exist. Idempotent: an
// existing collection is left untouched, whatever its schema.
func (q *QdrantIndex) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	q.dimension = dimension

	exists, err := q.collectionExists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check qdrant collection: %w", err)
	}
	if exists {
		q.logger.Debug().Str("collection", q.collection).Msg("Qdrant collection already exists")
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := q.putJSON(ctx, fmt.Sprintf("%s/collections/%s", q.url, q.collection), body, nil); err != nil {
		return fmt.Errorf("failed to create qdrant collection: %w", err)
	}

	q.logger.Info().
		Str("collection", q.collection).
		Int("dimension", dimension).
		Msg("Created Qdrant collection")

	return nil
}

// Upsert writes the reviews' embeddings as points. Qdrant point IDs
// must be UUIDs, so review IDs map through a deterministic SHA1 UUID
// and the real ID travels in the payload.
func (q *QdrantIndex) Upsert(ctx context.Context, reviews []*models.Review) error {
	if len(reviews) == 0 {
		return nil
	}

	points := make([]map[string]any, 0, len(reviews))
	for _, review := range reviews {
		if review.ID == "" {
			return fmt.Errorf("review missing ID")
		}
		if q.dimension > 0 && len(review.Embedding) != q.dimension {
			return fmt.Errorf("review %s: vector dimension mismatch, expected %d got %d", review.ID, q.dimension, len(review.Embedding))
		}

		points = append(points, map[string]any{
			"id":     pointID(review.ID),
			"vector": review.Embedding,
			"payload": map[string]any{
				"review_id":       review.ID,
				"product_title":   review.ProductTitle,
				"review_text":     review.ReviewText,
				"embedding_model": review.EmbeddingModel,
				"metadata":        review.Metadata,
			},
		})
	}

	body := map[string]any{"points": points}
	return q.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", q.url, q.collection), body, nil)
}

// Nearest searches the collection for the k closest points
func (q *QdrantIndex) Nearest(ctx context.Context, vector []float32, k int) ([]models.RetrievedPassage, error) {
	if k <= 0 {
		return []models.RetrievedPassage{}, nil
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}

	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", q.url, q.collection), req, &resp); err != nil {
		return nil, err
	}

	results := make([]models.RetrievedPassage, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, models.RetrievedPassage{
			Review: reviewFromPayload(r.Payload),
			Score:  r.Score,
		})
	}
	return results, nil
}

// Count returns the exact number of points in the collection
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	req := map[string]any{"exact": true}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := q.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/count", q.url, q.collection), req, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Reset drops and recreates the collection
func (q *QdrantIndex) Reset(ctx context.Context) error {
	if err := q.deleteJSON(ctx, fmt.Sprintf("%s/collections/%s", q.url, q.collection)); err != nil {
		return fmt.Errorf("failed to drop qdrant collection: %w", err)
	}
	if q.dimension > 0 {
		return q.Init(ctx, q.dimension)
	}
	return nil
}

// Name identifies the backend
func (q *QdrantIndex) Name() string {
	return string(common.IndexBackendQdrant)
}

// collectionExists probes GET /collections/{name}. 404 means missing.
func (q *QdrantIndex) collectionExists(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", q.url, q.collection), nil)
	if err != nil {
		return false, err
	}
	q.setHeaders(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("qdrant GET collection returned %s", resp.Status)
	}
}

// pointID maps a review ID onto a deterministic UUID accepted by Qdrant
func pointID(reviewID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(reviewID)).String()
}

// reviewFromPayload rebuilds the stored review fields from a point payload
func reviewFromPayload(payload map[string]any) *models.Review {
	review := &models.Review{}
	if v, ok := payload["review_id"].(string); ok {
		review.ID = v
	}
	if v, ok := payload["product_title"].(string); ok {
		review.ProductTitle = v
	}
	if v, ok := payload["review_text"].(string); ok {
		review.ReviewText = v
	}
	if v, ok := payload["embedding_model"].(string); ok {
		review.EmbeddingModel = v
	}
	if raw, ok := payload["metadata"].(map[string]any); ok && len(raw) > 0 {
		review.Metadata = make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				review.Metadata[k] = s
			}
		}
	}
	return review
}

func (q *QdrantIndex) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
}

func (q *QdrantIndex) putJSON(ctx context.Context, url string, body any, out any) error {
	return q.doJSON(ctx, http.MethodPut, url, body, out)
}

func (q *QdrantIndex) postJSON(ctx context.Context, url string, body any, out any) error {
	return q.doJSON(ctx, http.MethodPost, url, body, out)
}

func (q *QdrantIndex) deleteJSON(ctx context.Context, url string) error {
	return q.doJSON(ctx, http.MethodDelete, url, nil, nil)
}

func (q *QdrantIndex) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	q.setHeaders(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
