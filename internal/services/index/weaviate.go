package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	wvmodels "github.com/weaviate/weaviate/entities/models"

	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/models"
)

// WeaviateIndex stores vectors in a Weaviate server via the official
// Go client. Vectors are supplied client-side (vectorizer "none"), so
// the class never re-embeds anything.
type WeaviateIndex struct {
	client    *weaviate.Client
	class     string
	dimension int
	logger    arbor.ILogger
}

// NewWeaviateIndex creates a Weaviate-backed index from configuration
func NewWeaviateIndex(cfg *common.WeaviateConfig, logger arbor.ILogger) (*WeaviateIndex, error) {
	clientConfig := weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	}
	if cfg.APIKey != "" {
		clientConfig.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}

	client, err := weaviate.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	return &WeaviateIndex{
		client: client,
		class:  cfg.Class,
		logger: logger,
	}, nil
}

// Init creates the class if it does not exist. Idempotent.
func (w *WeaviateIndex) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	w.dimension = dimension

	exists, err := w.client.Schema().ClassExistenceChecker().WithClassName(w.class).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check weaviate class: %w", err)
	}
	if exists {
		w.logger.Debug().Str("class", w.class).Msg("Weaviate class already exists")
		return nil
	}

	class := &wvmodels.Class{
		Class:       w.class,
		Description: "Customer review passages with precomputed embeddings",
		Vectorizer:  "none",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
		Properties: []*wvmodels.Property{
			{Name: "reviewId", DataType: []string{"text"}, Description: "Review identifier"},
			{Name: "productTitle", DataType: []string{"text"}, Description: "Product the review is about"},
			{Name: "reviewText", DataType: []string{"text"}, Description: "Review body"},
			{Name: "embeddingModel", DataType: []string{"text"}, Description: "Model that produced the vector"},
			{Name: "metadataJson", DataType: []string{"text"}, Description: "Extra source columns as JSON"},
		},
	}

	if err := w.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create weaviate class: %w", err)
	}

	w.logger.Info().
		Str("class", w.class).
		Int("dimension", dimension).
		Msg("Created Weaviate class")

	return nil
}

// Upsert writes the reviews' embeddings as objects. Weaviate object IDs
// must be UUIDs, so review IDs map through a deterministic SHA1 UUID
// and the real ID lives in the reviewId property. Existing objects are
// replaced.
func (w *WeaviateIndex) Upsert(ctx context.Context, reviews []*models.Review) error {
	for _, review := range reviews {
		if review.ID == "" {
			return fmt.Errorf("review missing ID")
		}
		if w.dimension > 0 && len(review.Embedding) != w.dimension {
			return fmt.Errorf("review %s: vector dimension mismatch, expected %d got %d", review.ID, w.dimension, len(review.Embedding))
		}

		properties := map[string]interface{}{
			"reviewId":       review.ID,
			"productTitle":   review.ProductTitle,
			"reviewText":     review.ReviewText,
			"embeddingModel": review.EmbeddingModel,
			"metadataJson":   encodeMetadata(review.Metadata),
		}
		id := objectID(review.ID)

		_, err := w.client.Data().Creator().
			WithClassName(w.class).
			WithID(id).
			WithProperties(properties).
			WithVector(review.Embedding).
			Do(ctx)
		if err == nil {
			continue
		}

		// Create fails when the object exists, replace it instead
		if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "422") {
			if updateErr := w.client.Data().Updater().
				WithClassName(w.class).
				WithID(id).
				WithProperties(properties).
				WithVector(review.Embedding).
				Do(ctx); updateErr != nil {
				return fmt.Errorf("failed to update review %s in weaviate: %w", review.ID, updateErr)
			}
			continue
		}

		return fmt.Errorf("failed to index review %s in weaviate: %w", review.ID, err)
	}

	return nil
}

// Nearest searches the class for the k closest objects. Weaviate
// reports cosine distance, converted here to similarity.
func (w *WeaviateIndex) Nearest(ctx context.Context, vector []float32, k int) ([]models.RetrievedPassage, error) {
	if k <= 0 {
		return []models.RetrievedPassage{}, nil
	}

	nearVector := (&graphql.NearVectorArgumentBuilder{}).WithVector(vector)

	result, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithNearVector(nearVector).
		WithFields(
			graphql.Field{Name: "reviewId"},
			graphql.Field{Name: "productTitle"},
			graphql.Field{Name: "reviewText"},
			graphql.Field{Name: "embeddingModel"},
			graphql.Field{Name: "metadataJson"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{
				{Name: "distance"},
			}},
		).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search failed: %s", result.Errors[0].Message)
	}

	objects := extractObjects(result.Data, w.class)

	results := make([]models.RetrievedPassage, 0, len(objects))
	for _, obj := range objects {
		review := &models.Review{}
		if v, ok := obj["reviewId"].(string); ok {
			review.ID = v
		}
		if v, ok := obj["productTitle"].(string); ok {
			review.ProductTitle = v
		}
		if v, ok := obj["reviewText"].(string); ok {
			review.ReviewText = v
		}
		if v, ok := obj["embeddingModel"].(string); ok {
			review.EmbeddingModel = v
		}
		if v, ok := obj["metadataJson"].(string); ok {
			review.Metadata = decodeMetadata(v)
		}

		var score float32
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if distance, ok := additional["distance"].(float64); ok {
				score = float32(1 - distance)
			}
		}

		results = append(results, models.RetrievedPassage{Review: review, Score: score})
	}

	return results, nil
}

// Count returns the number of objects via a meta aggregate
func (w *WeaviateIndex) Count(ctx context.Context) (int, error) {
	result, err := w.client.GraphQL().Aggregate().
		WithClassName(w.class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate aggregate failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("weaviate aggregate failed: %s", result.Errors[0].Message)
	}

	aggregate, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	rows, ok := aggregate[w.class].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, ok := rows[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := row["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, ok := meta["count"].(float64)
	if !ok {
		return 0, nil
	}
	return int(count), nil
}

// Reset drops and recreates the class
func (w *WeaviateIndex) Reset(ctx context.Context) error {
	if err := w.client.Schema().ClassDeleter().WithClassName(w.class).Do(ctx); err != nil {
		return fmt.Errorf("failed to drop weaviate class: %w", err)
	}
	if w.dimension > 0 {
		return w.Init(ctx, w.dimension)
	}
	return nil
}

// Name identifies the backend
func (w *WeaviateIndex) Name() string {
	return string(common.IndexBackendWeaviate)
}

// objectID maps a review ID onto a deterministic UUID accepted by Weaviate
func objectID(reviewID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(reviewID)).String()
}

// extractObjects digs the object list for a class out of a GraphQL Get response
func extractObjects(data map[string]wvmodels.JSONObject, class string) []map[string]interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	rows, ok := get[class].([]interface{})
	if !ok {
		return nil
	}

	objects := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		if obj, ok := row.(map[string]interface{}); ok {
			objects = append(objects, obj)
		}
	}
	return objects
}

func encodeMetadata(metadata map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeMetadata(encoded string) map[string]string {
	if encoded == "" {
		return nil
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(encoded), &metadata); err != nil {
		return nil
	}
	return metadata
}
