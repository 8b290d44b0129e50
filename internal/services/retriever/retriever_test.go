package retriever

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/models"
	"github.com/ternarybob/suadeo/internal/services/index"
)

// mockEmbedder implements interfaces.EmbeddingService for testing
type mockEmbedder struct {
	queryFunc func(ctx context.Context, query string) ([]float32, error)
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return m.queryFunc(ctx, text)
}

func (m *mockEmbedder) EmbedReview(ctx context.Context, review *models.Review) error {
	return nil
}

func (m *mockEmbedder) EmbedReviews(ctx context.Context, reviews []*models.Review) error {
	return nil
}

func (m *mockEmbedder) GenerateQueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	return m.queryFunc(ctx, query)
}

func (m *mockEmbedder) ModelName() string { return "text-embedding-004" }

func (m *mockEmbedder) Dimension() int { return 3 }

func (m *mockEmbedder) IsAvailable(ctx context.Context) bool { return true }

// seedIndex builds a memory index with three reviews on fixed axes so
// scores are predictable.
func seedIndex(t *testing.T) *index.MemoryIndex {
	t.Helper()
	idx := index.NewMemoryIndex(arbor.NewLogger())
	ctx := context.Background()
	if err := idx.Init(ctx, 3); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	reviews := []*models.Review{
		{ID: "rev_mouse", ProductTitle: "Wireless Mouse", ReviewText: "Great battery.", Embedding: []float32{1, 0, 0}, EmbeddingModel: "text-embedding-004"},
		{ID: "rev_desk", ProductTitle: "Standing Desk", ReviewText: "Sturdy.", Embedding: []float32{0, 1, 0}, EmbeddingModel: "text-embedding-004"},
		{ID: "rev_lamp", ProductTitle: "Desk Lamp", ReviewText: "Bright.", Embedding: []float32{0.7, 0.7, 0}, EmbeddingModel: "text-embedding-004"},
	}
	if err := idx.Upsert(ctx, reviews); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	return idx
}

func newTestRetriever(t *testing.T, embedder *mockEmbedder, idx *index.MemoryIndex, cfg *common.RetrievalConfig) *Service {
	t.Helper()
	if cfg == nil {
		cfg = &common.RetrievalConfig{TopK: 3}
	}
	return NewService(embedder, idx, cfg, arbor.NewLogger()).(*Service)
}

func TestRetrieverSearchOrdersByScore(t *testing.T) {
	embedder := &mockEmbedder{
		queryFunc: func(ctx context.Context, query string) ([]float32, error) {
			return []float32{1, 0, 0}, nil
		},
	}
	svc := newTestRetriever(t, embedder, seedIndex(t), nil)

	passages, err := svc.Search(context.Background(), "mouse with good battery", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(passages) != 2 {
		t.Fatalf("Expected 2 passages, got %d", len(passages))
	}
	if passages[0].Review.ID != "rev_mouse" {
		t.Errorf("Expected rev_mouse first, got %s", passages[0].Review.ID)
	}
	if passages[1].Review.ID != "rev_lamp" {
		t.Errorf("Expected rev_lamp second, got %s", passages[1].Review.ID)
	}
}

func TestRetrieverDefaultsToConfiguredK(t *testing.T) {
	embedder := &mockEmbedder{
		queryFunc: func(ctx context.Context, query string) ([]float32, error) {
			return []float32{1, 0, 0}, nil
		},
	}
	svc := newTestRetriever(t, embedder, seedIndex(t), &common.RetrievalConfig{TopK: 2})

	passages, err := svc.Search(context.Background(), "anything", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(passages) != 2 {
		t.Errorf("Expected TopK=2 passages for k=0, got %d", len(passages))
	}
	if svc.TopK() != 2 {
		t.Errorf("TopK() = %d, want 2", svc.TopK())
	}
}

func TestRetrieverMinScoreFilters(t *testing.T) {
	embedder := &mockEmbedder{
		queryFunc: func(ctx context.Context, query string) ([]float32, error) {
			return []float32{1, 0, 0}, nil
		},
	}
	// rev_mouse scores 1.0, rev_lamp ~0.707, rev_desk 0.0
	svc := newTestRetriever(t, embedder, seedIndex(t), &common.RetrievalConfig{TopK: 3, MinScore: 0.9})

	passages, err := svc.Search(context.Background(), "mouse", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(passages) != 1 {
		t.Fatalf("Expected 1 passage above min_score, got %d", len(passages))
	}
	if passages[0].Review.ID != "rev_mouse" {
		t.Errorf("Expected rev_mouse, got %s", passages[0].Review.ID)
	}
}

func TestRetrieverEmptyResultIsNotError(t *testing.T) {
	embedder := &mockEmbedder{
		queryFunc: func(ctx context.Context, query string) ([]float32, error) {
			return []float32{1, 0, 0}, nil
		},
	}
	svc := newTestRetriever(t, embedder, seedIndex(t), &common.RetrievalConfig{TopK: 3, MinScore: 2.0})

	passages, err := svc.Search(context.Background(), "mouse", 3)
	if err != nil {
		t.Fatalf("Expected no error for empty result, got %v", err)
	}
	if len(passages) != 0 {
		t.Errorf("Expected 0 passages, got %d", len(passages))
	}
}

func TestRetrieverEmbedderFailureIsUnavailable(t *testing.T) {
	embedder := &mockEmbedder{
		queryFunc: func(ctx context.Context, query string) ([]float32, error) {
			return nil, fmt.Errorf("provider down")
		},
	}
	svc := newTestRetriever(t, embedder, seedIndex(t), nil)

	_, err := svc.Search(context.Background(), "mouse", 3)
	if err == nil {
		t.Fatal("Expected error when embedder fails")
	}

	var unavailable *models.RetrievalUnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("Expected RetrievalUnavailableError, got %T: %v", err, err)
	}
}

func TestRetrieverIndexFailureIsUnavailable(t *testing.T) {
	embedder := &mockEmbedder{
		queryFunc: func(ctx context.Context, query string) ([]float32, error) {
			// Wrong dimension makes the index reject the query
			return []float32{1, 0}, nil
		},
	}
	svc := newTestRetriever(t, embedder, seedIndex(t), nil)

	_, err := svc.Search(context.Background(), "mouse", 3)
	if err == nil {
		t.Fatal("Expected error when index rejects the query")
	}

	var unavailable *models.RetrievalUnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("Expected RetrievalUnavailableError, got %T: %v", err, err)
	}
}

func TestRetrieverBlankQuery(t *testing.T) {
	embedder := &mockEmbedder{
		queryFunc: func(ctx context.Context, query string) ([]float32, error) {
			t.Error("Embedder should not be called for a blank query")
			return nil, nil
		},
	}
	svc := newTestRetriever(t, embedder, seedIndex(t), nil)

	passages, err := svc.Search(context.Background(), "   ", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(passages) != 0 {
		t.Errorf("Expected empty result for blank query, got %d", len(passages))
	}
}
