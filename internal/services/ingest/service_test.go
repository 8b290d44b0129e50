package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
	"github.com/ternarybob/suadeo/internal/services/index"
	"github.com/ternarybob/suadeo/internal/storage/badger"
)

const testEmbedModel = "mock-embed-001"

// mockEmbedder produces deterministic 3-dim vectors and counts calls
type mockEmbedder struct {
	mu       sync.Mutex
	embedded int
	fail     bool
}

func (m *mockEmbedder) vector(text string) []float32 {
	// Cheap deterministic spread so distinct texts get distinct vectors
	sum := 0
	for _, r := range text {
		sum += int(r)
	}
	return []float32{float32(sum%7 + 1), float32(sum%5 + 1), float32(sum%3 + 1)}
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, fmt.Errorf("embedder offline")
	}
	m.embedded++
	return m.vector(text), nil
}

func (m *mockEmbedder) EmbedReview(ctx context.Context, review *models.Review) error {
	vector, err := m.GenerateEmbedding(ctx, review.PassageText())
	if err != nil {
		return err
	}
	review.Embedding = vector
	review.EmbeddingModel = testEmbedModel
	return nil
}

func (m *mockEmbedder) EmbedReviews(ctx context.Context, reviews []*models.Review) error {
	for _, review := range reviews {
		if err := m.EmbedReview(ctx, review); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockEmbedder) GenerateQueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	return m.GenerateEmbedding(ctx, query)
}

func (m *mockEmbedder) ModelName() string                    { return testEmbedModel }
func (m *mockEmbedder) Dimension() int                       { return 3 }
func (m *mockEmbedder) IsAvailable(ctx context.Context) bool { return !m.fail }

func (m *mockEmbedder) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedded
}

func newTestIngest(t *testing.T, embedder *mockEmbedder) (interfaces.IngestService, interfaces.ReviewStorage, *index.MemoryIndex) {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open badger store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reviews := badger.NewReviewStorage(db, logger)
	memIndex := index.NewMemoryIndex(logger)
	service := NewService(reviews, embedder, memIndex, &common.IngestConfig{
		BatchSize:     2,
		NormalizeHTML: true,
	}, logger)

	return service, reviews, memIndex
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reviews.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write CSV fixture: %v", err)
	}
	return path
}

const fixtureCSV = `product_title,review,rating
Lumen Desk Lamp,Bright and warm light.,5
GlowMate Clip Light,Handy but the clip feels flimsy.,3
AZ-40 Headphones,Great bass but the pads run hot.,4
`

func TestRunBuildsCorpus(t *testing.T) {
	embedder := &mockEmbedder{}
	service, reviews, memIndex := newTestIngest(t, embedder)
	ctx := context.Background()
	path := writeCSV(t, fixtureCSV)

	stats, err := service.Run(ctx, path, false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if stats.ReviewsLoaded != 3 || stats.Embedded != 3 || stats.Indexed != 3 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.ReviewsSkipped != 0 {
		t.Errorf("Expected no skipped reviews on a rebuild, got %d", stats.ReviewsSkipped)
	}
	if stats.EmbeddingModel != testEmbedModel {
		t.Errorf("Expected embedding model in stats, got %q", stats.EmbeddingModel)
	}

	// Corpus persisted with embeddings
	count, err := reviews.CountEmbedded(ctx)
	if err != nil {
		t.Fatalf("CountEmbedded failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 embedded reviews persisted, got %d", count)
	}

	// Index serves the corpus
	indexed, err := memIndex.Count(ctx)
	if err != nil {
		t.Fatalf("Index count failed: %v", err)
	}
	if indexed != 3 {
		t.Errorf("Expected 3 indexed vectors, got %d", indexed)
	}
}

func TestRunLoadExistingReusesVectors(t *testing.T) {
	embedder := &mockEmbedder{}
	service, _, _ := newTestIngest(t, embedder)
	ctx := context.Background()
	path := writeCSV(t, fixtureCSV)

	if _, err := service.Run(ctx, path, false); err != nil {
		t.Fatalf("Initial run failed: %v", err)
	}
	if embedder.calls() != 3 {
		t.Fatalf("Expected 3 embeddings on first run, got %d", embedder.calls())
	}

	// Same file again: every vector is reused, the embedder stays idle
	stats, err := service.Run(ctx, path, true)
	if err != nil {
		t.Fatalf("Load-existing run failed: %v", err)
	}
	if stats.ReviewsSkipped != 3 {
		t.Errorf("Expected 3 reused vectors, got %d", stats.ReviewsSkipped)
	}
	if stats.Embedded != 0 {
		t.Errorf("Expected no fresh embeddings, got %d", stats.Embedded)
	}
	if embedder.calls() != 3 {
		t.Errorf("Expected embedder untouched on reuse, got %d total calls", embedder.calls())
	}

	// A new row embeds just the delta
	extended := fixtureCSV + "PosturePro Chair,Firm lumbar support and easy assembly.,5\n"
	stats, err = service.Run(ctx, writeCSV(t, extended), true)
	if err != nil {
		t.Fatalf("Delta run failed: %v", err)
	}
	if stats.ReviewsSkipped != 3 || stats.Embedded != 1 {
		t.Errorf("Expected 3 reused + 1 embedded, got %+v", stats)
	}
	if embedder.calls() != 4 {
		t.Errorf("Expected 4 total embeddings, got %d", embedder.calls())
	}
}

func TestRunRebuildClearsPreviousCorpus(t *testing.T) {
	embedder := &mockEmbedder{}
	service, reviews, memIndex := newTestIngest(t, embedder)
	ctx := context.Background()

	if _, err := service.Run(ctx, writeCSV(t, fixtureCSV), false); err != nil {
		t.Fatalf("Initial run failed: %v", err)
	}

	// Rebuilding from a smaller file drops the old rows entirely
	smaller := "product_title,review\nPosturePro Chair,Firm lumbar support.\n"
	if _, err := service.Run(ctx, writeCSV(t, smaller), false); err != nil {
		t.Fatalf("Rebuild run failed: %v", err)
	}

	count, err := reviews.CountReviews(ctx)
	if err != nil {
		t.Fatalf("CountReviews failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected rebuilt corpus of 1 review, got %d", count)
	}
	indexed, err := memIndex.Count(ctx)
	if err != nil {
		t.Fatalf("Index count failed: %v", err)
	}
	if indexed != 1 {
		t.Errorf("Expected rebuilt index of 1 vector, got %d", indexed)
	}
}

func TestRunSurfacesMalformedFile(t *testing.T) {
	embedder := &mockEmbedder{}
	service, reviews, _ := newTestIngest(t, embedder)
	ctx := context.Background()
	path := writeCSV(t, "product_title,review\nLumen Desk Lamp,\n")

	_, err := service.Run(ctx, path, false)
	if err == nil {
		t.Fatal("Expected malformed file to abort the run")
	}

	// Nothing was ingested
	count, err := reviews.CountReviews(ctx)
	if err != nil {
		t.Fatalf("CountReviews failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty corpus after aborted run, got %d", count)
	}
	if embedder.calls() != 0 {
		t.Errorf("Expected embedder untouched, got %d calls", embedder.calls())
	}
}

func TestRunSurfacesEmbedderFailure(t *testing.T) {
	embedder := &mockEmbedder{fail: true}
	service, _, _ := newTestIngest(t, embedder)
	ctx := context.Background()

	_, err := service.Run(ctx, writeCSV(t, fixtureCSV), false)
	if err == nil {
		t.Fatal("Expected embedder failure to abort the run")
	}
}

func TestRunMissingFile(t *testing.T) {
	embedder := &mockEmbedder{}
	service, _, _ := newTestIngest(t, embedder)

	if _, err := service.Run(context.Background(), filepath.Join(t.TempDir(), "absent.csv"), false); err == nil {
		t.Error("Expected error for missing ingest file")
	}
}

func TestHydrateLoadsPersistedVectors(t *testing.T) {
	embedder := &mockEmbedder{}
	service, reviews, memIndex := newTestIngest(t, embedder)
	ctx := context.Background()

	// Seed persisted, already-embedded reviews as a previous run would
	seeded := []*models.Review{
		{ID: "rev_1", ProductTitle: "Lumen Desk Lamp", ReviewText: "Bright.", Embedding: []float32{1, 0, 0}, EmbeddingModel: testEmbedModel},
		{ID: "rev_2", ProductTitle: "AZ-40 Headphones", ReviewText: "Punchy.", Embedding: []float32{0, 1, 0}, EmbeddingModel: testEmbedModel},
		{ID: "rev_3", ProductTitle: "Old Widget", ReviewText: "Stale.", Embedding: []float32{0, 0, 1}, EmbeddingModel: "old-model"},
	}
	if err := reviews.SaveReviews(ctx, seeded); err != nil {
		t.Fatalf("Failed to seed reviews: %v", err)
	}

	hydrated, err := service.Hydrate(ctx)
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}

	// Only current-model vectors are loaded, and nothing is re-embedded
	if hydrated != 2 {
		t.Errorf("Expected 2 hydrated reviews, got %d", hydrated)
	}
	if embedder.calls() != 0 {
		t.Errorf("Expected embedder untouched during hydrate, got %d calls", embedder.calls())
	}
	indexed, err := memIndex.Count(ctx)
	if err != nil {
		t.Fatalf("Index count failed: %v", err)
	}
	if indexed != 2 {
		t.Errorf("Expected 2 indexed vectors, got %d", indexed)
	}
}

func TestHydrateEmptyCorpus(t *testing.T) {
	embedder := &mockEmbedder{}
	service, _, _ := newTestIngest(t, embedder)

	hydrated, err := service.Hydrate(context.Background())
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if hydrated != 0 {
		t.Errorf("Expected nothing to hydrate, got %d", hydrated)
	}
}
