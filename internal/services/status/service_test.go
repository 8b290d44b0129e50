package status

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
	"github.com/ternarybob/suadeo/internal/services/conversations"
	"github.com/ternarybob/suadeo/internal/storage/badger"
)

func newTestStatus(t *testing.T) (*Service, interfaces.ReviewStorage, interfaces.ConversationStore) {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reviews := badger.NewReviewStorage(db, logger)
	threads := badger.NewThreadStorage(db, logger)
	store := conversations.NewStore(threads, nil, &common.ConversationConfig{SummarizeAfter: 10, RetainTail: 4}, logger)

	return NewService(reviews, store, logger), reviews, store
}

func TestStateTransitions(t *testing.T) {
	service, _, _ := newTestStatus(t)

	assert.Equal(t, StateIdle, service.GetState())

	service.SetState(StateIngesting, map[string]interface{}{"file": "reviews.csv"})
	assert.Equal(t, StateIngesting, service.GetState())

	service.SetState(StateIdle, nil)
	assert.Equal(t, StateIdle, service.GetState())
}

func TestBeginIngestRejectsConcurrentRuns(t *testing.T) {
	service, _, _ := newTestStatus(t)

	require.True(t, service.BeginIngest(map[string]interface{}{"file": "reviews.csv"}))
	assert.False(t, service.BeginIngest(nil), "second ingest should be rejected while one is running")

	service.SetState(StateIdle, nil)
	assert.True(t, service.BeginIngest(nil), "ingest should be allowed again once idle")
}

func TestGetStatusReportsCounters(t *testing.T) {
	service, reviews, store := newTestStatus(t)
	ctx := context.Background()

	embedded := &models.Review{
		ID:             "rev_status_1",
		ProductTitle:   "Lumen Desk Lamp",
		ReviewText:     "Bright and sturdy.",
		Embedding:      []float32{0.1, 0.2, 0.3},
		EmbeddingModel: "test-embed-001",
	}
	pending := &models.Review{
		ID:           "rev_status_2",
		ProductTitle: "GlowMate Clip Light",
		ReviewText:   "Handy little light.",
	}
	require.NoError(t, reviews.SaveReviews(ctx, []*models.Review{embedded, pending}))

	require.NoError(t, store.Append(ctx, "status-thread", models.NewMessage(models.RoleUser, "hello")))

	payload := service.GetStatus(ctx)

	assert.Equal(t, string(StateIdle), payload["state"])
	assert.Equal(t, 1, payload["threads"])
	assert.NotNil(t, payload["timestamp"])

	stats, ok := payload["corpus"].(*models.ReviewStats)
	require.True(t, ok, "corpus stats missing from status payload")
	assert.Equal(t, 2, stats.TotalReviews)
	assert.Equal(t, 1, stats.EmbeddedCount)
}

func TestGetStatusCopiesMetadata(t *testing.T) {
	service, _, _ := newTestStatus(t)

	service.SetState(StateIngesting, map[string]interface{}{"file": "reviews.csv"})

	payload := service.GetStatus(context.Background())
	metadata, ok := payload["metadata"].(map[string]interface{})
	require.True(t, ok)

	metadata["file"] = "mutated.csv"

	fresh := service.GetStatus(context.Background())
	freshMetadata := fresh["metadata"].(map[string]interface{})
	assert.Equal(t, "reviews.csv", freshMetadata["file"], "callers must not mutate service metadata")
}
