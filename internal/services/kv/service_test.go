package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/storage/badger"
)

func newTestKV(t *testing.T) *Service {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badger.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewService(badger.NewKVStorage(db, logger), logger)
}

func TestSetAndGet(t *testing.T) {
	service := newTestKV(t)
	ctx := context.Background()

	require.NoError(t, service.Set(ctx, "gemini-api-key", "secret-1", "Gemini API key"))

	value, err := service.Get(ctx, "gemini-api-key")
	require.NoError(t, err)
	assert.Equal(t, "secret-1", value)

	pair, err := service.GetPair(ctx, "gemini-api-key")
	require.NoError(t, err)
	assert.Equal(t, "Gemini API key", pair.Description)
	assert.False(t, pair.CreatedAt.IsZero())
}

func TestSetRejectsEmptyKey(t *testing.T) {
	service := newTestKV(t)

	err := service.Set(context.Background(), "", "value", "")
	require.Error(t, err)
}

func TestUpsertReportsCreation(t *testing.T) {
	service := newTestKV(t)
	ctx := context.Background()

	created, err := service.Upsert(ctx, "claude-api-key", "first", "")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = service.Upsert(ctx, "claude-api-key", "second", "")
	require.NoError(t, err)
	assert.False(t, created)

	value, err := service.Get(ctx, "claude-api-key")
	require.NoError(t, err)
	assert.Equal(t, "second", value)
}

func TestDeleteMissingKey(t *testing.T) {
	service := newTestKV(t)

	err := service.Delete(context.Background(), "never-stored")
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrKeyNotFound))
}

func TestResolveIntoExpandsReferences(t *testing.T) {
	service := newTestKV(t)
	ctx := context.Background()

	require.NoError(t, service.Set(ctx, "gemini-api-key", "secret-9", ""))

	cfg := struct {
		APIKey  string
		Model   string
		Missing string
	}{
		APIKey:  "{gemini-api-key}",
		Model:   "gemini-2.5-flash",
		Missing: "{never-stored}",
	}

	require.NoError(t, service.ResolveInto(ctx, &cfg))

	assert.Equal(t, "secret-9", cfg.APIKey)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model, "literal values pass through untouched")
	assert.Equal(t, "{never-stored}", cfg.Missing, "unresolved references are left intact")
}
