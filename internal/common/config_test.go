package common

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/suadeo/internal/interfaces"
)

// mockKVStorage is a minimal in-memory KeyValueStorage for config tests
type mockKVStorage struct {
	values    map[string]string
	getAllErr error
}

func (m *mockKVStorage) Get(ctx context.Context, key string) (string, error) {
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return "", interfaces.ErrKeyNotFound
}

func (m *mockKVStorage) GetPair(ctx context.Context, key string) (*interfaces.KeyValuePair, error) {
	v, err := m.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return &interfaces.KeyValuePair{Key: key, Value: v}, nil
}

func (m *mockKVStorage) Set(ctx context.Context, key, value, description string) error {
	m.values[key] = value
	return nil
}

func (m *mockKVStorage) Upsert(ctx context.Context, key, value, description string) (bool, error) {
	_, existed := m.values[key]
	m.values[key] = value
	return !existed, nil
}

func (m *mockKVStorage) Delete(ctx context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func (m *mockKVStorage) DeleteAll(ctx context.Context) error {
	m.values = map[string]string{}
	return nil
}

func (m *mockKVStorage) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	pairs := make([]interfaces.KeyValuePair, 0, len(m.values))
	for k, v := range m.values {
		pairs = append(pairs, interfaces.KeyValuePair{Key: k, Value: v})
	}
	return pairs, nil
}

func (m *mockKVStorage) GetAll(ctx context.Context) (map[string]string, error) {
	if m.getAllErr != nil {
		return nil, m.getAllErr
	}
	return m.values, nil
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, 8085, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, "./data", config.Storage.Badger.Path)
	assert.Equal(t, LLMProviderGemini, config.LLM.DefaultProvider)
	assert.Equal(t, IndexBackendMemory, config.Index.Backend)
	assert.Equal(t, 3, config.Retrieval.TopK)
	assert.Equal(t, float32(0), config.Retrieval.MinScore)
	assert.Equal(t, 10, config.Conversation.SummarizeAfter)
	assert.Equal(t, 4, config.Conversation.RetainTail)
	assert.Equal(t, 1440, config.Conversation.IdleTTLMinutes)
	assert.Equal(t, "*/30 * * * *", config.Conversation.EvictionSchedule)
	assert.Equal(t, 1200, config.Chat.MaxPassageChars)
	assert.True(t, config.Ingest.NormalizeHTML)
}

func TestDefaultConfigIsValid(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, config.Validate())
}

func TestLoadFromFiles_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suadeo.toml")
	content := `
[server]
port = 9090
host = "0.0.0.0"

[retrieval]
top_k = 5
min_score = 0.25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFiles(nil, path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 5, config.Retrieval.TopK)
	assert.InDelta(t, 0.25, float64(config.Retrieval.MinScore), 0.0001)
	// Unset sections keep defaults
	assert.Equal(t, 10, config.Conversation.SummarizeAfter)
}

func TestLoadFromFiles_LaterFileWins(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte("[server]\nport = 9000\n[retrieval]\ntop_k = 7\n"), 0644))
	require.NoError(t, os.WriteFile(override, []byte("[server]\nport = 9001\n"), 0644))

	config, err := LoadFromFiles(nil, base, override)
	require.NoError(t, err)

	assert.Equal(t, 9001, config.Server.Port)
	// Value only in the first file survives the merge
	assert.Equal(t, 7, config.Retrieval.TopK)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(nil, "/nonexistent/suadeo.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadFromFiles_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is not toml ]["), 0644))

	_, err := LoadFromFiles(nil, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadFromFiles_KVReplacement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suadeo.toml")
	content := `
[index.qdrant]
api_key = "{qdrant-key}"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	kv := &mockKVStorage{values: map[string]string{"qdrant-key": "qd-secret"}}
	config, err := LoadFromFiles(kv, path)
	require.NoError(t, err)

	assert.Equal(t, "qd-secret", config.Index.Qdrant.APIKey)
}

func TestLoadFromFiles_KVErrorSkipsReplacement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suadeo.toml")
	require.NoError(t, os.WriteFile(path, []byte("[index.qdrant]\napi_key = \"{qdrant-key}\"\n"), 0644))

	kv := &mockKVStorage{getAllErr: errors.New("store offline")}
	config, err := LoadFromFiles(kv, path)
	require.NoError(t, err)

	// Reference is left intact when the KV store is unavailable
	assert.Equal(t, "{qdrant-key}", config.Index.Qdrant.APIKey)
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("SUADEO_SERVER_PORT", "7070")
	t.Setenv("SUADEO_INDEX_BACKEND", "qdrant")
	t.Setenv("SUADEO_RETRIEVAL_TOP_K", "8")
	t.Setenv("SUADEO_CONVERSATION_RETAIN_TAIL", "2")

	config, err := LoadFromFiles(nil)
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, IndexBackendQdrant, config.Index.Backend)
	assert.Equal(t, 8, config.Retrieval.TopK)
	assert.Equal(t, 2, config.Conversation.RetainTail)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 9999, "example.local")
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "example.local", config.Server.Host)

	// Zero values leave config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "example.local", config.Server.Host)
}

func TestValidate_RetainTailTooLarge(t *testing.T) {
	config := NewDefaultConfig()
	config.Conversation.SummarizeAfter = 4
	config.Conversation.RetainTail = 4

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retain_tail")
}

func TestValidate_UnknownProvider(t *testing.T) {
	config := NewDefaultConfig()
	config.LLM.DefaultProvider = "openai"

	err := config.Validate()
	require.Error(t, err)
}

func TestValidate_UnknownIndexBackend(t *testing.T) {
	config := NewDefaultConfig()
	config.Index.Backend = "pinecone"

	err := config.Validate()
	require.Error(t, err)
}

func TestValidate_BadEvictionSchedule(t *testing.T) {
	config := NewDefaultConfig()
	config.Conversation.EvictionSchedule = "* * * * *"

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eviction_schedule")
}

func TestValidateCronSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"every 30 minutes", "*/30 * * * *", false},
		{"hourly", "0 * * * *", false},
		{"every minute", "* * * * *", true},
		{"every 2 minutes", "*/2 * * * *", true},
		{"garbage", "not a schedule", true},
		{"too few fields", "0 *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCronSchedule(tt.schedule)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolveAPIKey_EnvPriority(t *testing.T) {
	t.Setenv("SUADEO_GEMINI_API_KEY", "env-key")

	kv := &mockKVStorage{values: map[string]string{"gemini_api_key": "kv-key"}}
	key, err := ResolveAPIKey(context.Background(), kv, "gemini_api_key", "config-key")
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
}

func TestResolveAPIKey_KVStore(t *testing.T) {
	kv := &mockKVStorage{values: map[string]string{"qdrant_api_key": "kv-key"}}

	key, err := ResolveAPIKey(context.Background(), kv, "qdrant_api_key", "config-key")
	require.NoError(t, err)
	assert.Equal(t, "kv-key", key)
}

func TestResolveAPIKey_ConfigFallback(t *testing.T) {
	kv := &mockKVStorage{values: map[string]string{}}

	key, err := ResolveAPIKey(context.Background(), kv, "some_unmapped_key", "config-key")
	require.NoError(t, err)
	assert.Equal(t, "config-key", key)
}

func TestResolveAPIKey_NotFound(t *testing.T) {
	kv := &mockKVStorage{values: map[string]string{}}

	_, err := ResolveAPIKey(context.Background(), kv, "some_unmapped_key", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestIsProduction(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"production", true},
		{"prod", true},
		{"PRODUCTION", true},
		{" production ", true},
		{"development", false},
		{"", false},
	}

	for _, tt := range tests {
		config := &Config{Environment: tt.env}
		assert.Equal(t, tt.want, config.IsProduction(), "environment %q", tt.env)
	}
}
