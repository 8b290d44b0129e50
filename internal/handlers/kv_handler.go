package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/interfaces"
)

// KVServiceInterface defines the methods needed from the KV service
type KVServiceInterface interface {
	Get(ctx context.Context, key string) (string, error)
	GetPair(ctx context.Context, key string) (*interfaces.KeyValuePair, error)
	Set(ctx context.Context, key string, value string, description string) error
	Upsert(ctx context.Context, key string, value string, description string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]interfaces.KeyValuePair, error)
	GetAll(ctx context.Context) (map[string]string, error)
}

// KVHandler handles settings (key/value) storage HTTP requests. Values are
// typically provider API keys, so list responses mask them.
type KVHandler struct {
	kvService KVServiceInterface
	logger    arbor.ILogger
}

// NewKVHandler creates a new KV handler for managing settings
func NewKVHandler(kvService KVServiceInterface, logger arbor.ILogger) *KVHandler {
	return &KVHandler{
		kvService: kvService,
		logger:    logger,
	}
}

// ListKVHandler handles GET /api/kv - lists all settings (key/value pairs)
func (h *KVHandler) ListKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	pairs, err := h.kvService.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list key/value pairs")
		WriteError(w, http.StatusInternalServerError, "Failed to list key/value pairs")
		return
	}

	// Mask values in the listing; secrets only come back one at a time
	sanitized := make([]map[string]interface{}, len(pairs))
	for i, pair := range pairs {
		sanitized[i] = map[string]interface{}{
			"key":         pair.Key,
			"value":       h.maskValue(pair.Value),
			"description": pair.Description,
			"created_at":  pair.CreatedAt,
			"updated_at":  pair.UpdatedAt,
		}
	}

	h.logger.Debug().Int("count", len(pairs)).Msg("Listed key/value pairs")
	WriteJSON(w, http.StatusOK, sanitized)
}

// GetKVHandler handles GET /api/kv/{key} - retrieves a specific setting
func (h *KVHandler) GetKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}

	pair, err := h.kvService.GetPair(r.Context(), key)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found")
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to get key/value pair")
		WriteError(w, http.StatusInternalServerError, "Failed to retrieve key/value pair")
		return
	}

	// Single-key fetch returns the unmasked value for editing
	response := map[string]interface{}{
		"key":         pair.Key,
		"value":       pair.Value,
		"description": pair.Description,
		"created_at":  pair.CreatedAt,
		"updated_at":  pair.UpdatedAt,
	}

	h.logger.Debug().Str("key", key).Msg("Retrieved key/value pair")
	WriteJSON(w, http.StatusOK, response)
}

// CreateKVHandler handles POST /api/kv - creates a new setting
func (h *KVHandler) CreateKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req struct {
		Key         string `json:"key"`
		Value       string `json:"value"`
		Description string `json:"description"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to parse request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Key == "" {
		WriteError(w, http.StatusBadRequest, "Key is required")
		return
	}

	if req.Value == "" {
		WriteError(w, http.StatusBadRequest, "Value is required")
		return
	}

	if err := h.checkDuplicateKey(r.Context(), req.Key); err != nil {
		h.logger.Warn().Err(err).Str("key", req.Key).Msg("Duplicate key detected")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	if err := h.kvService.Set(r.Context(), req.Key, req.Value, req.Description); err != nil {
		h.logger.Error().Err(err).Str("key", req.Key).Msg("Failed to create key/value pair")
		WriteError(w, http.StatusInternalServerError, "Failed to create key/value pair")
		return
	}

	h.logger.Debug().Str("key", req.Key).Msg("Created key/value pair")

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Key/value pair created successfully",
		"key":     req.Key,
	})
}

// UpdateKVHandler handles PUT /api/kv/{key} - upserts a setting. Creates a
// new key or updates an existing one; an empty value updates only the
// description.
func (h *KVHandler) UpdateKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}

	var req struct {
		Value       string `json:"value"`
		Description string `json:"description"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to parse request body")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	valueToSet := req.Value
	if valueToSet == "" {
		currentPair, err := h.kvService.GetPair(r.Context(), key)
		if err != nil {
			if errors.Is(err, interfaces.ErrKeyNotFound) {
				WriteError(w, http.StatusNotFound, "Key not found - cannot update description for non-existent key")
				return
			}
			h.logger.Error().Err(err).Str("key", key).Msg("Failed to get current value for description-only update")
			WriteError(w, http.StatusInternalServerError, "Failed to retrieve current value")
			return
		}
		valueToSet = currentPair.Value
		h.logger.Debug().Str("key", key).Msg("Description-only update - preserving existing value")
	}

	isNewKey, err := h.kvService.Upsert(r.Context(), key, valueToSet, req.Description)
	if err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to upsert key/value pair")
		WriteError(w, http.StatusInternalServerError, "Failed to upsert key/value pair")
		return
	}

	statusCode := http.StatusOK
	message := "Key/value pair updated successfully"
	if isNewKey {
		statusCode = http.StatusCreated
		message = "Key/value pair created successfully"
	}

	WriteJSON(w, statusCode, map[string]interface{}{
		"status":  "success",
		"message": message,
		"key":     key,
		"created": isNewKey,
	})
}

// DeleteKVHandler handles DELETE /api/kv/{key} - deletes a setting
func (h *KVHandler) DeleteKVHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}

	if err := h.kvService.Delete(r.Context(), key); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found")
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to delete key/value pair")
		WriteError(w, http.StatusInternalServerError, "Failed to delete key/value pair")
		return
	}

	h.logger.Debug().Str("key", key).Msg("Deleted key/value pair")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Key/value pair deleted successfully",
	})
}

// keyFromPath extracts and decodes the key from /api/kv/{key} paths,
// writing a 400 response when it is missing or malformed
func (h *KVHandler) keyFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	encodedKey := strings.TrimPrefix(r.URL.Path, "/api/kv/")

	key, err := url.QueryUnescape(encodedKey)
	if err != nil {
		h.logger.Error().Err(err).Str("encoded_key", encodedKey).Msg("Failed to decode key")
		WriteError(w, http.StatusBadRequest, "Invalid key encoding")
		return "", false
	}

	if key == "" {
		WriteError(w, http.StatusBadRequest, "Missing key parameter")
		return "", false
	}

	return key, true
}

// checkDuplicateKey checks if a key already exists (case-insensitive)
func (h *KVHandler) checkDuplicateKey(ctx context.Context, newKey string) error {
	pairs, err := h.kvService.List(ctx)
	if err != nil {
		// Storage enforces uniqueness anyway; don't block the create
		h.logger.Warn().Err(err).Msg("Failed to list keys for duplicate check")
		return nil
	}

	newKeyLower := strings.ToLower(newKey)
	for _, pair := range pairs {
		if strings.ToLower(pair.Key) == newKeyLower {
			return fmt.Errorf("a key with name '%s' already exists, key names are case-insensitive", pair.Key)
		}
	}

	return nil
}

// maskValue masks sensitive values for API responses.
// If length < 8: returns "••••••••"
// Otherwise: returns first 4 chars + "..." + last 4 chars (e.g., "sk-1...xyz9")
func (h *KVHandler) maskValue(value string) string {
	if len(value) < 8 {
		return "••••••••"
	}

	return value[:4] + "..." + value[len(value)-4:]
}
