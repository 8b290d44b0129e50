// -----------------------------------------------------------------------
// Last Modified: Wednesday, 11th June 2025 10:00:00 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package kv

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
)

// Service provides business logic for key/value settings. Operators use it
// to store provider API keys and other secrets outside the config file.
type Service struct {
	storage interfaces.KeyValueStorage
	logger  arbor.ILogger
}

// NewService creates a new key/value service
func NewService(storage interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// Get retrieves a value by key
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	value, err := s.storage.Get(ctx, key)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to get key/value pair")
		return "", err
	}

	s.logger.Debug().Str("key", key).Msg("Retrieved key/value pair")
	return value, nil
}

// GetPair retrieves a full KeyValuePair by key
func (s *Service) GetPair(ctx context.Context, key string) (*interfaces.KeyValuePair, error) {
	pair, err := s.storage.GetPair(ctx, key)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to get key/value pair")
		return nil, err
	}

	s.logger.Debug().Str("key", key).Msg("Retrieved key/value pair with metadata")
	return pair, nil
}

// Set stores or updates a key/value pair
func (s *Service) Set(ctx context.Context, key string, value string, description string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	err := s.storage.Set(ctx, key, value, description)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to store key/value pair")
		return err
	}

	s.logger.Info().Str("key", key).Msg("Stored key/value pair")
	return nil
}

// Upsert stores or updates a key/value pair, reporting whether a new key
// was created
func (s *Service) Upsert(ctx context.Context, key string, value string, description string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key cannot be empty")
	}

	created, err := s.storage.Upsert(ctx, key, value, description)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to upsert key/value pair")
		return false, err
	}

	s.logger.Info().Str("key", key).Str("created", fmt.Sprintf("%v", created)).Msg("Upserted key/value pair")
	return created, nil
}

// Delete removes a key/value pair
func (s *Service) Delete(ctx context.Context, key string) error {
	err := s.storage.Delete(ctx, key)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to delete key/value pair")
		return err
	}

	s.logger.Info().Str("key", key).Msg("Deleted key/value pair")
	return nil
}

// List returns all key/value pairs
func (s *Service) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	pairs, err := s.storage.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list key/value pairs")
		return nil, err
	}

	s.logger.Debug().Int("count", len(pairs)).Msg("Listed key/value pairs")
	return pairs, nil
}

// GetAll returns all key/value pairs as a map
func (s *Service) GetAll(ctx context.Context) (map[string]string, error) {
	kvMap, err := s.storage.GetAll(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to retrieve all key/value pairs")
		return nil, err
	}

	s.logger.Debug().Int("count", len(kvMap)).Msg("Retrieved all key/value pairs")
	return kvMap, nil
}

// ResolveInto expands {key-name} references in the target struct using the
// stored key/value pairs. The target must be a pointer. Config values like
// "{gemini-api-key}" resolve to the stored secret at startup.
func (s *Service) ResolveInto(ctx context.Context, target interface{}) error {
	kvMap, err := s.storage.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load key/value pairs for reference resolution: %w", err)
	}

	if err := common.ReplaceInStruct(target, kvMap, s.logger); err != nil {
		return fmt.Errorf("failed to resolve key references: %w", err)
	}

	s.logger.Debug().Int("keys", len(kvMap)).Msg("Resolved key references in configuration")
	return nil
}
