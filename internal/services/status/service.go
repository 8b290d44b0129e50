package status

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/interfaces"
)

// AppState represents the application state
type AppState string

const (
	StateIdle      AppState = "idle"
	StateIngesting AppState = "ingesting"
)

// Service manages application status. It tracks the app state alongside
// corpus and conversation counters for the status API.
type Service struct {
	state    AppState
	mu       sync.RWMutex
	metadata map[string]interface{}
	reviews  interfaces.ReviewStorage
	threads  interfaces.ConversationStore
	logger   arbor.ILogger
}

// NewService creates a new StatusService
func NewService(reviews interfaces.ReviewStorage, threads interfaces.ConversationStore, logger arbor.ILogger) *Service {
	return &Service{
		state:    StateIdle,
		reviews:  reviews,
		threads:  threads,
		logger:   logger,
		metadata: make(map[string]interface{}),
	}
}

// GetState returns the current application state (thread-safe)
func (s *Service) GetState() AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState updates the application state
func (s *Service) SetState(state AppState, metadata map[string]interface{}) {
	s.mu.Lock()
	oldState := s.state
	s.state = state
	if metadata != nil {
		s.metadata = metadata
	} else {
		s.metadata = make(map[string]interface{})
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("old_state", string(oldState)).
		Str("new_state", string(state)).
		Msg("Application state changed")
}

// BeginIngest transitions to the ingesting state. Returns false when an
// ingest is already running so callers can reject concurrent runs.
func (s *Service) BeginIngest(metadata map[string]interface{}) bool {
	s.mu.Lock()
	if s.state == StateIngesting {
		s.mu.Unlock()
		return false
	}
	s.state = StateIngesting
	if metadata != nil {
		s.metadata = metadata
	} else {
		s.metadata = make(map[string]interface{})
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("old_state", string(StateIdle)).
		Str("new_state", string(StateIngesting)).
		Msg("Application state changed")
	return true
}

// GetStatus returns the full status including state, metadata, corpus and
// conversation counters, and timestamp
func (s *Service) GetStatus(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	state := s.state

	// Deep copy metadata to avoid concurrent modification
	metadataCopy := make(map[string]interface{})
	for k, v := range s.metadata {
		metadataCopy[k] = v
	}
	s.mu.RUnlock()

	result := map[string]interface{}{
		"state":     string(state),
		"metadata":  metadataCopy,
		"timestamp": time.Now(),
	}

	// Counter failures degrade the payload rather than failing the endpoint
	if stats, err := s.reviews.GetStats(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read corpus stats for status")
	} else {
		result["corpus"] = stats
	}

	if count, err := s.threads.Count(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count conversation threads for status")
	} else {
		result["threads"] = count
	}

	return result
}
