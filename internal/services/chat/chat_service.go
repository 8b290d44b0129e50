package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
)

// Service implements the RAG chat loop: record the user's message,
// retrieve relevant reviews, generate a grounded response, remember it.
//
// Collaborator outages degrade a turn instead of failing it: retrieval
// failure drops the review context, generation failure substitutes the
// fixed fallback text. The caller always gets response text.
type Service struct {
	retriever interfaces.Retriever
	store     interfaces.ConversationStore
	generator interfaces.LLMService
	persona   *Persona
	maxChars  int
	logger    arbor.ILogger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewService creates the chat orchestrator. A configured persona file
// overrides the built-in system prompt and fallback text.
func NewService(
	retriever interfaces.Retriever,
	store interfaces.ConversationStore,
	generator interfaces.LLMService,
	config *common.ChatConfig,
	logger arbor.ILogger,
) (*Service, error) {
	persona, err := LoadPersona(config.PersonaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load persona: %w", err)
	}
	if strings.TrimSpace(config.FallbackMessage) != "" {
		persona.FallbackMessage = strings.TrimSpace(config.FallbackMessage)
	}

	return &Service{
		retriever: retriever,
		store:     store,
		generator: generator,
		persona:   persona,
		maxChars:  config.MaxPassageChars,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the mutex that serializes whole turns on one thread
func (s *Service) lockFor(threadID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	lock, exists := s.locks[threadID]
	if !exists {
		lock = &sync.Mutex{}
		s.locks[threadID] = lock
	}
	return lock
}

// HandleTurn processes one user turn on a thread.
//
// The turn sequence: append the user message, retrieve reviews, build
// the prompt from persona + reviews + conversation window, generate
// once, append the assistant message on success, then compact history
// best-effort. Generation gets a single attempt; provider-side retry
// policy lives in the LLM clients, not here. On generation failure the
// fallback text is returned and no assistant message is recorded, so a
// retried question sees a consistent history.
func (s *Service) HandleTurn(ctx context.Context, req *interfaces.ChatRequest) (*interfaces.ChatResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("chat request cannot be nil")
	}
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		return nil, fmt.Errorf("thread_id is required")
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("message cannot be empty")
	}

	// Two turns on the same thread run serially, start to finish
	lock := s.lockFor(threadID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	s.logger.Debug().
		Str("thread_id", threadID).
		Int("message_chars", len(message)).
		Msg("Processing chat turn")

	if err := s.store.Append(ctx, threadID, models.NewMessage(models.RoleUser, message)); err != nil {
		return nil, fmt.Errorf("failed to record user message: %w", err)
	}

	passages, degraded := s.retrievePassages(ctx, message, req.TopK)

	// The window already ends with the user message appended above
	window, err := s.store.GetContext(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation context: %w", err)
	}

	messages := s.buildTurnMessages(passages, degraded, window)

	response, err := s.generator.Generate(ctx, messages, nil)
	if err != nil {
		if ctx.Err() != nil {
			// Caller aborted mid-turn. The user message stays recorded
			// and no assistant message is appended.
			return nil, ctx.Err()
		}

		genErr := &models.GenerationUnavailableError{Provider: s.generator.Provider(), Err: err}
		s.logger.Warn().
			Err(genErr).
			Str("thread_id", threadID).
			Msg("Generation failed, returning fallback response")

		return &interfaces.ChatResponse{
			ThreadID: threadID,
			Message:  s.persona.FallbackMessage,
			Passages: passages,
			Degraded: degraded,
			Fallback: true,
			Provider: s.generator.Provider(),
		}, nil
	}
	response = strings.TrimSpace(response)

	if err := s.store.Append(ctx, threadID, models.NewMessage(models.RoleAssistant, response)); err != nil {
		return nil, fmt.Errorf("failed to record assistant message: %w", err)
	}

	// Best-effort compaction; a failed summary never fails the turn
	if _, err := s.store.MaybeSummarize(ctx, threadID); err != nil {
		s.logger.Warn().
			Err(err).
			Str("thread_id", threadID).
			Msg("History summarization failed, will retry at next trigger")
	}

	s.logger.Info().
		Str("thread_id", threadID).
		Int("passages", len(passages)).
		Str("degraded", fmt.Sprintf("%v", degraded)).
		Dur("duration", time.Since(start)).
		Msg("Chat turn completed")

	return &interfaces.ChatResponse{
		ThreadID: threadID,
		Message:  response,
		Passages: passages,
		Degraded: degraded,
		Provider: s.generator.Provider(),
	}, nil
}

// retrievePassages runs the review search for one turn. Any retrieval
// failure degrades the turn to contextless generation.
func (s *Service) retrievePassages(ctx context.Context, query string, topK int) ([]models.RetrievedPassage, bool) {
	passages, err := s.retriever.Search(ctx, query, topK)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Msg("Retrieval unavailable, generating without review context")
		return nil, true
	}
	return passages, false
}

// buildTurnMessages constructs the LLM prompt: the persona system
// prompt augmented with review context (or the no-context note on a
// degraded turn), followed by the conversation window.
func (s *Service) buildTurnMessages(passages []models.RetrievedPassage, degraded bool, window []models.Message) []models.Message {
	systemPrompt := s.persona.SystemPrompt
	if degraded {
		systemPrompt = fmt.Sprintf("%s\n\n%s", systemPrompt, noContextNote)
	} else if contextText := buildReviewContext(passages, s.maxChars); contextText != "" {
		systemPrompt = fmt.Sprintf("%s\n\n%s", systemPrompt, contextText)
	}

	messages := make([]models.Message, 0, len(window)+1)
	messages = append(messages, models.Message{Role: models.RoleSystem, Content: systemPrompt})
	messages = append(messages, window...)
	return messages
}

// HealthCheck verifies the chat service is operational
func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.generator.HealthCheck(ctx); err != nil {
		return fmt.Errorf("LLM service unhealthy: %w", err)
	}
	if err := s.retriever.HealthCheck(ctx); err != nil {
		return fmt.Errorf("retriever unhealthy: %w", err)
	}
	return nil
}
