package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
)

// GeminiService implements LLMService against the Google GenAI API.
// It is the only provider that produces embeddings, so it is always
// constructed even when Claude handles generation.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
	limiter *rate.Limiter
	retry   *GeminiRetryConfig
}

// convertMessagesToGemini converts []models.Message to Gemini Content format.
// Maps Role values to provider's expected values and maintains chronological
// ordering. System messages are extracted separately for SystemInstruction;
// multiple system messages (persona plus a thread summary) concatenate in
// order. Returns the user/model messages, the system text (if any), and an
// error.
func convertMessagesToGemini(messages []models.Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == models.RoleUser {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemParts []string
	for _, msg := range messages {
		// System messages become the SystemInstruction, not content turns
		if msg.Role == models.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}

		var geminiRole string
		switch msg.Role {
		case models.RoleAssistant:
			geminiRole = genai.RoleModel
		default:
			geminiRole = genai.RoleUser
		}

		part := genai.NewPartFromText(msg.Content)
		contents = append(contents, &genai.Content{
			Role:  geminiRole,
			Parts: []*genai.Part{part},
		})
	}

	return contents, strings.Join(systemParts, "\n\n"), nil
}

// NewGeminiService creates a Gemini-backed LLM service.
//
// The API key resolves from environment variables, then the KV store,
// then the config value. The rate limiter paces outbound calls at the
// configured minimum interval so free-tier quotas survive batch
// embedding runs.
func NewGeminiService(config *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (*GeminiService, error) {
	ctx := context.Background()
	apiKey, err := common.ResolveAPIKey(ctx, kvStorage, "gemini_api_key", config.Gemini.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY, seed the KV store, or set gemini.api_key in config): %w", err)
	}

	timeout, err := time.ParseDuration(config.Gemini.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid gemini timeout duration '%s': %w", config.Gemini.Timeout, err)
	}

	var limiter *rate.Limiter
	if config.Gemini.RateLimit != "" {
		interval, err := time.ParseDuration(config.Gemini.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid gemini rate_limit duration '%s': %w", config.Gemini.RateLimit, err)
		}
		if interval > 0 {
			limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiService{
		config:  &config.Gemini,
		logger:  logger,
		client:  client,
		timeout: timeout,
		limiter: limiter,
		retry:   NewDefaultRetryConfig(),
	}

	logger.Info().
		Str("model", config.Gemini.Model).
		Str("embedding_model", config.Gemini.EmbeddingModel).
		Int("embedding_dimension", config.Gemini.EmbeddingDimension).
		Str("rate_limit", config.Gemini.RateLimit).
		Dur("timeout", timeout).
		Msg("Gemini LLM service initialized")

	return service, nil
}

// Embed generates an embedding vector for the given text using the
// configured embedding model and output dimensionality.
func (s *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty for embedding generation")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.wait(timeoutCtx); err != nil {
		return nil, err
	}

	startTime := time.Now()

	embedding, err := s.generateEmbedding(timeoutCtx, text)
	if err != nil {
		s.logger.Error().
			Err(err).
			Int("text_length", len(text)).
			Msg("Embedding generation failed")
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	s.logger.Debug().
		Int("text_length", len(text)).
		Int("embedding_dim", len(embedding)).
		Dur("duration", time.Since(startTime)).
		Msg("Embedding generation completed")

	return embedding, nil
}

// Generate produces a completion for the conversation using the chat model.
// The messages slice carries the full prompt in chronological order.
func (s *GeminiService) Generate(ctx context.Context, messages []models.Message, opts *interfaces.GenerateOptions) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty for chat completion")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.wait(timeoutCtx); err != nil {
		return "", err
	}

	startTime := time.Now()

	response, err := s.generateCompletion(timeoutCtx, messages, opts)
	if err != nil {
		s.logger.Error().
			Err(err).
			Int("message_count", len(messages)).
			Msg("Chat completion failed")
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	s.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", len(response)).
		Dur("duration", time.Since(startTime)).
		Msg("Chat completion completed")

	return response, nil
}

// EmbeddingDimension returns the configured output dimensionality.
func (s *GeminiService) EmbeddingDimension() int {
	return s.config.EmbeddingDimension
}

// EmbeddingModel returns the embedding model identifier.
func (s *GeminiService) EmbeddingModel() string {
	return s.config.EmbeddingModel
}

// Provider returns "gemini".
func (s *GeminiService) Provider() string {
	return string(common.LLMProviderGemini)
}

// HealthCheck verifies the service can reach both the embedding and chat
// models with lightweight probes.
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("genai client is not initialized")
	}

	if err := s.probeEmbedding(ctx); err != nil {
		return fmt.Errorf("embedding model health check failed: %w", err)
	}

	if err := s.probeChat(ctx); err != nil {
		return fmt.Errorf("chat model health check failed: %w", err)
	}

	s.logger.Info().
		Str("model", s.config.Model).
		Str("embedding_model", s.config.EmbeddingModel).
		Msg("Gemini LLM service health check passed")

	return nil
}

// probeEmbedding exercises the embedding model with a static string.
// Uses a 5s timeout to avoid false negatives on cold connections.
func (s *GeminiService) probeEmbedding(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	embedding, err := s.generateEmbedding(probeCtx, "health check probe")
	if err != nil {
		return fmt.Errorf("embedding probe failed: %w", err)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("embedding probe returned empty vector")
	}

	return nil
}

// probeChat exercises the chat model with a minimal single-turn prompt.
func (s *GeminiService) probeChat(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	response, err := s.generateCompletion(probeCtx, []models.Message{
		{Role: models.RoleUser, Content: "ping"},
	}, nil)
	if err != nil {
		return fmt.Errorf("chat probe failed: %w", err)
	}
	if len(strings.TrimSpace(response)) == 0 {
		return fmt.Errorf("chat probe returned empty response")
	}

	return nil
}

// Close releases the client reference. The genai.Client doesn't require
// explicit cleanup beyond this.
func (s *GeminiService) Close() error {
	s.logger.Info().Msg("Closing Gemini LLM service")
	s.client = nil
	return nil
}

// wait blocks until the rate limiter admits the next request.
func (s *GeminiService) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// generateEmbedding calls EmbedContent with the configured output
// dimensionality and validates the returned vector length. Rate limit
// errors are retried with backoff from the API-suggested delay.
func (s *GeminiService) generateEmbedding(ctx context.Context, text string) ([]float32, error) {
	outputDim := int32(s.config.EmbeddingDimension)
	embeddingConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	var result *genai.EmbedContentResponse
	var apiErr error

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		result, apiErr = s.client.Models.EmbedContent(ctx, s.config.EmbeddingModel, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, embeddingConfig)
		if apiErr == nil {
			break
		}

		if attempt == s.retry.MaxRetries || !IsRateLimitError(apiErr) {
			break
		}

		apiDelay := ExtractRetryDelay(apiErr)
		backoff := s.retry.CalculateBackoff(attempt, apiDelay)

		s.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Rate limited, retrying embedding call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return nil, apiErr
	}

	var embedding []float32
	if result != nil && len(result.Embeddings) > 0 {
		embedding = result.Embeddings[0].Values
	}
	if embedding == nil {
		return nil, fmt.Errorf("no embedding returned from API")
	}

	if len(embedding) != s.config.EmbeddingDimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.config.EmbeddingDimension, len(embedding))
	}

	return embedding, nil
}

// generateCompletion calls GenerateContent with temperature and system
// instruction from config, overridable per call via opts.
func (s *GeminiService) generateCompletion(ctx context.Context, messages []models.Message, opts *interfaces.GenerateOptions) (string, error) {
	geminiContents, systemText, err := convertMessagesToGemini(messages)
	if err != nil {
		return "", fmt.Errorf("failed to convert messages to Gemini format: %w", err)
	}

	temp := s.config.Temperature
	if opts != nil && opts.Temperature != nil {
		temp = *opts.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}

	maxTokens := s.config.MaxTokens
	if opts != nil && opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}

	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	var resp *genai.GenerateContentResponse
	var apiErr error

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		resp, apiErr = s.client.Models.GenerateContent(ctx, s.config.Model, geminiContents, config)
		if apiErr == nil {
			break
		}

		if attempt == s.retry.MaxRetries || !IsRateLimitError(apiErr) {
			break
		}

		apiDelay := ExtractRetryDelay(apiErr)
		backoff := s.retry.CalculateBackoff(attempt, apiDelay)

		s.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Rate limited, retrying chat call")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return "", fmt.Errorf("chat generation failed: %w", apiErr)
	}

	// Iterate candidates until non-empty text is found
	var response strings.Builder
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from chat model")
	}

	return response.String(), nil
}
