package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
)

// ClaudeService implements LLMService against the Anthropic API.
// Claude has no embeddings endpoint, so Embed always fails and the
// factory pairs this service with a Gemini embedder.
type ClaudeService struct {
	config  *common.ClaudeConfig
	logger  arbor.ILogger
	client  anthropic.Client
	timeout time.Duration
	limiter *rate.Limiter
	retry   *GeminiRetryConfig
}

// convertMessagesToClaude converts []models.Message to Claude MessageParam
// format. Maps Role values to provider's expected values and maintains
// chronological ordering. System messages are extracted separately for the
// System parameter; multiple system messages concatenate in order. Returns
// the user/assistant messages, the system text (if any), and an error.
func convertMessagesToClaude(messages []models.Message) ([]anthropic.MessageParam, string, error) {
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

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemParts []string
	for _, msg := range messages {
		// System messages become the System parameter, not content turns
		if msg.Role == models.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}

		switch msg.Role {
		case models.RoleAssistant:
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	return claudeMessages, strings.Join(systemParts, "\n\n"), nil
}

// NewClaudeService creates a Claude-backed LLM service.
//
// The API key resolves from environment variables (ANTHROPIC_API_KEY),
// then the KV store, then the config value.
func NewClaudeService(config *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (*ClaudeService, error) {
	ctx := context.Background()
	apiKey, err := common.ResolveAPIKey(ctx, kvStorage, "anthropic_api_key", config.Claude.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY, seed the KV store, or set claude.api_key in config): %w", err)
	}

	timeout, err := time.ParseDuration(config.Claude.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid claude timeout duration '%s': %w", config.Claude.Timeout, err)
	}

	var limiter *rate.Limiter
	if config.Claude.RateLimit != "" {
		interval, err := time.ParseDuration(config.Claude.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid claude rate_limit duration '%s': %w", config.Claude.RateLimit, err)
		}
		if interval > 0 {
			limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	service := &ClaudeService{
		config:  &config.Claude,
		logger:  logger,
		client:  client,
		timeout: timeout,
		limiter: limiter,
		retry:   NewDefaultRetryConfig(),
	}

	logger.Info().
		Str("model", config.Claude.Model).
		Int("max_tokens", config.Claude.MaxTokens).
		Str("rate_limit", config.Claude.RateLimit).
		Dur("timeout", timeout).
		Msg("Claude LLM service initialized")

	return service, nil
}

// Embed is not supported by the Anthropic API.
func (s *ClaudeService) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("claude provider does not support embeddings, configure gemini for embedding generation")
}

// Generate produces a completion for the conversation using the Messages API.
func (s *ClaudeService) Generate(ctx context.Context, messages []models.Message, opts *interfaces.GenerateOptions) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty for chat completion")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(timeoutCtx); err != nil {
			return "", err
		}
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

// EmbeddingDimension returns 0 since Claude does not embed.
func (s *ClaudeService) EmbeddingDimension() int {
	return 0
}

// EmbeddingModel returns "" since Claude does not embed.
func (s *ClaudeService) EmbeddingModel() string {
	return ""
}

// Provider returns "claude".
func (s *ClaudeService) Provider() string {
	return string(common.LLMProviderClaude)
}

// HealthCheck exercises the Messages API with a minimal single-turn prompt.
func (s *ClaudeService) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	response, err := s.generateCompletion(probeCtx, []models.Message{
		{Role: models.RoleUser, Content: "ping"},
	}, &interfaces.GenerateOptions{MaxTokens: 16})
	if err != nil {
		return fmt.Errorf("chat probe failed: %w", err)
	}
	if len(strings.TrimSpace(response)) == 0 {
		return fmt.Errorf("chat probe returned empty response")
	}

	s.logger.Info().
		Str("model", s.config.Model).
		Msg("Claude LLM service health check passed")

	return nil
}

// Close resets the client. The Anthropic client holds no connections
// that need explicit cleanup.
func (s *ClaudeService) Close() error {
	s.logger.Info().Msg("Closing Claude LLM service")
	s.client = anthropic.Client{}
	return nil
}

// generateCompletion calls the Messages API with model, max tokens,
// temperature and system text from config, overridable per call via opts.
// Rate limit errors are retried with backoff; other errors retry with a
// short linear delay.
func (s *ClaudeService) generateCompletion(ctx context.Context, messages []models.Message, opts *interfaces.GenerateOptions) (string, error) {
	claudeMessages, systemText, err := convertMessagesToClaude(messages)
	if err != nil {
		return "", fmt.Errorf("failed to convert messages to Claude format: %w", err)
	}

	maxTokens := s.config.MaxTokens
	if opts != nil && opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(maxTokens),
		Messages:  claudeMessages,
	}

	temp := s.config.Temperature
	if opts != nil && opts.Temperature != nil {
		temp = *opts.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}

	var resp *anthropic.Message
	var apiErr error

	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		resp, apiErr = s.client.Messages.New(ctx, params)
		if apiErr == nil {
			break
		}

		if attempt == s.retry.MaxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * 2 * time.Second
		if IsRateLimitError(apiErr) {
			backoff = s.retry.CalculateBackoff(attempt, 0)
		}

		s.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Claude API call")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return "", fmt.Errorf("Claude API call failed after %d retries: %w", s.retry.MaxRetries, apiErr)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from Claude API")
	}

	return text.String(), nil
}
