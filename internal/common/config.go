package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/suadeo/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment  string             `toml:"environment"` // "development" or "production"
	Server       ServerConfig       `toml:"server"`
	Storage      StorageConfig      `toml:"storage"`
	Logging      LoggingConfig      `toml:"logging"`
	LLM          LLMConfig          `toml:"llm"`
	Gemini       GeminiConfig       `toml:"gemini"`
	Claude       ClaudeConfig       `toml:"claude"`
	Index        IndexConfig        `toml:"index"`
	Retrieval    RetrievalConfig    `toml:"retrieval"`
	Conversation ConversationConfig `toml:"conversation"`
	Chat         ChatConfig         `toml:"chat"`
	Ingest       IngestConfig       `toml:"ingest"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=debug info warn error"` // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`                                      // "json" or "text"
	Output     []string `toml:"output"`                                      // "stdout", "file"
	TimeFormat string   `toml:"time_format"`                                 // Time format for logs (default: "15:04:05")
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"oneof=gemini claude"` // "gemini" or "claude" (default: "gemini")
}

// GeminiConfig contains Google Gemini API configuration.
// Gemini always provides embeddings, even when Claude handles generation.
type GeminiConfig struct {
	APIKey             string  `toml:"api_key"`             // Google Gemini API key
	Model              string  `toml:"model"`               // Model for chat and summarization (default: "gemini-2.0-flash")
	EmbeddingModel     string  `toml:"embedding_model"`     // Model for embeddings (default: "text-embedding-004")
	EmbeddingDimension int     `toml:"embedding_dimension"` // Output dimensionality (default: 768)
	Timeout            string  `toml:"timeout"`             // Operation timeout as duration string (default: "2m")
	RateLimit          string  `toml:"rate_limit"`          // Minimum interval between requests (default: "4s" for 15 RPM)
	Temperature        float32 `toml:"temperature"`         // Chat completion temperature (default: 0.7)
	MaxTokens          int     `toml:"max_tokens"`          // Maximum tokens in response (default: 2048)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key (ANTHROPIC_API_KEY or config)
	Model       string  `toml:"model"`       // Model for chat and summarization (default: "claude-haiku-3-5-20241022")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 2048)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Minimum interval between requests (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// IndexBackend identifies which vector index implementation to use
type IndexBackend string

const (
	// IndexBackendMemory keeps vectors in process memory, hydrated from Badger on startup
	IndexBackendMemory IndexBackend = "memory"
	// IndexBackendQdrant uses a Qdrant server over its REST API
	IndexBackendQdrant IndexBackend = "qdrant"
	// IndexBackendWeaviate uses a Weaviate server via the official Go client
	IndexBackendWeaviate IndexBackend = "weaviate"
)

// IndexConfig contains vector index configuration
type IndexConfig struct {
	Backend  IndexBackend   `toml:"backend" validate:"oneof=memory qdrant weaviate"` // "memory", "qdrant", or "weaviate"
	Qdrant   QdrantConfig   `toml:"qdrant"`
	Weaviate WeaviateConfig `toml:"weaviate"`
}

// QdrantConfig contains Qdrant REST API configuration
type QdrantConfig struct {
	URL        string `toml:"url"`        // Base URL (default: "http://localhost:6333")
	APIKey     string `toml:"api_key"`    // Optional api-key header
	Collection string `toml:"collection"` // Collection name (default: "reviews")
}

// WeaviateConfig contains Weaviate client configuration
type WeaviateConfig struct {
	Host   string `toml:"host"`    // Host:port (default: "localhost:8080")
	Scheme string `toml:"scheme"`  // "http" or "https" (default: "http")
	APIKey string `toml:"api_key"` // Optional API key auth
	Class  string `toml:"class"`   // Class name (default: "Review")
}

// RetrievalConfig controls how passages are retrieved for each chat turn
type RetrievalConfig struct {
	TopK     int     `toml:"top_k" validate:"min=1"`     // Number of passages to retrieve (default: 3)
	MinScore float32 `toml:"min_score" validate:"gte=0"` // Minimum similarity score, 0 disables filtering
}

// ConversationConfig controls thread summarization and eviction
type ConversationConfig struct {
	SummarizeAfter   int    `toml:"summarize_after" validate:"min=2"`  // Summarize once this many messages accumulate since the last summary (default: 10)
	RetainTail       int    `toml:"retain_tail" validate:"min=1"`      // Most recent messages kept verbatim after summarization (default: 4)
	IdleTTLMinutes   int    `toml:"idle_ttl_minutes" validate:"min=0"` // Evict threads idle longer than this, 0 disables (default: 1440)
	EvictionSchedule string `toml:"eviction_schedule"`                 // Cron schedule for the eviction sweep (default: "*/30 * * * *")
}

// ChatConfig controls the chat orchestrator
type ChatConfig struct {
	PersonaFile     string `toml:"persona_file"`                       // Optional YAML file overriding the built-in persona
	FallbackMessage string `toml:"fallback_message"`                   // Returned when generation fails (default built-in)
	MaxPassageChars int    `toml:"max_passage_chars" validate:"gte=0"` // Truncation limit per review in the prompt, 0 disables (default: 1200)
}

// IngestConfig controls CSV review ingestion
type IngestConfig struct {
	BatchSize     int  `toml:"batch_size" validate:"min=1"` // Reviews persisted per index upsert (default: 64)
	NormalizeHTML bool `toml:"normalize_html"`              // Convert HTML review bodies to markdown (default: true)
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in suadeo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development", // Default to development mode
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",                     // Info level for production (debug|info|warn|error)
			Format:     "text",                     // Human-readable text format (text|json)
			Output:     []string{"stdout", "file"}, // Log to both console and file
			TimeFormat: "15:04:05",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini, // Gemini covers both embeddings and generation
		},
		Gemini: GeminiConfig{
			APIKey:             "", // User must provide API key (no fallback)
			Model:              "gemini-2.0-flash",
			EmbeddingModel:     "text-embedding-004",
			EmbeddingDimension: 768,
			Timeout:            "2m",
			RateLimit:          "4s", // Default to 4s (15 RPM) for free tier
			Temperature:        0.7,
			MaxTokens:          2048,
		},
		Claude: ClaudeConfig{
			APIKey:      "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   2048,
			Timeout:     "2m",
			RateLimit:   "1s",
			Temperature: 0.7,
		},
		Index: IndexConfig{
			Backend: IndexBackendMemory, // Zero-dependency default, hydrated from Badger
			Qdrant: QdrantConfig{
				URL:        "http://localhost:6333",
				Collection: "reviews",
			},
			Weaviate: WeaviateConfig{
				Host:   "localhost:8080",
				Scheme: "http",
				Class:  "Review",
			},
		},
		Retrieval: RetrievalConfig{
			TopK:     3,
			MinScore: 0, // No threshold by default
		},
		Conversation: ConversationConfig{
			SummarizeAfter:   10,
			RetainTail:       4,
			IdleTTLMinutes:   1440,           // Evict threads idle for a day
			EvictionSchedule: "*/30 * * * *", // Sweep every 30 minutes
		},
		Chat: ChatConfig{
			PersonaFile:     "",
			FallbackMessage: "",   // Empty means use the built-in fallback text
			MaxPassageChars: 1200, // Keep prompts bounded for long review bodies
		},
		Ingest: IngestConfig{
			BatchSize:     64,
			NormalizeHTML: true,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// Priority system: CLI flags > Environment variables > Config file > Defaults
// kvStorage can be nil for backward compatibility (replacement will be skipped)
func LoadFromFile(kvStorage interfaces.KeyValueStorage, path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles(kvStorage)
	}
	return LoadFromFiles(kvStorage, path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files.
// Example: LoadFromFiles(kvStorage, "base.toml", "override.toml") - override.toml settings take precedence over base.toml
// kvStorage can be nil (replacement will be skipped)
func LoadFromFiles(kvStorage interfaces.KeyValueStorage, paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Perform {key-name} replacement if KV storage is available
	if kvStorage != nil {
		ctx := context.Background()
		kvMap, err := kvStorage.GetAll(ctx)
		if err != nil {
			// Log warning and skip replacement (graceful degradation)
			logger := arbor.NewLogger()
			logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
		} else {
			logger := arbor.NewLogger()
			if err := ReplaceInStruct(config, kvMap, logger); err != nil {
				logger.Warn().Err(err).Msg("Failed to replace key references in config")
			} else if len(kvMap) > 0 {
				logger.Info().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
			}
		}
	}

	// Apply environment variables (overrides all file configs and replacements)
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: SUADEO_ENV, fallback: GO_ENV)
	if env := os.Getenv("SUADEO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("SUADEO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SUADEO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("SUADEO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("SUADEO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("SUADEO_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("SUADEO_LOG_OUTPUT"); output != "" {
		// Split comma-separated output types
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// LLM provider configuration
	if provider := os.Getenv("SUADEO_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	// Gemini configuration
	// SUADEO_ prefix takes priority, then the standard Google env vars
	if apiKey := os.Getenv("SUADEO_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("SUADEO_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if model := os.Getenv("SUADEO_GEMINI_EMBEDDING_MODEL"); model != "" {
		config.Gemini.EmbeddingModel = model
	}
	if dim := os.Getenv("SUADEO_GEMINI_EMBEDDING_DIMENSION"); dim != "" {
		if d, err := strconv.Atoi(dim); err == nil && d > 0 {
			config.Gemini.EmbeddingDimension = d
		}
	}
	if timeout := os.Getenv("SUADEO_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}
	if rateLimit := os.Getenv("SUADEO_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}
	if temperature := os.Getenv("SUADEO_GEMINI_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Gemini.Temperature = float32(t)
		}
	}
	if maxTokens := os.Getenv("SUADEO_GEMINI_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Gemini.MaxTokens = mt
		}
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("SUADEO_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // SUADEO_ prefix takes priority
	}
	if model := os.Getenv("SUADEO_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if maxTokens := os.Getenv("SUADEO_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}
	if timeout := os.Getenv("SUADEO_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}
	if rateLimit := os.Getenv("SUADEO_CLAUDE_RATE_LIMIT"); rateLimit != "" {
		config.Claude.RateLimit = rateLimit
	}
	if temperature := os.Getenv("SUADEO_CLAUDE_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Claude.Temperature = float32(t)
		}
	}

	// Index configuration
	if backend := os.Getenv("SUADEO_INDEX_BACKEND"); backend != "" {
		config.Index.Backend = IndexBackend(backend)
	}
	if url := os.Getenv("SUADEO_QDRANT_URL"); url != "" {
		config.Index.Qdrant.URL = url
	}
	if apiKey := os.Getenv("SUADEO_QDRANT_API_KEY"); apiKey != "" {
		config.Index.Qdrant.APIKey = apiKey
	}
	if collection := os.Getenv("SUADEO_QDRANT_COLLECTION"); collection != "" {
		config.Index.Qdrant.Collection = collection
	}
	if host := os.Getenv("SUADEO_WEAVIATE_HOST"); host != "" {
		config.Index.Weaviate.Host = host
	}
	if scheme := os.Getenv("SUADEO_WEAVIATE_SCHEME"); scheme != "" {
		config.Index.Weaviate.Scheme = scheme
	}
	if apiKey := os.Getenv("SUADEO_WEAVIATE_API_KEY"); apiKey != "" {
		config.Index.Weaviate.APIKey = apiKey
	}
	if class := os.Getenv("SUADEO_WEAVIATE_CLASS"); class != "" {
		config.Index.Weaviate.Class = class
	}

	// Retrieval configuration
	if topK := os.Getenv("SUADEO_RETRIEVAL_TOP_K"); topK != "" {
		if k, err := strconv.Atoi(topK); err == nil && k > 0 {
			config.Retrieval.TopK = k
		}
	}
	if minScore := os.Getenv("SUADEO_RETRIEVAL_MIN_SCORE"); minScore != "" {
		if s, err := strconv.ParseFloat(minScore, 32); err == nil && s >= 0 {
			config.Retrieval.MinScore = float32(s)
		}
	}

	// Conversation configuration
	if after := os.Getenv("SUADEO_CONVERSATION_SUMMARIZE_AFTER"); after != "" {
		if a, err := strconv.Atoi(after); err == nil && a > 1 {
			config.Conversation.SummarizeAfter = a
		}
	}
	if tail := os.Getenv("SUADEO_CONVERSATION_RETAIN_TAIL"); tail != "" {
		if rt, err := strconv.Atoi(tail); err == nil && rt > 0 {
			config.Conversation.RetainTail = rt
		}
	}
	if ttl := os.Getenv("SUADEO_CONVERSATION_IDLE_TTL_MINUTES"); ttl != "" {
		if m, err := strconv.Atoi(ttl); err == nil && m >= 0 {
			config.Conversation.IdleTTLMinutes = m
		}
	}
	if schedule := os.Getenv("SUADEO_CONVERSATION_EVICTION_SCHEDULE"); schedule != "" {
		config.Conversation.EvictionSchedule = schedule
	}

	// Chat configuration
	if personaFile := os.Getenv("SUADEO_CHAT_PERSONA_FILE"); personaFile != "" {
		config.Chat.PersonaFile = personaFile
	}
	if fallback := os.Getenv("SUADEO_CHAT_FALLBACK_MESSAGE"); fallback != "" {
		config.Chat.FallbackMessage = fallback
	}

	// Ingest configuration
	if batchSize := os.Getenv("SUADEO_INGEST_BATCH_SIZE"); batchSize != "" {
		if bs, err := strconv.Atoi(batchSize); err == nil && bs > 0 {
			config.Ingest.BatchSize = bs
		}
	}
	if normalize := os.Getenv("SUADEO_INGEST_NORMALIZE_HTML"); normalize != "" {
		if n, err := strconv.ParseBool(normalize); err == nil {
			config.Ingest.NormalizeHTML = n
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration using validator tags plus the cross-field
// rules that tags cannot express. Call after all overrides are applied.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The verbatim tail must be smaller than the summarization trigger,
	// otherwise every summarization pass would cover zero messages.
	if c.Conversation.RetainTail >= c.Conversation.SummarizeAfter {
		return fmt.Errorf("conversation.retain_tail (%d) must be less than conversation.summarize_after (%d)",
			c.Conversation.RetainTail, c.Conversation.SummarizeAfter)
	}

	if c.Conversation.IdleTTLMinutes > 0 && c.Conversation.EvictionSchedule != "" {
		if err := ValidateCronSchedule(c.Conversation.EvictionSchedule); err != nil {
			return fmt.Errorf("invalid conversation.eviction_schedule: %w", err)
		}
	}

	return nil
}

// ResolveAPIKey resolves an API key by name with environment variable priority
// Resolution order: environment variables → KV store → config fallback → error
// This ensures SUADEO_* environment variables always take precedence
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	// Map of KV store key names to environment variable names
	// Environment variables have highest priority
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"SUADEO_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"google_api_key":    {"SUADEO_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}, // Legacy KV store key
		"anthropic_api_key": {"SUADEO_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"claude_api_key":    {"SUADEO_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	}

	// Check environment variables (highest priority)
	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// Try to resolve from KV store (medium priority - file-based variables)
	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	// Fallback to config value (lowest priority)
	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// ValidateCronSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateCronSchedule(schedule string) error {
	// Parse the cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Check for minimum 5-minute interval
	// Validate minute field (first field in standard cron)
	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	// Check for patterns that violate 5-minute minimum
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	// Check for */n patterns where n < 5
	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
