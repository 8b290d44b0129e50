// -----------------------------------------------------------------------
// Last Modified: Monday, 15th December 2025 5:05:42 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/handlers"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/services/chat"
	"github.com/ternarybob/suadeo/internal/services/conversations"
	"github.com/ternarybob/suadeo/internal/services/embeddings"
	"github.com/ternarybob/suadeo/internal/services/index"
	"github.com/ternarybob/suadeo/internal/services/ingest"
	"github.com/ternarybob/suadeo/internal/services/kv"
	"github.com/ternarybob/suadeo/internal/services/llm"
	"github.com/ternarybob/suadeo/internal/services/retriever"
	"github.com/ternarybob/suadeo/internal/services/status"
	"github.com/ternarybob/suadeo/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// LLM providers (generator + embedder pair)
	LLMServices *llm.Services

	// RAG pipeline
	EmbeddingService interfaces.EmbeddingService
	VectorIndex      interfaces.VectorIndex
	Retriever        interfaces.Retriever
	IngestService    interfaces.IngestService

	// Conversation state
	ConversationStore interfaces.ConversationStore
	Janitor           *conversations.Janitor

	// Chat orchestrator
	ChatService interfaces.ChatService

	// Key/value settings (provider API keys)
	KVService *kv.Service

	// Application status
	StatusService *status.Service

	// HTTP handlers
	APIHandler    *handlers.APIHandler
	ChatHandler   *handlers.ChatHandler
	ThreadHandler *handlers.ThreadHandler
	ReviewHandler *handlers.ReviewHandler
	IngestHandler *handlers.IngestHandler
	StatusHandler *handlers.StatusHandler
	KVHandler     *handlers.KVHandler
	WSHandler     *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	app.initHandlers()

	logger.Info().
		Str("provider", string(cfg.LLM.DefaultProvider)).
		Str("index", string(cfg.Index.Backend)).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Load key/value pairs from .env and variables.toml so provider API
	// keys can live outside the config file
	if err := a.StorageManager.LoadEnvFile(context.Background(), ".env"); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load .env file")
	}
	if err := a.StorageManager.LoadVariablesFile(context.Background(), "variables.toml"); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load variables file")
	}

	// Resolve {key-name} references in config against the KV store.
	// Must happen before the LLM providers read their API keys.
	a.KVService = kv.NewService(a.StorageManager.KVStorage(), a.Logger)
	if err := a.KVService.ResolveInto(context.Background(), a.Config); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to resolve key references in config")
	}

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	var err error

	// LLM provider pair. A missing or unresolvable API key fails
	// startup; runtime provider outages degrade per turn instead.
	a.LLMServices, err = llm.NewServices(a.Config, a.StorageManager.KVStorage(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM services: %w", err)
	}

	if err := a.LLMServices.Generator.HealthCheck(context.Background()); err != nil {
		a.Logger.Warn().Err(err).Msg("LLM provider health check failed - chat turns will use the fallback reply until it recovers")
	} else {
		a.Logger.Debug().Msg("LLM provider health check passed")
	}

	// Embedding service wraps the embedding provider
	a.EmbeddingService = embeddings.NewService(a.LLMServices.Embedder, a.Logger)

	// Vector index backend
	a.VectorIndex, err = index.NewVectorIndex(a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector index: %w", err)
	}
	a.Logger.Debug().Str("backend", a.VectorIndex.Name()).Msg("Vector index initialized")

	// Ingestion service
	a.IngestService = ingest.NewService(
		a.StorageManager.ReviewStorage(),
		a.EmbeddingService,
		a.VectorIndex,
		&a.Config.Ingest,
		a.Logger,
	)

	// Rebuild a volatile index from persisted vectors
	count, err := a.VectorIndex.Count(context.Background())
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to count indexed vectors")
	} else if count == 0 {
		restored, err := a.IngestService.Hydrate(context.Background())
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to hydrate vector index from storage")
		} else if restored > 0 {
			a.Logger.Info().Int("vectors", restored).Msg("Vector index hydrated from storage")
		}
	}

	// Retrieval service
	a.Retriever = retriever.NewService(
		a.EmbeddingService,
		a.VectorIndex,
		&a.Config.Retrieval,
		a.Logger,
	)

	// Conversation store with the generator as summarizer
	a.ConversationStore = conversations.NewStore(
		a.StorageManager.ThreadStorage(),
		a.LLMServices.Generator,
		&a.Config.Conversation,
		a.Logger,
	)

	// Idle thread eviction sweeper
	a.Janitor = conversations.NewJanitor(a.ConversationStore, &a.Config.Conversation, a.Logger)
	if err := a.Janitor.Start(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to start thread eviction janitor")
	}

	// Chat orchestrator
	a.ChatService, err = chat.NewService(
		a.Retriever,
		a.ConversationStore,
		a.LLMServices.Generator,
		&a.Config.Chat,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize chat service: %w", err)
	}
	a.Logger.Debug().Msg("Chat service initialized")

	// Status service
	a.StatusService = status.NewService(
		a.StorageManager.ReviewStorage(),
		a.ConversationStore,
		a.Logger,
	)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.ChatHandler = handlers.NewChatHandler(a.ChatService, a.Logger)
	a.ThreadHandler = handlers.NewThreadHandler(a.ConversationStore, a.Logger)
	a.ReviewHandler = handlers.NewReviewHandler(a.StorageManager.ReviewStorage(), a.Retriever, a.Logger)
	a.IngestHandler = handlers.NewIngestHandler(a.IngestService, a.StatusService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.StatusService, a.Logger)
	a.KVHandler = handlers.NewKVHandler(a.KVService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.ChatService, a.Logger)
}

// Close closes all application resources
func (a *App) Close() error {
	if a.Janitor != nil {
		a.Janitor.Stop()
	}

	if a.LLMServices != nil {
		if err := a.LLMServices.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM services")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
