// Command suadeo-mcp exposes the review corpus and the recommender to
// MCP clients over stdio. It opens the same storage and index the
// server uses, so run it against a stopped server or a separate data
// directory.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/services/chat"
	"github.com/ternarybob/suadeo/internal/services/conversations"
	"github.com/ternarybob/suadeo/internal/services/embeddings"
	"github.com/ternarybob/suadeo/internal/services/index"
	"github.com/ternarybob/suadeo/internal/services/ingest"
	"github.com/ternarybob/suadeo/internal/services/kv"
	"github.com/ternarybob/suadeo/internal/services/llm"
	"github.com/ternarybob/suadeo/internal/services/retriever"
	"github.com/ternarybob/suadeo/internal/storage"
)

func main() {
	configPath := os.Getenv("SUADEO_CONFIG")
	if configPath == "" {
		configPath = "suadeo.toml"
	}

	config, err := common.LoadFromFile(nil, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Minimal warn-level console logger; stdout belongs to the MCP stdio
	// transport
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer storageManager.Close()

	ctx := context.Background()

	if err := storageManager.LoadEnvFile(ctx, ".env"); err != nil {
		logger.Warn().Err(err).Msg("Failed to load .env file")
	}
	if err := storageManager.LoadVariablesFile(ctx, "variables.toml"); err != nil {
		logger.Warn().Err(err).Msg("Failed to load variables file")
	}

	kvService := kv.NewService(storageManager.KVStorage(), logger)
	if err := kvService.ResolveInto(ctx, config); err != nil {
		logger.Warn().Err(err).Msg("Failed to resolve key references in config")
	}

	llmServices, err := llm.NewServices(config, storageManager.KVStorage(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize LLM services")
	}
	defer llmServices.Close()

	embedder := embeddings.NewService(llmServices.Embedder, logger)

	vectorIndex, err := index.NewVectorIndex(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize vector index")
	}

	// Rebuild a volatile index from persisted vectors
	ingestService := ingest.NewService(storageManager.ReviewStorage(), embedder, vectorIndex, &config.Ingest, logger)
	if count, err := vectorIndex.Count(ctx); err == nil && count == 0 {
		if _, err := ingestService.Hydrate(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to hydrate vector index from storage")
		}
	}

	retrieverService := retriever.NewService(embedder, vectorIndex, &config.Retrieval, logger)

	conversationStore := conversations.NewStore(
		storageManager.ThreadStorage(),
		llmServices.Generator,
		&config.Conversation,
		logger,
	)

	chatService, err := chat.NewService(
		retrieverService,
		conversationStore,
		llmServices.Generator,
		&config.Chat,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize chat service")
	}

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"suadeo",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Register corpus tools
	mcpServer.AddTool(createSearchReviewsTool(), handleSearchReviews(retrieverService, logger))
	mcpServer.AddTool(createGetReviewTool(), handleGetReview(storageManager.ReviewStorage(), logger))
	mcpServer.AddTool(createCorpusStatsTool(), handleCorpusStats(storageManager.ReviewStorage(), vectorIndex, logger))

	// Register the recommender tool
	mcpServer.AddTool(createRecommendTool(), handleRecommend(chatService, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
