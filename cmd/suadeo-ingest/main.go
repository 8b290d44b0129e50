// -----------------------------------------------------------------------
// Last Modified: Tuesday, 16th December 2025 9:05:00 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

// Command suadeo-ingest loads a product review CSV into the corpus,
// embeds the rows, and indexes the vectors. It shares the server's
// configuration file so both point at the same storage and index.
// With -reset it clears the corpus and the index instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/services/embeddings"
	"github.com/ternarybob/suadeo/internal/services/index"
	"github.com/ternarybob/suadeo/internal/services/ingest"
	"github.com/ternarybob/suadeo/internal/services/kv"
	"github.com/ternarybob/suadeo/internal/services/llm"
	"github.com/ternarybob/suadeo/internal/storage"
)

type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	filePath     = flag.String("file", "", "Path to the review CSV file (required unless -reset)")
	filePathF    = flag.String("f", "", "Path to the review CSV file (shorthand)")
	loadExisting = flag.Bool("load-existing", false, "Keep the existing corpus and only embed new rows")
	resetCorpus  = flag.Bool("reset", false, "Clear the persisted corpus and the vector index (exits unless -file is given)")
	showVersion  = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	flag.Parse()

	common.LoadVersionFromFile()

	if *showVersion {
		fmt.Printf("Suadeo version %s\n", common.GetVersion())
		os.Exit(0)
	}

	file := *filePath
	if *filePathF != "" {
		file = *filePathF
	}
	if file == "" && !*resetCorpus {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		flag.Usage()
		os.Exit(1)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("suadeo.toml"); err == nil {
			configFiles = append(configFiles, "suadeo.toml")
		} else if _, err := os.Stat("deployments/local/suadeo.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/suadeo.toml")
		}
	}

	config, err := common.LoadFromFiles(nil, configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	if err := config.Validate(); err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)

	// Ctrl+C aborts the run; a partial ingest is surfaced as an error
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, logger, file, *loadExisting, *resetCorpus); err != nil {
		logger.Error().Err(err).Msg("Ingestion failed")
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, config *common.Config, logger arbor.ILogger, file string, loadExisting, reset bool) error {
	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	defer storageManager.Close()

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

	vectorIndex, err := index.NewVectorIndex(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector index: %w", err)
	}

	// A reset needs no provider credentials: wipe storage and index, then
	// ingest only when a file was also given
	if reset {
		if err := storageManager.ReviewStorage().ClearAll(ctx); err != nil {
			return fmt.Errorf("failed to clear review corpus: %w", err)
		}
		if err := vectorIndex.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset vector index: %w", err)
		}
		logger.Info().Str("index", vectorIndex.Name()).Msg("Corpus and vector index cleared")
		fmt.Println("Corpus and vector index cleared")
		if file == "" {
			return nil
		}
	}

	llmServices, err := llm.NewServices(config, storageManager.KVStorage(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM services: %w", err)
	}
	defer llmServices.Close()

	embedder := embeddings.NewService(llmServices.Embedder, logger)

	ingestService := ingest.NewService(
		storageManager.ReviewStorage(),
		embedder,
		vectorIndex,
		&config.Ingest,
		logger,
	)

	logger.Info().
		Str("file", file).
		Str("load_existing", fmt.Sprintf("%v", loadExisting)).
		Str("index", vectorIndex.Name()).
		Msg("Starting ingestion")

	stats, err := ingestService.Run(ctx, file, loadExisting)
	if err != nil {
		return err
	}

	fmt.Printf("Ingestion complete\n")
	fmt.Printf("  Reviews loaded:  %d\n", stats.ReviewsLoaded)
	fmt.Printf("  Reviews skipped: %d\n", stats.ReviewsSkipped)
	fmt.Printf("  Embedded:        %d\n", stats.Embedded)
	fmt.Printf("  Indexed:         %d\n", stats.Indexed)
	fmt.Printf("  Embedding model: %s\n", stats.EmbeddingModel)

	return nil
}
