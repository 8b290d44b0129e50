package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
	"github.com/ternarybob/suadeo/internal/services/workers"
)

// Embedding batches run across this many workers. The LLM rate limiter
// paces the actual API calls, so more workers mostly help when reusing
// persisted vectors.
const maxEmbedWorkers = 4

// Service turns a raw review CSV into an embedded, searchable corpus:
// parse, embed, persist, index.
type Service struct {
	reviews  interfaces.ReviewStorage
	embedder interfaces.EmbeddingService
	index    interfaces.VectorIndex
	config   *common.IngestConfig
	logger   arbor.ILogger
}

// NewService creates the ingestion service
func NewService(
	reviews interfaces.ReviewStorage,
	embedder interfaces.EmbeddingService,
	index interfaces.VectorIndex,
	config *common.IngestConfig,
	logger arbor.ILogger,
) interfaces.IngestService {
	return &Service{
		reviews:  reviews,
		embedder: embedder,
		index:    index,
		config:   config,
		logger:   logger,
	}
}

// Run ingests the review file at path.
//
// Without loadExisting the persisted corpus and the index are dropped
// and rebuilt from the file. With loadExisting, rows whose content
// matches an already-embedded review reuse the persisted vector and
// only new rows hit the embedder.
//
// Any failure aborts the run and surfaces to the operator; ingestion
// errors are never swallowed.
func (s *Service) Run(ctx context.Context, path string, loadExisting bool) (*interfaces.IngestStats, error) {
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ingest file: %w", err)
	}
	defer f.Close()

	reviews, err := s.Load(f)
	if err != nil {
		return nil, err
	}

	stats := &interfaces.IngestStats{
		ReviewsLoaded:  len(reviews),
		EmbeddingModel: s.embedder.ModelName(),
	}

	if err := s.index.Init(ctx, s.embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	if !loadExisting {
		// Full rebuild: drop the persisted corpus and the index
		if err := s.reviews.ClearAll(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear review corpus: %w", err)
		}
		if err := s.index.Reset(ctx); err != nil {
			return nil, fmt.Errorf("failed to reset vector index: %w", err)
		}
	} else {
		stats.ReviewsSkipped = s.reuseExistingVectors(ctx, reviews)
	}

	toEmbed := make([]*models.Review, 0, len(reviews))
	for _, review := range reviews {
		if !review.HasEmbedding() {
			toEmbed = append(toEmbed, review)
		}
	}

	if len(toEmbed) > 0 {
		if err := s.embedAll(ctx, toEmbed); err != nil {
			return nil, err
		}
		stats.Embedded = len(toEmbed)
	}

	// Persist before indexing so the corpus can always rebuild the index
	if err := s.reviews.SaveReviews(ctx, reviews); err != nil {
		return nil, fmt.Errorf("failed to persist reviews: %w", err)
	}

	if err := s.upsertBatches(ctx, reviews); err != nil {
		return nil, err
	}
	stats.Indexed = len(reviews)

	s.logger.Info().
		Int("loaded", stats.ReviewsLoaded).
		Int("embedded", stats.Embedded).
		Int("reused", stats.ReviewsSkipped).
		Int("indexed", stats.Indexed).
		Str("index", s.index.Name()).
		Dur("duration", time.Since(start)).
		Msg("Ingestion run completed")

	return stats, nil
}

// Hydrate loads the persisted embedded corpus into the vector index
// without touching the embedder. Volatile index backends call this at
// startup. Reviews embedded with a different model are skipped; they
// need a re-ingest to join the current similarity space.
func (s *Service) Hydrate(ctx context.Context) (int, error) {
	embedded, err := s.reviews.ListEmbedded(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load embedded reviews: %w", err)
	}

	model := s.embedder.ModelName()
	matching := make([]*models.Review, 0, len(embedded))
	for _, review := range embedded {
		if review.EmbeddingModel == model {
			matching = append(matching, review)
		}
	}
	if skipped := len(embedded) - len(matching); skipped > 0 {
		s.logger.Warn().
			Int("skipped", skipped).
			Str("current_model", model).
			Msg("Skipping persisted reviews embedded with a different model")
	}
	if len(matching) == 0 {
		return 0, nil
	}

	if err := s.index.Init(ctx, s.embedder.Dimension()); err != nil {
		return 0, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if err := s.upsertBatches(ctx, matching); err != nil {
		return 0, err
	}

	s.logger.Info().
		Int("hydrated", len(matching)).
		Str("index", s.index.Name()).
		Msg("Vector index hydrated from persisted corpus")

	return len(matching), nil
}

// reuseExistingVectors copies persisted embeddings onto loaded reviews
// with matching content IDs and the current embedding model, so only
// new rows hit the embedder. Returns how many vectors were reused.
func (s *Service) reuseExistingVectors(ctx context.Context, reviews []*models.Review) int {
	model := s.embedder.ModelName()
	reused := 0
	for _, review := range reviews {
		persisted, err := s.reviews.GetReview(ctx, review.ID)
		if err != nil {
			continue
		}
		if persisted.HasEmbedding() && persisted.EmbeddingModel == model {
			review.Embedding = persisted.Embedding
			review.EmbeddingModel = persisted.EmbeddingModel
			reused++
		}
	}
	return reused
}

// embedAll embeds reviews in batches across the worker pool. Any batch
// failure aborts the run.
func (s *Service) embedAll(ctx context.Context, reviews []*models.Review) error {
	batchSize := s.batchSize()

	pool := workers.NewPool(maxEmbedWorkers, s.logger)
	pool.Start()

	for begin := 0; begin < len(reviews); begin += batchSize {
		end := min(begin+batchSize, len(reviews))
		batch := reviews[begin:end]
		if err := pool.Submit(func(context.Context) error {
			return s.embedder.EmbedReviews(ctx, batch)
		}); err != nil {
			pool.Wait()
			return fmt.Errorf("failed to queue embedding batch: %w", err)
		}
	}
	pool.Wait()

	if errs := pool.Errors(); len(errs) > 0 {
		return fmt.Errorf("embedding failed for %d batch(es): %w", len(errs), errs[0])
	}
	return nil
}

// upsertBatches pushes reviews into the vector index in batches
func (s *Service) upsertBatches(ctx context.Context, reviews []*models.Review) error {
	batchSize := s.batchSize()
	for begin := 0; begin < len(reviews); begin += batchSize {
		end := min(begin+batchSize, len(reviews))
		if err := s.index.Upsert(ctx, reviews[begin:end]); err != nil {
			return fmt.Errorf("failed to index reviews: %w", err)
		}
	}
	return nil
}

func (s *Service) batchSize() int {
	if s.config.BatchSize > 0 {
		return s.config.BatchSize
	}
	return 64
}
