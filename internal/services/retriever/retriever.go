package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
)

// Service answers similarity queries by embedding the query text and
// searching the vector index. Failures surface as
// *models.RetrievalUnavailableError so the chat loop can degrade to a
// contextless turn instead of aborting.
type Service struct {
	embedder interfaces.EmbeddingService
	index    interfaces.VectorIndex
	config   *common.RetrievalConfig
	logger   arbor.ILogger
}

// NewService creates a retriever over the given embedder and index
func NewService(embedder interfaces.EmbeddingService, index interfaces.VectorIndex, config *common.RetrievalConfig, logger arbor.ILogger) interfaces.Retriever {
	return &Service{
		embedder: embedder,
		index:    index,
		config:   config,
		logger:   logger,
	}
}

// Search returns up to k passages ordered by descending relevance.
// k <= 0 uses the configured default. An empty result is not an error:
// it means nothing in the corpus cleared the minimum score.
func (s *Service) Search(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error) {
	if strings.TrimSpace(query) == "" {
		return []models.RetrievedPassage{}, nil
	}
	if k <= 0 {
		k = s.config.TopK
	}

	start := time.Now()

	vector, err := s.embedder.GenerateQueryEmbedding(ctx, query)
	if err != nil {
		return nil, &models.RetrievalUnavailableError{Err: fmt.Errorf("query embedding failed: %w", err)}
	}

	passages, err := s.index.Nearest(ctx, vector, k)
	if err != nil {
		return nil, &models.RetrievalUnavailableError{Err: fmt.Errorf("index search failed: %w", err)}
	}

	if s.config.MinScore > 0 {
		filtered := passages[:0]
		for _, p := range passages {
			if p.Score >= s.config.MinScore {
				filtered = append(filtered, p)
			}
		}
		passages = filtered
	}

	s.logger.Debug().
		Int("query_length", len(query)).
		Int("k", k).
		Int("passages", len(passages)).
		Dur("duration", time.Since(start)).
		Msg("Retrieval completed")

	return passages, nil
}

// TopK returns the configured default passage count
func (s *Service) TopK() int {
	return s.config.TopK
}

// HealthCheck verifies the index answers queries
func (s *Service) HealthCheck(ctx context.Context) error {
	if _, err := s.index.Count(ctx); err != nil {
		return fmt.Errorf("vector index unreachable: %w", err)
	}
	return nil
}
