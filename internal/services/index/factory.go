package index

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
)

// NewVectorIndex creates the configured vector index backend
func NewVectorIndex(cfg *common.Config, logger arbor.ILogger) (interfaces.VectorIndex, error) {
	switch cfg.Index.Backend {
	case common.IndexBackendMemory:
		return NewMemoryIndex(logger), nil

	case common.IndexBackendQdrant:
		return NewQdrantIndex(&cfg.Index.Qdrant, logger), nil

	case common.IndexBackendWeaviate:
		return NewWeaviateIndex(&cfg.Index.Weaviate, logger)

	default:
		return nil, fmt.Errorf("unsupported index backend '%s': must be 'memory', 'qdrant', or 'weaviate'", cfg.Index.Backend)
	}
}
