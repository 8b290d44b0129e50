package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/models"
)

// MemoryIndex is a brute-force in-process vector index. Vectors are
// L2-normalized at insert so the dot product is cosine similarity.
// The default backend: the corpus is a few thousand reviews and a
// linear scan stays well under a millisecond at that size.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   []memoryEntry
	byID      map[string]int
	logger    arbor.ILogger
}

type memoryEntry struct {
	id     string
	vector []float32
	review *models.Review
}

// NewMemoryIndex creates an empty in-memory index
func NewMemoryIndex(logger arbor.ILogger) *MemoryIndex {
	return &MemoryIndex{
		byID:   make(map[string]int),
		logger: logger,
	}
}

// Init sets the vector dimensionality and clears any held vectors
func (m *MemoryIndex) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimension = dimension
	m.entries = nil
	m.byID = make(map[string]int)
	return nil
}

// Upsert stores the reviews' embeddings keyed by review ID. An existing
// ID is replaced in place so ties keep their original insertion order.
func (m *MemoryIndex) Upsert(ctx context.Context, reviews []*models.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dimension == 0 {
		return fmt.Errorf("index not initialized")
	}

	for _, review := range reviews {
		if review.ID == "" {
			return fmt.Errorf("review missing ID")
		}
		if len(review.Embedding) != m.dimension {
			return fmt.Errorf("review %s: vector dimension mismatch, expected %d got %d", review.ID, m.dimension, len(review.Embedding))
		}

		entry := memoryEntry{
			id:     review.ID,
			vector: normalize(review.Embedding),
			review: review,
		}

		if pos, exists := m.byID[review.ID]; exists {
			m.entries[pos] = entry
		} else {
			m.byID[review.ID] = len(m.entries)
			m.entries = append(m.entries, entry)
		}
	}

	return nil
}

// Nearest returns up to k passages ordered by descending cosine
// similarity. Equal scores keep insertion order.
func (m *MemoryIndex) Nearest(ctx context.Context, vector []float32, k int) ([]models.RetrievedPassage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if k <= 0 || len(m.entries) == 0 {
		return []models.RetrievedPassage{}, nil
	}
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch, expected %d got %d", m.dimension, len(vector))
	}

	query := normalize(vector)

	type scored struct {
		pos   int
		score float32
	}
	scores := make([]scored, len(m.entries))
	for i := range m.entries {
		scores[i] = scored{pos: i, score: dot(m.entries[i].vector, query)}
	}

	// Stable sort keeps insertion order for equal scores
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if k > len(scores) {
		k = len(scores)
	}

	results := make([]models.RetrievedPassage, 0, k)
	for i := 0; i < k; i++ {
		entry := m.entries[scores[i].pos]
		results = append(results, models.RetrievedPassage{
			Review: entry.review,
			Score:  scores[i].score,
		})
	}

	return results, nil
}

// Count returns the number of indexed vectors
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Reset drops all indexed vectors but keeps the dimensionality
func (m *MemoryIndex) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.byID = make(map[string]int)
	return nil
}

// Name identifies the backend
func (m *MemoryIndex) Name() string {
	return string(common.IndexBackendMemory)
}

// normalize returns an L2-normalized copy. A zero vector comes back
// zeroed so it scores 0 against everything instead of NaN.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)

	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
