// Package index provides the in-memory vector index used for similarity
// retrieval, its snapshot serialization, and the store that persists
// snapshots to a remote object store.
package index

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/lorebot/lore/internal/corpus"
)

// ErrDimensionMismatch indicates a vector whose dimension does not match the
// index's configured dimension. Mixing dimensions is a configuration error,
// never a recoverable condition.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Result is a single retrieval hit.
type Result struct {
	Passage corpus.Passage
	Score   float32 // Cosine similarity; vectors are normalized, so this is a dot product
}

type entry struct {
	passage corpus.Passage
	vector  []float32
}

// Index is an in-memory vector index keyed by passage ID.
//
// Searches take a read lock and may proceed concurrently; structural
// mutations (insert/remove) serialize behind a write lock. The generation
// counter increments on every structural mutation and is used by Store to
// detect stale snapshots.
type Index struct {
	mu         sync.RWMutex
	dimension  int
	entries    map[string]entry
	generation uint64
}

// New creates an empty index with a fixed vector dimension.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}
	return &Index{
		dimension: dimension,
		entries:   make(map[string]entry),
	}, nil
}

// Dimension returns the configured vector dimension.
func (ix *Index) Dimension() int {
	return ix.dimension
}

// Len returns the number of passages in the index.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Generation returns the mutation counter. It increments on every insert or
// remove, never decrements, and starts at zero for an empty index.
func (ix *Index) Generation() uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.generation
}

// Insert adds a passage and its embedding to the index. Inserting an ID
// that already exists replaces the prior entry, which makes re-ingestion of
// updated documents idempotent.
func (ix *Index) Insert(p corpus.Passage, vector []float32) error {
	if p.ID == "" {
		return fmt.Errorf("passage ID must not be empty")
	}
	if len(vector) != ix.dimension {
		return fmt.Errorf("%w: index dimension %d, vector dimension %d", ErrDimensionMismatch, ix.dimension, len(vector))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	// Copy so a caller reusing its slice can't mutate the stored embedding.
	ix.entries[p.ID] = entry{passage: p, vector: slices.Clone(vector)}
	ix.generation++
	return nil
}

// Reset drops every passage, keeping the dimension. Used by full rebuilds.
// Resetting an already empty index leaves the generation untouched.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if len(ix.entries) == 0 {
		return
	}
	ix.entries = make(map[string]entry)
	ix.generation++
}

// Remove deletes a passage by ID. It reports whether the passage existed.
func (ix *Index) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.entries[id]; !ok {
		return false
	}
	delete(ix.entries, id)
	ix.generation++
	return true
}

// Search returns the top k passages by cosine similarity, dropping any hit
// below minScore. Results are ordered by descending score; ties break by
// ascending passage ID for determinism. Searching an empty index returns an
// empty result, not an error.
func (ix *Index) Search(query []float32, k int, minScore float32) ([]Result, error) {
	if len(query) != ix.dimension {
		return nil, fmt.Errorf("%w: index dimension %d, query dimension %d", ErrDimensionMismatch, ix.dimension, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]Result, 0, len(ix.entries))
	for _, e := range ix.entries {
		score := dot(e.vector, query)
		if score < minScore {
			continue
		}
		results = append(results, Result{Passage: e.passage, Score: score})
	}

	slices.SortFunc(results, func(a, b Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.Passage.ID, b.Passage.ID)
		}
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// dot computes the dot product of two equal-length vectors in float64 to
// limit accumulation error.
func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
