// Package callback implements svve.Backend around a caller-supplied search
// function. The search function must return the hit vectors alongside ids
// and scores; the adapter normalizes and caches them so FetchVectors can
// serve survivor lookups without a second round trip to the caller.
package callback

import (
	"context"
	"fmt"
	"sync"

	"github.com/keonho-kim/svve"
	"github.com/keonho-kim/svve/internal/vecmath"
)

// SearchFunc performs a similarity search and returns parallel slices of
// ids and scores plus the raw vector of each hit.
type SearchFunc func(ctx context.Context, query []float32, limit int) (ids []svve.DocID, scores []float32, vectors [][]float32, err error)

// Backend adapts a SearchFunc to svve.Backend.
type Backend struct {
	dim    int
	search SearchFunc

	mu    sync.Mutex
	cache map[svve.DocID][]float32
}

// New creates a callback backend for vectors of the given dimension.
func New(dim int, fn SearchFunc) *Backend {
	return &Backend{
		dim:    dim,
		search: fn,
		cache:  make(map[svve.DocID][]float32),
	}
}

// Dimension returns the vector dimension declared at construction.
func (b *Backend) Dimension() int { return b.dim }

// Search invokes the callback, validates its result shape, and caches a
// normalized copy of every hit vector.
func (b *Backend) Search(ctx context.Context, query []float32, limit int) ([]svve.ScoredDoc, error) {
	ids, scores, vectors, err := b.search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search callback: %w", err)
	}
	if len(ids) != len(scores) || len(ids) != len(vectors) {
		return nil, fmt.Errorf("search callback: mismatched result lengths ids=%d scores=%d vectors=%d",
			len(ids), len(scores), len(vectors))
	}

	hits := make([]svve.ScoredDoc, len(ids))
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, id := range ids {
		if len(vectors[i]) != b.dim {
			return nil, &svve.DimensionMismatchError{ID: id, Expected: b.dim, Actual: len(vectors[i])}
		}
		normalized, ok := vecmath.NormalizedCopy(vectors[i])
		if !ok {
			return nil, fmt.Errorf("document %d: %w", id, svve.ErrDegenerateVector)
		}
		b.cache[id] = normalized
		hits[i] = svve.ScoredDoc{ID: id, Score: scores[i]}
	}
	return hits, nil
}

// FetchVectors serves vectors from the cache populated by prior Search
// calls. An id never seen in a search result is an error.
func (b *Backend) FetchVectors(_ context.Context, ids []svve.DocID) ([]svve.DocVector, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]svve.DocVector, 0, len(ids))
	for _, id := range ids {
		cached, ok := b.cache[id]
		if !ok {
			return nil, fmt.Errorf("document %d not in search cache", id)
		}
		vec := make([]float32, len(cached))
		copy(vec, cached)
		out = append(out, svve.DocVector{ID: id, Vector: vec})
	}
	return out, nil
}
