// Package memory implements svve.Backend with an in-process exact-search
// store. Intended for tests, local development, and the memory driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/keonho-kim/svve"
	"github.com/keonho-kim/svve/internal/vecmath"
)

// Doc is a document to insert into the store.
type Doc struct {
	ID      svve.DocID
	Vector  []float32
	Content string
}

type storedDoc struct {
	vector  []float32 // unit-normalized
	content string
}

// Store holds normalized document vectors and scores queries by dot product,
// so search is exact cosine similarity over the full corpus.
type Store struct {
	dim int

	mu   sync.RWMutex
	docs map[svve.DocID]storedDoc
}

// NewStore creates an empty store for vectors of the given dimension.
func NewStore(dim int) *Store {
	return &Store{
		dim:  dim,
		docs: make(map[svve.DocID]storedDoc),
	}
}

// Upsert inserts or replaces documents. Vectors are normalized on insert;
// zero vectors and dimension mismatches are rejected.
func (s *Store) Upsert(docs ...Doc) error {
	prepared := make(map[svve.DocID]storedDoc, len(docs))
	for _, d := range docs {
		if len(d.Vector) != s.dim {
			return &svve.DimensionMismatchError{ID: d.ID, Expected: s.dim, Actual: len(d.Vector)}
		}
		normalized, ok := vecmath.NormalizedCopy(d.Vector)
		if !ok {
			return fmt.Errorf("document %d: %w", d.ID, svve.ErrDegenerateVector)
		}
		prepared[d.ID] = storedDoc{vector: normalized, content: d.Content}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range prepared {
		s.docs[id] = d
	}
	return nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Dimension returns the vector dimension the store was created with.
func (s *Store) Dimension() int { return s.dim }

// Search scores every stored document against the query by dot product and
// returns up to limit hits, best first, ids ascending among equal scores.
func (s *Store) Search(_ context.Context, query []float32, limit int) ([]svve.ScoredDoc, error) {
	if len(query) != s.dim {
		return nil, &svve.DimensionMismatchError{Expected: s.dim, Actual: len(query)}
	}
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	hits := make([]svve.ScoredDoc, 0, len(s.docs))
	for id, d := range s.docs {
		hits = append(hits, svve.ScoredDoc{ID: id, Score: vecmath.Dot(query, d.vector)})
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// FetchVectors returns the normalized vectors for the given ids. A missing
// id is an error.
func (s *Store) FetchVectors(_ context.Context, ids []svve.DocID) ([]svve.DocVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]svve.DocVector, 0, len(ids))
	for _, id := range ids {
		d, ok := s.docs[id]
		if !ok {
			return nil, fmt.Errorf("document %d not found", id)
		}
		vec := make([]float32, len(d.vector))
		copy(vec, d.vector)
		out = append(out, svve.DocVector{ID: id, Vector: vec})
	}
	return out, nil
}

// FetchContents returns the stored content for the given ids. Ids without a
// stored document are omitted from the result.
func (s *Store) FetchContents(_ context.Context, ids []svve.DocID) (map[svve.DocID]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[svve.DocID]string, len(ids))
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			out[id] = d.content
		}
	}
	return out, nil
}
