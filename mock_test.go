package svve

import (
	"context"
	"sort"

	"github.com/keonho-kim/svve/internal/vecmath"
)

// mockBackend implements Backend for tests via function fields.
type mockBackend struct {
	dim         int
	searchFn    func(ctx context.Context, query []float32, limit int) ([]ScoredDoc, error)
	fetchFn     func(ctx context.Context, ids []DocID) ([]DocVector, error)
	searchCalls int
	fetchCalls  int
}

func (m *mockBackend) Dimension() int { return m.dim }

func (m *mockBackend) Search(ctx context.Context, query []float32, limit int) ([]ScoredDoc, error) {
	m.searchCalls++
	if m.searchFn != nil {
		return m.searchFn(ctx, query, limit)
	}
	return nil, nil
}

func (m *mockBackend) FetchVectors(ctx context.Context, ids []DocID) ([]DocVector, error) {
	m.fetchCalls++
	if m.fetchFn != nil {
		return m.fetchFn(ctx, ids)
	}
	return nil, nil
}

// exactBackend is an exhaustive dot-product backend over a fixed document
// set, used by the end-to-end pipeline tests.
type exactBackend struct {
	dim  int
	docs []DocVector
}

func newExactBackend(dim int, docs ...DocVector) *exactBackend {
	for i := range docs {
		normalized, ok := vecmath.NormalizedCopy(docs[i].Vector)
		if !ok {
			panic("exactBackend: zero document vector")
		}
		docs[i].Vector = normalized
	}
	return &exactBackend{dim: dim, docs: docs}
}

func (b *exactBackend) Dimension() int { return b.dim }

func (b *exactBackend) Search(_ context.Context, query []float32, limit int) ([]ScoredDoc, error) {
	hits := make([]ScoredDoc, 0, len(b.docs))
	for _, doc := range b.docs {
		hits = append(hits, ScoredDoc{ID: doc.ID, Score: vecmath.Dot(query, doc.Vector)})
	}
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

func (b *exactBackend) FetchVectors(_ context.Context, ids []DocID) ([]DocVector, error) {
	vectors := make([]DocVector, 0, len(ids))
	for _, id := range ids {
		for _, doc := range b.docs {
			if doc.ID == id {
				vectors = append(vectors, doc)
				break
			}
		}
	}
	return vectors, nil
}
