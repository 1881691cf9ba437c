// Package redis implements svve.Backend over the Redis store: KNN search
// through an FT index, vectors and content in per-document hashes.
package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/keonho-kim/svve"
	"github.com/keonho-kim/svve/internal/db"
)

const (
	fieldVector  = "vector"
	fieldContent = "content"
)

// Store is the subset of db.Store the backend needs.
type Store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Doc is a document to upsert into the store.
type Doc struct {
	ID      svve.DocID
	Vector  []float32
	Content string
}

// Backend adapts a Redis store to svve.Backend. Documents live at
// <prefix>docs:<id>; the FT index is named <prefix>idx.
type Backend struct {
	store     Store
	dim       int
	keyPrefix string
}

// New creates a Redis-backed retrieval backend.
func New(store Store, dim int, keyPrefix string) *Backend {
	return &Backend{store: store, dim: dim, keyPrefix: keyPrefix}
}

// Dimension returns the indexed vector dimension.
func (b *Backend) Dimension() int { return b.dim }

func (b *Backend) indexName() string { return b.keyPrefix + "idx" }

func (b *Backend) docPrefix() string { return b.keyPrefix + "docs:" }

func (b *Backend) docKey(id svve.DocID) string {
	return b.docPrefix() + strconv.FormatUint(uint64(id), 10)
}

func (b *Backend) parseDocKey(key string) (svve.DocID, error) {
	raw, ok := strings.CutPrefix(key, b.docPrefix())
	if !ok {
		return 0, fmt.Errorf("unexpected document key %q", key)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse document key %q: %w", key, err)
	}
	return svve.DocID(id), nil
}

// EnsureIndex creates the FT index if it does not exist yet.
func (b *Backend) EnsureIndex(ctx context.Context) error {
	exists, err := b.store.IndexExists(ctx, b.indexName())
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:        b.indexName(),
		StorageType: db.StorageHash,
		Prefixes:    []string{b.docPrefix()},
		Fields: []db.IndexField{
			{Name: fieldVector, Type: db.FieldVector, Dimensions: b.dim, Metric: "COSINE"},
		},
	}
	if err := b.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Upsert writes documents as hashes under the index prefix.
func (b *Backend) Upsert(ctx context.Context, docs ...Doc) error {
	items := make([]db.HashSetItem, 0, len(docs))
	for _, d := range docs {
		if len(d.Vector) != b.dim {
			return &svve.DimensionMismatchError{ID: d.ID, Expected: b.dim, Actual: len(d.Vector)}
		}
		fields := map[string]string{fieldVector: encodeVector(d.Vector)}
		if d.Content != "" {
			fields[fieldContent] = d.Content
		}
		items = append(items, db.HashSetItem{Key: b.docKey(d.ID), Fields: fields})
	}
	if err := b.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert documents: %w", err)
	}
	return nil
}

// Search runs a KNN query against the FT index and maps hits back to
// document ids.
func (b *Backend) Search(ctx context.Context, query []float32, limit int) ([]svve.ScoredDoc, error) {
	if len(query) != b.dim {
		return nil, &svve.DimensionMismatchError{Expected: b.dim, Actual: len(query)}
	}

	res, err := b.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    b.indexName(),
		Vector:       query,
		K:            limit,
		ReturnFields: []string{"__vector_score"},
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	hits := make([]svve.ScoredDoc, 0, len(res.Entries))
	for _, e := range res.Entries {
		id, err := b.parseDocKey(e.Key)
		if err != nil {
			return nil, err
		}
		hits = append(hits, svve.ScoredDoc{ID: id, Score: float32(e.Score)})
	}
	return hits, nil
}

// FetchVectors loads document vectors from their hashes. A missing document
// or vector field is an error.
func (b *Backend) FetchVectors(ctx context.Context, ids []svve.DocID) ([]svve.DocVector, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.docKey(id)
	}

	fieldMaps, err := b.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch document hashes: %w", err)
	}

	out := make([]svve.DocVector, 0, len(ids))
	for i, fields := range fieldMaps {
		raw, ok := fields[fieldVector]
		if !ok {
			return nil, fmt.Errorf("document %d: %w", ids[i], db.ErrKeyNotFound)
		}
		vec, err := decodeVector(raw)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", ids[i], err)
		}
		if len(vec) != b.dim {
			return nil, &svve.DimensionMismatchError{ID: ids[i], Expected: b.dim, Actual: len(vec)}
		}
		out = append(out, svve.DocVector{ID: ids[i], Vector: vec})
	}
	return out, nil
}

// FetchContents loads document content from their hashes. Documents without
// stored content are omitted.
func (b *Backend) FetchContents(ctx context.Context, ids []svve.DocID) (map[svve.DocID]string, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.docKey(id)
	}

	fieldMaps, err := b.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch document hashes: %w", err)
	}

	out := make(map[svve.DocID]string, len(ids))
	for i, fields := range fieldMaps {
		if content, ok := fields[fieldContent]; ok {
			out[ids[i]] = content
		}
	}
	return out, nil
}

// encodeVector renders float32 values as the little-endian blob stored in
// the vector hash field.
func encodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

func decodeVector(raw string) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(raw[i*4 : i*4+4])))
	}
	return vec, nil
}
