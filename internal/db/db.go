// Package db defines the storage contract behind the Redis-backed retrieval
// backend and the job queue. Consumers depend on the narrow sub-interfaces,
// never on a concrete store.
package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
type Store interface {
	Pinger
	HashStore
	IndexManager
	Searcher
	StreamStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// HashStore provides hash-based key-value operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher provides KNN search over FT indexes.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}

// StreamMessage is a single entry read from a stream consumer group.
type StreamMessage struct {
	ID     string
	Fields map[string]string
}

// StreamStore provides Redis Streams operations for the job queue.
type StreamStore interface {
	StreamAdd(ctx context.Context, stream string, fields map[string]string) (string, error)
	StreamLen(ctx context.Context, stream string) (int64, error)
	StreamGroupCreate(ctx context.Context, stream, group string) error
	StreamReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error)
	StreamAck(ctx context.Context, stream, group string, ids ...string) error
}

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// IndexStorageType selects the FT index storage backing.
type IndexStorageType string

// StorageHash indexes hash keys.
const StorageHash IndexStorageType = "HASH"

// IndexFieldType is the FT schema field type.
type IndexFieldType string

// Supported FT schema field types.
const (
	FieldVector IndexFieldType = "VECTOR"
	FieldTag    IndexFieldType = "TAG"
	FieldText   IndexFieldType = "TEXT"
)

// IndexField describes one FT schema field.
type IndexField struct {
	Name       string
	Type       IndexFieldType
	Dimensions int    // VECTOR only
	Metric     string // VECTOR only: COSINE, L2, IP
}

// IndexDefinition describes an FT index to create.
type IndexDefinition struct {
	Name        string
	StorageType IndexStorageType
	Prefixes    []string
	Fields      []IndexField
}
