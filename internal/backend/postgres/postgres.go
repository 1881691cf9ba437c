// Package postgres implements svve.Backend over a pgvector table via pgx.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keonho-kim/svve"
)

// identifierPattern constrains table names interpolated into SQL text;
// everything else goes through bind parameters.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config holds connection parameters for the pgvector repository.
type Config struct {
	DSN              string
	Table            string
	Dimension        int
	PoolMinConns     int32
	PoolMaxConns     int32
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
}

// Repo implements svve.Backend against a table of the shape
// (id BIGINT PRIMARY KEY, content TEXT, embedding vector(n)).
type Repo struct {
	pool  *pgxpool.Pool
	table string
	dim   int
}

// New creates a connection pool and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Repo, error) {
	if !ValidIdentifier(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.PoolMinConns > 0 {
		poolCfg.MinConns = cfg.PoolMinConns
	}
	if cfg.PoolMaxConns > 0 {
		poolCfg.MaxConns = cfg.PoolMaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.StatementTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] =
			strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repo{pool: pool, table: cfg.Table, dim: cfg.Dimension}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// Ping checks database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Dimension returns the configured embedding dimension.
func (r *Repo) Dimension() int { return r.dim }

// EnsureSchema creates the pgvector extension, the document table, and an
// HNSW index when they do not exist yet.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			content TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL
		)`, r.table, r.dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx
			ON %s USING hnsw (embedding vector_cosine_ops)`, r.table, r.table),
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Doc is a document to upsert.
type Doc struct {
	ID      svve.DocID
	Vector  []float32
	Content string
}

// Upsert inserts or replaces documents.
func (r *Repo) Upsert(ctx context.Context, docs ...Doc) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, embedding)
		VALUES ($1, $2, $3::vector)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding
	`, r.table)

	for _, d := range docs {
		if len(d.Vector) != r.dim {
			return &svve.DimensionMismatchError{ID: d.ID, Expected: r.dim, Actual: len(d.Vector)}
		}
		if _, err := r.pool.Exec(ctx, query, int64(d.ID), d.Content, VectorLiteral(d.Vector)); err != nil {
			return fmt.Errorf("failed to upsert document %d: %w", d.ID, err)
		}
	}
	return nil
}

// Search orders the table by cosine distance to the query and returns up to
// limit hits as cosine similarities.
func (r *Repo) Search(ctx context.Context, query []float32, limit int) ([]svve.ScoredDoc, error) {
	if len(query) != r.dim {
		return nil, &svve.DimensionMismatchError{Expected: r.dim, Actual: len(query)}
	}

	sql := fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1::vector) AS score
		FROM %s
		ORDER BY embedding <=> $1::vector, id
		LIMIT $2
	`, r.table)

	rows, err := r.pool.Query(ctx, sql, VectorLiteral(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var hits []svve.ScoredDoc
	for rows.Next() {
		var id int64
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hits = append(hits, svve.ScoredDoc{ID: svve.DocID(id), Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hits: %w", err)
	}
	return hits, nil
}

// FetchVectors loads embeddings by id. Every requested id must exist.
func (r *Repo) FetchVectors(ctx context.Context, ids []svve.DocID) ([]svve.DocVector, error) {
	sql := fmt.Sprintf(`SELECT id, embedding::text FROM %s WHERE id = ANY($1)`, r.table)

	rows, err := r.pool.Query(ctx, sql, docIDsToInt64(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vectors: %w", err)
	}
	defer rows.Close()

	found := make(map[svve.DocID][]float32, len(ids))
	for rows.Next() {
		var id int64
		var literal string
		if err := rows.Scan(&id, &literal); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		vec, err := ParseVectorLiteral(literal)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", id, err)
		}
		if len(vec) != r.dim {
			return nil, &svve.DimensionMismatchError{ID: svve.DocID(id), Expected: r.dim, Actual: len(vec)}
		}
		found[svve.DocID(id)] = vec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vectors: %w", err)
	}

	out := make([]svve.DocVector, 0, len(ids))
	for _, id := range ids {
		vec, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("document %d not found", id)
		}
		out = append(out, svve.DocVector{ID: id, Vector: vec})
	}
	return out, nil
}

// FetchContents loads document content by id. Missing ids are omitted.
func (r *Repo) FetchContents(ctx context.Context, ids []svve.DocID) (map[svve.DocID]string, error) {
	sql := fmt.Sprintf(`SELECT id, content FROM %s WHERE id = ANY($1)`, r.table)

	rows, err := r.pool.Query(ctx, sql, docIDsToInt64(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contents: %w", err)
	}
	defer rows.Close()

	out := make(map[svve.DocID]string, len(ids))
	for rows.Next() {
		var id int64
		var content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, fmt.Errorf("failed to scan content: %w", err)
		}
		out[svve.DocID(id)] = content
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read contents: %w", err)
	}
	return out, nil
}

func docIDsToInt64(ids []svve.DocID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// ValidIdentifier reports whether name is safe to use as a SQL identifier.
func ValidIdentifier(name string) bool {
	return len(name) > 0 && len(name) <= 63 && identifierPattern.MatchString(name)
}

// VectorLiteral renders a float32 slice as a pgvector input literal.
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// ParseVectorLiteral parses a pgvector text literal back into float32 values.
func ParseVectorLiteral(literal string) ([]float32, error) {
	s := strings.TrimSpace(literal)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal %q", literal)
	}
	s = s[1 : len(s)-1]
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector literal %q: %w", literal, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}
