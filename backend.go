package svve

import "context"

// DocID is the opaque document identifier assigned by a backend. Identifiers
// are unique per backend and stable for the lifetime of a single search.
type DocID uint64

// ScoredDoc is a single search hit. Score is backend-defined; higher is
// better, no fixed range is guaranteed.
type ScoredDoc struct {
	ID    DocID
	Score float32
}

// DocVector pairs a document identifier with its stored embedding.
type DocVector struct {
	ID     DocID
	Vector []float32
}

// Backend is the retrieval contract the engine runs against. It is consumed,
// never implemented, by the engine itself.
//
// A backend must guarantee that any identifier returned by its own Search
// remains fetchable via FetchVectors until the current engine call completes.
// Concurrent engine calls against one backend are safe only if the backend
// is safe for concurrent reads.
type Backend interface {
	// Dimension returns the fixed embedding width of this backend instance.
	Dimension() int

	// Search returns up to limit hits for the query, best-first.
	Search(ctx context.Context, query []float32, limit int) ([]ScoredDoc, error)

	// FetchVectors resolves the stored embeddings for the given identifiers.
	// It fails if any identifier is unknown.
	FetchVectors(ctx context.Context, ids []DocID) ([]DocVector, error)
}
