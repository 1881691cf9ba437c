package search

import (
	"context"

	"github.com/keonho-kim/svve"
	"github.com/keonho-kim/svve/internal/filter"
)

// Embedder vectorizes a question into an embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ContentFetcher loads document content for the filter stage and the
// response payload. Backends without stored content return an empty map.
type ContentFetcher interface {
	FetchContents(ctx context.Context, ids []svve.DocID) (map[svve.DocID]string, error)
}

// RelevanceFilter judges final candidates against the question.
type RelevanceFilter interface {
	Filter(ctx context.Context, question string, candidates []filter.Candidate) (map[svve.DocID]bool, error)
}
