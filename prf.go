package svve

import (
	"context"
	"fmt"

	"github.com/keonho-kim/svve/internal/vecmath"
)

// buildPRFQuery reconstructs a corrected query as the re-normalized blend
// alpha*query + (1-alpha)*centroid, where centroid is the component-wise
// mean of the survivor vectors fetched from the backend.
func buildPRFQuery(
	ctx context.Context, backend Backend,
	query []float32, survivors []DocID, alpha float32,
) ([]float32, error) {
	if len(survivors) == 0 {
		return nil, ErrEmptySurvivorSet
	}

	vectors, err := backend.FetchVectors(ctx, survivors)
	if err != nil {
		return nil, fmt.Errorf("fetch survivor vectors: %w", err)
	}

	center, err := centroid(vectors, len(query))
	if err != nil {
		return nil, err
	}

	blended := make([]float32, len(query))
	for i := range query {
		blended[i] = alpha*query[i] + (1-alpha)*center[i]
	}

	// Pathological centroid cancellation can zero the blend out entirely;
	// that is a terminal error, never silently skipped.
	corrected, ok := vecmath.NormalizedCopy(blended)
	if !ok {
		return nil, fmt.Errorf("normalize corrected query: %w", ErrDegenerateVector)
	}
	return corrected, nil
}

// centroid returns the arithmetic-mean vector of the given document
// vectors, validating every vector against the expected dimension.
func centroid(vectors []DocVector, dim int) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptySurvivorSet
	}

	center := make([]float32, dim)
	for _, doc := range vectors {
		if len(doc.Vector) != dim {
			return nil, &DimensionMismatchError{ID: doc.ID, Expected: dim, Actual: len(doc.Vector)}
		}
		for i, v := range doc.Vector {
			center[i] += v
		}
	}

	inv := 1 / float32(len(vectors))
	for i := range center {
		center[i] *= inv
	}
	return center, nil
}
