package svve

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals a caller error: non-positive top-k, empty
	// query, or a query/backend dimension mismatch. No backend call is made.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDegenerateVector signals a zero (or near-zero-norm) vector where a
	// normalization step required a usable direction.
	ErrDegenerateVector = errors.New("degenerate vector")
	// ErrNoSurvivors signals that every candidate across all segments was
	// vote-classified as noise.
	ErrNoSurvivors = errors.New("no candidates passed the vote gate")
	// ErrEmptySurvivorSet signals PRF construction over an empty survivor
	// list.
	ErrEmptySurvivorSet = errors.New("empty survivor set")
	// ErrDimensionMismatch signals a stored vector whose length differs from
	// the query dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyResult signals that reranking produced zero documents even
	// though survivors existed.
	ErrEmptyResult = errors.New("empty search result")
)

// DimensionMismatchError wraps ErrDimensionMismatch with the offending
// document and the expected/actual widths.
type DimensionMismatchError struct {
	ID       DocID
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: doc %d has dimension %d, expected %d",
		ErrDimensionMismatch.Error(), e.ID, e.Actual, e.Expected)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }
