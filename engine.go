package svve

import (
	"context"
	"fmt"

	"github.com/keonho-kim/svve/internal/vecmath"
)

// Engine defaults. These are the reference constants; overriding them is
// intended for tests, not production tuning.
const (
	// DefaultSegmentCount is the number of contiguous query segments.
	DefaultSegmentCount = 4
	// DefaultSegmentTopK is the per-segment search limit.
	DefaultSegmentTopK = 100
	// DefaultSurvivorCount caps the vote-gate survivor set.
	DefaultSurvivorCount = 5
	// DefaultPRFAlpha weights the original query in the PRF blend.
	DefaultPRFAlpha = 0.7
	// DefaultMaxRounds bounds the rerank loop.
	DefaultMaxRounds = 8
	// DefaultStabilityJaccard is the top-K set similarity needed for a
	// round to count as stable.
	DefaultStabilityJaccard = 0.95
	// DefaultStabilityScoreDelta is the maximum relative top-K score-sum
	// change for a round to count as stable.
	DefaultStabilityScoreDelta = 0.005
	// DefaultStableRoundsRequired is the consecutive stable rounds needed
	// to stop early.
	DefaultStableRoundsRequired = 2
)

// Engine runs the segmented voting search pipeline. The zero value is not
// usable; construct with New. An Engine is stateless across calls and safe
// for concurrent use.
type Engine struct {
	segmentCount         int
	segmentTopK          int
	survivorCount        int
	prfAlpha             float32
	maxRounds            int
	stabilityJaccard     float64
	stabilityScoreDelta  float64
	stableRoundsRequired int
}

// Option overrides an engine parameter.
type Option func(*Engine)

// WithSegmentCount sets the number of query segments.
func WithSegmentCount(n int) Option { return func(e *Engine) { e.segmentCount = n } }

// WithSegmentTopK sets the per-segment search limit.
func WithSegmentTopK(k int) Option { return func(e *Engine) { e.segmentTopK = k } }

// WithSurvivorCount sets the survivor set cap.
func WithSurvivorCount(n int) Option { return func(e *Engine) { e.survivorCount = n } }

// WithPRFAlpha sets the original-query weight of the PRF blend.
func WithPRFAlpha(a float32) Option { return func(e *Engine) { e.prfAlpha = a } }

// WithMaxRounds sets the rerank round budget.
func WithMaxRounds(n int) Option { return func(e *Engine) { e.maxRounds = n } }

// WithStabilityThresholds sets the early-stop heuristic: minimum Jaccard
// similarity, maximum relative score delta, and required consecutive stable
// rounds.
func WithStabilityThresholds(jaccard, scoreDelta float64, rounds int) Option {
	return func(e *Engine) {
		e.stabilityJaccard = jaccard
		e.stabilityScoreDelta = scoreDelta
		e.stableRoundsRequired = rounds
	}
}

// New creates an Engine with the reference parameters, then applies opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		segmentCount:         DefaultSegmentCount,
		segmentTopK:          DefaultSegmentTopK,
		survivorCount:        DefaultSurvivorCount,
		prfAlpha:             DefaultPRFAlpha,
		maxRounds:            DefaultMaxRounds,
		stabilityJaccard:     DefaultStabilityJaccard,
		stabilityScoreDelta:  DefaultStabilityScoreDelta,
		stableRoundsRequired: DefaultStableRoundsRequired,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ExecuteSearch runs the pipeline with the reference parameters.
func ExecuteSearch(
	ctx context.Context, backend Backend, query []float32, topK int,
) ([]DocID, []float32, error) {
	return New().Search(ctx, backend, query, topK)
}

// Search executes one full pipeline pass: validate, normalize, segment
// search, vote, PRF rebuild, convergence rerank. It returns parallel id and
// score slices, best-first. The first failure at any stage aborts the call;
// nothing is retried.
func (e *Engine) Search(
	ctx context.Context, backend Backend, query []float32, topK int,
) ([]DocID, []float32, error) {
	if topK < 1 {
		return nil, nil, fmt.Errorf("%w: top_k must be at least 1, got %d", ErrInvalidInput, topK)
	}
	if len(query) == 0 {
		return nil, nil, fmt.Errorf("%w: query must not be empty", ErrInvalidInput)
	}
	if dim := backend.Dimension(); len(query) != dim {
		return nil, nil, fmt.Errorf("%w: query dimension %d does not match backend dimension %d",
			ErrInvalidInput, len(query), dim)
	}

	normalized, ok := vecmath.NormalizedCopy(query)
	if !ok {
		return nil, nil, fmt.Errorf("normalize query: %w", ErrDegenerateVector)
	}

	ranges := segmentRanges(len(normalized), e.segmentCount)
	segmentResults := make([][]ScoredDoc, 0, len(ranges))
	for i, rng := range ranges {
		segmentQuery := buildSegmentQuery(normalized, rng)
		hits, err := backend.Search(ctx, segmentQuery, e.segmentTopK)
		if err != nil {
			return nil, nil, fmt.Errorf("segment %d search: %w", i, err)
		}
		segmentResults = append(segmentResults, hits)
	}

	records := mergeSegmentResults(segmentResults)
	survivors := selectSurvivors(records, e.survivorCount)
	if len(survivors) == 0 {
		return nil, nil, ErrNoSurvivors
	}

	prfQuery, err := buildPRFQuery(ctx, backend, normalized, survivors, e.prfAlpha)
	if err != nil {
		return nil, nil, err
	}

	ranked, err := e.rerankUntilStable(ctx, backend, prfQuery, topK)
	if err != nil {
		return nil, nil, err
	}
	if len(ranked) == 0 {
		return nil, nil, ErrEmptyResult
	}

	ids := make([]DocID, len(ranked))
	scores := make([]float32, len(ranked))
	for i, hit := range ranked {
		ids[i] = hit.ID
		scores[i] = hit.Score
	}
	return ids, scores, nil
}
