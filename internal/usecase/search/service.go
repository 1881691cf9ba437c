// Package search runs the full question-to-results pipeline: embedding,
// segmented voting search, optional content fetch, and optional relevance
// filtering.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/keonho-kim/svve"
	"github.com/keonho-kim/svve/internal/filter"
	"github.com/keonho-kim/svve/internal/metrics"
)

// ErrInvalidRequest marks malformed search requests for 400 mapping.
var ErrInvalidRequest = errors.New("invalid search request")

// Request is one search to execute. Exactly one of Question and Vector must
// be set; Question additionally drives the relevance filter.
type Request struct {
	Question string
	Vector   []float32
	TopK     int
}

// Result is one ranked document.
type Result struct {
	ID      svve.DocID `json:"id"`
	Score   float32    `json:"score"`
	Content string     `json:"content,omitempty"`
}

// Service executes search requests against a retrieval backend.
type Service struct {
	engine    *svve.Engine
	backend   svve.Backend
	embed     Embedder
	contents  ContentFetcher  // optional
	relevance RelevanceFilter // optional, needs contents and a question
	logger    *zap.Logger
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithContentFetcher attaches document content to results.
func WithContentFetcher(cf ContentFetcher) Option {
	return func(s *Service) { s.contents = cf }
}

// WithRelevanceFilter drops ranked candidates the filter endpoint rejects.
func WithRelevanceFilter(rf RelevanceFilter) Option {
	return func(s *Service) { s.relevance = rf }
}

// New creates a search service.
func New(engine *svve.Engine, backend svve.Backend, embed Embedder, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		engine:  engine,
		backend: backend,
		embed:   embed,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search executes the pipeline and returns ranked, optionally filtered
// results.
func (s *Service) Search(ctx context.Context, req Request) ([]Result, error) {
	start := time.Now()

	results, err := s.search(ctx, req)

	elapsed := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SearchRequestsTotal.WithLabelValues(status).Inc()
	metrics.SearchDuration.WithLabelValues("total").Observe(elapsed.Seconds())

	if err != nil {
		s.logger.Warn("search failed",
			zap.Int("top_k", req.TopK),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("search completed",
		zap.Int("top_k", req.TopK),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", elapsed))
	return results, nil
}

func (s *Service) search(ctx context.Context, req Request) ([]Result, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	query := req.Vector
	if len(query) == 0 {
		embedStart := time.Now()
		embedded, err := s.embed.Embed(ctx, req.Question)
		if err != nil {
			return nil, fmt.Errorf("embed question: %w", err)
		}
		metrics.SearchDuration.WithLabelValues("embed").Observe(time.Since(embedStart).Seconds())
		query = embedded
	}

	rankStart := time.Now()
	ids, scores, err := s.engine.Search(ctx, s.backend, query, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	metrics.SearchDuration.WithLabelValues("rank").Observe(time.Since(rankStart).Seconds())
	metrics.SearchResultCount.WithLabelValues("ranked").Observe(float64(len(ids)))

	results := make([]Result, len(ids))
	for i, id := range ids {
		results[i] = Result{ID: id, Score: scores[i]}
	}

	if s.contents != nil {
		contents, err := s.contents.FetchContents(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("fetch contents: %w", err)
		}
		for i := range results {
			results[i].Content = contents[results[i].ID]
		}
	}

	if s.relevance != nil && req.Question != "" {
		filtered, err := s.applyFilter(ctx, req.Question, results)
		if err != nil {
			return nil, fmt.Errorf("relevance filter: %w", err)
		}
		results = filtered
	}

	metrics.SearchResultCount.WithLabelValues("kept").Observe(float64(len(results)))
	return results, nil
}

func (s *Service) validate(req Request) error {
	if req.TopK < 1 {
		return fmt.Errorf("%w: top_k must be >= 1", ErrInvalidRequest)
	}
	if req.Question == "" && len(req.Vector) == 0 {
		return fmt.Errorf("%w: question or vector is required", ErrInvalidRequest)
	}
	if req.Question != "" && len(req.Vector) > 0 {
		return fmt.Errorf("%w: question and vector are mutually exclusive", ErrInvalidRequest)
	}
	return nil
}

// applyFilter keeps the ranked order of the candidates the filter endpoint
// approved. Candidates without content are kept as-is, there is nothing to
// judge them by.
func (s *Service) applyFilter(ctx context.Context, question string, results []Result) ([]Result, error) {
	filterStart := time.Now()

	candidates := make([]filter.Candidate, 0, len(results))
	for _, r := range results {
		if r.Content != "" {
			candidates = append(candidates, filter.Candidate{ID: r.ID, Content: r.Content})
		}
	}
	if len(candidates) == 0 {
		return results, nil
	}

	decisions, err := s.relevance.Filter(ctx, question, candidates)
	if err != nil {
		return nil, err
	}
	metrics.SearchDuration.WithLabelValues("filter").Observe(time.Since(filterStart).Seconds())

	kept := results[:0]
	for _, r := range results {
		keep, judged := decisions[r.ID]
		if !judged || keep {
			kept = append(kept, r)
		}
		if judged {
			decision := "drop"
			if keep {
				decision = "keep"
			}
			metrics.FilterDecisionsTotal.WithLabelValues(decision).Inc()
		}
	}

	s.logger.Debug("relevance filter applied",
		zap.Int("judged", len(candidates)),
		zap.Int("kept", len(kept)))
	return kept, nil
}
