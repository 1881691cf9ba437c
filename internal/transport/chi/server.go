// Package chi exposes the search pipeline and the job queue over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/keonho-kim/svve"
	"github.com/keonho-kim/svve/internal/metrics"
	"github.com/keonho-kim/svve/internal/queue"
	openaiemb "github.com/keonho-kim/svve/internal/transport/openai"
	searchuc "github.com/keonho-kim/svve/internal/usecase/search"
)

// Error response codes.
const (
	codeBadRequest    = "bad_request"
	codeNotFound      = "not_found"
	codeQueueFull     = "queue_full"
	codeProviderError = "embedding_provider_error"
	codeInternalError = "internal_error"
)

// errorResponse is the JSON error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Searcher executes search requests.
type Searcher interface {
	Search(ctx context.Context, req searchuc.Request) ([]searchuc.Result, error)
}

// JobQueue enqueues and inspects asynchronous search jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, question string, topK int) (string, error)
	Get(ctx context.Context, id string) (queue.Job, error)
}

// Pinger checks backing-store connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server handles the HTTP API.
type Server struct {
	search        Searcher
	jobs          JobQueue // nil when the queue is disabled
	pinger        Pinger   // nil for backends without a health probe
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithJobQueue enables the asynchronous job endpoints.
func WithJobQueue(jobs JobQueue) Option {
	return func(s *Server) { s.jobs = jobs }
}

// WithPinger adds a backing-store probe to the health endpoint.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// NewServer creates an HTTP API server.
func NewServer(search Searcher, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{search: search, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(searchuc.ErrInvalidRequest, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(svve.ErrInvalidInput, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(svve.ErrDegenerateVector, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(openaiemb.ErrProviderUnavailable, http.StatusBadGateway, codeProviderError),
		sentinelHandler(queue.ErrQueueFull, http.StatusTooManyRequests, codeQueueFull),
		sentinelHandler(queue.ErrJobNotFound, http.StatusNotFound, codeNotFound),
	}
	return s
}

// Router assembles the chi router with logging, auth, and metrics middleware.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Post("/search", s.handleSearch)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	if s.jobs != nil {
		r.Post("/jobs", s.handleEnqueueJob)
		r.Get("/jobs/{id}", s.handleGetJob)
	}
	return r
}

type searchRequest struct {
	Question string    `json:"question,omitempty"`
	Vector   []float32 `json:"vector,omitempty"`
	TopK     int       `json:"top_k"`
}

type searchResponse struct {
	Results []searchuc.Result `json:"results"`
}

// handleSearch handles POST /search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	results, err := s.search.Search(r.Context(), searchuc.Request{
		Question: req.Question,
		Vector:   req.Vector,
		TopK:     req.TopK,
	})
	if err != nil {
		// An empty outcome is a valid answer, not a transport failure.
		if errors.Is(err, svve.ErrNoSurvivors) || errors.Is(err, svve.ErrEmptyResult) {
			writeJSON(w, http.StatusOK, searchResponse{Results: []searchuc.Result{}})
			return
		}
		s.handleDomainError(w, err)
		return
	}
	if results == nil {
		results = []searchuc.Result{}
	}

	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

type enqueueRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type enqueueResponse struct {
	JobID string `json:"job_id"`
}

// handleEnqueueJob handles POST /jobs.
func (s *Server) handleEnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "question is required")
		return
	}
	if req.TopK < 1 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "top_k must be >= 1")
		return
	}

	id, err := s.jobs.Enqueue(r.Context(), req.Question, req.TopK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, enqueueResponse{JobID: id})
}

// handleGetJob handles GET /jobs/{id}.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeMessage returns a sentinel error message for the client without
// exposing internals.
func safeMessage(err error) string {
	sentinels := []error{
		searchuc.ErrInvalidRequest,
		svve.ErrInvalidInput,
		svve.ErrDegenerateVector,
		openaiemb.ErrProviderUnavailable,
		queue.ErrQueueFull,
		queue.ErrJobNotFound,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
