// Package queue implements an asynchronous search-job queue on Redis
// Streams. Producers enqueue jobs with a capacity guard; a consumer-group
// worker executes them through the search service and records terminal
// state in a per-job hash with a TTL.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keonho-kim/svve/internal/db"
	"github.com/keonho-kim/svve/internal/metrics"
)

// Job states.
const (
	StatePending = "PENDING"
	StateRunning = "RUNNING"
	StateDone    = "DONE"
	StateFailed  = "FAILED"
)

// Sentinel errors for queue operations.
var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrJobNotFound = errors.New("job not found")
)

// Store is the subset of db.Store the queue needs.
type Store interface {
	db.StreamStore
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Config holds queue parameters.
type Config struct {
	Stream        string
	Group         string
	Consumer      string
	Block         time.Duration
	BatchSize     int64
	RejectAtDepth int64
	ResultTTL     time.Duration
}

// Job is the queryable state of one search job.
type Job struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
	Results  string `json:"results,omitempty"` // JSON array, set when DONE
	Error    string `json:"error,omitempty"`   // set when FAILED
}

// Queue enqueues and inspects search jobs.
type Queue struct {
	store  Store
	cfg    Config
	logger *zap.Logger
}

// New creates a queue.
func New(store Store, cfg Config, logger *zap.Logger) *Queue {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 8
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &Queue{store: store, cfg: cfg, logger: logger}
}

func (q *Queue) jobKey(id string) string {
	return q.cfg.Stream + ":" + id
}

// Enqueue registers a job and appends it to the stream. When the stream is
// at or above RejectAtDepth the job is rejected instead of queued.
func (q *Queue) Enqueue(ctx context.Context, question string, topK int) (string, error) {
	if q.cfg.RejectAtDepth > 0 {
		depth, err := q.store.StreamLen(ctx, q.cfg.Stream)
		if err != nil {
			return "", fmt.Errorf("check queue depth: %w", err)
		}
		metrics.QueueDepth.Set(float64(depth))
		if depth >= q.cfg.RejectAtDepth {
			metrics.QueueJobsTotal.WithLabelValues("rejected").Inc()
			return "", fmt.Errorf("%w: depth %d", ErrQueueFull, depth)
		}
	}

	id := uuid.NewString()
	if err := q.setState(ctx, id, map[string]string{
		"state":    StatePending,
		"question": question,
		"top_k":    strconv.Itoa(topK),
	}); err != nil {
		return "", fmt.Errorf("record job state: %w", err)
	}

	_, err := q.store.StreamAdd(ctx, q.cfg.Stream, map[string]string{
		"id":       id,
		"question": question,
		"top_k":    strconv.Itoa(topK),
	})
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	q.logger.Info("job enqueued", zap.String("job_id", id), zap.Int("top_k", topK))
	return id, nil
}

// Get returns the state of a job. Unknown or expired ids yield
// ErrJobNotFound.
func (q *Queue) Get(ctx context.Context, id string) (Job, error) {
	fields, err := q.store.HGetAll(ctx, q.jobKey(id))
	if err != nil {
		return Job{}, fmt.Errorf("load job state: %w", err)
	}
	if len(fields) == 0 {
		return Job{}, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}

	topK, _ := strconv.Atoi(fields["top_k"])
	return Job{
		ID:       id,
		State:    fields["state"],
		Question: fields["question"],
		TopK:     topK,
		Results:  fields["results"],
		Error:    fields["error"],
	}, nil
}

func (q *Queue) setState(ctx context.Context, id string, fields map[string]string) error {
	key := q.jobKey(id)
	if err := q.store.HSet(ctx, key, fields); err != nil {
		return err
	}
	if q.cfg.ResultTTL > 0 {
		if err := q.store.Expire(ctx, key, q.cfg.ResultTTL); err != nil {
			return err
		}
	}
	return nil
}

func marshalResults(v any) (string, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(encoded), nil
}
