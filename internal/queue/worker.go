package queue

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/keonho-kim/svve/internal/db"
	"github.com/keonho-kim/svve/internal/metrics"
	"github.com/keonho-kim/svve/internal/usecase/search"
)

// Searcher executes a search job.
type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]search.Result, error)
}

// Worker consumes jobs from the stream and executes them.
type Worker struct {
	queue  *Queue
	svc    Searcher
	logger *zap.Logger
}

// NewWorker creates a worker bound to a queue and a search service.
func NewWorker(queue *Queue, svc Searcher, logger *zap.Logger) *Worker {
	return &Worker{queue: queue, svc: svc, logger: logger}
}

// Run consumes jobs until ctx is cancelled. The consumer group is created
// on entry when missing.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.queue.cfg
	if err := w.queue.store.StreamGroupCreate(ctx, cfg.Stream, cfg.Group); err != nil {
		return err
	}
	w.logger.Info("queue worker started",
		zap.String("stream", cfg.Stream),
		zap.String("group", cfg.Group),
		zap.String("consumer", cfg.Consumer))

	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("queue worker stopped")
			return nil
		}

		messages, err := w.queue.store.StreamReadGroup(
			ctx, cfg.Stream, cfg.Group, cfg.Consumer, cfg.BatchSize, cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("queue worker stopped")
				return nil
			}
			w.logger.Warn("read job stream", zap.Error(err))
			continue
		}

		for _, msg := range messages {
			w.process(ctx, msg)
			if err := w.queue.store.StreamAck(ctx, cfg.Stream, cfg.Group, msg.ID); err != nil {
				w.logger.Warn("ack job", zap.String("stream_id", msg.ID), zap.Error(err))
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, msg db.StreamMessage) {
	id := msg.Fields["id"]
	if id == "" {
		w.logger.Warn("job without id", zap.String("stream_id", msg.ID))
		return
	}
	topK, err := strconv.Atoi(msg.Fields["top_k"])
	if err != nil {
		w.fail(ctx, id, errors.New("malformed top_k"))
		return
	}

	if err := w.queue.setState(ctx, id, map[string]string{"state": StateRunning}); err != nil {
		w.logger.Warn("mark job running", zap.String("job_id", id), zap.Error(err))
	}

	results, err := w.svc.Search(ctx, search.Request{Question: msg.Fields["question"], TopK: topK})
	if err != nil {
		w.fail(ctx, id, err)
		return
	}

	encoded, err := marshalResults(results)
	if err != nil {
		w.fail(ctx, id, err)
		return
	}
	if err := w.queue.setState(ctx, id, map[string]string{
		"state":   StateDone,
		"results": encoded,
	}); err != nil {
		w.logger.Warn("mark job done", zap.String("job_id", id), zap.Error(err))
		return
	}

	metrics.QueueJobsTotal.WithLabelValues("done").Inc()
	w.logger.Info("job completed", zap.String("job_id", id), zap.Int("results", len(results)))
}

func (w *Worker) fail(ctx context.Context, id string, cause error) {
	if err := w.queue.setState(ctx, id, map[string]string{
		"state": StateFailed,
		"error": cause.Error(),
	}); err != nil {
		w.logger.Warn("mark job failed", zap.String("job_id", id), zap.Error(err))
	}
	metrics.QueueJobsTotal.WithLabelValues("failed").Inc()
	w.logger.Warn("job failed", zap.String("job_id", id), zap.Error(cause))
}
