package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/keonho-kim/svve"
	"github.com/keonho-kim/svve/internal/usecase/search"
)

func testConfig() Config {
	return Config{
		Stream:        "svve:jobs",
		Group:         "svve-workers",
		Consumer:      "worker-1",
		Block:         time.Millisecond,
		BatchSize:     4,
		RejectAtDepth: 3,
		ResultTTL:     time.Hour,
	}
}

func TestQueue_EnqueueAndGet(t *testing.T) {
	store := newFakeStore()
	q := New(store, testConfig(), zap.NewNop())

	id, err := q.Enqueue(context.Background(), "what is go?", 5)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if id == "" {
		t.Fatal("Enqueue() returned empty id")
	}

	job, err := q.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.State != StatePending {
		t.Errorf("State = %q, want %q", job.State, StatePending)
	}
	if job.Question != "what is go?" || job.TopK != 5 {
		t.Errorf("job = %+v", job)
	}

	if len(store.entries) != 1 {
		t.Fatalf("stream entries = %d, want 1", len(store.entries))
	}
	if store.entries[0].Fields["id"] != id {
		t.Errorf("stream id = %q, want %q", store.entries[0].Fields["id"], id)
	}
	if ttl := store.expired[q.jobKey(id)]; ttl != time.Hour {
		t.Errorf("job state ttl = %v, want 1h", ttl)
	}
}

func TestQueue_EnqueueRejectsWhenFull(t *testing.T) {
	store := newFakeStore()
	q := New(store, testConfig(), zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(context.Background(), "q", 1); err != nil {
			t.Fatalf("Enqueue() #%d error = %v", i, err)
		}
	}

	_, err := q.Enqueue(context.Background(), "q", 1)
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue() error = %v, want ErrQueueFull", err)
	}
}

func TestQueue_EnqueueDepthCheckError(t *testing.T) {
	store := newFakeStore()
	store.streamLenErr = errors.New("connection lost")
	q := New(store, testConfig(), zap.NewNop())

	if _, err := q.Enqueue(context.Background(), "q", 1); err == nil {
		t.Error("Enqueue() error = nil, want depth check error")
	}
}

func TestQueue_GetUnknownJob(t *testing.T) {
	q := New(newFakeStore(), testConfig(), zap.NewNop())

	_, err := q.Get(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get() error = %v, want ErrJobNotFound", err)
	}
}

func TestWorker_RunCompletesJob(t *testing.T) {
	store := newFakeStore()
	q := New(store, testConfig(), zap.NewNop())

	id, err := q.Enqueue(context.Background(), "what is go?", 2)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	svc := &mockSearcher{
		searchFn: func(_ context.Context, req search.Request) ([]search.Result, error) {
			if req.Question != "what is go?" || req.TopK != 2 {
				t.Errorf("req = %+v", req)
			}
			return []search.Result{{ID: 7, Score: 0.9, Content: "go is a language"}}, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	store.onDrained = cancel

	w := NewWorker(q, svc, zap.NewNop())
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job, err := q.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.State != StateDone {
		t.Fatalf("State = %q, want %q", job.State, StateDone)
	}

	var results []search.Result
	if err := json.Unmarshal([]byte(job.Results), &results); err != nil {
		t.Fatalf("unmarshal results: %v", err)
	}
	if len(results) != 1 || results[0].ID != svve.DocID(7) {
		t.Errorf("results = %v", results)
	}

	if len(store.acked) != 1 {
		t.Errorf("acked = %v, want one entry", store.acked)
	}
	if store.groups["svve:jobs"] != "svve-workers" {
		t.Errorf("consumer group = %q", store.groups["svve:jobs"])
	}
}

func TestWorker_RunMarksFailedJob(t *testing.T) {
	store := newFakeStore()
	q := New(store, testConfig(), zap.NewNop())

	id, err := q.Enqueue(context.Background(), "bad question", 2)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	svc := &mockSearcher{
		searchFn: func(_ context.Context, _ search.Request) ([]search.Result, error) {
			return nil, errors.New("no candidates passed the vote gate")
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	store.onDrained = cancel

	w := NewWorker(q, svc, zap.NewNop())
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	job, err := q.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.State != StateFailed {
		t.Errorf("State = %q, want %q", job.State, StateFailed)
	}
	if job.Error == "" {
		t.Error("job.Error is empty, want failure message")
	}

	// Failed jobs are still acknowledged, retrying them would fail again.
	if len(store.acked) != 1 {
		t.Errorf("acked = %v, want one entry", store.acked)
	}
}
