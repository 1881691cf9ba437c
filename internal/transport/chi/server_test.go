package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/keonho-kim/svve"
	"github.com/keonho-kim/svve/internal/queue"
	searchuc "github.com/keonho-kim/svve/internal/usecase/search"
)

type mockSearcher struct {
	searchFn func(ctx context.Context, req searchuc.Request) ([]searchuc.Result, error)
}

func (m *mockSearcher) Search(ctx context.Context, req searchuc.Request) ([]searchuc.Result, error) {
	return m.searchFn(ctx, req)
}

type mockJobQueue struct {
	enqueueFn func(ctx context.Context, question string, topK int) (string, error)
	getFn     func(ctx context.Context, id string) (queue.Job, error)
}

func (m *mockJobQueue) Enqueue(ctx context.Context, question string, topK int) (string, error) {
	return m.enqueueFn(ctx, question, topK)
}

func (m *mockJobQueue) Get(ctx context.Context, id string) (queue.Job, error) {
	return m.getFn(ctx, id)
}

type mockPinger struct {
	pingFn func(ctx context.Context) error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.pingFn(ctx) }

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestServer_Search(t *testing.T) {
	svc := &mockSearcher{
		searchFn: func(_ context.Context, req searchuc.Request) ([]searchuc.Result, error) {
			if req.Question != "what is go?" || req.TopK != 2 {
				t.Errorf("req = %+v", req)
			}
			return []searchuc.Result{
				{ID: 1, Score: 0.92, Content: "go is a language"},
				{ID: 4, Score: 0.71},
			}, nil
		},
	}
	router := NewServer(svc, zap.NewNop()).Router(nil)

	rr := doRequest(t, router, "POST", "/search", searchRequest{Question: "what is go?", TopK: 2})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rr.Code, rr.Body.String())
	}

	var resp searchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 2 || resp.Results[0].ID != 1 {
		t.Errorf("results = %v", resp.Results)
	}
}

func TestServer_SearchErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid request", fmt.Errorf("wrap: %w", searchuc.ErrInvalidRequest), http.StatusBadRequest, codeBadRequest},
		{"degenerate vector", svve.ErrDegenerateVector, http.StatusBadRequest, codeBadRequest},
		{"internal", errors.New("redis connection refused"), http.StatusInternalServerError, codeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSearcher{
				searchFn: func(_ context.Context, _ searchuc.Request) ([]searchuc.Result, error) {
					return nil, tt.err
				},
			}
			router := NewServer(svc, zap.NewNop()).Router(nil)

			rr := doRequest(t, router, "POST", "/search", searchRequest{Question: "q", TopK: 1})
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}

			var resp errorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestServer_SearchEmptyOutcomeIsOK(t *testing.T) {
	for _, sentinel := range []error{svve.ErrNoSurvivors, svve.ErrEmptyResult} {
		svc := &mockSearcher{
			searchFn: func(_ context.Context, _ searchuc.Request) ([]searchuc.Result, error) {
				return nil, fmt.Errorf("rank: %w", sentinel)
			},
		}
		router := NewServer(svc, zap.NewNop()).Router(nil)

		rr := doRequest(t, router, "POST", "/search", searchRequest{Question: "q", TopK: 3})
		if rr.Code != http.StatusOK {
			t.Fatalf("%v: status = %d, want 200", sentinel, rr.Code)
		}

		var resp searchResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Results == nil || len(resp.Results) != 0 {
			t.Errorf("%v: results = %v, want empty array", sentinel, resp.Results)
		}
	}
}

func TestServer_SearchMalformedBody(t *testing.T) {
	svc := &mockSearcher{}
	router := NewServer(svc, zap.NewNop()).Router(nil)

	req := httptest.NewRequest("POST", "/search", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestServer_EnqueueJob(t *testing.T) {
	jobs := &mockJobQueue{
		enqueueFn: func(_ context.Context, question string, topK int) (string, error) {
			if question != "what is go?" || topK != 5 {
				t.Errorf("enqueue(%q, %d)", question, topK)
			}
			return "job-123", nil
		},
	}
	router := NewServer(&mockSearcher{}, zap.NewNop(), WithJobQueue(jobs)).Router(nil)

	rr := doRequest(t, router, "POST", "/jobs", enqueueRequest{Question: "what is go?", TopK: 5})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}

	var resp enqueueResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID != "job-123" {
		t.Errorf("JobID = %q, want job-123", resp.JobID)
	}
}

func TestServer_EnqueueJobValidation(t *testing.T) {
	router := NewServer(&mockSearcher{}, zap.NewNop(), WithJobQueue(&mockJobQueue{})).Router(nil)

	tests := []struct {
		name string
		req  enqueueRequest
	}{
		{"missing question", enqueueRequest{TopK: 3}},
		{"zero top_k", enqueueRequest{Question: "q"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, router, "POST", "/jobs", tt.req)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestServer_EnqueueJobQueueFull(t *testing.T) {
	jobs := &mockJobQueue{
		enqueueFn: func(_ context.Context, _ string, _ int) (string, error) {
			return "", fmt.Errorf("depth 64: %w", queue.ErrQueueFull)
		},
	}
	router := NewServer(&mockSearcher{}, zap.NewNop(), WithJobQueue(jobs)).Router(nil)

	rr := doRequest(t, router, "POST", "/jobs", enqueueRequest{Question: "q", TopK: 1})
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rr.Code)
	}
}

func TestServer_GetJob(t *testing.T) {
	jobs := &mockJobQueue{
		getFn: func(_ context.Context, id string) (queue.Job, error) {
			if id != "job-123" {
				t.Errorf("id = %q", id)
			}
			return queue.Job{ID: id, State: queue.StateDone, Results: `[{"id":1,"score":0.9}]`}, nil
		},
	}
	router := NewServer(&mockSearcher{}, zap.NewNop(), WithJobQueue(jobs)).Router(nil)

	rr := doRequest(t, router, "GET", "/jobs/job-123", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var job queue.Job
	if err := json.Unmarshal(rr.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.State != queue.StateDone {
		t.Errorf("State = %q, want DONE", job.State)
	}
}

func TestServer_GetJobNotFound(t *testing.T) {
	jobs := &mockJobQueue{
		getFn: func(_ context.Context, id string) (queue.Job, error) {
			return queue.Job{}, fmt.Errorf("job %s: %w", id, queue.ErrJobNotFound)
		},
	}
	router := NewServer(&mockSearcher{}, zap.NewNop(), WithJobQueue(jobs)).Router(nil)

	rr := doRequest(t, router, "GET", "/jobs/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestServer_JobRoutesAbsentWithoutQueue(t *testing.T) {
	router := NewServer(&mockSearcher{}, zap.NewNop()).Router(nil)

	rr := doRequest(t, router, "POST", "/jobs", enqueueRequest{Question: "q", TopK: 1})
	if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 404 or 405", rr.Code)
	}
}

func TestServer_Health(t *testing.T) {
	t.Run("ok without pinger", func(t *testing.T) {
		router := NewServer(&mockSearcher{}, zap.NewNop()).Router(nil)

		rr := doRequest(t, router, "GET", "/healthz", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rr.Code)
		}
	})

	t.Run("degraded when store unreachable", func(t *testing.T) {
		p := &mockPinger{pingFn: func(_ context.Context) error { return errors.New("no route") }}
		router := NewServer(&mockSearcher{}, zap.NewNop(), WithPinger(p)).Router(nil)

		rr := doRequest(t, router, "GET", "/healthz", nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rr.Code)
		}
	})
}
