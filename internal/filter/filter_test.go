package filter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keonho-kim/svve"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, concurrency int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{URL: srv.URL, AuthToken: "secret", Concurrency: concurrency})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestClient_FilterPlainBodies(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var req struct {
			Question string `json:"question"`
			Content  string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Content == "relevant" {
			w.Write([]byte("1"))
			return
		}
		w.Write([]byte("0"))
	}, 2)

	decisions, err := c.Filter(context.Background(), "what is go?", []Candidate{
		{ID: 1, Content: "relevant"},
		{ID: 2, Content: "noise"},
	})
	if err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if !decisions[1] || decisions[2] {
		t.Errorf("decisions = %v, want {1:true 2:false}", decisions)
	}
}

func TestClient_FilterJSONBodies(t *testing.T) {
	var n atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		switch n.Add(1) % 2 {
		case 1:
			w.Write([]byte(`{"keep": true, "reason": "on topic"}`))
		default:
			w.Write([]byte(`{"result": "0"}`))
		}
	}, 1)

	decisions, err := c.Filter(context.Background(), "q", []Candidate{
		{ID: 10, Content: "a"},
		{ID: 20, Content: "b"},
	})
	if err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if !decisions[10] || decisions[20] {
		t.Errorf("decisions = %v, want {10:true 20:false}", decisions)
	}
}

func TestClient_FilterFailsBatchOnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, 4)

	_, err := c.Filter(context.Background(), "q", []Candidate{{ID: 1, Content: "a"}})
	if err == nil {
		t.Error("Filter() error = nil, want status error")
	}
}

func TestClient_FilterUnrecognizedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("maybe"))
	}, 1)

	_, err := c.Filter(context.Background(), "q", []Candidate{{ID: 1, Content: "a"}})
	if err == nil {
		t.Error("Filter() error = nil, want parse error")
	}
}

func TestClient_FilterBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		w.Write([]byte("1"))
	}, 2)

	candidates := make([]Candidate, 8)
	for i := range candidates {
		candidates[i] = Candidate{ID: svve.DocID(i + 1), Content: "x"}
	}

	if _, err := c.Filter(context.Background(), "q", candidates); err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", got)
	}
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() error = nil, want missing-url error")
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		body    string
		want    bool
		wantErr bool
	}{
		{"1", true, false},
		{"0", false, false},
		{" 1\n", true, false},
		{`"1"`, true, false},
		{`{"keep": false}`, false, false},
		{`{"result": "1"}`, true, false},
		{`{"result": "2"}`, false, true},
		{`{}`, false, true},
		{"yes", false, true},
	}
	for _, tt := range tests {
		got, err := parseDecision([]byte(tt.body))
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDecision(%q) error = %v, wantErr %v", tt.body, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("parseDecision(%q) = %v, want %v", tt.body, got, tt.want)
		}
	}
}
