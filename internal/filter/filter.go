// Package filter calls an external HTTP endpoint to judge whether each
// search candidate is relevant to the question. The endpoint receives one
// (question, content) pair per request and answers with a bare "1"/"0"
// body or a small JSON object.
package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keonho-kim/svve"
)

const defaultConcurrency = 8

// Config holds the filter endpoint parameters.
type Config struct {
	URL         string
	AuthToken   string
	Model       string
	Timeout     time.Duration
	Concurrency int
}

// Candidate is one document to judge.
type Candidate struct {
	ID      svve.DocID
	Content string
}

// Client posts candidates to the filter endpoint with bounded concurrency.
type Client struct {
	url         string
	authToken   string
	model       string
	concurrency int
	httpClient  *http.Client
}

// New creates a filter client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("filter url is required")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:         cfg.URL,
		authToken:   cfg.AuthToken,
		model:       cfg.Model,
		concurrency: concurrency,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

type filterRequest struct {
	Question string `json:"question"`
	Content  string `json:"content"`
	Model    string `json:"model,omitempty"`
}

// Filter judges all candidates and returns the keep decision per id. Any
// failed call fails the whole batch.
func (c *Client) Filter(ctx context.Context, question string, candidates []Candidate) (map[svve.DocID]bool, error) {
	decisions := make([]bool, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			keep, err := c.judge(ctx, question, cand.Content)
			if err != nil {
				return fmt.Errorf("candidate %d: %w", cand.ID, err)
			}
			decisions[i] = keep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[svve.DocID]bool, len(candidates))
	for i, cand := range candidates {
		out[cand.ID] = decisions[i]
	}
	return out, nil
}

func (c *Client) judge(ctx context.Context, question, content string) (bool, error) {
	payload, err := json.Marshal(filterRequest{Question: question, Content: content, Model: c.model})
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("call filter endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return false, fmt.Errorf("read filter response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("filter endpoint returned status %d", resp.StatusCode)
	}

	return parseDecision(body)
}

// parseDecision understands a bare "1"/"0" body, {"keep": bool, ...} and
// {"result": "1"|"0"}.
func parseDecision(body []byte) (bool, error) {
	switch strings.TrimSpace(string(body)) {
	case "1", `"1"`:
		return true, nil
	case "0", `"0"`:
		return false, nil
	}

	var decoded struct {
		Keep   *bool   `json:"keep"`
		Result *string `json:"result"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return false, fmt.Errorf("unrecognized filter response %q", truncate(body, 128))
	}
	if decoded.Keep != nil {
		return *decoded.Keep, nil
	}
	if decoded.Result != nil {
		switch strings.TrimSpace(*decoded.Result) {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("unrecognized filter response %q", truncate(body, 128))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
