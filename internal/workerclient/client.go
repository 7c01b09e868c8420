package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls the worker's local introspection server on WORKER_URL.
// All calls share one circuit breaker; a dead worker answers 503 fast
// instead of stalling every admin request.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *Breaker
	timeout time.Duration
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: NewBreaker(BreakerConfig{}),
		timeout: timeout,
	}
}

func (c *Client) Stats(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/worker/stats")
}

func (c *Client) QueueStats(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/worker/queue/stats")
}

func (c *Client) Jobs(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/worker/jobs")
}

func (c *Client) SchedulerJobs(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/worker/scheduler/jobs")
}

func (c *Client) Enqueue(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/jobs/enqueue", body)
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body json.RawMessage) (json.RawMessage, error) {
	if !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, reader)

	if err != nil {
		c.breaker.After(err)
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)

	if err != nil {
		c.breaker.After(err)
		return nil, fmt.Errorf("worker unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if err != nil {
		c.breaker.After(err)
		return nil, err
	}

	if resp.StatusCode >= 500 {
		err := fmt.Errorf("worker returned %d", resp.StatusCode)
		c.breaker.After(err)
		return nil, err
	}

	c.breaker.After(nil)

	if resp.StatusCode >= 400 {
		return raw, fmt.Errorf("worker returned %d", resp.StatusCode)
	}

	return raw, nil
}
