// Package transport provides an HTTP client wrapper with bounded retry and
// exponential backoff for transient failures. Client errors (4xx) fail
// immediately; server errors and network failures are retried with jitter.
package transport

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"render-studio/internal/config"

	"github.com/rs/zerolog"
)

type Client struct {
	http      *http.Client
	retries   int
	baseDelay time.Duration
	maxDelay  time.Duration
	log       *zerolog.Logger
}

func NewClient(cfg config.RetryConfig, timeout time.Duration, log *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		retries:   cfg.Retries,
		baseDelay: cfg.BaseDelay,
		maxDelay:  cfg.MaxDelay,
		log:       log,
	}
}

// Do issues the request, retrying on server-class responses (5xx) and
// transport errors. The response of a non-retryable failure (4xx) is
// returned to the caller unconsumed so it can read the error body.
// Requests with a body must carry GetBody so the body can be replayed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	ctx := req.Context()

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if req.Body != nil {
				if req.GetBody == nil {
					return nil, fmt.Errorf("transport: request body is not replayable")
				}
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("transport: rewind request body: %w", err)
				}
				req.Body = body
			}
			if err := c.sleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warn().Err(err).Int("attempt", attempt+1).Int("max", c.retries+1).
				Str("url", req.URL.String()).Msg("request failed, will retry")
			continue
		}
		if resp.StatusCode < 400 {
			return resp, nil
		}
		if resp.StatusCode < 500 {
			// Client-class failures are not transient.
			return resp, nil
		}
		resp.Body.Close()
		lastErr = fmt.Errorf("server error: %d %s", resp.StatusCode, resp.Status)
		c.log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Int("max", c.retries+1).
			Str("url", req.URL.String()).Msg("server error, will retry")
	}
	return nil, fmt.Errorf("transport: all %d attempts failed: %w", c.retries+1, lastErr)
}

// sleep waits baseDelay*2^attempt plus up to one second of jitter, capped at
// maxDelay, honoring context cancellation.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.baseDelay << uint(attempt)
	delay += time.Duration(rand.Int63n(int64(time.Second)))
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
