package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tmoretti/wfm-data/internal/metrics"
)

// ErrClientClosed is returned for any request issued after Close.
var ErrClientClosed = errors.New("api: client is closed")

// APIError represents an error response from the upstream API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("warframe market api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the error should trigger a retry. Upstream
// rate limiting (429) and server overload (5xx) are transient.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// RateLimited reports whether the upstream rejected the request for rate.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// DecodeError is a data-contract failure: the transport succeeded but the
// body failed structural validation. Never retried; callers skip the item.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ExhaustedError is surfaced when retries for a transient failure run out.
type ExhaustedError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch %s exhausted after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is a data-contract failure.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsExhausted reports whether err is a retry-exhaustion failure.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// doRequest performs one HTTP GET attempt. It acquires rate-limiter
// capacity before touching the network, so no caller can bypass the
// global request bound.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire rate limit: %w", err)
	}
	metrics.FetchAttempts.Inc()

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Platform", c.platform)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	return body, nil
}

// doWithRetry performs a request with linear backoff. Every attempt,
// retries included, re-acquires limiter capacity inside doRequest.
func (c *Client) doWithRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryDelay * time.Duration(attempt)
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.RateLimited() {
				// Upstream told us to back off; double the wait.
				wait *= 2
			}

			c.logger.Debug("retrying request",
				"attempt", attempt,
				"wait", wait,
				"path", path,
				"err", lastErr,
			)
			metrics.FetchRetries.Inc()

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		body, err := c.doRequest(ctx, path, query)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrClientClosed) {
			return nil, err
		}
		if ctx.Err() != nil {
			// The caller's deadline is gone; retrying cannot help.
			return nil, err
		}

		lastErr = err

		// Non-retryable upstream responses surface immediately.
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
			metrics.FetchFailures.WithLabelValues("upstream").Inc()
			return nil, err
		}
	}

	metrics.FetchFailures.WithLabelValues("exhausted").Inc()
	return nil, &ExhaustedError{
		Path:     path,
		Attempts: c.maxRetries + 1,
		Err:      lastErr,
	}
}

// get performs a GET request with retries and decodes the JSON body.
// A body that fails decoding is a data-contract fault, not a transient
// one, and is not retried.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		metrics.FetchFailures.WithLabelValues("decode").Inc()
		return &DecodeError{Path: path, Err: err}
	}

	return nil
}
