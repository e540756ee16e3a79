// Package external routes all outbound HTTP calls to the remote store
// through a single resilient client: circuit breaking, retries with
// exponential backoff, trace propagation, and error mapping into the
// domain's store error codes.
package external

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"cropwise/internal/types"
)

// RetryPolicy configures the retry behavior for the Client.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns sensible defaults for store calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    250 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// Client wraps an *http.Client and a circuit breaker. The breaker guards the
// store's transport: it trips after sustained consecutive failures so a dead
// endpoint is not hammered by every trigger source at once. This is distinct
// from the pipeline's failure governor, which counts whole pipeline runs.
type Client struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	sleepFn     func(time.Duration) // injectable for tests
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithSleepFunc overrides the sleep function used between retries.
func WithSleepFunc(fn func(time.Duration)) Option {
	return func(c *Client) {
		c.sleepFn = fn
	}
}

// NewClient creates a resilient HTTP client for the remote store.
func NewClient(httpClient *http.Client, breakerName string, policy RetryPolicy, opts ...Option) *Client {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	c := &Client{
		client:      httpClient,
		breaker:     cb,
		retryPolicy: policy,
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes the request with request-ID propagation, circuit breaking,
// retry on 429/5xx (respecting Retry-After), and error mapping into
// types.AppError store codes. On success the response is returned as-is and
// the caller owns the body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if reqID := types.GetRequestID(req.Context()); reqID != "" {
		req.Header.Set("X-Request-Id", reqID)
	}

	// Snapshot the body so it can be replayed on retries.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
				"failed to read request body for retry support", err)
		}
		req.Body.Close()
	}

	var lastResp *http.Response
	var lastErr error

	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			// 5xx and 429 count as failures for the breaker.
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("store returned %d", r.StatusCode)
			}
			return r, nil
		})

		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		// An open breaker will not recover within this call; stop retrying.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}

		if attempt < maxAttempts-1 {
			c.sleepFn(c.computeBackoff(attempt, resp))
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// computeBackoff determines the wait before the next retry attempt. It
// respects the Retry-After header if present, otherwise uses exponential
// backoff with full jitter clamped to [MinWait, MaxWait].
func (c *Client) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				wait := time.Duration(seconds) * time.Second
				if wait > c.retryPolicy.MaxWait {
					wait = c.retryPolicy.MaxWait
				}
				return wait
			}
		}
	}

	base := float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	if max := float64(c.retryPolicy.MaxWait); base > max {
		base = max
	}
	min := float64(c.retryPolicy.MinWait)
	if base <= min {
		return c.retryPolicy.MinWait
	}
	return time.Duration(min + rand.Float64()*(base-min))
}

// mapError translates transport-level failures into store AppErrors.
func (c *Client) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeStoreUnavailable,
			"circuit breaker is open; store unavailable", err)
	}

	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(types.ErrCodeStoreRateLimited,
				"store rate limit exceeded", err)
		case resp.StatusCode >= 500:
			return types.NewAppError(types.ErrCodeStoreUnavailable,
				fmt.Sprintf("store returned %d after retries", resp.StatusCode), err)
		}
	}

	// Network error, DNS failure, timeout.
	return types.NewAppError(types.ErrCodeStoreUnavailable, "store request failed", err)
}
