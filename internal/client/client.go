// Package client holds the HTTP adapters for the enrichment collaborators:
// the news listing and article pages, the chat completions endpoint and the
// place and geocoding services. Calls are bounded by a timeout, optionally
// guarded by a circuit breaker, and never retried.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kjstillabower/sensor-event-correlator/internal/circuitbreaker"
	"github.com/kjstillabower/sensor-event-correlator/internal/observability"
)

var (
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrNotFound        = errors.New("not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 10 << 20

const userAgent = "sensor-event-correlator/1.0"

// caller carries what every adapter shares: a named collaborator, an HTTP
// client, a per-call timeout and an optional circuit breaker.
type caller struct {
	name    string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

func newCaller(name string, timeout time.Duration) caller {
	return caller{
		name:    name,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// SetCircuitBreaker guards subsequent calls with cb.
func (c *caller) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// do builds a request under the call timeout, sends it and returns the body
// of a 2xx response. Non-2xx statuses map to the package sentinel errors.
func (c *caller) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var body []byte
	call := func() error {
		var err error
		body, err = c.send(ctx, build)
		return err
	}
	if c.breaker == nil {
		return body, call()
	}
	err := c.breaker.Call(ctx, call)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.RecordUpstreamCall(c.name, "circuit_open", 0)
	}
	return body, err
}

func (c *caller) send(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := build(reqCtx)
	if err != nil {
		observability.RecordUpstreamCall(c.name, "error", time.Since(start))
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.RecordUpstreamCall(c.name, "error", time.Since(start))
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%s request timeout: %w", c.name, err)
		}
		return nil, fmt.Errorf("%s http request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	observability.RecordUpstreamCall(c.name, statusLabel(resp.StatusCode), time.Since(start))

	if err := handleErrorResponse(resp); err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s read response body: %w", c.name, err)
	}
	return body, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, resp.StatusCode)
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: HTTP %d", ErrNotFound, resp.StatusCode)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

// IsBreakerFailure reports whether err should count against a collaborator's
// circuit. "Not found" answers and caller cancellation do not.
func IsBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled)
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode == 404 || statusCode == 410 {
		return "not_found"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
