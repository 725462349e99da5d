// Package combine calls the external combine service that merges an
// encounter's recordings into a final note.
package combine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/observability/logging"
	"encounter-scribe-service/internal/observability/metrics"
	"encounter-scribe-service/internal/resilience"
)

// ErrNotConfigured is returned when no combine URL is set.
var ErrNotConfigured = errors.New("combine service not configured")

// maxBody bounds how much of a response is read.
const maxBody = 4 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("combine service returned %d: %s", e.Code, e.Body)
}

// Client posts combine requests. The zero URL yields ErrNotConfigured
// on every call.
type Client struct {
	url     string
	http    *http.Client
	breaker *resilience.Breaker
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a client for url with a per-call timeout.
func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		url:     url,
		http:    &http.Client{Timeout: timeout},
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("combine-client"),
	}
	c.breaker = resilience.NewBreaker(resilience.BreakerConfig{
		Name:         "combine",
		Threshold:    5,
		ResetTimeout: 30 * time.Second,
		IsFailure:    isServerFailure,
	}).WithHook(func(from, to resilience.State) {
		c.metrics.SetBreakerState("combine", float64(to))
	})
	c.metrics.SetBreakerState("combine", float64(resilience.Closed))
	return c
}

// isServerFailure reports whether err reflects an unhealthy combine
// service. Client errors (4xx) do not.
func isServerFailure(err error) bool {
	var statusErr *StatusError
	return !errors.As(err, &statusErr) || statusErr.Code >= 500
}

// Configured reports whether a URL is set.
func (c *Client) Configured() bool {
	return c.url != ""
}

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// Combine posts req and returns the response body as opaque JSON.
// Client errors (4xx) do not count against the breaker.
func (c *Client) Combine(ctx context.Context, req models.CombineRequest) (json.RawMessage, error) {
	if c.url == "" {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	result, err := resilience.ExecuteWithResult(c.breaker, func() (json.RawMessage, error) {
		defer func() { c.metrics.RecordCombineLatency(time.Since(start).Seconds()) }()
		return c.post(ctx, req)
	})
	if errors.Is(err, resilience.ErrOpen) {
		return nil, fmt.Errorf("combine %s: %w", req.EncounterID, err)
	}
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("encounterId", req.EncounterID).
			Bool("isAutoCombine", req.IsAutoCombine).
			Dur("latency", time.Since(start)).
			Msg("Combine call failed")
		return nil, err
	}

	c.logger.Info().
		Str("encounterId", req.EncounterID).
		Bool("isAutoCombine", req.IsAutoCombine).
		Dur("latency", time.Since(start)).
		Msg("Combine call succeeded")
	return result, nil
}

func (c *Client) post(ctx context.Context, req models.CombineRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode combine request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build combine request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("combine request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read combine response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}

	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("combine service returned invalid JSON")
	}
	return json.RawMessage(b), nil
}
