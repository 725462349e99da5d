// Package client talks to the encounter service's HTTP API. The recorder
// uses it to persist each chunk as a recording.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/observability/logging"
)

// ErrNotFound matches an APIError with status 404.
var ErrNotFound = errors.New("encounter not found")

const maxResponse = 4 << 20

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("encounter service %d: %s (%s)", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("encounter service %d: %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client calls one encounter service instance.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// New creates a client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logging.WithComponent("encounter-client"),
	}
}

// CreateEncounter creates an encounter. An empty id lets the service pick one.
func (c *Client) CreateEncounter(ctx context.Context, id string) (*models.EncounterRecord, error) {
	var rec models.EncounterRecord
	if err := c.do(ctx, http.MethodPost, "/v1/encounters", models.CreateEncounterRequest{ID: id}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetEncounter loads an encounter with its recordings.
func (c *Client) GetEncounter(ctx context.Context, id string) (*models.EncounterRecord, error) {
	var rec models.EncounterRecord
	if err := c.do(ctx, http.MethodGet, "/v1/encounters/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveRecording appends a recording to its encounter. It is not retried:
// the service would count the duration twice.
func (c *Client) SaveRecording(ctx context.Context, req models.SaveRecordingRequest) (*models.SaveRecordingResponse, error) {
	var resp models.SaveRecordingResponse
	if err := c.do(ctx, http.MethodPost, "/v1/recordings", req, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("encounterId", req.EncounterID).
		Float64("totalDuration", resp.TotalDuration).
		Bool("autoCombineTriggered", resp.AutoCombineTriggered).
		Msg("Recording saved")
	return &resp, nil
}

// Combine asks the service to combine the encounter now.
func (c *Client) Combine(ctx context.Context, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/v1/encounters/"+url.PathEscape(id)+"/combine", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e models.ErrorResponse
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
			apiErr.Details = e.Details
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
