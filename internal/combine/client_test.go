package combine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/observability/metrics"
	"encounter-scribe-service/internal/resilience"
)

func TestCombine_Success(t *testing.T) {
	var got models.CombineRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"finalSoap":{"plan":"rest"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	result, err := c.Combine(context.Background(), models.CombineRequest{EncounterID: "enc-1", IsAutoCombine: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.EncounterID != "enc-1" || !got.IsAutoCombine {
		t.Errorf("unexpected request body: %+v", got)
	}
	if string(result) != `{"finalSoap":{"plan":"rest"}}` {
		t.Errorf("unexpected result: %s", result)
	}
}

func TestCombine_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, true},
		{"bad request", http.StatusBadRequest, `{"error":"no recordings"}`, true},
		{"invalid json", http.StatusOK, `not json`, true},
		{"empty body", http.StatusOK, ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, time.Second).Combine(context.Background(), models.CombineRequest{EncounterID: "enc-1"})
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCombine_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Combine(context.Background(), models.CombineRequest{EncounterID: "enc-1"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected StatusError 503, got %v", err)
	}
}

func TestCombine_NotConfigured(t *testing.T) {
	c := New("", time.Second)
	if c.Configured() {
		t.Error("expected unconfigured client")
	}
	if _, err := c.Combine(context.Background(), models.CombineRequest{EncounterID: "enc-1"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCombine_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	for i := 0; i < 5; i++ {
		c.Combine(context.Background(), models.CombineRequest{EncounterID: "enc-1"})
	}
	if c.Breaker().State() != resilience.Open {
		t.Fatalf("expected breaker open, got %s", c.Breaker().State())
	}
	var gauge dto.Metric
	if err := metrics.DefaultMetrics.BreakerState.WithLabelValues("combine").Write(&gauge); err != nil {
		t.Fatalf("read breaker gauge: %v", err)
	}
	if got := gauge.GetGauge().GetValue(); got != float64(resilience.Open) {
		t.Errorf("expected breaker gauge %v, got %v", float64(resilience.Open), got)
	}

	_, err := c.Combine(context.Background(), models.CombineRequest{EncounterID: "enc-1"})
	if !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if calls.Load() != 5 {
		t.Errorf("expected open breaker to skip the call, got %d calls", calls.Load())
	}
}

func TestCombine_ClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	for i := 0; i < 10; i++ {
		c.Combine(context.Background(), models.CombineRequest{EncounterID: "enc-1"})
	}
	if c.Breaker().State() != resilience.Closed {
		t.Errorf("expected breaker closed, got %s", c.Breaker().State())
	}
}
