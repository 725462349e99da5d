package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"encounter-scribe-service/internal/app"
	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/observability/metrics"
)

// EncounterService is the API surface served over HTTP.
type EncounterService interface {
	SaveRecording(ctx context.Context, req models.SaveRecordingRequest) (*models.SaveRecordingResponse, error)
	CreateEncounter(ctx context.Context, req models.CreateEncounterRequest) (*models.EncounterRecord, error)
	GetEncounter(ctx context.Context, id string) (*models.EncounterRecord, error)
	Combine(ctx context.Context, id string) (json.RawMessage, error)
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	return newRouter(application.Encounters, application.Ready)
}

func newRouter(svc EncounterService, ready func(context.Context) error) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(metrics.DefaultMetrics))
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "Not ready", err.Error())
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	h := &handlers{svc: svc}

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/recordings", h.saveRecording)
		r.Post("/encounters", h.createEncounter)
		r.Get("/encounters/{encounterId}", h.getEncounter)
		r.Post("/encounters/{encounterId}/combine", h.combine)
	})

	return r
}

// requestLogger logs each request and counts it by route pattern.
func requestLogger(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RecordHTTPRequest(route, strconv.Itoa(status))

			log.Info().
				Str("requestId", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("route", route).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
