// Command viewer shows live transcripts in the browser. It consumes the
// transcript and encounter topics from Kafka and relays every event to
// connected pages over WebSocket.
package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"encounter-scribe-service/internal/config"
	"encounter-scribe-service/internal/live"
	"encounter-scribe-service/internal/observability/logging"
)

//go:embed static/*
var staticFiles embed.FS

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	lookback := flag.Duration("lookback", time.Hour, "How much topic history to replay on start")
	flag.Parse()

	cfg := config.Load()
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     "console",
		TimeFormat: time.RFC3339,
	})

	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal().Msg("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := live.NewHub(256)
	go hub.Run(ctx)

	for _, topic := range []string{cfg.Kafka.TopicPartial, cfg.Kafka.TopicFinal, cfg.Kafka.TopicEncounter} {
		go live.Consume(ctx, hub, live.ConsumerConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    topic,
			Lookback: *lookback,
		})
	}

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load static files")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/ws", hub)
	r.Handle("/*", http.FileServer(http.FS(staticFS)))

	srv := &http.Server{Addr: ":" + *port, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("url", "http://localhost:"+*port).
		Strs("brokers", cfg.Kafka.Brokers).
		Str("live", cfg.Kafka.TopicPartial).
		Str("chunks", cfg.Kafka.TopicFinal).
		Str("encounters", cfg.Kafka.TopicEncounter).
		Msg("Transcript viewer starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}
}
