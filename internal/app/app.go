package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"encounter-scribe-service/internal/combine"
	"encounter-scribe-service/internal/config"
	"encounter-scribe-service/internal/events"
	"encounter-scribe-service/internal/notes"
	"encounter-scribe-service/internal/observability/logging"
	"encounter-scribe-service/internal/service/encounter"
	"encounter-scribe-service/internal/service/stt"
	"encounter-scribe-service/internal/service/stt/google"
	"encounter-scribe-service/internal/service/stt/mock"
	"encounter-scribe-service/internal/service/stt/whisper"
	"encounter-scribe-service/internal/storage/sqlite"
)

// Application holds process-wide state for the encounter service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Store      *sqlite.EncounterStore
	Publisher  *events.Publisher
	Combine    *combine.Client
	Encounters *encounter.Service
}

// New wires the encounter service from cfg.
func New(cfg *config.Configuration) (*Application, error) {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	store, err := sqlite.Open(cfg.Encounter.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open encounter store: %w", err)
	}
	a.Store = store

	a.Publisher = events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicLive:      cfg.Kafka.TopicPartial,
		TopicChunk:     cfg.Kafka.TopicFinal,
		TopicEncounter: cfg.Kafka.TopicEncounter,
		Principal:      cfg.Kafka.Principal,
	})

	a.Combine = combine.New(cfg.Encounter.CombineURL, cfg.Encounter.CombineTimeout)
	var combiner encounter.Combiner
	if a.Combine.Configured() {
		combiner = a.Combine
	} else {
		appLogger.Warn().Msg("COMBINE_URL not set, auto-combine disabled")
	}

	a.Encounters = encounter.New(store, combiner, a.Publisher, encounter.Config{
		AutoCombineThreshold: cfg.Encounter.AutoCombineThreshold,
		CombineTimeout:       cfg.Encounter.CombineTimeout,
	})

	appLogger.Info().
		Str("dbPath", cfg.Encounter.DBPath).
		Dur("autoCombineThreshold", cfg.Encounter.AutoCombineThreshold).
		Bool("combineConfigured", a.Combine.Configured()).
		Bool("kafkaEnabled", a.Publisher.Enabled()).
		Msg("Encounter scribe service application created")
	return a, nil
}

// setupLogger configures the global zerolog logger.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:      strings.ToLower(a.Cfg.Observability.LogLevel),
		Format:     a.Cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
		Service:    a.Cfg.Service.Principal,
	})

	a.Logger = log.With().
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		return fmt.Errorf("encounter store unavailable: %w", err)
	}

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Encounter scribe service starting")

	return nil
}

// Ready reports whether the service can take traffic.
func (a *Application) Ready(ctx context.Context) error {
	return a.Store.Ping(ctx)
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	if err := a.Publisher.Close(); err != nil {
		shutdownLogger.Error().Err(err).Msg("Failed to close event publisher")
	}
	if err := a.Store.Close(); err != nil {
		shutdownLogger.Error().Err(err).Msg("Failed to close encounter store")
	}
	shutdownLogger.Info().Msg("Encounter scribe service shut down")
}

// NewConverter builds the speech-to-text converter named by cfg.Provider.
// The returned close function releases provider clients.
func NewConverter(ctx context.Context, cfg config.STTConfig) (stt.Converter, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(cfg.Provider) {
	case "", "mock":
		return mock.New(), noop, nil
	case "google":
		gc := google.DefaultConfig()
		gc.LanguageCode = cfg.LanguageCode
		gc.SampleRateHz = cfg.SampleRateHz
		gc.AudioEncoding = cfg.AudioEncoding
		c, err := google.New(ctx, gc)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case "openai", "whisper":
		if cfg.OpenAIAPIKey == "" {
			return nil, nil, fmt.Errorf("OPENAI_API_KEY is required for the %s provider", cfg.Provider)
		}
		return whisper.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.SampleRateHz), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}

// NewNoteGenerator builds the note generator named by cfg.Notes.Provider.
func NewNoteGenerator(cfg *config.Configuration) (notes.Generator, error) {
	switch strings.ToLower(cfg.Notes.Provider) {
	case "", "none", "noop":
		return notes.NoopGenerator{}, nil
	case "openai":
		if cfg.STT.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for openai notes")
		}
		return notes.NewOpenAIGenerator(cfg.STT.OpenAIAPIKey, cfg.Notes.Model), nil
	default:
		return nil, fmt.Errorf("unknown notes provider %q", cfg.Notes.Provider)
	}
}
