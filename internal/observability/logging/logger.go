// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, etc.
	// Output defaults to stdout. The recorder logs to stderr so the live
	// transcript on stdout stays readable.
	Output io.Writer
	// Service is added to every line when set.
	Service string
}

// DefaultConfig returns JSON logs at info level.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	log.Logger = New(cfg)
}

// New builds a logger from cfg and applies its level globally.
func New(cfg Config) zerolog.Logger {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	if level <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// WithEncounter returns a logger with encounter context.
func WithEncounter(encounterId string) zerolog.Logger {
	return log.With().
		Str("encounterId", encounterId).
		Logger()
}

// WithChunk returns a logger with chunk context.
func WithChunk(encounterId string, chunkIndex int) zerolog.Logger {
	return log.With().
		Str("encounterId", encounterId).
		Int("chunkIndex", chunkIndex).
		Logger()
}

// WithSegment returns a logger with segment context.
func WithSegment(encounterId string, chunkIndex, segmentIndex int) zerolog.Logger {
	return log.With().
		Str("encounterId", encounterId).
		Int("chunkIndex", chunkIndex).
		Int("segmentIndex", segmentIndex).
		Logger()
}

// WithConversion returns a logger with segment and provider context.
func WithConversion(encounterId string, chunkIndex, segmentIndex int, provider string) zerolog.Logger {
	return log.With().
		Str("encounterId", encounterId).
		Int("chunkIndex", chunkIndex).
		Int("segmentIndex", segmentIndex).
		Str("sttProvider", provider).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
