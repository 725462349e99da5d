// Command recorder captures an encounter in chunks, transcribes each chunk
// segment by segment and saves it to the encounter service.
//
// With -audio it replays WAV files, one per chunk, and combines when they
// run out. Without it the default microphone is used and stdin drives the
// flow: Enter starts or stops a chunk, "c" combines, "q" quits.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"encounter-scribe-service/internal/app"
	"encounter-scribe-service/internal/audiostore"
	"encounter-scribe-service/internal/client"
	"encounter-scribe-service/internal/config"
	"encounter-scribe-service/internal/events"
	"encounter-scribe-service/internal/live"
	"encounter-scribe-service/internal/observability/logging"
	"encounter-scribe-service/internal/service/audio"
	"encounter-scribe-service/internal/service/chunk"
	"encounter-scribe-service/internal/service/transcription"
)

func main() {
	audioFiles := flag.String("audio", "", "Comma-separated WAV files (16-bit PCM), one per chunk; empty uses the microphone")
	encounterID := flag.String("encounter", "", "Encounter ID; empty creates a new encounter")
	serverURL := flag.String("server", "", "Encounter service URL (default from config)")
	liveAddr := flag.String("live", ":8090", "Address for the live transcript WebSocket; empty disables it")
	out := flag.String("out", "", "Write the combined note as markdown to this file")
	patientLang := flag.String("patient-lang", "en", "Patient language")
	docLang := flag.String("doc-lang", "en", "Documentation language")
	paced := flag.Bool("paced", true, "Replay WAV files in real time")
	flag.Parse()

	cfg := config.Load()
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     "console",
		TimeFormat: time.RFC3339,
		Output:     os.Stderr,
	})
	if *serverURL != "" {
		cfg.Recorder.ServerURL = *serverURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.Recorder.ServerURL, cfg.Chunks.SaveTimeout)
	id, err := ensureEncounter(ctx, api, *encounterID)
	if err != nil {
		log.Fatal().Err(err).Str("server", cfg.Recorder.ServerURL).Msg("Failed to prepare encounter")
	}

	var files []string
	if *audioFiles != "" {
		files = strings.Split(*audioFiles, ",")
		// Segments carry the file's format, so the capturer must match it.
		src, err := audio.OpenWAV(files[0], false)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read audio file")
		}
		cfg.Capture.SampleRateHz = src.Format().SampleRate
		cfg.Capture.Channels = src.Format().Channels
		cfg.STT.SampleRateHz = src.Format().SampleRate
		src.Close()
	}

	converter, closeConverter, err := app.NewConverter(ctx, cfg.STT)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create speech-to-text converter")
	}
	defer closeConverter()

	generator, err := app.NewNoteGenerator(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create note generator")
	}

	publisher := events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicLive:      cfg.Kafka.TopicPartial,
		TopicChunk:     cfg.Kafka.TopicFinal,
		TopicEncounter: cfg.Kafka.TopicEncounter,
		Principal:      cfg.Kafka.Principal,
	})
	defer publisher.Close()

	sinks := chunk.Sinks{publisher}
	if *liveAddr != "" {
		hub := live.NewHub(256)
		go hub.Run(ctx)
		srv := &http.Server{Addr: *liveAddr, Handler: hub, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info().Str("addr", *liveAddr).Msg("Live transcript WebSocket listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Live transcript server stopped")
			}
		}()
		defer srv.Close()
		sinks = append(sinks, hub)
	}

	var audioSink audio.Sink
	chunkCfg := chunk.Config{
		MaxChunks:         cfg.Chunks.MaxChunks,
		DrainPollInterval: cfg.Chunks.DrainPollInterval,
		DrainTimeout:      cfg.Chunks.DrainTimeout,
		FinalizeDelay:     cfg.Chunks.FinalizeDelay,
		SaveTimeout:       cfg.Chunks.SaveTimeout,
		Queue: transcription.Config{
			MaxAttempts:    cfg.Queue.MaxAttempts,
			RetryDelay:     cfg.Queue.RetryDelay,
			Buffer:         cfg.Queue.Buffer,
			AttemptTimeout: cfg.STT.Timeout,
		},
	}
	if cfg.Capture.AudioDir != "" {
		dir, err := audiostore.NewDirSink(cfg.Capture.AudioDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare audio directory")
		}
		audioSink = dir
		chunkCfg.AudioURL = dir.ChunkURL
	}

	capturer := audio.NewCapturer(audio.Limits{
		SegmentInterval:  cfg.Capture.SegmentInterval,
		MaxChunkDuration: cfg.Capture.MaxChunkDuration,
		SampleRateHz:     cfg.Capture.SampleRateHz,
		Channels:         cfg.Capture.Channels,
	}, audioSink)

	session := chunk.Session{EncounterID: id, PatientLanguage: *patientLang, DocLanguage: *docLang}
	r := &recorder{
		encounterID: id,
		out:         *out,
		paced:       *paced,
		cfg:         cfg,
		capturer:    capturer,
	}

	r.orch = chunk.New(chunkCfg, chunk.Deps{
		Converter: converter,
		Capturer:  capturer,
		Saver:     api,
		Notes:     generator,
		Events:    sinks,
	}, session, r.hooks())

	log.Info().
		Str("encounterId", id).
		Str("stt", converter.Name()).
		Int("maxChunks", cfg.Chunks.MaxChunks).
		Msg("Recorder ready")

	if len(files) > 0 {
		err = r.replay(ctx, files)
	} else {
		err = r.interactive(ctx, os.Stdin)
	}
	// os.Exit skips deferred calls, so audio writes are flushed here.
	r.orch.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Recording flow failed")
		os.Exit(1)
	}
}

// ensureEncounter creates the encounter, or reuses it when it already exists.
func ensureEncounter(ctx context.Context, api *client.Client, id string) (string, error) {
	rec, err := api.CreateEncounter(ctx, id)
	if err == nil {
		log.Info().Str("encounterId", rec.ID).Msg("Encounter created")
		return rec.ID, nil
	}

	var apiErr *client.APIError
	if id != "" && errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		existing, err := api.GetEncounter(ctx, id)
		if err != nil {
			return "", err
		}
		log.Info().
			Str("encounterId", id).
			Float64("totalDuration", existing.TotalDuration).
			Int("recordings", len(existing.Recordings)).
			Msg("Resuming encounter")
		return id, nil
	}
	return "", err
}
