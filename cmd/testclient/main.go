// Command testclient drives the encounter API with synthetic recordings,
// e.g. to watch an encounter cross the auto-combine threshold.
package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"encounter-scribe-service/internal/client"
	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/observability/logging"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Encounter service URL")
	encounterID := flag.String("encounter", "", "Encounter ID; empty creates one")
	durations := flag.String("durations", "7050,200", "Comma-separated recording durations in seconds")
	combine := flag.Bool("combine", false, "Request an explicit combine at the end")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console", TimeFormat: time.RFC3339})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	api := client.New(*server, time.Minute)

	rec, err := api.CreateEncounter(ctx, *encounterID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create encounter")
	}
	log.Info().Str("encounterId", rec.ID).Msg("Encounter created")

	for i, field := range strings.Split(*durations, ",") {
		d, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			log.Fatal().Err(err).Str("value", field).Msg("Invalid duration")
		}

		resp, err := api.SaveRecording(ctx, models.SaveRecordingRequest{
			EncounterID: rec.ID,
			Recording: &models.Recording{
				ID:         uuid.NewString(),
				Transcript: fmt.Sprintf("synthetic recording %d", i+1),
				Timestamp:  time.Now().UTC(),
				Duration:   &d,
			},
		})
		if err != nil {
			log.Fatal().Err(err).Int("recording", i+1).Msg("Failed to save recording")
		}

		log.Info().
			Int("recording", i+1).
			Float64("duration", d).
			Float64("totalDuration", resp.TotalDuration).
			Bool("autoCombineTriggered", resp.AutoCombineTriggered).
			RawJSON("autoCombineResult", nullIfEmpty(resp.AutoCombineResult)).
			Msg(resp.Message)
	}

	if *combine {
		result, err := api.Combine(ctx, rec.ID)
		if err != nil {
			log.Fatal().Err(err).Msg("Combine failed")
		}
		log.Info().RawJSON("result", result).Msg("Encounter combined")
	}

	final, err := api.GetEncounter(ctx, rec.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load encounter")
	}
	log.Info().
		Str("encounterId", final.ID).
		Int("recordings", len(final.Recordings)).
		Float64("totalDuration", final.TotalDuration).
		Bool("autoCombined", final.AutoCombined).
		Bool("hasFinalSoap", final.HasFinalSoap()).
		Msg("Encounter state")
}

func nullIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
