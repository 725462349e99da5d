package main

import (
	"strings"
	"testing"
	"time"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/service/audio"
	"encounter-scribe-service/internal/service/chunk"
	"encounter-scribe-service/internal/service/transcription"
)

func TestLiveLine(t *testing.T) {
	u := transcription.Update{Live: models.LiveTranscript{Text: "Patient reports pain in knee", Pending: 2}}

	got := liveLine(1, 95*time.Second+400*time.Millisecond, u)

	want := "[chunk 1, 1m35s, 2 pending] Patient reports pain in knee"
	if !strings.HasSuffix(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestChunkLine(t *testing.T) {
	tests := []struct {
		name      string
		index     int
		reason    audio.StopReason
		remaining int
		want      string
	}{
		{"first chunk", 1, audio.StopManual, 3, "Chunk 1 complete (manual). 3 chunk(s) remaining."},
		{"last chunk", 4, audio.StopSafetyCap, 0, "Chunk 4 complete (safety_cap). 0 chunk(s) remaining."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := chunk.Outcome{
				Chunk: models.Chunk{Index: tt.index},
				Stop:  audio.StopResult{Reason: tt.reason},
			}
			if got := chunkLine(o, tt.remaining); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
