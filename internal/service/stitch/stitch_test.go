package stitch

import (
	"math/rand"
	"strings"
	"testing"

	"encounter-scribe-service/internal/models"
)

func ok(index int, text, raw string) models.SegmentResult {
	return models.SegmentResult{Index: index, Text: text, RawText: raw, Succeeded: true}
}

func failed(index int) models.SegmentResult {
	return models.SegmentResult{Index: index}
}

func TestSegments(t *testing.T) {
	tests := []struct {
		name     string
		input    []models.SegmentResult
		wantText string
		wantRaw  string
	}{
		{"empty", nil, "", ""},
		{"single", []models.SegmentResult{ok(0, "hello", "hola")}, "hello", "hola"},
		{"ordered", []models.SegmentResult{ok(0, "Patient reports", "Paciente refiere"), ok(1, "pain in knee", "dolor de rodilla")}, "Patient reports pain in knee", "Paciente refiere dolor de rodilla"},
		{"out of order", []models.SegmentResult{ok(2, "c", "C"), ok(0, "a", "A"), ok(1, "b", "B")}, "a b c", "A B C"},
		{"failed skipped", []models.SegmentResult{ok(0, "a", "A"), failed(1), ok(2, "c", "C")}, "a c", "A C"},
		{"empty text skipped", []models.SegmentResult{ok(0, "a", ""), ok(1, "  ", "B"), ok(2, "c", "C")}, "a c", "B C"},
		{"all failed", []models.SegmentResult{failed(0), failed(1)}, "", ""},
		{"gap in indices", []models.SegmentResult{ok(5, "later", "later"), ok(1, "first", "first")}, "first later", "first later"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, raw := Segments(tt.input)
			if text != tt.wantText {
				t.Errorf("expected text %q, got %q", tt.wantText, text)
			}
			if raw != tt.wantRaw {
				t.Errorf("expected raw %q, got %q", tt.wantRaw, raw)
			}
		})
	}
}

func TestSegments_DoesNotMutateInput(t *testing.T) {
	input := []models.SegmentResult{ok(1, "b", "b"), ok(0, "a", "a")}
	Segments(input)
	if input[0].Index != 1 || input[1].Index != 0 {
		t.Errorf("expected input order preserved, got %+v", input)
	}
}

func TestSegments_DeterministicUnderShuffle(t *testing.T) {
	words := []string{"the", "patient", "denies", "fever", "or", "chills", "today"}
	results := make([]models.SegmentResult, len(words))
	for i, w := range words {
		results[i] = ok(i, w, w)
	}
	want := strings.Join(words, " ")

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		rng.Shuffle(len(results), func(a, b int) { results[a], results[b] = results[b], results[a] })
		text, _ := Segments(results)
		if text != want {
			t.Fatalf("shuffle %d: expected %q, got %q", i, want, text)
		}
	}
}

func TestChunks(t *testing.T) {
	chunks := []models.Chunk{
		{Index: 3, Transcript: "third", RawTranscript: "tercero", Success: true},
		{Index: 1, Transcript: "first", RawTranscript: "primero", Success: true},
		{Index: 2, Transcript: "", RawTranscript: "", Success: false},
		{Index: 4, Transcript: "fourth", RawTranscript: "cuarto", Success: true},
	}

	got := Chunks(chunks)

	if got.Transcript != "first third fourth" {
		t.Errorf("expected 'first third fourth', got %q", got.Transcript)
	}
	if got.RawTranscript != "primero tercero cuarto" {
		t.Errorf("expected 'primero tercero cuarto', got %q", got.RawTranscript)
	}
	if got.ChunkCount != 3 {
		t.Errorf("expected 3 chunks combined, got %d", got.ChunkCount)
	}
}

func TestChunks_Empty(t *testing.T) {
	got := Chunks(nil)
	if got.Transcript != "" || got.RawTranscript != "" || got.ChunkCount != 0 {
		t.Errorf("expected empty combined result, got %+v", got)
	}
}
