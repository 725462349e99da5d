// Package stitch reassembles partial transcription results in order.
package stitch

import (
	"sort"
	"strings"

	"encounter-scribe-service/internal/models"
)

// Segments orders results by index and joins the non-empty text and raw
// text fields with single spaces. Failed results contribute nothing. The
// input slice is not modified.
func Segments(results []models.SegmentResult) (text, rawText string) {
	if len(results) == 0 {
		return "", ""
	}

	ordered := make([]models.SegmentResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	texts := make([]string, 0, len(ordered))
	raws := make([]string, 0, len(ordered))
	for _, r := range ordered {
		if !r.Succeeded {
			continue
		}
		if t := strings.TrimSpace(r.Text); t != "" {
			texts = append(texts, t)
		}
		if t := strings.TrimSpace(r.RawText); t != "" {
			raws = append(raws, t)
		}
	}
	return strings.Join(texts, " "), strings.Join(raws, " ")
}

// Chunks keeps successful chunks, orders them by index and joins their
// transcripts with single spaces.
func Chunks(chunks []models.Chunk) models.Combined {
	ordered := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Success {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	texts := make([]string, 0, len(ordered))
	raws := make([]string, 0, len(ordered))
	for _, c := range ordered {
		if t := strings.TrimSpace(c.Transcript); t != "" {
			texts = append(texts, t)
		}
		if t := strings.TrimSpace(c.RawTranscript); t != "" {
			raws = append(raws, t)
		}
	}
	return models.Combined{
		Transcript:    strings.Join(texts, " "),
		RawTranscript: strings.Join(raws, " "),
		ChunkCount:    len(ordered),
	}
}
