// Package stt defines the interface to speech-to-text conversion services.
package stt

import (
	"context"

	"encounter-scribe-service/internal/models"
)

// Hints carries per-segment context for the conversion service.
type Hints struct {
	PatientLanguage string
	DocLanguage     string
	EncounterID     string
	ChunkIndex      int
	SegmentIndex    int
}

// NeedsTranslation reports whether the transcript should be rendered in a
// different language from the one spoken.
func (h Hints) NeedsTranslation() bool {
	return h.DocLanguage != "" && h.PatientLanguage != "" && baseLang(h.DocLanguage) != baseLang(h.PatientLanguage)
}

// Conversion is the text produced for one segment. Transcript is the
// primary (possibly translated) text; RawTranscript is in the speaker's
// language.
type Conversion struct {
	Transcript    string
	RawTranscript string
}

// Converter turns one audio segment into text.
type Converter interface {
	// Convert transcribes a single segment. Errors are retried by the caller.
	Convert(ctx context.Context, seg models.Segment, hints Hints) (Conversion, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

func baseLang(tag string) string {
	for i, r := range tag {
		if r == '-' || r == '_' {
			return tag[:i]
		}
	}
	return tag
}

// BaseLanguage returns the primary subtag of a BCP-47 language tag.
func BaseLanguage(tag string) string {
	return baseLang(tag)
}
