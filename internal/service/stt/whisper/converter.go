// Package whisper provides a Whisper-based converter that can also
// translate segments into the documentation language.
package whisper

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/service/stt"
	"encounter-scribe-service/internal/wav"
)

// audioAPI is the slice of the OpenAI audio API the converter uses.
type audioAPI interface {
	Transcribe(ctx context.Context, wavData []byte, language string) (string, error)
	Translate(ctx context.Context, wavData []byte) (string, error)
}

// Converter implements stt.Converter on the OpenAI audio endpoints.
type Converter struct {
	api          audioAPI
	sampleRateHz int
}

// New creates a converter using the given API key and audio model.
func New(apiKey, model string, sampleRateHz int) *Converter {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Converter{
		api:          &sdkAudio{client: client, model: openai.AudioModel(model)},
		sampleRateHz: sampleRateHz,
	}
}

func (c *Converter) Name() string {
	return "openai"
}

// Convert transcribes in the patient's language for RawTranscript. When the
// documentation language is English and differs from the patient's, the
// segment is also translated for Transcript.
func (c *Converter) Convert(ctx context.Context, seg models.Segment, hints stt.Hints) (stt.Conversion, error) {
	rate := seg.SampleRateHz
	if rate <= 0 {
		rate = c.sampleRateHz
	}
	channels := seg.Channels
	if channels <= 0 {
		channels = 1
	}
	data := wav.Encode(seg.Audio, rate, channels)

	raw, err := c.api.Transcribe(ctx, data, stt.BaseLanguage(hints.PatientLanguage))
	if err != nil {
		return stt.Conversion{}, fmt.Errorf("transcribe segment %d: %w", seg.Index, err)
	}
	raw = strings.TrimSpace(raw)

	text := raw
	if raw != "" && hints.NeedsTranslation() && stt.BaseLanguage(hints.DocLanguage) == "en" {
		translated, err := c.api.Translate(ctx, data)
		if err != nil {
			return stt.Conversion{}, fmt.Errorf("translate segment %d: %w", seg.Index, err)
		}
		text = strings.TrimSpace(translated)
	}

	return stt.Conversion{Transcript: text, RawTranscript: raw}, nil
}

type sdkAudio struct {
	client openai.Client
	model  openai.AudioModel
}

func (s *sdkAudio) Transcribe(ctx context.Context, wavData []byte, language string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wavData), "segment.wav", "audio/wav"),
		Model: s.model,
	}
	if language != "" {
		params.Language = openai.String(language)
	}
	resp, err := s.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (s *sdkAudio) Translate(ctx context.Context, wavData []byte) (string, error) {
	resp, err := s.client.Audio.Translations.New(ctx, openai.AudioTranslationNewParams{
		File:  openai.File(bytes.NewReader(wavData), "segment.wav", "audio/wav"),
		Model: s.model,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
