package whisper

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/service/stt"
	"encounter-scribe-service/internal/wav"
)

type fakeAudio struct {
	transcript   string
	translation  string
	err          error
	languages    []string
	translations int
	lastWAV      []byte
}

func (f *fakeAudio) Transcribe(ctx context.Context, wavData []byte, language string) (string, error) {
	f.languages = append(f.languages, language)
	f.lastWAV = wavData
	return f.transcript, f.err
}

func (f *fakeAudio) Translate(ctx context.Context, wavData []byte) (string, error) {
	f.translations++
	return f.translation, nil
}

func TestConvert_SameLanguage(t *testing.T) {
	fake := &fakeAudio{transcript: " Patient reports pain "}
	c := &Converter{api: fake, sampleRateHz: 16000}

	conv, err := c.Convert(context.Background(), models.Segment{Audio: make([]byte, 320)}, stt.Hints{PatientLanguage: "en-US", DocLanguage: "en-US"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.Transcript != "Patient reports pain" || conv.RawTranscript != "Patient reports pain" {
		t.Errorf("unexpected conversion: %+v", conv)
	}
	if fake.translations != 0 {
		t.Errorf("expected no translation, got %d", fake.translations)
	}
	if len(fake.languages) != 1 || fake.languages[0] != "en" {
		t.Errorf("expected base language 'en', got %v", fake.languages)
	}
}

func TestConvert_TranslatesToEnglish(t *testing.T) {
	fake := &fakeAudio{transcript: "dolor de rodilla", translation: "knee pain"}
	c := &Converter{api: fake, sampleRateHz: 16000}

	conv, err := c.Convert(context.Background(), models.Segment{Audio: make([]byte, 320)}, stt.Hints{PatientLanguage: "es-MX", DocLanguage: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.Transcript != "knee pain" {
		t.Errorf("expected translated transcript, got %q", conv.Transcript)
	}
	if conv.RawTranscript != "dolor de rodilla" {
		t.Errorf("expected raw transcript in Spanish, got %q", conv.RawTranscript)
	}
}

func TestConvert_SkipsTranslationForSilence(t *testing.T) {
	fake := &fakeAudio{transcript: ""}
	c := &Converter{api: fake, sampleRateHz: 16000}

	conv, err := c.Convert(context.Background(), models.Segment{}, stt.Hints{PatientLanguage: "es", DocLanguage: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.Transcript != "" || fake.translations != 0 {
		t.Errorf("expected empty conversion without translation, got %+v (translations=%d)", conv, fake.translations)
	}
}

func TestConvert_EncodesWAV(t *testing.T) {
	fake := &fakeAudio{transcript: "ok"}
	c := &Converter{api: fake, sampleRateHz: 16000}

	if _, err := c.Convert(context.Background(), models.Segment{Audio: make([]byte, 64), SampleRateHz: 8000}, stt.Hints{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, err := wav.ReadHeader(bytes.NewReader(fake.lastWAV))
	if err != nil {
		t.Fatalf("expected valid WAV payload, got %v", err)
	}
	if f.SampleRate != 8000 {
		t.Errorf("expected segment sample rate 8000, got %d", f.SampleRate)
	}
}

func TestConvert_Error(t *testing.T) {
	boom := errors.New("rate limited")
	c := &Converter{api: &fakeAudio{err: boom}, sampleRateHz: 16000}

	if _, err := c.Convert(context.Background(), models.Segment{}, stt.Hints{}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
