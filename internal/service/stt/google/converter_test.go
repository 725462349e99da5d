package google

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/service/stt"
)

type fakeRecognizer struct {
	req  *speechpb.RecognizeRequest
	resp *speechpb.RecognizeResponse
	err  error
}

func (f *fakeRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	f.req = req
	return f.resp, f.err
}

func result(text string) *speechpb.SpeechRecognitionResult {
	return &speechpb.SpeechRecognitionResult{
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text}},
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.SampleRateHz)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
	if !cfg.EnablePunctuation {
		t.Error("expected punctuation enabled by default")
	}
}

func TestConvert_JoinsResults(t *testing.T) {
	fake := &fakeRecognizer{resp: &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{
			result("Patient reports"),
			{},
			result(" pain in knee "),
		},
	}}
	c := &Converter{client: fake, cfg: DefaultConfig()}

	conv, err := c.Convert(context.Background(), models.Segment{Index: 0, Audio: []byte{1, 2}}, stt.Hints{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.Transcript != "Patient reports pain in knee" {
		t.Errorf("expected joined transcript, got %q", conv.Transcript)
	}
	if conv.RawTranscript != conv.Transcript {
		t.Errorf("expected raw transcript to match, got %q", conv.RawTranscript)
	}
}

func TestConvert_UsesPatientLanguageAndSegmentFormat(t *testing.T) {
	fake := &fakeRecognizer{resp: &speechpb.RecognizeResponse{}}
	c := &Converter{client: fake, cfg: DefaultConfig()}

	seg := models.Segment{Index: 4, Audio: []byte{9}, SampleRateHz: 8000, Channels: 2}
	if _, err := c.Convert(context.Background(), seg, stt.Hints{PatientLanguage: "es-ES"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := fake.req.GetConfig()
	if cfg.GetLanguageCode() != "es-ES" {
		t.Errorf("expected language 'es-ES', got %s", cfg.GetLanguageCode())
	}
	if cfg.GetSampleRateHertz() != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.GetSampleRateHertz())
	}
	if cfg.GetAudioChannelCount() != 2 {
		t.Errorf("expected 2 channels, got %d", cfg.GetAudioChannelCount())
	}
	if string(fake.req.GetAudio().GetContent()) != string([]byte{9}) {
		t.Error("expected segment audio to be sent as content")
	}
}

func TestConvert_WrapsError(t *testing.T) {
	boom := errors.New("unavailable")
	c := &Converter{client: &fakeRecognizer{err: boom}, cfg: DefaultConfig()}

	_, err := c.Convert(context.Background(), models.Segment{Index: 2}, stt.Hints{})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"linear16", speechpb.RecognitionConfig_LINEAR16},
		{"invalid", speechpb.RecognitionConfig_LINEAR16},
		{"", speechpb.RecognitionConfig_LINEAR16},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
