// Package google provides a Google Cloud Speech-to-Text converter.
package google

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/service/stt"
)

// Config holds recognition settings.
type Config struct {
	LanguageCode      string
	SampleRateHz      int
	AudioEncoding     string
	EnablePunctuation bool
	Model             string
}

// DefaultConfig returns settings for 16 kHz LINEAR16 medical dictation.
func DefaultConfig() Config {
	return Config{
		LanguageCode:      "en-US",
		SampleRateHz:      16000,
		AudioEncoding:     "LINEAR16",
		EnablePunctuation: true,
	}
}

// recognizer is satisfied by *speech.Client.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
}

// Converter implements stt.Converter with synchronous Recognize calls,
// one per segment.
type Converter struct {
	client recognizer
	closer func() error
	cfg    Config
}

// New creates a Google converter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Converter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &Converter{client: c, closer: c.Close, cfg: cfg}, nil
}

func (c *Converter) Name() string {
	return "google"
}

// Convert recognizes the segment in the patient's language. Google does
// not translate, so Transcript and RawTranscript are the same text.
func (c *Converter) Convert(ctx context.Context, seg models.Segment, hints stt.Hints) (stt.Conversion, error) {
	resp, err := c.client.Recognize(ctx, c.buildRequest(seg, hints))
	if err != nil {
		return stt.Conversion{}, fmt.Errorf("recognize segment %d: %w", seg.Index, err)
	}

	var parts []string
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	text := strings.Join(parts, " ")
	return stt.Conversion{Transcript: text, RawTranscript: text}, nil
}

// Close releases the underlying client.
func (c *Converter) Close() error {
	if c.closer != nil {
		return c.closer()
	}
	return nil
}

func (c *Converter) buildRequest(seg models.Segment, hints stt.Hints) *speechpb.RecognizeRequest {
	lang := c.cfg.LanguageCode
	if hints.PatientLanguage != "" {
		lang = hints.PatientLanguage
	}
	rate := c.cfg.SampleRateHz
	if seg.SampleRateHz > 0 {
		rate = seg.SampleRateHz
	}
	channels := seg.Channels
	if channels <= 0 {
		channels = 1
	}

	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(c.cfg.AudioEncoding),
			SampleRateHertz:            int32(rate),
			AudioChannelCount:          int32(channels),
			LanguageCode:               lang,
			EnableAutomaticPunctuation: c.cfg.EnablePunctuation,
			Model:                      c.cfg.Model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: seg.Audio},
		},
	}
}

// parseAudioEncoding maps an uppercase encoding name to the enum,
// falling back to LINEAR16.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
