// Package notes turns a combined encounter transcript into a clinical note.
package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/observability/logging"
)

// ErrEmptyTranscript is returned when there is nothing to summarize.
var ErrEmptyTranscript = errors.New("combined transcript is empty")

// Note is the generated document for an encounter.
type Note struct {
	Content     string    `json:"content"`
	Transcript  string    `json:"transcript"`
	ChunkCount  int       `json:"chunkCount"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Generator produces a note from the stitched chunks of one recording flow.
type Generator interface {
	Generate(ctx context.Context, combined models.Combined) (Note, error)
}

// NoopGenerator returns the combined transcript as the note content.
type NoopGenerator struct{}

func (NoopGenerator) Generate(ctx context.Context, combined models.Combined) (Note, error) {
	if strings.TrimSpace(combined.Transcript) == "" {
		return Note{}, ErrEmptyTranscript
	}
	return Note{
		Content:     combined.Transcript,
		Transcript:  combined.Transcript,
		ChunkCount:  combined.ChunkCount,
		Model:       "none",
		GeneratedAt: time.Now().UTC(),
	}, nil
}

const soapPrompt = `You are a clinical documentation assistant. Write a concise SOAP note
(Subjective, Objective, Assessment, Plan) from the encounter transcript supplied by the user.
Use only facts stated in the transcript. Mark any section with no supporting content as "Not discussed".`

type chatAPI interface {
	Complete(ctx context.Context, model, system, user string) (string, error)
}

type sdkChat struct {
	client openai.Client
}

func (s sdkChat) Complete(ctx context.Context, model, system, user string) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIGenerator writes SOAP notes with a chat completion model.
type OpenAIGenerator struct {
	api   chatAPI
	model string
}

// NewOpenAIGenerator creates a generator using apiKey and model.
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAIGenerator{
		api:   sdkChat{client: openai.NewClient(option.WithAPIKey(apiKey))},
		model: model,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, combined models.Combined) (Note, error) {
	if strings.TrimSpace(combined.Transcript) == "" {
		return Note{}, ErrEmptyTranscript
	}

	start := time.Now()
	content, err := g.api.Complete(ctx, g.model, soapPrompt, combined.Transcript)
	if err != nil {
		return Note{}, fmt.Errorf("generate note: %w", err)
	}

	logger := logging.WithComponent("notes")
	logger.Info().
		Str("model", g.model).
		Int("chunks", combined.ChunkCount).
		Dur("latency", time.Since(start)).
		Msg("Note generated")

	return Note{
		Content:     strings.TrimSpace(content),
		Transcript:  combined.Transcript,
		ChunkCount:  combined.ChunkCount,
		Model:       g.model,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
