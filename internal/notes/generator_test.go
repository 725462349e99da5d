package notes

import (
	"context"
	"errors"
	"testing"

	"encounter-scribe-service/internal/models"
)

type fakeChat struct {
	reply  string
	err    error
	system string
	user   string
}

func (f *fakeChat) Complete(ctx context.Context, model, system, user string) (string, error) {
	f.system = system
	f.user = user
	return f.reply, f.err
}

func TestNoopGenerator(t *testing.T) {
	note, err := NoopGenerator{}.Generate(context.Background(), models.Combined{Transcript: "knee pain", ChunkCount: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if note.Content != "knee pain" || note.ChunkCount != 2 {
		t.Errorf("unexpected note: %+v", note)
	}

	if _, err := (NoopGenerator{}).Generate(context.Background(), models.Combined{Transcript: "  "}); !errors.Is(err, ErrEmptyTranscript) {
		t.Errorf("expected ErrEmptyTranscript, got %v", err)
	}
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	chat := &fakeChat{reply: "  S: knee pain\nO: swelling  "}
	g := &OpenAIGenerator{api: chat, model: "gpt-4o-mini"}

	note, err := g.Generate(context.Background(), models.Combined{Transcript: "Patient reports pain in knee", ChunkCount: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if note.Content != "S: knee pain\nO: swelling" {
		t.Errorf("expected trimmed content, got %q", note.Content)
	}
	if chat.user != "Patient reports pain in knee" {
		t.Errorf("expected transcript as user message, got %q", chat.user)
	}
	if chat.system != soapPrompt {
		t.Error("expected SOAP system prompt")
	}
	if note.Model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %s", note.Model)
	}
}

func TestOpenAIGenerator_Errors(t *testing.T) {
	boom := errors.New("rate limited")
	g := &OpenAIGenerator{api: &fakeChat{err: boom}, model: "m"}

	if _, err := g.Generate(context.Background(), models.Combined{Transcript: "x"}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped api error, got %v", err)
	}
	if _, err := g.Generate(context.Background(), models.Combined{}); !errors.Is(err, ErrEmptyTranscript) {
		t.Errorf("expected ErrEmptyTranscript, got %v", err)
	}
}
