package audiostore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/wav"
)

func TestDirSink_Save(t *testing.T) {
	root := t.TempDir()
	sink, err := NewDirSink(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seg := models.Segment{Index: 2, ChunkIndex: 1, Audio: make([]byte, 640), SampleRateHz: 16000, Channels: 1}
	url, err := sink.Save(context.Background(), "enc-1", seg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := filepath.Join(root, "enc-1", "chunk-1", "segment-002.wav")
	if url != "file://"+want {
		t.Errorf("expected url file://%s, got %s", want, url)
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
	f, err := wav.ReadHeader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("expected valid wav: %v", err)
	}
	if f.SampleRate != 16000 {
		t.Errorf("expected 16000 Hz, got %d", f.SampleRate)
	}
}

func TestDirSink_EncounterIDCannotEscapeRoot(t *testing.T) {
	root := t.TempDir()
	sink, _ := NewDirSink(root)

	dir := sink.ChunkDir("../../etc", 1)
	if !strings.HasPrefix(dir, root) {
		t.Errorf("expected chunk dir under root, got %s", dir)
	}
}

func TestDirSink_CancelledContext(t *testing.T) {
	sink, _ := NewDirSink(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sink.Save(ctx, "enc-1", models.Segment{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
