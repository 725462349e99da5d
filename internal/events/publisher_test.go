package events

import (
	"context"
	"testing"

	"encounter-scribe-service/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writerLive != nil || p.writerChunk != nil || p.writerEncounter != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:        false,
		Brokers:        []string{"localhost:9092"},
		TopicLive:      "test.live",
		TopicChunk:     "test.chunk",
		TopicEncounter: "test.encounter",
		Principal:      "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicLive != "test.live" {
		t.Errorf("expected live topic 'test.live', got %s", p.topicLive)
	}
	if p.topicChunk != "test.chunk" {
		t.Errorf("expected chunk topic 'test.chunk', got %s", p.topicChunk)
	}
	if p.topicEncounter != "test.encounter" {
		t.Errorf("expected encounter topic 'test.encounter', got %s", p.topicEncounter)
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:        true,
		Brokers:        []string{"localhost:9092"},
		TopicLive:      "test.live",
		TopicChunk:     "test.chunk",
		TopicEncounter: "test.encounter",
	})
	defer p.Close()

	if !p.Enabled() {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerLive.Topic != "test.live" || p.writerChunk.Topic != "test.chunk" || p.writerEncounter.Topic != "test.encounter" {
		t.Error("expected one writer per topic")
	}
}

func TestPublisher_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, Principal: "test-svc"})
	ctx := context.Background()

	if err := p.PublishLive(ctx, models.LiveTranscriptEvent{
		EventType:   models.EventLiveTranscript,
		EncounterID: "enc-1",
		Text:        "patient reports",
	}); err != nil {
		t.Errorf("expected no error publishing live event, got %v", err)
	}
	if err := p.PublishChunk(ctx, models.ChunkCompletedEvent{
		EventType:   models.EventChunkCompleted,
		EncounterID: "enc-1",
		ChunkIndex:  1,
		Success:     true,
	}); err != nil {
		t.Errorf("expected no error publishing chunk event, got %v", err)
	}
	if err := p.PublishEncounter(ctx, models.EncounterEvent{
		EventType:     models.EventRecordingSaved,
		EncounterID:   "enc-1",
		TotalDuration: 7250,
	}); err != nil {
		t.Errorf("expected no error publishing encounter event, got %v", err)
	}
}

func TestPublisher_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// Channels cannot be marshaled
	err := p.publish(context.Background(), nil, "test.topic", "test", "key", make(chan int))
	if err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
	if err := (&Publisher{}).Close(); err != nil {
		t.Errorf("expected no error closing zero publisher, got %v", err)
	}
}
