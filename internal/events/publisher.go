// Package events publishes transcript and encounter events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/observability/metrics"
)

// Publisher writes live transcript, chunk and encounter events to separate
// Kafka topics. Without brokers it only logs.
type Publisher struct {
	writerLive      *kafka.Writer
	writerChunk     *kafka.Writer
	writerEncounter *kafka.Writer
	principal       string
	topicLive       string
	topicChunk      string
	topicEncounter  string
	enabled         bool
	metrics         *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers        []string
	TopicLive      string
	TopicChunk     string
	TopicEncounter string
	Principal      string
	Enabled        bool
}

// New creates a publisher. A nil or disabled config yields log-only mode.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	p := &Publisher{
		principal:      cfg.Principal,
		topicLive:      cfg.TopicLive,
		topicChunk:     cfg.TopicChunk,
		topicEncounter: cfg.TopicEncounter,
		metrics:        m,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.writerLive = newWriter(cfg.Brokers, cfg.TopicLive, transport)
	p.writerChunk = newWriter(cfg.Brokers, cfg.TopicChunk, transport)
	p.writerEncounter = newWriter(cfg.Brokers, cfg.TopicEncounter, transport)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicLive", cfg.TopicLive).
		Str("topicChunk", cfg.TopicChunk).
		Str("topicEncounter", cfg.TopicEncounter).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishLive publishes the running transcript after a segment resolves.
func (p *Publisher) PublishLive(ctx context.Context, ev models.LiveTranscriptEvent) error {
	return p.publish(ctx, p.writerLive, p.topicLive, ev.EventType, ev.EncounterID, ev)
}

// PublishChunk publishes a completed chunk.
func (p *Publisher) PublishChunk(ctx context.Context, ev models.ChunkCompletedEvent) error {
	return p.publish(ctx, p.writerChunk, p.topicChunk, ev.EventType, ev.EncounterID, ev)
}

// PublishEncounter publishes a server-side encounter change.
func (p *Publisher) PublishEncounter(ctx context.Context, ev models.EncounterEvent) error {
	return p.publish(ctx, p.writerEncounter, p.topicEncounter, ev.EventType, ev.EncounterID, ev)
}

// publish writes one event keyed by encounter so an encounter's events
// stay ordered within a partition.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("eventType", eventType).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	var err error
	for name, w := range map[string]*kafka.Writer{
		"live":      p.writerLive,
		"chunk":     p.writerChunk,
		"encounter": p.writerEncounter,
	} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Str("writer", name).Msg("Error closing Kafka writer")
			err = e
		}
	}
	return err
}
