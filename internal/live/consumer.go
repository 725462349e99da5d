package live

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/tidwall/gjson"
)

// ErrNotJSON is returned for message values that are not a JSON object.
var ErrNotJSON = errors.New("message value is not a JSON object")

// ConsumerConfig selects the topic a viewer follows.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	// Lookback replays recent history on connect.
	Lookback time.Duration
}

// Consume reads topic partition 0 and broadcasts each event until ctx is
// done. A partition reader is used instead of a consumer group so every
// viewer sees the whole stream.
func Consume(ctx context.Context, hub *Hub, cfg ConsumerConfig) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   cfg.Brokers,
		Topic:     cfg.Topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if cfg.Lookback > 0 {
		if err := reader.SetOffsetAt(ctx, time.Now().Add(-cfg.Lookback)); err != nil {
			log.Warn().Err(err).Str("topic", cfg.Topic).Msg("Failed to rewind reader")
		}
	}

	log.Info().Str("topic", cfg.Topic).Dur("lookback", cfg.Lookback).Msg("Consuming transcript events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", cfg.Topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		event, err := decodeEvent(msg.Value)
		if err != nil {
			log.Warn().Err(err).Str("topic", cfg.Topic).Int64("offset", msg.Offset).Msg("Skipping message")
			continue
		}

		log.Debug().
			Str("eventType", gjson.GetBytes(event, "eventType").String()).
			Str("encounterId", gjson.GetBytes(event, "encounterId").String()).
			Str("text", truncate(gjson.GetBytes(event, "text").String(), 40)).
			Msg("Received event")
		if !hub.Broadcast(event) {
			log.Warn().Str("topic", cfg.Topic).Msg("Viewer queue full, event dropped")
		}
	}
}

// decodeEvent validates a message value and returns it unchanged.
func decodeEvent(value []byte) (json.RawMessage, error) {
	if !gjson.ValidBytes(value) || !gjson.ParseBytes(value).IsObject() {
		return nil, ErrNotJSON
	}
	return json.RawMessage(value), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
