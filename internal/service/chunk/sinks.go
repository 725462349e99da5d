package chunk

import (
	"context"
	"errors"

	"encounter-scribe-service/internal/models"
)

// Sinks fans events out to several sinks, e.g. Kafka and the live viewer.
// Every sink is called even when an earlier one fails.
type Sinks []EventSink

func (s Sinks) PublishLive(ctx context.Context, ev models.LiveTranscriptEvent) error {
	var errs []error
	for _, sink := range s {
		if sink != nil {
			errs = append(errs, sink.PublishLive(ctx, ev))
		}
	}
	return errors.Join(errs...)
}

func (s Sinks) PublishChunk(ctx context.Context, ev models.ChunkCompletedEvent) error {
	var errs []error
	for _, sink := range s {
		if sink != nil {
			errs = append(errs, sink.PublishChunk(ctx, ev))
		}
	}
	return errors.Join(errs...)
}
