// Package transcription converts a chunk's segments to text one at a time
// and keeps a live stitched transcript of everything resolved so far.
package transcription

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/observability/logging"
	"encounter-scribe-service/internal/observability/metrics"
	"encounter-scribe-service/internal/resilience"
	"encounter-scribe-service/internal/service/segment"
	"encounter-scribe-service/internal/service/stitch"
	"encounter-scribe-service/internal/service/stt"
)

// ErrClosed is returned when enqueueing after Close.
var ErrClosed = errors.New("transcription queue closed")

// Config controls conversion attempts and buffering.
type Config struct {
	MaxAttempts    int
	RetryDelay     time.Duration
	Buffer         int
	AttemptTimeout time.Duration
	// IsRetryable classifies conversion errors; nil retries anything but
	// caller cancellation.
	IsRetryable func(error) bool
}

// DefaultConfig returns two attempts 1.5s apart.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    2,
		RetryDelay:     1500 * time.Millisecond,
		Buffer:         64,
		AttemptTimeout: 60 * time.Second,
	}
}

// Update is delivered after every resolved segment.
type Update struct {
	Result models.SegmentResult
	Live   models.LiveTranscript
}

// Queue is a FIFO of segments feeding a single conversion worker. At most
// one segment is in flight at a time, so conversions are submitted in
// strict index order.
type Queue struct {
	conv     stt.Converter
	cfg      Config
	hints    stt.Hints
	onUpdate func(Update)
	metrics  *metrics.Metrics
	log      zerolog.Logger

	inMu   sync.Mutex
	closed bool
	items  chan models.Segment

	pending atomic.Int64

	mu      sync.RWMutex
	results []models.SegmentResult
	live    models.LiveTranscript

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a queue for one chunk and starts its worker. onUpdate may
// be nil and is called from the worker goroutine.
func New(ctx context.Context, conv stt.Converter, cfg Config, hints stt.Hints, onUpdate func(Update)) *Queue {
	d := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = d.RetryDelay
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = d.Buffer
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = d.AttemptTimeout
	}

	qctx, cancel := context.WithCancel(ctx)
	q := &Queue{
		conv:     conv,
		cfg:      cfg,
		hints:    hints,
		onUpdate: onUpdate,
		metrics:  metrics.DefaultMetrics,
		log: logging.WithChunk(hints.EncounterID, hints.ChunkIndex).With().
			Str("component", "transcription-queue").
			Str("sttProvider", conv.Name()).
			Logger(),
		items:  make(chan models.Segment, cfg.Buffer),
		ctx:    qctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue appends a segment. It blocks while the buffer is full.
func (q *Queue) Enqueue(seg models.Segment) error {
	q.inMu.Lock()
	defer q.inMu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.pending.Add(1)
	q.metrics.SetQueuePending(q.Pending())

	select {
	case q.items <- seg:
		return nil
	case <-q.ctx.Done():
		q.pending.Add(-1)
		return q.ctx.Err()
	}
}

// Pending returns the number of segments queued, in flight or not yet
// published.
func (q *Queue) Pending() int {
	return int(q.pending.Load())
}

// Results returns a copy of the results produced so far, in completion order.
func (q *Queue) Results() []models.SegmentResult {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]models.SegmentResult(nil), q.results...)
}

// Live returns the current stitched transcript.
func (q *Queue) Live() models.LiveTranscript {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.live
}

// Close stops accepting segments. Already queued segments still run.
func (q *Queue) Close() {
	q.inMu.Lock()
	defer q.inMu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
}

// Abort cancels in-flight and queued conversions; they resolve as failed.
func (q *Queue) Abort() {
	q.cancel()
}

// Done is closed once the worker has resolved every segment after Close.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) run() {
	defer close(q.done)
	defer q.cancel()

	for seg := range q.items {
		result := q.convert(seg)

		q.mu.Lock()
		q.results = append(q.results, result)
		text, raw := stitch.Segments(q.results)
		q.live = models.LiveTranscript{
			Text:     text,
			RawText:  raw,
			Resolved: len(q.results),
			Pending:  q.Pending() - 1,
		}
		live := q.live
		q.mu.Unlock()

		q.metrics.RecordSegmentResolved(result.Succeeded)
		if q.onUpdate != nil {
			q.onUpdate(Update{Result: result, Live: live})
		}

		// Released only after publication so a drained queue has no
		// update still in flight.
		q.metrics.SetQueuePending(int(q.pending.Add(-1)))
	}
}

func (q *Queue) convert(seg models.Segment) models.SegmentResult {
	lc := segment.NewLifecycle(seg.Index)
	hints := q.hints
	hints.SegmentIndex = seg.Index
	logger := q.log.With().Int("segmentIndex", seg.Index).Logger()

	retryCfg := resilience.SegmentRetryConfig(q.cfg.MaxAttempts, q.cfg.RetryDelay)
	if q.cfg.IsRetryable != nil {
		retryCfg.IsRetryable = q.cfg.IsRetryable
	}
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retryIn", delay).
			Msg("Segment conversion failed, retrying")
	}

	var conv stt.Conversion
	attempts, err := resilience.Retry(q.ctx, retryCfg, func(int) error {
		if err := lc.Begin(); err != nil {
			return err
		}
		actx, cancel := context.WithTimeout(q.ctx, q.cfg.AttemptTimeout)
		defer cancel()

		start := time.Now()
		c, err := q.conv.Convert(actx, seg, hints)
		q.metrics.RecordConversionAttempt(q.conv.Name(), err, time.Since(start).Seconds())
		if err != nil {
			return err
		}
		conv = c
		return nil
	})

	if err != nil {
		if lc.State() == segment.StateConverting {
			lc.Fail()
		}
		logger.Warn().
			Err(err).
			Int("attempts", attempts).
			Msg("Segment conversion abandoned")
		return models.SegmentResult{Index: seg.Index}
	}

	lc.Succeed()
	logger.Debug().
		Int("attempts", attempts).
		Int("chars", len(conv.Transcript)).
		Msg("Segment converted")
	return models.SegmentResult{
		Index:     seg.Index,
		Text:      conv.Transcript,
		RawText:   conv.RawTranscript,
		Succeeded: true,
	}
}
