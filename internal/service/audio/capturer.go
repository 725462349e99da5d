// Package audio captures a live PCM stream and cuts it into fixed-interval
// segments while a chunk recording is active.
package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/observability/logging"
	"encounter-scribe-service/internal/observability/metrics"
	"encounter-scribe-service/internal/service/segment"
)

var (
	ErrAlreadyRecording = errors.New("capturer is already recording")
	ErrNotRecording     = errors.New("capturer is not recording")
)

// Source is a stream of 16-bit little-endian PCM.
type Source interface {
	io.ReadCloser
}

// Sink persists segment audio. It runs in the background and its failures
// never reach the transcription path.
type Sink interface {
	Save(ctx context.Context, encounterID string, seg models.Segment) (string, error)
}

// Limits defines the segment cadence and the per-chunk safety cap.
type Limits struct {
	SegmentInterval  time.Duration
	MaxChunkDuration time.Duration
	SampleRateHz     int
	Channels         int
	FrameBytes       int // bytes requested per Read
	PersistTimeout   time.Duration
}

// DefaultLimits returns 30s segments with a 900s safety cap at 16 kHz mono.
func DefaultLimits() Limits {
	return Limits{
		SegmentInterval:  30 * time.Second,
		MaxChunkDuration: 900 * time.Second,
		SampleRateHz:     16000,
		Channels:         1,
		FrameBytes:       3200, // 100ms at 16 kHz 16-bit mono
		PersistTimeout:   30 * time.Second,
	}
}

// StopReason says why a chunk recording ended.
type StopReason string

const (
	StopManual      StopReason = "manual"
	StopSafetyCap   StopReason = "safety_cap"
	StopSourceEnded StopReason = "source_ended"
	StopSourceError StopReason = "source_error"
	StopCancelled   StopReason = "cancelled"
)

// StopResult summarizes a finished chunk recording.
type StopResult struct {
	Reason   StopReason
	Elapsed  time.Duration
	Segments int
	Bytes    int64
	Err      error
}

// Capturer emits segments from a Source on a fixed interval. One
// Capturer records one chunk at a time.
type Capturer struct {
	limits  Limits
	sink    Sink
	metrics *metrics.Metrics
	gen     *segment.Generator

	mu          sync.Mutex
	recording   bool
	buf         []byte
	bytes       int64
	encounterID string
	chunkIndex  int
	startedAt   time.Time
	stop        chan struct{}
	stopOnce    *sync.Once
	done        chan struct{}
	result      StopResult
	log         zerolog.Logger

	persistWG sync.WaitGroup
}

// NewCapturer creates a capturer. sink may be nil.
func NewCapturer(limits Limits, sink Sink) *Capturer {
	d := DefaultLimits()
	if limits.SegmentInterval <= 0 {
		limits.SegmentInterval = d.SegmentInterval
	}
	if limits.MaxChunkDuration <= 0 {
		limits.MaxChunkDuration = d.MaxChunkDuration
	}
	if limits.SampleRateHz <= 0 {
		limits.SampleRateHz = d.SampleRateHz
	}
	if limits.Channels <= 0 {
		limits.Channels = d.Channels
	}
	if limits.FrameBytes <= 0 {
		limits.FrameBytes = limits.SampleRateHz * limits.Channels * 2 / 10
	}
	if limits.PersistTimeout <= 0 {
		limits.PersistTimeout = d.PersistTimeout
	}
	return &Capturer{
		limits:  limits,
		sink:    sink,
		metrics: metrics.DefaultMetrics,
		gen:     segment.New(),
		log:     logging.WithComponent("capturer"),
	}
}

// Limits returns the effective limits.
func (c *Capturer) Limits() Limits {
	return c.limits
}

// Start begins recording chunkIndex from src. emit is called from the
// capture goroutine for every segment, in index order.
func (c *Capturer) Start(ctx context.Context, src Source, encounterID string, chunkIndex int, emit func(models.Segment)) error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	c.recording = true
	c.buf = make([]byte, 0, c.segmentBytes())
	c.bytes = 0
	c.encounterID = encounterID
	c.chunkIndex = chunkIndex
	c.startedAt = time.Now()
	c.stop = make(chan struct{})
	c.stopOnce = &sync.Once{}
	c.done = make(chan struct{})
	c.result = StopResult{}
	c.log = logging.WithChunk(encounterID, chunkIndex).With().Str("component", "capturer").Logger()
	c.gen.Reset()
	stop, done := c.stop, c.done
	c.mu.Unlock()

	readerDone := make(chan error, 1)
	quit := make(chan struct{})
	go c.readLoop(src, quit, readerDone)
	go c.run(ctx, src, emit, stop, quit, readerDone, done)

	c.log.Info().
		Dur("segmentInterval", c.limits.SegmentInterval).
		Dur("maxChunkDuration", c.limits.MaxChunkDuration).
		Msg("Chunk recording started")
	return nil
}

// Stop ends the recording, flushes the partial segment and returns the
// result. It is safe to call after the safety cap already stopped the
// recording.
func (c *Capturer) Stop() (StopResult, error) {
	c.mu.Lock()
	if c.done == nil {
		c.mu.Unlock()
		return StopResult{}, ErrNotRecording
	}
	stop, once, done := c.stop, c.stopOnce, c.done
	c.mu.Unlock()

	once.Do(func() { close(stop) })
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, nil
}

// Done is closed when the current recording has fully stopped.
func (c *Capturer) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Recording reports whether a chunk is being recorded.
func (c *Capturer) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Elapsed returns the time since the current chunk started.
func (c *Capturer) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startedAt.IsZero() {
		return 0
	}
	if !c.recording {
		return c.result.Elapsed
	}
	return time.Since(c.startedAt)
}

// WaitPersist blocks until background audio writes have finished.
func (c *Capturer) WaitPersist() {
	c.persistWG.Wait()
}

func (c *Capturer) run(ctx context.Context, src Source, emit func(models.Segment), stop <-chan struct{}, quit chan struct{}, readerDone chan error, done chan struct{}) {
	ticker := time.NewTicker(c.limits.SegmentInterval)
	defer ticker.Stop()
	safetyCap := time.NewTimer(c.limits.MaxChunkDuration)
	defer safetyCap.Stop()

	var (
		reason       StopReason
		readErr      error
		readerExited bool
	)

loop:
	for {
		select {
		case <-ticker.C:
			c.emitBuffered(emit)
		case <-safetyCap.C:
			reason = StopSafetyCap
			break loop
		case <-stop:
			reason = StopManual
			break loop
		case <-ctx.Done():
			reason = StopCancelled
			break loop
		case err := <-readerDone:
			readerExited = true
			if err == nil || errors.Is(err, io.EOF) {
				reason = StopSourceEnded
			} else {
				reason = StopSourceError
				readErr = err
			}
			break loop
		}
	}

	close(quit)
	if err := src.Close(); err != nil {
		c.log.Debug().Err(err).Msg("Source close error")
	}
	if !readerExited {
		<-readerDone
	}

	c.emitBuffered(emit)

	c.mu.Lock()
	c.recording = false
	c.result = StopResult{
		Reason:   reason,
		Elapsed:  time.Since(c.startedAt),
		Segments: c.gen.Count(),
		Bytes:    c.bytes,
		Err:      readErr,
	}
	result := c.result
	c.mu.Unlock()

	ev := c.log.Info()
	if readErr != nil {
		ev = c.log.Warn().Err(readErr)
	}
	ev.Str("reason", string(result.Reason)).
		Dur("elapsed", result.Elapsed).
		Int("segments", result.Segments).
		Int64("bytes", result.Bytes).
		Msg("Chunk recording stopped")

	close(done)
}

func (c *Capturer) readLoop(src Source, quit <-chan struct{}, out chan<- error) {
	frame := make([]byte, c.limits.FrameBytes)
	for {
		select {
		case <-quit:
			out <- nil
			return
		default:
		}

		n, err := src.Read(frame)
		if n > 0 {
			c.mu.Lock()
			c.buf = append(c.buf, frame[:n]...)
			c.bytes += int64(n)
			c.mu.Unlock()
		}
		if err != nil {
			select {
			case <-quit:
				out <- nil
			default:
				out <- err
			}
			return
		}
	}
}

// emitBuffered cuts whatever audio has accumulated into the next segment.
func (c *Capturer) emitBuffered(emit func(models.Segment)) {
	c.mu.Lock()
	if len(c.buf) == 0 {
		c.mu.Unlock()
		return
	}
	audio := c.buf
	c.buf = make([]byte, 0, c.segmentBytes())
	seg := models.Segment{
		Index:        c.gen.Next(),
		ChunkIndex:   c.chunkIndex,
		Audio:        audio,
		SampleRateHz: c.limits.SampleRateHz,
		Channels:     c.limits.Channels,
		Duration:     c.bytesToDuration(len(audio)),
		EmittedAt:    time.Now(),
	}
	encounterID := c.encounterID
	logger := c.log
	c.mu.Unlock()

	c.metrics.RecordSegmentEmitted(len(audio))
	logger.Debug().
		Int("segmentIndex", seg.Index).
		Int("bytes", len(audio)).
		Dur("duration", seg.Duration).
		Msg("Segment emitted")

	if emit != nil {
		emit(seg)
	}
	c.persist(encounterID, seg)
}

func (c *Capturer) persist(encounterID string, seg models.Segment) {
	if c.sink == nil {
		return
	}
	c.persistWG.Add(1)
	go func() {
		defer c.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.limits.PersistTimeout)
		defer cancel()
		if _, err := c.sink.Save(ctx, encounterID, seg); err != nil {
			c.metrics.RecordAudioPersistError()
			logger := logging.WithSegment(encounterID, seg.ChunkIndex, seg.Index)
			logger.Warn().
				Err(err).
				Msg("Segment audio persistence failed")
		}
	}()
}

func (c *Capturer) segmentBytes() int {
	return int(c.limits.SegmentInterval.Seconds() * float64(c.limits.SampleRateHz*c.limits.Channels*2))
}

func (c *Capturer) bytesToDuration(n int) time.Duration {
	rate := c.limits.SampleRateHz * c.limits.Channels * 2
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}
