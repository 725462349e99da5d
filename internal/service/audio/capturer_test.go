package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/wav"
)

// testSource produces a fixed number of bytes per read until closed.
type testSource struct {
	mu       sync.Mutex
	frame    int
	interval time.Duration
	limit    int // total bytes before EOF; 0 means unlimited
	err      error
	sent     int
	closed   bool
}

func (s *testSource) Read(p []byte) (int, error) {
	time.Sleep(s.interval)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, os.ErrClosed
	}
	if s.limit > 0 && s.sent >= s.limit {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	n := min(s.frame, len(p))
	if s.limit > 0 {
		n = min(n, s.limit-s.sent)
	}
	s.sent += n
	return n, nil
}

func (s *testSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type segmentRecorder struct {
	mu   sync.Mutex
	segs []models.Segment
}

func (r *segmentRecorder) emit(seg models.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segs = append(r.segs, seg)
}

func (r *segmentRecorder) all() []models.Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Segment(nil), r.segs...)
}

type testSink struct {
	mu    sync.Mutex
	saved []int
	err   error
}

func (s *testSink) Save(ctx context.Context, encounterID string, seg models.Segment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, seg.Index)
	return "", s.err
}

func (s *testSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func testLimits() Limits {
	return Limits{
		SegmentInterval:  40 * time.Millisecond,
		MaxChunkDuration: time.Minute,
		SampleRateHz:     16000,
		Channels:         1,
		FrameBytes:       320,
	}
}

func TestCapturer_EmitsSegmentsOnInterval(t *testing.T) {
	c := NewCapturer(testLimits(), nil)
	rec := &segmentRecorder{}
	src := &testSource{frame: 320, interval: time.Millisecond}

	if err := c.Start(context.Background(), src, "enc-1", 1, rec.emit); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	result, err := c.Stop()
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	segs := rec.all()
	if len(segs) < 2 {
		t.Fatalf("expected interval cuts plus a flush, got %d segments", len(segs))
	}
	for i, seg := range segs {
		if seg.Index != i {
			t.Errorf("segment %d: expected index %d, got %d", i, i, seg.Index)
		}
		if seg.ChunkIndex != 1 {
			t.Errorf("segment %d: expected chunk 1, got %d", i, seg.ChunkIndex)
		}
		if len(seg.Audio) == 0 {
			t.Errorf("segment %d: expected audio", i)
		}
	}
	if result.Reason != StopManual {
		t.Errorf("expected manual stop, got %s", result.Reason)
	}
	if result.Segments != len(segs) {
		t.Errorf("expected result to count %d segments, got %d", len(segs), result.Segments)
	}
	if c.Recording() {
		t.Error("expected capturer to be idle after stop")
	}
}

func TestCapturer_FlushesPartialOnStop(t *testing.T) {
	limits := testLimits()
	limits.SegmentInterval = time.Hour
	c := NewCapturer(limits, nil)
	rec := &segmentRecorder{}
	src := &testSource{frame: 320, interval: time.Millisecond, limit: 960}

	if err := c.Start(context.Background(), src, "enc-1", 1, rec.emit); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	<-c.Done()
	result, _ := c.Stop()

	segs := rec.all()
	if len(segs) != 1 {
		t.Fatalf("expected exactly one flushed segment, got %d", len(segs))
	}
	if len(segs[0].Audio) != 960 {
		t.Errorf("expected 960 bytes in flushed segment, got %d", len(segs[0].Audio))
	}
	if segs[0].Duration != 30*time.Millisecond {
		t.Errorf("expected 30ms segment duration, got %v", segs[0].Duration)
	}
	if result.Reason != StopSourceEnded {
		t.Errorf("expected source_ended, got %s", result.Reason)
	}
}

func TestCapturer_NoSegmentWithoutAudio(t *testing.T) {
	c := NewCapturer(testLimits(), nil)
	rec := &segmentRecorder{}
	src := &testSource{frame: 320, interval: time.Millisecond, limit: 1}
	src.sent = 1

	c.Start(context.Background(), src, "enc-1", 1, rec.emit)
	<-c.Done()

	if n := len(rec.all()); n != 0 {
		t.Errorf("expected no segments for empty capture, got %d", n)
	}
}

func TestCapturer_SafetyCapStopsRecording(t *testing.T) {
	limits := testLimits()
	limits.SegmentInterval = time.Hour
	limits.MaxChunkDuration = 50 * time.Millisecond
	c := NewCapturer(limits, nil)
	rec := &segmentRecorder{}
	src := &testSource{frame: 320, interval: time.Millisecond}

	c.Start(context.Background(), src, "enc-1", 2, rec.emit)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected safety cap to stop the recording")
	}

	result, err := c.Stop()
	if err != nil {
		t.Fatalf("expected stop after cap to succeed, got %v", err)
	}
	if result.Reason != StopSafetyCap {
		t.Errorf("expected safety_cap, got %s", result.Reason)
	}
	if len(rec.all()) != 1 {
		t.Errorf("expected the partial segment to be flushed at the cap, got %d", len(rec.all()))
	}
}

func TestCapturer_SourceError(t *testing.T) {
	boom := errors.New("device unplugged")
	c := NewCapturer(testLimits(), nil)
	src := &testSource{frame: 320, interval: time.Millisecond, limit: 640, err: boom}

	c.Start(context.Background(), src, "enc-1", 1, nil)
	<-c.Done()
	result, _ := c.Stop()

	if result.Reason != StopSourceError {
		t.Errorf("expected source_error, got %s", result.Reason)
	}
	if !errors.Is(result.Err, boom) {
		t.Errorf("expected source error to be reported, got %v", result.Err)
	}
}

func TestCapturer_SinkIsFireAndForget(t *testing.T) {
	sink := &testSink{err: errors.New("disk full")}
	c := NewCapturer(testLimits(), sink)
	rec := &segmentRecorder{}
	src := &testSource{frame: 320, interval: time.Millisecond, limit: 640}

	c.Start(context.Background(), src, "enc-1", 1, rec.emit)
	<-c.Done()
	c.WaitPersist()

	if len(rec.all()) != 1 {
		t.Fatalf("expected segment emitted despite sink failure, got %d", len(rec.all()))
	}
	if sink.count() != 1 {
		t.Errorf("expected sink to receive 1 segment, got %d", sink.count())
	}
}

func TestCapturer_StartTwice(t *testing.T) {
	c := NewCapturer(testLimits(), nil)
	src := &testSource{frame: 320, interval: time.Millisecond}

	if err := c.Start(context.Background(), src, "enc-1", 1, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Stop()

	if err := c.Start(context.Background(), &testSource{frame: 320}, "enc-1", 1, nil); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("expected ErrAlreadyRecording, got %v", err)
	}
}

func TestCapturer_StopWithoutStart(t *testing.T) {
	c := NewCapturer(testLimits(), nil)
	if _, err := c.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("expected ErrNotRecording, got %v", err)
	}
}

func TestCapturer_IndicesRestartPerChunk(t *testing.T) {
	limits := testLimits()
	limits.SegmentInterval = time.Hour
	c := NewCapturer(limits, nil)

	for chunk := 1; chunk <= 2; chunk++ {
		rec := &segmentRecorder{}
		c.Start(context.Background(), &testSource{frame: 320, interval: time.Millisecond, limit: 320}, "enc-1", chunk, rec.emit)
		<-c.Done()
		segs := rec.all()
		if len(segs) != 1 || segs[0].Index != 0 {
			t.Errorf("chunk %d: expected a single segment with index 0, got %+v", chunk, segs)
		}
	}
}

func TestWAVSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.wav")
	pcm := make([]byte, 6400)
	if err := os.WriteFile(path, wav.Encode(pcm, 16000, 1), 0o600); err != nil {
		t.Fatalf("failed to write wav: %v", err)
	}

	src, err := OpenWAV(path, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Format().SampleRate != 16000 {
		t.Errorf("expected 16000 Hz, got %d", src.Format().SampleRate)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(data) != len(pcm) {
		t.Errorf("expected %d PCM bytes, got %d", len(pcm), len(data))
	}

	src.Close()
	if _, err := src.Read(make([]byte, 10)); err == nil {
		t.Error("expected read after close to fail")
	}
}

func TestOpenWAV_Missing(t *testing.T) {
	if _, err := OpenWAV(filepath.Join(t.TempDir(), "missing.wav"), false); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCapturer_Elapsed(t *testing.T) {
	c := NewCapturer(testLimits(), nil)
	if got := c.Elapsed(); got != 0 {
		t.Errorf("expected 0 before any chunk, got %v", got)
	}

	src := &testSource{frame: 320, interval: time.Millisecond}
	if err := c.Start(context.Background(), src, "enc-1", 1, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if got := c.Elapsed(); got < 30*time.Millisecond {
		t.Errorf("expected at least 30ms while recording, got %v", got)
	}

	result, err := c.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := c.Elapsed(); got != result.Elapsed {
		t.Errorf("expected elapsed frozen at %v after stop, got %v", result.Elapsed, got)
	}
}
