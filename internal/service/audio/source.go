package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	"encounter-scribe-service/internal/wav"
)

// WAVSource replays a 16-bit PCM WAV file. When paced, reads are throttled
// to real time so the capturer sees the same cadence as a microphone.
type WAVSource struct {
	mu     sync.Mutex
	f      *os.File
	format wav.Format
	paced  bool
	next   time.Time
	closed bool
}

// OpenWAV opens path and validates its header.
func OpenWAV(path string, paced bool) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	format, err := wav.ReadHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &WAVSource{f: f, format: format, paced: paced}, nil
}

// Format returns the file's PCM format.
func (s *WAVSource) Format() wav.Format {
	return s.format
}

func (s *WAVSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	f, closed := s.f, s.closed
	s.mu.Unlock()
	if closed {
		return 0, os.ErrClosed
	}

	n, err := f.Read(p)
	if !s.paced || n == 0 {
		return n, err
	}

	if s.next.IsZero() {
		s.next = time.Now()
	}
	s.next = s.next.Add(time.Duration(n) * time.Second / time.Duration(s.format.BytesPerSecond()))
	if wait := time.Until(s.next); wait > 0 {
		time.Sleep(wait)
	}
	return n, err
}

func (s *WAVSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
