// Package mic reads the default input device through PortAudio.
package mic

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Source captures 16-bit mono or stereo PCM from the default input device.
type Source struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	samples []int16
	closed  bool
}

// Open initializes PortAudio and starts the default input stream. Errors
// here mean no usable microphone, which is fatal to starting a chunk.
func Open(sampleRate, channels int) (*Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	framesPerBuffer := sampleRate / 10
	samples := make([]int16, framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), framesPerBuffer, samples)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	return &Source{stream: stream, samples: samples}, nil
}

// Read blocks for one buffer of audio and writes it as little-endian PCM.
// p must hold at least one full buffer.
func (s *Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("microphone closed")
	}
	need := len(s.samples) * 2
	if len(p) < need {
		return 0, fmt.Errorf("read buffer too small: %d < %d", len(p), need)
	}
	if err := s.stream.Read(); err != nil {
		return 0, fmt.Errorf("microphone read: %w", err)
	}
	for i, v := range s.samples {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(v))
	}
	return need, nil
}

// FrameBytes is the Read buffer size the source expects.
func (s *Source) FrameBytes() int {
	return len(s.samples) * 2
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stream.Stop()
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}
