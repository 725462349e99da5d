// Package mock provides a scripted converter for tests and local runs
// without cloud credentials.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"encounter-scribe-service/internal/models"
	"encounter-scribe-service/internal/service/stt"
)

// DefaultUtterances is cycled by segment index when no script is given.
var DefaultUtterances = []string{
	"Patient reports pain in the left knee for three days",
	"No history of trauma or recent falls",
	"Pain is worse when climbing stairs",
	"Takes ibuprofen as needed with partial relief",
	"On exam there is mild swelling and no redness",
}

// ErrScripted is returned for scripted failures.
var ErrScripted = errors.New("mock conversion failure")

// Converter implements stt.Converter with deterministic results keyed by
// segment index.
type Converter struct {
	mu         sync.Mutex
	utterances []string
	raw        []string
	failures   map[int]int
	latency    map[int]time.Duration
	calls      []int
	inFlight   int
	maxFlight  int
}

// New creates a converter that cycles through DefaultUtterances.
func New() *Converter {
	return NewScripted(DefaultUtterances, nil)
}

// NewScripted creates a converter returning utterances[i] for segment i.
// raw defaults to utterances when nil. An empty string yields an empty
// but successful conversion.
func NewScripted(utterances, raw []string) *Converter {
	if raw == nil {
		raw = utterances
	}
	return &Converter{
		utterances: utterances,
		raw:        raw,
		failures:   make(map[int]int),
		latency:    make(map[int]time.Duration),
	}
}

// FailTimes makes the next n conversions of segment index fail.
func (c *Converter) FailTimes(index, n int) *Converter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[index] = n
	return c
}

// Delay adds latency to conversions of segment index.
func (c *Converter) Delay(index int, d time.Duration) *Converter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency[index] = d
	return c
}

// Calls returns the segment indices in the order they were converted.
func (c *Converter) Calls() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.calls...)
}

// MaxInFlight returns the highest number of overlapping Convert calls seen.
func (c *Converter) MaxInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxFlight
}

func (c *Converter) Name() string {
	return "mock"
}

// Convert returns the scripted text for seg.Index.
func (c *Converter) Convert(ctx context.Context, seg models.Segment, hints stt.Hints) (stt.Conversion, error) {
	c.mu.Lock()
	c.calls = append(c.calls, seg.Index)
	c.inFlight++
	if c.inFlight > c.maxFlight {
		c.maxFlight = c.inFlight
	}
	delay := c.latency[seg.Index]
	fail := c.failures[seg.Index] > 0
	if fail {
		c.failures[seg.Index]--
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return stt.Conversion{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	if fail {
		return stt.Conversion{}, fmt.Errorf("segment %d: %w", seg.Index, ErrScripted)
	}
	if len(c.utterances) == 0 {
		return stt.Conversion{}, nil
	}

	i := seg.Index % len(c.utterances)
	conv := stt.Conversion{Transcript: c.utterances[i]}
	if i < len(c.raw) {
		conv.RawTranscript = c.raw[i]
	}
	return conv, nil
}
