// Package segment provides segment index generation and the per-segment
// conversion lifecycle.
package segment

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the conversion state of a segment.
type State int

const (
	// StateQueued - waiting in the transcription queue.
	StateQueued State = iota
	// StateConverting - an attempt is in flight.
	StateConverting
	// StateSucceeded - a transcript was produced.
	StateSucceeded
	// StateFailed - attempts exhausted; the segment contributes nothing.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateQueued:
		return "QUEUED"
	case StateConverting:
		return "CONVERTING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (SUCCEEDED or FAILED).
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Errors for invalid state transitions.
var (
	ErrAlreadyResolved = errors.New("segment result already produced")
	ErrNotConverting   = errors.New("segment is not converting")
)

// Lifecycle tracks one segment through the queue. Thread-safe.
//
// State transitions:
//
//	QUEUED → CONVERTING ⇄ (retry) → SUCCEEDED | FAILED
//
// Rules:
//   - Begin may be called once per attempt; it counts attempts.
//   - Succeed and Fail are only valid while CONVERTING.
//   - A result is produced exactly once; terminal states reject everything.
type Lifecycle struct {
	mu       sync.RWMutex
	index    int
	state    State
	attempts int
}

// NewLifecycle creates a lifecycle in QUEUED state.
func NewLifecycle(index int) *Lifecycle {
	return &Lifecycle{
		index: index,
		state: StateQueued,
	}
}

// Index returns the segment index.
func (l *Lifecycle) Index() int {
	return l.index
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Attempts returns how many conversion attempts have started.
func (l *Lifecycle) Attempts() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.attempts
}

// IsResolved returns true once a result has been produced.
func (l *Lifecycle) IsResolved() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Begin records the start of a conversion attempt.
func (l *Lifecycle) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return ErrAlreadyResolved
	}
	l.state = StateConverting
	l.attempts++
	return nil
}

// Succeed transitions to SUCCEEDED.
func (l *Lifecycle) Succeed() error {
	return l.resolve(StateSucceeded)
}

// Fail transitions to FAILED.
func (l *Lifecycle) Fail() error {
	return l.resolve(StateFailed)
}

func (l *Lifecycle) resolve(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateConverting:
		l.state = to
		return nil
	case StateSucceeded, StateFailed:
		return ErrAlreadyResolved
	default:
		return ErrNotConverting
	}
}
