// Package resilience provides retry and circuit breaker primitives for
// calls to external collaborators.
package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	DefaultMaxAttempts = 2
	DefaultDelay       = 1500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
)

// RetryConfig holds retry settings. Multiplier 1 gives a constant delay
// between attempts.
type RetryConfig struct {
	MaxAttempts  int
	Delay        time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
	IsRetryable  func(error) bool
	// OnRetry is called before each wait with the 1-based attempt that failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// SegmentRetryConfig returns the policy for segment conversion: a fixed
// delay between attempts, retrying every failure except cancellation.
func SegmentRetryConfig(attempts int, delay time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		Delay:       delay,
		MaxDelay:    delay,
		Multiplier:  1,
		IsRetryable: IsRetryableSegment,
	}
}

// IsRetryableSegment retries any conversion failure, gRPC status or not,
// unless the caller cancelled.
func IsRetryableSegment(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// IsRetryableGRPC checks if an error is worth retrying. Errors that carry
// no gRPC status are retried. Caller cancellation never is.
func IsRetryableGRPC(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return true
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal, codes.Unknown:
		return true
	default:
		return false
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. The returned int is the number of attempts made.
func Retry(ctx context.Context, cfg RetryConfig, fn func(attempt int) error) (int, error) {
	cfg = cfg.withDefaults()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		if lastErr = fn(attempt); lastErr == nil {
			return attempt, nil
		}

		if !cfg.IsRetryable(lastErr) || attempt == cfg.MaxAttempts {
			return attempt, lastErr
		}

		delay := backoffDelay(cfg, attempt-1)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}
		log.Debug().
			Int("attempt", attempt).
			Int("max", cfg.MaxAttempts).
			Dur("delay", delay).
			Err(lastErr).
			Msg("Retrying after error")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return cfg.MaxAttempts, lastErr
}

func backoffDelay(cfg RetryConfig, retry int) time.Duration {
	delay := float64(cfg.Delay)
	for i := 0; i < min(retry, 6); i++ {
		delay *= cfg.Multiplier
	}
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.JitterFactor > 0 {
		delay += delay * cfg.JitterFactor * (rand.Float64() - 0.5)
	}
	return time.Duration(delay)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Delay < 0 {
		c.Delay = DefaultDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = max(c.Delay, DefaultMaxDelay)
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 1
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.IsRetryable == nil {
		c.IsRetryable = IsRetryableGRPC
	}
	return c
}
