// Package retry runs an operation with capped exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config controls retry behaviour.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Jitter adds up to one extra backoff interval at random.
	Jitter bool
}

// DefaultConfig returns the backoff used for venue price reads.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     20 * time.Second,
		Jitter:         true,
	}
}

// OnRetryFunc is called before each retry. attempt starts at 1.
type OnRetryFunc func(attempt int, err error, wait time.Duration)

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// retries are spent.
func Do[T any](ctx context.Context, cfg Config, retryable func(error) bool, onRetry OnRetryFunc, fn func() (T, error)) (T, error) {
	var zero T
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	wait := cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			d := wait
			if cfg.Jitter {
				d += time.Duration(rand.Int64N(int64(wait)))
			}
			if onRetry != nil {
				onRetry(attempt, lastErr, d)
			}
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, fmt.Errorf("retry: %w (last error: %v)", ctx.Err(), lastErr)
			case <-t.C:
			}
			wait = min(wait*2, cfg.MaxBackoff)
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if retryable == nil || !retryable(err) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("retry: gave up after %d retries: %w", cfg.MaxRetries, lastErr)
}
