// Package retry implements bounded, jittered exponential backoff for calls to
// flaky collaborators. Jitter keeps a fleet of retrying callers from hammering
// a recovering upstream in lockstep.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config controls the retry loop.
type Config struct {
	// MaxAttempts counts the initial attempt, so 3 means two retries.
	MaxAttempts int
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps exponential growth.
	MaxDelay time.Duration
	// Factor multiplies the delay after each failed attempt.
	Factor float64
	// Jitter adds up to Jitter*delay of randomness (0.1 = 10%).
	Jitter float64
	// Retryable decides whether an error is worth another attempt.
	// Nil retries everything.
	Retryable func(error) bool
}

// Default mirrors the IdP lookup policy: three attempts, one second base
// delay, doubling, 10% jitter.
func Default() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Factor:      2.0,
		Jitter:      0.1,
	}
}

func (c Config) normalized() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.Factor < 1 {
		c.Factor = 1
	}
	if c.MaxDelay > 0 && c.BaseDelay > c.MaxDelay {
		c.BaseDelay = c.MaxDelay
	}
	return c
}

// Do runs fn until it succeeds, the attempt budget is spent, a non-retryable
// error occurs, or ctx is done. Non-retryable errors are returned as-is; an
// exhausted budget wraps the last error so callers can still errors.Is into
// the underlying cause.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.normalized()

	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(withJitter(delay, cfg.Jitter)):
		}

		delay = time.Duration(float64(delay) * cfg.Factor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func withJitter(delay time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || delay <= 0 {
		return delay
	}
	span := int64(float64(delay) * jitter)
	if span <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Int64N(span))
}
