// Package resilience provides the retry, circuit-breaker, and provider
// failover primitives that sit at the oracle boundary. Transient generation
// failures are retried with bounded attempts and exponential backoff here,
// invisibly to the narrative engine above; anything that survives the retry
// budget surfaces as a hard failure.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultAttempts   = 3
	defaultBackoff    = 500 * time.Millisecond
	defaultMaxBackoff = 8 * time.Second
)

// RetryConfig holds the tuning knobs for a [Retryer].
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	// Default: 3.
	Attempts int

	// Backoff is the delay before the second attempt. It doubles after
	// every failure up to MaxBackoff. Default: 500ms.
	Backoff time.Duration

	// MaxBackoff caps the per-attempt delay. Default: 8s.
	MaxBackoff time.Duration

	// Logger receives per-attempt warnings. Default: slog.Default().
	Logger *slog.Logger
}

// Retryer runs an operation with bounded attempts and exponential backoff.
type Retryer struct {
	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
	log        *slog.Logger
}

// NewRetryer creates a [Retryer]. Zero-value config fields are replaced with
// defaults.
func NewRetryer(cfg RetryConfig) *Retryer {
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Retryer{
		attempts:   cfg.Attempts,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
		log:        cfg.Logger,
	}
}

// Do runs fn until it succeeds or the attempt budget is spent. The op string
// labels log lines. Context cancellation aborts the wait between attempts
// and is returned as-is.
func (r *Retryer) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := r.backoff

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == r.attempts {
			break
		}

		r.log.Warn("operation failed, backing off",
			"op", op,
			"attempt", attempt,
			"max_attempts", r.attempts,
			"backoff", backoff,
			"error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
	return fmt.Errorf("%s: %d attempts exhausted: %w", op, r.attempts, lastErr)
}

// DoValue is the result-returning variant of [Retryer.Do]. It is a
// package-level function because Go does not support method-level type
// parameters.
func DoValue[R any](ctx context.Context, r *Retryer, op string, fn func(ctx context.Context) (R, error)) (R, error) {
	var result R
	err := r.Do(ctx, op, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = fn(ctx)
		return innerErr
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}
