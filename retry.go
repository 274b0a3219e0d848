package serialscope

import (
	"context"
	"time"
)

// retryConfig bounds a retried operation: a fixed attempt budget with a
// growing inter-attempt delay. Worst-case wall clock is therefore
// computable up front, which is what makes the close sequence a
// predictable contract instead of an open-ended wait.
type retryConfig struct {
	attempts   int
	wait       time.Duration
	maxWait    time.Duration
	multiplier float64
}

// doRetry runs fn up to cfg.attempts times, sleeping between attempts
// with context cancellation support. Returns the last error when the
// budget is exhausted.
func doRetry(ctx context.Context, cfg retryConfig, fn func() error) error {
	if cfg.attempts < 1 {
		cfg.attempts = 1
	}
	if cfg.multiplier < 1 {
		cfg.multiplier = 1
	}

	var lastErr error
	wait := cfg.wait

	for attempt := 1; attempt <= cfg.attempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.attempts {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		next := time.Duration(float64(wait) * cfg.multiplier)
		if cfg.maxWait > 0 && next > cfg.maxWait {
			next = cfg.maxWait
		}
		wait = next
	}

	return lastErr
}
