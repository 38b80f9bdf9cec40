// Package resilience provides retry and circuit-breaker primitives shared by
// every network-facing component of the pipeline.
//
// [Retry] is the single retry-with-backoff combinator used by the outbox and
// the provider-facing callers, so backoff behaviour stays consistent across
// the codebase. [CircuitBreaker] is a classic three-state breaker
// (closed → open → half-open) used to shield the translation provider from
// cascading failures.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Backoff computes the wait duration before retry attempt n (1-based, i.e.
// the wait that follows the nth failure).
type Backoff func(attempt int) time.Duration

// Linear returns a backoff of base*attempt: base, 2*base, 3*base, ...
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Exponential returns a backoff of base*2^(attempt-1), capped at max.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base << (attempt - 1)
		if d > max || d <= 0 {
			return max
		}
		return d
	}
}

// Retry runs fn up to maxAttempts times, waiting backoff(attempt) between
// attempts. It returns nil on the first success, ctx.Err() if the context is
// cancelled while waiting, and the last error once attempts are exhausted.
//
// Retry does not inspect the error class; callers that want to skip retries
// for non-retryable failures should do so before calling Retry.
func Retry(ctx context.Context, op string, maxAttempts int, backoff Backoff, fn func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == maxAttempts {
			break
		}

		wait := backoff(attempt)
		slog.Debug("retrying after failure",
			"op", op,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"wait", wait,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("%s: %d attempts exhausted: %w", op, maxAttempts, lastErr)
}
