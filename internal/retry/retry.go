// Package retry is the generic backoff helper used by every external-call
// adapter (embedding, vector backend, reranker, LLM). It generalises the
// donor's internal/gcpclient/retry.go withRetry[T any] — same shape (a
// generic function wrapping a single-attempt closure, checked for a
// retryable error, slept, retried) — but adds full jitter, since spec.md
// §4.1 requires "jittered exponential backoff (base 250 ms, cap 4 s)" where
// the donor only had a fixed [500,1000,2000]ms schedule.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Config is a backoff policy.
type Config struct {
	MaxAttempts int // total attempts, including the first
	Base        time.Duration
	Cap         time.Duration
}

// Default is spec.md §4.1's policy: base 250ms, cap 4s, retried up to 2
// times (3 attempts total).
var Default = Config{MaxAttempts: 3, Base: 250 * time.Millisecond, Cap: 4 * time.Second}

// Do executes fn, retrying on errors for which retryable(err) is true,
// using full-jitter exponential backoff. operation is used only for log
// context. Returns the last error if all attempts are exhausted.
func Do[T any](ctx context.Context, cfg Config, operation string, retryable func(error) bool, fn func() (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg = Default
	}

	var result T
	var err error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if retryable != nil && !retryable(err) {
			return result, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := fullJitter(cfg.Base, cfg.Cap, attempt)
		slog.Warn("retrying external call",
			"operation", operation,
			"attempt", attempt+1,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("%s: cancelled during retry: %w", operation, ctx.Err())
		case <-time.After(delay):
		}
	}

	return result, fmt.Errorf("%s: exhausted %d attempts: %w", operation, cfg.MaxAttempts, err)
}

// fullJitter returns a random duration in [0, min(cap, base*2^attempt)].
func fullJitter(base, cap time.Duration, attempt int) time.Duration {
	backoff := base << uint(attempt)
	if backoff <= 0 || backoff > cap {
		backoff = cap
	}
	return time.Duration(rand.Int63n(int64(backoff) + 1))
}
