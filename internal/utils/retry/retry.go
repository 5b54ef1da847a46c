// Package retry implements a small bounded-backoff retry helper for
// transient storage failures. Only errors the caller classifies as
// transient are retried; domain errors surface immediately.
package retry

import (
	"context"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts is the total number of tries including the first.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt; it doubles per
	// attempt up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Classify reports whether an error is worth retrying. A nil Classify
	// retries nothing.
	Classify func(error) bool
}

// DefaultPolicy returns the engine's storage retry defaults.
func DefaultPolicy(classify func(error) bool) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    time.Second,
		Classify:    classify,
	}
}

// Do runs fn until it succeeds, runs out of attempts, fails with a
// non-retryable error or the context ends. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Classify == nil || !p.Classify(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
