// Package retry provides the single bounded-retry policy used by every
// acquisition call site.
package retry

import (
	"context"
	"fmt"
	"time"
)

// DefaultBackoff is the fixed delay between attempts. Retries are meant to
// paper over transient download hiccups, so there is no exponential growth.
const DefaultBackoff = 5 * time.Second

// Decision tells the policy whether to keep going after a failed attempt.
type Decision int

const (
	// Abort stops retrying and surfaces the last error.
	Abort Decision = iota

	// Continue performs another attempt, bounded by MaxAttempts.
	Continue
)

// OnFailure is consulted after each failed attempt, except the final one:
// once MaxAttempts is exhausted the policy never retries further.
type OnFailure func(attempt int, err error) Decision

// Sleeper pauses between attempts. Tests inject a recording implementation
// so no unit test sleeps on the wall clock.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleep is the production Sleeper.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy wraps a fallible operation with bounded retries.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	Sleep       Sleeper // nil uses the real clock
}

// New returns a Policy with the default fixed backoff.
func New(maxAttempts int) Policy {
	return Policy{MaxAttempts: maxAttempts, Backoff: DefaultBackoff}
}

// Do invokes op up to MaxAttempts times and returns the number of attempts
// made. On success the error is nil. When onFailure answers Abort the last
// error is returned as-is; when attempts are exhausted the last error is
// wrapped in *ExhaustedError and the caller decides whether to treat that
// as fatal or fall back to an alternate strategy.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, onFailure OnFailure) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleeper := p.Sleep
	if sleeper == nil {
		sleeper = sleep
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleeper(ctx, p.Backoff); err != nil {
				return attempt - 1, err
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		if attempt == maxAttempts {
			break
		}
		if onFailure != nil && onFailure(attempt, lastErr) == Abort {
			return attempt, lastErr
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
	}

	return maxAttempts, &ExhaustedError{Attempts: maxAttempts, LastErr: lastErr}
}

// ExhaustedError reports that every allowed attempt failed.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}
