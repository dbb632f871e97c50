// Package retry implements the exponential-backoff-with-jitter policy used
// by the ingestion engine: the worker pools compute every Work Queue
// reschedule with Backoff, and Do applies the same formula to a single
// call retried in place.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/webleads/ingestion/pkg/errclass"
)

// Config holds backoff parameters. BaseBackoff/MaxBackoff default to 30
// seconds and 1 hour respectively.
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultConfig returns the default backoff policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: 30 * time.Second,
		MaxBackoff:  time.Hour,
	}
}

// Backoff computes the exponential-backoff-with-jitter delay before the
// given attempt (1-indexed: the delay before attempt 2, 3, ...). Jitter
// is +/-25%, applied as a multiplier in [0.75, 1.25].
func Backoff(cfg Config, attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := cfg.BaseBackoff * time.Duration(1<<uint(attempt-2))
	if d > cfg.MaxBackoff || d <= 0 {
		d = cfg.MaxBackoff
	}
	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * jitter)
}

// Do executes fn, retrying with Backoff delays while the returned error
// classifies as retryable (errclass.Retryable), up to cfg.MaxAttempts. The
// clock is injectable so tests can run a multi-hour backoff schedule
// instantly.
func Do(ctx context.Context, clock clockwork.Clock, cfg Config, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			d := Backoff(cfg, attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clock.After(d):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errclass.Retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
