package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/webleads/ingestion/pkg/errclass"
)

func TestBackoffFirstAttemptIsZero(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, time.Duration(0), Backoff(cfg, 1))
}

func TestBackoffGrowsAndCapsAtMax(t *testing.T) {
	cfg := Config{BaseBackoff: time.Second, MaxBackoff: 10 * time.Second}
	for attempt := 2; attempt <= 10; attempt++ {
		d := Backoff(cfg, attempt)
		require.LessOrEqual(t, d, cfg.MaxBackoff+cfg.MaxBackoff/4)
		require.Greater(t, d, time.Duration(0))
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := Config{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), clock, cfg, func() error {
			attempts++
			if attempts < 3 {
				return errclass.Transient(errors.New("not yet"))
			}
			return nil
		})
	}()

	for i := 0; i < 2; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Minute)
	}

	require.NoError(t, <-done)
	require.Equal(t, 3, attempts)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := Config{MaxAttempts: 5, BaseBackoff: time.Second, MaxBackoff: time.Minute}

	attempts := 0
	err := Do(context.Background(), clock, cfg, func() error {
		attempts++
		return errclass.Permanent(errors.New("rejected"))
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestDoExhaustsMaxAttempts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := Config{MaxAttempts: 2, BaseBackoff: time.Second, MaxBackoff: time.Minute}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), clock, cfg, func() error {
			attempts++
			return errclass.Transient(errors.New("still failing"))
		})
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Minute)

	err := <-done
	require.Error(t, err)
	require.Equal(t, 2, attempts)
}
