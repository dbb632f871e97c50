// Package ratelimit provides the per-provider token-bucket limiters the
// Listing and Search clients share. Adapted from api/handlers/ratelimit.go,
// which keys a token bucket per request IP; here the bucket is keyed per
// external provider name, since the budget is global per process rather
// than per inbound caller.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter multiplexes one token bucket per provider name.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
}

// New returns an empty multiplexed limiter; call Configure to set a
// provider's budget before first use (unconfigured providers are
// unlimited, matching "no budget configured" rather than blocking).
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*rate.Limiter)}
}

// Configure sets the rate (requests/sec) and burst for a named provider.
func (l *Limiter) Configure(provider string, ratePerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[provider] = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}

// Wait blocks until a token is available for provider, or ctx is done.
// Calls for a given provider are held to its configured token bucket:
// up to burst calls at once, then refilled at the configured rate.
func (l *Limiter) Wait(ctx context.Context, provider string) error {
	l.mu.Lock()
	b, ok := l.buckets[provider]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	return b.Wait(ctx)
}

// Allow is a non-blocking check, used where the caller prefers to fail fast
// (e.g. returning a transient error that the Work Queue can reschedule)
// rather than block a worker goroutine.
func (l *Limiter) Allow(provider string) bool {
	l.mu.Lock()
	b, ok := l.buckets[provider]
	l.mu.Unlock()
	if !ok {
		return true
	}
	return b.Allow()
}
