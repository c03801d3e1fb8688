package fetcher

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces requests to the same host by a fixed interval.
// The first request to a host goes out immediately.
type RateLimiter struct {
	interval time.Duration
	next     map[string]time.Time
	mu       sync.Mutex
}

func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
		next:     make(map[string]time.Time),
	}
}

func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl.interval <= 0 {
		return ctx.Err()
	}

	// Reserve the slot before sleeping
	rl.mu.Lock()
	now := time.Now()
	slot := rl.next[host]
	if slot.Before(now) {
		slot = now
	}
	rl.next[host] = slot.Add(rl.interval)
	rl.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
