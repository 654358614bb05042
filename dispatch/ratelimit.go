package dispatch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// MinInterval is the default spacing enforced between dispatches to the
// translation provider.
const MinInterval = 100 * time.Millisecond

// RateLimiter spaces out dispatches to the remote service: WaitForSlot does
// not return until at least the configured interval has passed since the
// previous grant. Granting a slot advances the internal timestamp, so every
// attempt, including retries, pays the full interval.
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter builds a limiter with the given minimum interval between
// grants. A non-positive interval falls back to MinInterval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	if interval <= 0 {
		interval = MinInterval
	}
	// Burst of 1: exactly one grant per interval, first grant immediate.
	return &RateLimiter{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// WaitForSlot blocks until a dispatch slot is available or ctx is cancelled.
func (r *RateLimiter) WaitForSlot(ctx context.Context) error {
	return r.lim.Wait(ctx)
}
