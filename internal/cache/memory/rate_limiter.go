package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Hidayat0507/tradebot/internal/domain"
)

// RateLimiter implements domain.RateLimiter with one token bucket per key:
// limit tokens refilled evenly over window.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*bucket
	now      func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*bucket), now: time.Now}
}

// Allow reports whether one more request for key fits the budget. A
// non-positive limit always allows.
func (r *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.limiters[key]
	if !ok || b.limit != limit || b.window != window {
		b = &bucket{
			lim:    rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			limit:  limit,
			window: window,
		}
		r.limiters[key] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1), nil
}

// Sweep forgets keys idle for longer than idle.
func (r *RateLimiter) Sweep(idle time.Duration) {
	cutoff := r.now().Add(-idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, b := range r.limiters {
		if b.lastSeen.Before(cutoff) {
			delete(r.limiters, k)
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
