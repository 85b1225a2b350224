package camera

import (
	"sync"
	"time"
)

// RateLimiter enforces a minimum interval between accepted updates per
// key. A non-positive interval accepts everything.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

// NewRateLimiter creates a limiter with the given minimum interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether an update for key may proceed, recording the
// acceptance when it does. Rejected updates leave the window untouched,
// so a burst does not push the next acceptance further out.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if last, ok := r.last[key]; ok && r.interval > 0 && now.Sub(last) < r.interval {
		return false
	}
	r.last[key] = now
	return true
}

// Reset forgets all recorded acceptances.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	r.last = make(map[string]time.Time)
	r.mu.Unlock()
}
