package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter bounds RPC calls per connected client using a token bucket.
type RateLimiter struct {
	rpm   int
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter at rpm requests per minute with the
// given burst. rpm <= 0 disables limiting.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	return &RateLimiter{
		rpm:      rpm,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Enabled reports whether limiting is active.
func (r *RateLimiter) Enabled() bool { return r.rpm > 0 }

// Allow consumes one token for the client, creating its bucket on first use.
func (r *RateLimiter) Allow(clientID string) bool {
	if !r.Enabled() {
		return true
	}
	r.mu.Lock()
	l, ok := r.limiters[clientID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(r.rpm)/60.0), r.burst)
		r.limiters[clientID] = l
	}
	r.mu.Unlock()
	return l.Allow()
}

// Forget drops a disconnected client's bucket.
func (r *RateLimiter) Forget(clientID string) {
	r.mu.Lock()
	delete(r.limiters, clientID)
	r.mu.Unlock()
}
