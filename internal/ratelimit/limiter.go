// Package ratelimit implements the per-user command rate limiter: a fixed
// window bucket per subject key, reset lazily on expiry.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Result is the outcome of one rate check.
type Result struct {
	Allowed      bool      `json:"allowed"`
	Remaining    int       `json:"remaining"`
	ResetAt      time.Time `json:"reset_at"`
	RetryAfterMS int64     `json:"retry_after_ms,omitempty"`
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter tracks request counts per subject key. Safe for concurrent use.
type Limiter struct {
	window     time.Duration
	max        int
	perChannel bool

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// New creates a limiter allowing max requests per window. When perChannel
// is set, buckets are keyed by user and channel; otherwise by user alone.
func New(window time.Duration, max int, perChannel bool) *Limiter {
	return &Limiter{
		window:     window,
		max:        max,
		perChannel: perChannel,
		buckets:    make(map[string]*bucket),
		now:        time.Now,
	}
}

// Enabled reports whether the limiter is active (max > 0).
func (l *Limiter) Enabled() bool { return l != nil && l.max > 0 }

func (l *Limiter) key(userID, channelID string) string {
	if l.perChannel && channelID != "" {
		return userID + ":" + channelID
	}
	return userID
}

// Check counts one request against the subject's bucket.
func (l *Limiter) Check(userID, channelID string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := l.key(userID, channelID)

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(l.window)}
		l.buckets[key] = b
	}

	if b.count >= l.max {
		return Result{
			Allowed:      false,
			Remaining:    0,
			ResetAt:      b.resetAt,
			RetryAfterMS: b.resetAt.Sub(now).Milliseconds(),
		}
	}

	b.count++
	return Result{
		Allowed:   true,
		Remaining: l.max - b.count,
		ResetAt:   b.resetAt,
	}
}

// Status returns the subject's bucket snapshot without counting a request.
func (l *Limiter) Status(userID, channelID string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[l.key(userID, channelID)]
	if !ok || !now.Before(b.resetAt) {
		return Result{Allowed: true, Remaining: l.max, ResetAt: now.Add(l.window)}
	}
	remaining := l.max - b.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: b.count < l.max, Remaining: remaining, ResetAt: b.resetAt}
}

// Reset discards every bucket belonging to the user, across all channels.
func (l *Limiter) Reset(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.buckets {
		if key == userID || strings.HasPrefix(key, userID+":") {
			delete(l.buckets, key)
		}
	}
}
