// Package ratelimit implements the per-user sliding-window DM throttle.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks recent request timestamps per user inside a sliding
// window. Memory is bounded by active users x cap: entries older than the
// window are purged on every call.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	cap     int
	users   map[string][]time.Time
	nowFunc func() time.Time
}

// New creates a Limiter allowing cap requests per user within window.
func New(window time.Duration, cap int) *Limiter {
	return &Limiter{
		window:  window,
		cap:     cap,
		users:   make(map[string][]time.Time),
		nowFunc: time.Now,
	}
}

// Allow records a request for userID and reports whether it is within the
// limit. A rejected request is not recorded.
func (l *Limiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	cutoff := now.Add(-l.window)

	recent := l.users[userID][:0]
	for _, t := range l.users[userID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.cap {
		l.users[userID] = recent
		return false
	}

	l.users[userID] = append(recent, now)
	return true
}

// Forget drops all recorded state for userID.
func (l *Limiter) Forget(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.users, userID)
}
