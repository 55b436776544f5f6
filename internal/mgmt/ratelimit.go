package mgmt

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RateLimitConfig holds rate limiter configuration for the management API.
type RateLimitConfig struct {
	RPS   int // sustained requests per second per client
	Burst int // burst size
}

// bucket tracks remaining capacity for one client IP.
type bucket struct {
	remaining float64
	seenAt    time.Time
}

// ipLimiter applies a token bucket per client IP.
type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   float64
}

func newIPLimiter(cfg RateLimitConfig) *ipLimiter {
	return &ipLimiter{
		buckets: make(map[string]*bucket),
		rate:    float64(cfg.RPS),
		burst:   float64(cfg.Burst),
	}
}

// take consumes one token for ip, refilling based on elapsed time first.
func (l *ipLimiter) take(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{remaining: l.burst, seenAt: now}
		l.buckets[ip] = b
	} else {
		b.remaining += now.Sub(b.seenAt).Seconds() * l.rate
		if b.remaining > l.burst {
			b.remaining = l.burst
		}
		b.seenAt = now
	}

	if b.remaining < 1 {
		return false
	}
	b.remaining--
	return true
}

// evictIdle drops buckets not seen within the given age.
func (l *ipLimiter) evictIdle(age time.Duration) {
	cutoff := time.Now().Add(-age)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if b.seenAt.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

// NewRateLimitMiddleware returns a per-client token-bucket rate limiter.
// Probe endpoints are exempt so orchestrators are never throttled.
func NewRateLimitMiddleware(cfg RateLimitConfig) fiber.Handler {
	limiter := newIPLimiter(cfg)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limiter.evictIdle(10 * time.Minute)
		}
	}()

	return func(c *fiber.Ctx) error {
		switch c.Path() {
		case "/healthz", "/readyz", "/metrics":
			return c.Next()
		}

		if !limiter.take(c.IP()) {
			return problemResponse(c, fiber.StatusTooManyRequests,
				"rate_limit_exceeded", "Too Many Requests",
				"Rate limit exceeded. Please try again later.")
		}
		return c.Next()
	}
}
