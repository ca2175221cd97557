package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/esheo1787/qc-management-system/shared/httpx"
)

// RateLimitMiddleware applies a per-client token bucket ahead of auth so
// abusive sources are turned away before any credential lookup. A nil
// Limiter disables limiting.
type RateLimitMiddleware struct {
	Limiter *IPRateLimiter
	Skip    func(*http.Request) bool
}

func (m RateLimitMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Limiter == nil || (m.Skip != nil && m.Skip(r)) {
			next.ServeHTTP(w, r)
			return
		}
		if !m.Limiter.Allow(rateLimitKey(r)) {
			httpx.WriteError(w, r, http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const (
	defaultLimiterRPS   = 5.0
	defaultLimiterBurst = 10
	defaultBucketTTL    = 2 * time.Minute
)

// IPRateLimiter is a token-bucket set keyed by client address. Buckets
// refill continuously at rps up to burst; idle buckets are swept after ttl.
type IPRateLimiter struct {
	rps   float64
	burst float64
	ttl   time.Duration

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	remaining float64
	touched   time.Time
}

func NewIPRateLimiter(rps float64, burst int, ttl time.Duration) *IPRateLimiter {
	if rps <= 0 {
		rps = defaultLimiterRPS
	}
	if burst <= 0 {
		burst = defaultLimiterBurst
	}
	if ttl <= 0 {
		ttl = defaultBucketTTL
	}
	return &IPRateLimiter{
		rps:       rps,
		burst:     float64(burst),
		ttl:       ttl,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

func (l *IPRateLimiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.ttl {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{remaining: l.burst}
		l.buckets[key] = b
	} else {
		b.remaining += now.Sub(b.touched).Seconds() * l.rps
		if b.remaining > l.burst {
			b.remaining = l.burst
		}
	}
	b.touched = now

	if b.remaining < 1 {
		return false
	}
	b.remaining--
	return true
}

// sweep drops buckets idle past ttl; caller holds the lock.
func (l *IPRateLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.touched) > l.ttl {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// rateLimitKey prefers proxy-provided addresses so every replica behind the
// ingress buckets a client the same way.
func rateLimitKey(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		return addr
	}
	return "unknown"
}
