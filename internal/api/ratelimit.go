package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Stale buckets are swept opportunistically during allow calls, so an
// idle server holds no timers.
const (
	bucketSweepInterval = 5 * time.Minute
	bucketIdleLimit     = 10 * time.Minute
)

// rateLimiter hands out one token bucket per client IP. Document
// ingestion and query both count against the same bucket; the health
// endpoint is mounted outside the limited stack.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*ipBucket
	refill    rate.Limit
	burst     int
	lastSweep time.Time
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter creates a limiter refilling r tokens per second with
// the given burst, which is also a fresh client's initial allowance.
func newRateLimiter(r float64, burst int) *rateLimiter {
	return &rateLimiter{
		buckets:   make(map[string]*ipBucket),
		refill:    rate.Limit(r),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// allow takes a token from the bucket for ip, creating the bucket on
// first sight. Returns false when the bucket is empty.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > bucketSweepInterval {
		rl.sweepLocked(now)
	}

	b, ok := rl.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(rl.refill, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

// sweepLocked drops buckets idle past the limit. Caller holds mu.
func (rl *rateLimiter) sweepLocked(now time.Time) {
	for ip, b := range rl.buckets {
		if now.Sub(b.lastSeen) > bucketIdleLimit {
			delete(rl.buckets, ip)
		}
	}
	rl.lastSweep = now
}

// rateLimitMiddleware rejects requests from IPs with an empty bucket
// using the standard error envelope and a Retry-After hint.
func rateLimitMiddleware(rl *rateLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !rl.allow(ip) {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"method", r.Method,
				)
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the address requests are rate-limited under.
//
// With trustProxy set (the server sits behind a reverse proxy),
// X-Real-IP wins, then the first X-Forwarded-For entry. Header values
// must parse as IPs; junk falls through to RemoteAddr so clients
// cannot mint arbitrary bucket keys. Without trustProxy only
// RemoteAddr is consulted.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
				return ip.String()
			}
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			raw := xff
			if first, _, ok := strings.Cut(xff, ","); ok {
				raw = first
			}
			if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
				return ip.String()
			}
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
