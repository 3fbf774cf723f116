package server

import (
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultAuthRateLimitRequests = 10
	defaultAuthRateLimitWindow   = time.Minute
)

// rateLimitPolicy allows limit requests per window for one scope.
type rateLimitPolicy struct {
	limit  int
	window time.Duration
}

// Scopes that send mail or burn reset tokens get a tighter budget than plain
// sign-in attempts.
var scopedRateLimits = map[string]rateLimitPolicy{
	"web_forgot": {limit: 5, window: 15 * time.Minute},
	"web_reset":  {limit: 5, window: 15 * time.Minute},
}

type rateLimitBucket struct {
	windowStart time.Time
	count       int
	lastSeenAt  time.Time
	window      time.Duration
}

// authRateLimiter is a fixed-window counter per scope and client IP.
type authRateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]rateLimitBucket
	fallback rateLimitPolicy
	policies map[string]rateLimitPolicy
	now      func() time.Time
}

func newAuthRateLimiter(limit int, window time.Duration) *authRateLimiter {
	if limit <= 0 {
		limit = defaultAuthRateLimitRequests
	}
	if window <= 0 {
		window = defaultAuthRateLimitWindow
	}
	return &authRateLimiter{
		buckets:  make(map[string]rateLimitBucket),
		fallback: rateLimitPolicy{limit: limit, window: window},
		policies: map[string]rateLimitPolicy{},
		now:      time.Now,
	}
}

// withPolicies overrides the fallback budget for the named scopes.
func (l *authRateLimiter) withPolicies(policies map[string]rateLimitPolicy) *authRateLimiter {
	for scope, p := range policies {
		if p.limit > 0 && p.window > 0 {
			l.policies[scope] = p
		}
	}
	return l
}

func (l *authRateLimiter) policy(scope string) rateLimitPolicy {
	if p, ok := l.policies[scope]; ok {
		return p
	}
	return l.fallback
}

func (l *authRateLimiter) limitByIP(scope string) func(http.Handler) http.Handler {
	scope = strings.TrimSpace(scope)
	if l == nil || scope == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter := l.allow(scope, normalizedClientIP(r))
			if allowed {
				next.ServeHTTP(w, r)
				return
			}
			if retryAfter > 0 {
				seconds := max(int(math.Ceil(retryAfter.Seconds())), 1)
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
			}
			if strings.HasPrefix(r.URL.Path, "/api/") {
				writeErrorJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			http.Error(w, "Too many attempts. Please wait a moment and try again.", http.StatusTooManyRequests)
		})
	}
}

func (l *authRateLimiter) allow(scope, clientIP string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	now := l.now()
	p := l.policy(scope)
	key := scope + ":" + clientIP

	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanupLocked(now)

	bucket, ok := l.buckets[key]
	if !ok || now.Sub(bucket.windowStart) >= p.window {
		l.buckets[key] = rateLimitBucket{windowStart: now, count: 1, lastSeenAt: now, window: p.window}
		return true, 0
	}

	bucket.lastSeenAt = now
	if bucket.count >= p.limit {
		l.buckets[key] = bucket
		return false, max(p.window-now.Sub(bucket.windowStart), 0)
	}
	bucket.count++
	l.buckets[key] = bucket
	return true, 0
}

// cleanupLocked forgets buckets idle for two of their windows.
func (l *authRateLimiter) cleanupLocked(now time.Time) {
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastSeenAt) >= 2*bucket.window {
			delete(l.buckets, key)
		}
	}
}

// normalizedClientIP is the bare address of RemoteAddr, which RealIP has
// already rewritten from proxy headers.
func normalizedClientIP(r *http.Request) string {
	if r == nil {
		return "unknown"
	}
	value := strings.TrimSpace(r.RemoteAddr)
	if value == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(value); err == nil {
		return addr.Addr().Unmap().String()
	}
	if host, _, err := net.SplitHostPort(value); err == nil && strings.TrimSpace(host) != "" {
		return strings.TrimSpace(strings.Trim(host, "[]"))
	}
	value = strings.Trim(value, "[]")
	if addr, err := netip.ParseAddr(value); err == nil {
		return addr.Unmap().String()
	}
	return value
}
