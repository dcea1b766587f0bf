package httpx

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter is an in-process fixed-window limiter keyed by client IP.
// Good enough for a single instance; multi-instance deployments should use
// the Redis variant so the window is shared.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*clientWindow
}

type clientWindow struct {
	count    int
	expireAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*clientWindow),
	}
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(clientKey(r)) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cw, ok := rl.windows[key]
	if !ok || now.After(cw.expireAt) {
		rl.windows[key] = &clientWindow{count: 1, expireAt: now.Add(rl.window)}
		rl.sweepLocked(now)
		return true
	}
	if cw.count >= rl.limit {
		return false
	}
	cw.count++
	return true
}

// sweepLocked drops expired windows so the map does not grow with every
// distinct client ever seen. Called with rl.mu held.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if len(rl.windows) < 4096 {
		return
	}
	for key, cw := range rl.windows {
		if now.After(cw.expireAt) {
			delete(rl.windows, key)
		}
	}
}

// clientKey prefers the first X-Forwarded-For hop so limits apply per
// caller rather than per load balancer.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
