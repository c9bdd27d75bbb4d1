package testserver

import (
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter implements a token bucket per client address
type RateLimiter struct {
	limiters  map[string]*rate.Limiter
	mu        sync.Mutex
	rateLimit rate.Limit
	burstSize int
}

// NewRateLimiter creates a limiter allowing perMinute requests per client,
// all of which may arrive in a single burst
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rate.Limit(float64(perMinute) / 60.0),
		burstSize: perMinute,
	}
}

// Allow reports whether a request from addr may proceed
func (rl *RateLimiter) Allow(addr string) bool {
	rl.mu.Lock()
	limiter, exists := rl.limiters[addr]
	if !exists {
		limiter = rate.NewLimiter(rl.rateLimit, rl.burstSize)
		rl.limiters[addr] = limiter
	}
	rl.mu.Unlock()

	return limiter.Allow()
}

// rateLimitMiddleware answers 429 with a plain text body once a client
// exceeds the limiter, like the real server's per-IP deploy limit
func rateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow(clientHost(r.RemoteAddr)) {
				logger.Warn("Deploy rate limit exceeded", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
