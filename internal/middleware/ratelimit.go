package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitConfig defines the limit for a route group
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	KeyFn  func(r *http.Request) string
}

type entry struct {
	count     int
	windowEnd time.Time
}

// RateLimiter is an in-memory fixed-window rate limiter
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	config  RateLimitConfig
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter with the given config
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFn == nil {
		cfg.KeyFn = KeyByUserID
	}
	return &RateLimiter{
		entries: make(map[string]*entry),
		config:  cfg,
		now:     time.Now,
	}
}

// NewVoteRateLimiter limits vote submissions per user per minute
func NewVoteRateLimiter(perMinute int) *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		Max:    perMinute,
		Window: time.Minute,
		KeyFn:  KeyByUserID,
	})
}

// Handler returns a middleware that enforces the rate limit
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, resetAt := rl.take(rl.config.KeyFn(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retryAfter := int(resetAt.Sub(rl.now()).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			respondError(w, fmt.Sprintf("Too many requests. Try again in %d seconds.", retryAfter), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Allow reports whether one more request for key fits in the current window
func (rl *RateLimiter) Allow(key string) bool {
	allowed, _, _ := rl.take(key)
	return allowed
}

func (rl *RateLimiter) take(key string) (allowed bool, remaining int, resetAt time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, exists := rl.entries[key]
	if !exists || now.After(e.windowEnd) {
		rl.prune(now)
		e = &entry{windowEnd: now.Add(rl.config.Window)}
		rl.entries[key] = e
	}

	e.count++
	return e.count <= rl.config.Max, max(rl.config.Max-e.count, 0), e.windowEnd
}

// prune drops expired windows; called with mu held
func (rl *RateLimiter) prune(now time.Time) {
	for key, e := range rl.entries {
		if now.After(e.windowEnd) {
			delete(rl.entries, key)
		}
	}
}

// KeyByUserID keys on the authenticated user, falling back to the remote address
func KeyByUserID(r *http.Request) string {
	if uid := GetUserID(r.Context()); uid != "" {
		return "user:" + uid
	}
	return "ip:" + r.RemoteAddr
}
