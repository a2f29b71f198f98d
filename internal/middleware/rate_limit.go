package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 3 * time.Minute
	limiterIdleTTL         = 10 * time.Minute
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per key with a token bucket each.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedLimiter
	rate     rate.Limit
	burst    int
	key      KeyFunc
}

// NewRateLimiter creates a limiter allowing r events per second with the
// given burst per key. Idle buckets are dropped until ctx is done.
func NewRateLimiter(ctx context.Context, r rate.Limit, burst int, key KeyFunc) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*keyedLimiter),
		rate:     r,
		burst:    burst,
		key:      key,
	}
	go rl.cleanupLoop(ctx)
	return rl
}

// Allow reports whether a request for key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.get(key).Allow()
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters[key]; ok {
		l.lastSeen = time.Now()
		return l.limiter
	}

	l := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = &keyedLimiter{limiter: l, lastSeen: time.Now()}
	return l
}

func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, l := range rl.limiters {
		if now.Sub(l.lastSeen) > limiterIdleTTL {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			rl.cleanup(now)
		case <-ctx.Done():
			return
		}
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(rl.key(r)) {
			retryAfter := 1
			if rl.rate > 0 {
				retryAfter = max(int(math.Round(1/float64(rl.rate))), 1)
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many login attempts"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
