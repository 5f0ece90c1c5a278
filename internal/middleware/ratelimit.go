package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP and forgets buckets idle
// for longer than ttl.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
	lastGC   time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per IP with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 20
	}
	if burst <= 0 {
		burst = 5
	}
	return &RateLimiter{
		limiters: make(map[string]*visitor),
		rate:     rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		ttl:      10 * time.Minute,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	now := rl.now()
	v, exists := rl.limiters[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = v
	}
	v.lastSeen = now
	rl.gc(now)
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// gc must be called with rl.mu held.
func (rl *RateLimiter) gc(now time.Time) {
	if now.Sub(rl.lastGC) < rl.ttl {
		return
	}
	for key, v := range rl.limiters {
		if now.Sub(v.lastSeen) > rl.ttl {
			delete(rl.limiters, key)
		}
	}
	rl.lastGC = now
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			abortWithError(c, http.StatusTooManyRequests, "too many attempts, try again later")
			return
		}
		c.Next()
	}
}
