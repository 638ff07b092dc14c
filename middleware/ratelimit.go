package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// bucket tracks one client's remaining request allowance.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter is a token-bucket limiter keyed by client IP. Buckets refill
// continuously, so a client that backs off regains its full burst over one
// window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	burst   float64
	rate    float64 // tokens per second
}

// NewRateLimiter allows maxRequests per window from each client IP, with the
// whole amount available as an initial burst.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		burst:   float64(maxRequests),
		rate:    float64(maxRequests) / window.Seconds(),
	}
	go rl.evictIdle()
	return rl
}

// evictIdle drops buckets nobody has touched for a while. An evicted client
// simply starts over with a full burst on its next request.
func (rl *RateLimiter) evictIdle() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		rl.mu.Lock()
		for ip, b := range rl.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(rl.buckets, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// take spends one token from the client's bucket. A zero return means the
// request may proceed; otherwise it is the time until the next token exists.
func (rl *RateLimiter) take(clientIP string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[clientIP]
	if !ok {
		b = &bucket{tokens: rl.burst}
		rl.buckets[clientIP] = b
	} else {
		b.tokens = math.Min(rl.burst, b.tokens+now.Sub(b.lastSeen).Seconds()*rl.rate)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return time.Duration((1 - b.tokens) / rl.rate * float64(time.Second))
	}
	b.tokens--
	return 0
}

// Middleware rejects clients that exhausted their allowance. Retry-After
// tells well-behaved clients when the next attempt can succeed.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if wait := rl.take(c.ClientIP()); wait > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			abortWithKey(c, http.StatusTooManyRequests, "common.tooManyRequests")
			return
		}
		c.Next()
	}
}
