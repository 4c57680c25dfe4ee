package handler

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleSweep = 5 * time.Minute

// ipRateLimiter keeps one token bucket per client IP.
type ipRateLimiter struct {
	limiters  sync.Map // map[string]*rate.Limiter
	limit     rate.Limit
	burst     int
	mu        sync.Mutex
	lastSweep time.Time
}

func (rl *ipRateLimiter) get(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	actual, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.limit, rl.burst))
	rl.sweep()
	return actual.(*rate.Limiter)
}

// sweep drops buckets that have refilled completely, i.e. idle clients.
func (rl *ipRateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastSweep) < limiterIdleSweep {
		return
	}
	rl.lastSweep = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// RateLimit allows perMinute requests per client IP with the given burst.
// Rejected requests get TOO_MANY_REQUESTS and a Retry-After header.
func RateLimit(perMinute, burst int) gin.HandlerFunc {
	if burst <= 0 {
		burst = perMinute
	}
	rl := &ipRateLimiter{
		limit:     rate.Limit(float64(perMinute) / time.Minute.Seconds()),
		burst:     burst,
		lastSweep: time.Now(),
	}

	return func(c *gin.Context) {
		limiter := rl.get(c.ClientIP())
		if limiter.Allow() {
			c.Next()
			return
		}

		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()

		c.Header("Retry-After", strconv.Itoa(max(int(delay.Seconds()), 1)))
		writeError(c, errTooManyRequests)
	}
}
