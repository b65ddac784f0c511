package middleware

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	apperrors "faultline-go/internal/errors"
	"faultline-go/internal/monitoring"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ttlLimiterCache is a simple TTL map for per-key limiters with opportunistic sweeping.
type ttlLimiterCache struct {
	mu        sync.Mutex
	items     map[string]*limiterEntry
	ttl       time.Duration
	lastSweep time.Time
}

func newTTLLimiterCache(ttl time.Duration) *ttlLimiterCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ttlLimiterCache{items: make(map[string]*limiterEntry), ttl: ttl}
}

func (c *ttlLimiterCache) get(key string, now time.Time, makeFn func() *rate.Limiter) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		e.lastSeen = now
		return e.lim
	}
	lim := makeFn()
	c.items[key] = &limiterEntry{lim: lim, lastSeen: now}
	// 约每两分钟顺带清理一次
	if c.lastSweep.IsZero() || now.Sub(c.lastSweep) > 2*time.Minute {
		c.sweepLocked(now)
		c.lastSweep = now
	}
	return lim
}

func (c *ttlLimiterCache) sweepLocked(now time.Time) {
	for k, e := range c.items {
		if now.Sub(e.lastSeen) > c.ttl {
			delete(c.items, k)
		}
	}
}

func (c *ttlLimiterCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// RateLimiter limits each client IP to rps requests per second with the
// given burst. Rejected requests get the RATE_LIMIT_EXCEEDED envelope and a
// Retry-After header.
func RateLimiter(rps int, burst int) gin.HandlerFunc {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = rps * 2
	}
	cache := newTTLLimiterCache(15 * time.Minute)
	return func(c *gin.Context) {
		now := time.Now()
		lim := cache.get(c.ClientIP(), now, func() *rate.Limiter {
			return rate.NewLimiter(rate.Limit(rps), burst)
		})
		r := lim.ReserveN(now, 1)
		if !r.OK() {
			reject(c, 1)
			return
		}
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			reject(c, int(math.Ceil(delay.Seconds())))
			return
		}
		c.Next()
	}
}

func reject(c *gin.Context, waitSeconds int) {
	if waitSeconds < 1 {
		waitSeconds = 1
	}
	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	monitoring.RateLimitedTotal.WithLabelValues(path).Inc()
	body := fmt.Sprintf(`{"message":"rate limit exceeded","retryAfterSeconds":%d}`, waitSeconds)
	AbortWithRecord(c, apperrors.MapHTTPError(http.StatusTooManyRequests, []byte(body)))
}
