package auth

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/golang/groupcache/lru"
	"golang.org/x/time/rate"
)

// maxThrottleEntries bounds the number of tracked client IPs.
const maxThrottleEntries = 10000

// LoginThrottle keeps one token bucket per client IP. Buckets live in an LRU
// cache, so the least recently seen IP is dropped once the cache is full.
type LoginThrottle struct {
	mu       sync.Mutex
	limiters *lru.Cache
	limit    rate.Limit
	burst    int
}

// NewLoginThrottle allows burst attempts and then perSecond attempts per second per IP.
func NewLoginThrottle(perSecond float64, burst int) *LoginThrottle {
	return newLoginThrottle(perSecond, burst, maxThrottleEntries)
}

func newLoginThrottle(perSecond float64, burst, maxEntries int) *LoginThrottle {
	if burst < 1 {
		burst = 1
	}
	return &LoginThrottle{
		limiters: lru.New(maxEntries),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether ip may attempt a login now.
func (t *LoginThrottle) Allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	var limiter *rate.Limiter
	if v, ok := t.limiters.Get(ip); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(t.limit, t.burst)
		t.limiters.Add(ip, limiter)
	}
	return limiter.Allow()
}

// Len returns the number of tracked IPs.
func (t *LoginThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limiters.Len()
}

// Middleware rejects requests over the per-IP budget with 429.
func (t *LoginThrottle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !t.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts"})
			c.Abort()
			return
		}
		c.Next()
	}
}
