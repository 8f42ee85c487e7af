package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket. It must
// return a stable string for the duration of a request.
type keyFunc func(*gin.Context) string

// KeyByClientIP keys buckets by the requesting client's IP address. Every
// party on the platform (customer, insurer, shop) mutates through the same
// edge, so the IP is the abuse-control identity.
func KeyByClientIP() keyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}
}

// visitor holds a single bucket and the last time it was seen, so idle
// buckets can be evicted.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local, per-key token-bucket limiter built on
// golang.org/x/time/rate. Buckets are created on demand and idle entries are
// evicted opportunistically during lookups. Safe for concurrent use.
//
// For horizontally scaled deployments a distributed limiter would be needed
// to enforce a global budget; this one guards a single process.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewWindowLimiter constructs a limiter that admits up to limit requests per
// key within a rolling window. The bucket starts full (so a fresh client can
// spend the whole budget immediately) and refills at limit/window, which is
// the steady-state equivalent of the rolling-window rule.
func NewWindowLimiter(limit int, window time.Duration, keyFn keyFunc) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Hour
	}
	return &RateLimiter{
		rps:      rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      2 * window,
	}
}

// getVisitor returns (and refreshes) the bucket for key, creating it if
// absent. Eviction runs before the fetch so a stale entry for the requested
// key is replaced rather than refreshed.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		lim := v.limiter
		rl.mu.Unlock()
		return lim
	}

	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	rl.mu.Unlock()
	return lim
}

// Handler returns a Gin middleware enforcing the per-key budget. An
// exhausted bucket gets a 429 with the standard JSON envelope and a
// Retry-After hint derived from the refill rate. Reads are not mounted
// behind this middleware; the budget applies to mutations only.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	retryAfter := "1"
	if rl.rps > 0 {
		secs := int(1/float64(rl.rps)) + 1
		retryAfter = strconv.Itoa(secs)
	}
	return func(c *gin.Context) {
		key := rl.keyFn(c)
		lim := rl.getVisitor(key)

		if lim.Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
