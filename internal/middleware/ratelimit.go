package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Asmith-M/UPI-Recon/pkg/response"
)

// ipLimiter tracks one token bucket per client IP. Entries idle for longer
// than the window are dropped on the next sweep.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipEntry
	limit    rate.Limit
	burst    int
	window   time.Duration
	lastSeen func() time.Time
}

type ipEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newIPLimiter(max int, window time.Duration) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*ipEntry),
		limit:    rate.Every(window / time.Duration(max)),
		burst:    max,
		window:   window,
		lastSeen: time.Now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.lastSeen()
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.seen = now

	// Sweep stale entries so the table stays bounded.
	for addr, e := range l.limiters {
		if now.Sub(e.seen) > 2*l.window {
			delete(l.limiters, addr)
		}
	}
	return entry.limiter.Allow()
}

// RateLimit throttles requests per client IP: max requests per window, with
// bursts up to the full allowance.
func RateLimit(max int, window time.Duration) gin.HandlerFunc {
	if max <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := newIPLimiter(max, window)
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED",
				"Too many requests", "retry after the rate limit window passes")
			c.Abort()
			return
		}
		c.Next()
	}
}
