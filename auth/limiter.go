package auth

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitorLimiter hands out one token bucket per client IP.
type visitorLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newVisitorLimiter(limit rate.Limit, burst int) *visitorLimiter {
	return &visitorLimiter{
		visitors: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (v *visitorLimiter) allow(ip string) bool {
	v.mu.Lock()
	limiter, ok := v.visitors[ip]
	if !ok {
		limiter = rate.NewLimiter(v.limit, v.burst)
		v.visitors[ip] = limiter
	}
	v.mu.Unlock()

	return limiter.Allow()
}

// rateLimit throttles credential-guessing on the login and signup forms.
func (v *visitorLimiter) rateLimit(c *gin.Context) {
	if !v.allow(c.ClientIP()) {
		c.String(http.StatusTooManyRequests, "Too many attempts, slow down")
		c.Abort()
		return
	}
	c.Next()
}
