package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter returns a Gin middleware that enforces a per-client-IP token
// bucket. rps is the steady-state rate and burst the bucket size. Idle
// clients are swept until ctx is done.
func RateLimiter(ctx context.Context, rps float64, burst int) gin.HandlerFunc {
	var (
		mu      sync.Mutex
		clients = make(map[string]*clientLimiter)
	)

	go func() {
		ticker := time.NewTicker(limiterSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				mu.Lock()
				for ip, cl := range clients {
					if now.Sub(cl.lastSeen) > limiterIdleAfter {
						delete(clients, ip)
					}
				}
				mu.Unlock()
			}
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		cl, ok := clients[ip]
		if !ok {
			cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		mu.Unlock()

		if !cl.limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody("rate_limited", "rate limit exceeded"))
			return
		}
		c.Next()
	}
}

