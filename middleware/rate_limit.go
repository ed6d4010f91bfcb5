package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/franklinjsmith-create/SupplyVerify/pkg/logger"
)

// RateLimiter is a fixed window counter per client key.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*window
	rate    int
	window  time.Duration
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

func NewRateLimiter(rate int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*window),
		rate:    rate,
		window:  period,
		now:     time.Now,
	}
}

// Allow records a request for key. When the limit is reached it returns false
// and the time until the client's window resets.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[key]
	if !ok || now.Sub(w.start) >= l.window {
		if len(l.clients) > 10000 {
			l.prune(now)
		}
		l.clients[key] = &window{start: now, count: 1}
		return true, 0
	}
	if w.count >= l.rate {
		return false, w.start.Add(l.window).Sub(now)
	}
	w.count++
	return true, 0
}

func (l *RateLimiter) prune(now time.Time) {
	for k, w := range l.clients {
		if now.Sub(w.start) >= l.window {
			delete(l.clients, k)
		}
	}
}

// RateLimit limits requests per client IP.
func RateLimit(rate int, period time.Duration) gin.HandlerFunc {
	limiter := NewRateLimiter(rate, period)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		ok, retryAfter := limiter.Allow(clientIP)
		if !ok {
			logger.Warn(c.Request.Context(), "rate limit exceeded", "client_ip", clientIP)

			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
