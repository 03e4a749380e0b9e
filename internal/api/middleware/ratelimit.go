package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/pkg/response"
)

// 最多跟踪的客户端 IP 数
const maxTrackedIPs = 10000

var errTooManyRequests = apperr.New(apperr.TooManyRequests, "Too many requests, slow down")

// IPRateLimiter 按客户端 IP 的令牌桶
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewIPRateLimiter perMinute 为每分钟允许的请求数
func NewIPRateLimiter(perMinute, burst int) *IPRateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	limiters, _ := lru.New[string, *rate.Limiter](maxTrackedIPs)
	return &IPRateLimiter{
		limiters: limiters,
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
	}
}

// Allow 消耗一个令牌
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(ip, limiter)
	}
	l.mu.Unlock()

	return limiter.Allow()
}

// IPRateLimit 限流中间件
func IPRateLimit(l *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			response.FromError(c, errTooManyRequests)
			return
		}
		c.Next()
	}
}
