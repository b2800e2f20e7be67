package middleware

import (
	"net/http"
	"sync"
	"time"

	"port42/internal/apperr"
	"port42/internal/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ipRateLimiter 每个 IP 一个令牌桶
type ipRateLimiter struct {
	limiters map[string]*limiterInfo
	mu       sync.Mutex
	// 每个IP每分钟允许的请求数
	requestsPerMinute int
	burst             int
}

type limiterInfo struct {
	limiter      *rate.Limiter
	lastAccessed time.Time
}

func newIPRateLimiter(requestsPerMinute, burst int) *ipRateLimiter {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	return &ipRateLimiter{
		limiters:          make(map[string]*limiterInfo),
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
	}
}

func (i *ipRateLimiter) getLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	info, exists := i.limiters[ip]
	if !exists {
		info = &limiterInfo{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(i.requestsPerMinute)), i.burst),
		}
		i.limiters[ip] = info
	}
	info.lastAccessed = time.Now()
	return info.limiter
}

// sweep 清理超过 ttl 未访问的限流器
func (i *ipRateLimiter) sweep(ttl time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for ip, info := range i.limiters {
		if time.Since(info.lastAccessed) > ttl {
			delete(i.limiters, ip)
		}
	}
}

// RateLimit 按客户端 IP 限流，stop 关闭后停止后台清理
func RateLimit(requestsPerMinute, burst int, stop <-chan struct{}) gin.HandlerFunc {
	limiter := newIPRateLimiter(requestsPerMinute, burst)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				limiter.sweep(10 * time.Minute)
			}
		}
	}()

	return func(c *gin.Context) {
		if !limiter.getLimiter(c.ClientIP()).Allow() {
			response.Abort(c, http.StatusTooManyRequests, apperr.KindTransient, "too many requests, slow down")
			return
		}
		c.Next()
	}
}
