package middleware

import (
	"context"
	"time"

	"port42/internal/realtime"

	"github.com/gin-gonic/gin"
)

// Timeout 给请求 context 加上截止时间，数据库操作超时后整体回滚
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// SocketOrigin 读取 X-Socket-ID，实时推送时跳过发起请求的连接
func SocketOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader("X-Socket-ID"); id != "" {
			c.Request = c.Request.WithContext(realtime.WithOrigin(c.Request.Context(), id))
		}
		c.Next()
	}
}
