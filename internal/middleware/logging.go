package middleware

import (
	"net/http"
	"strconv"
	"time"

	"port42/internal/apperr"
	"port42/internal/metrics"
	"port42/internal/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger 记录每个请求并更新 HTTP 指标
func RequestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		metrics.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route, c.Request.Method).Observe(elapsed.Seconds())

		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", elapsed,
			"ip", c.ClientIP(),
		}
		if id := CurrentUserID(c); id != 0 {
			fields = append(fields, "user_id", id)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.String())
			log.Errorw("Request failed", fields...)
			return
		}
		log.Debugw("Request", fields...)
	}
}

// Recovery panic 时记录日志并返回 500
func Recovery(log *zap.SugaredLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		log.Errorw("Panic recovered", "path", c.Request.URL.Path, "error", err)
		response.Abort(c, http.StatusInternalServerError, apperr.KindInternal, "internal error")
	})
}
