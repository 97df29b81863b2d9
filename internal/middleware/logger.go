package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// Logger 返回请求日志中间件
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		args := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"ip", c.ClientIP(),
			"latency", latency,
			"user_agent", c.Request.UserAgent(),
		}

		if tid := c.GetString(TraceIDKey); tid != "" {
			args = append(args, "trace_id", tid)
		}
		if fid, exists := c.Get(FIDKey); exists {
			args = append(args, "fid", fid)
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.Errors())
		}

		// 根据状态码选择日志级别
		switch {
		case status >= 500:
			logger.Error("request", args...)
		case status >= 400:
			logger.Warn("request", args...)
		default:
			logger.Info("request", args...)
		}
	}
}
