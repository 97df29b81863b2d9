package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

const (
	// TraceIDHeader 请求头中的 TraceID 字段名
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey context 中的 TraceID 键名
	TraceIDKey = "trace_id"
)

// Trace 返回 Trace ID 中间件
// 请求头带 X-Trace-ID 时沿用，否则生成新的 UUID
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		// 下游通过 logger.WithContext 取带 trace_id 的 logger
		c.Request = c.Request.WithContext(logger.NewContext(c.Request.Context(), zap.String(TraceIDKey, traceID)))

		c.Next()
	}
}
