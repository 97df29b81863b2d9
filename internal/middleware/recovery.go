// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// Recovery 返回 panic 恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.ByteString("stack", debug.Stack()),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrInternalError))
			}
		}()
		c.Next()
	}
}

// abortWithError 终止请求并返回业务错误
func abortWithError(c *gin.Context, err *dto.BizError) {
	c.AbortWithStatusJSON(err.HTTPStatus, dto.NewErrorResponse(err))
}
