package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/auth"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

const (
	// AuthHeader 认证头
	AuthHeader = "Authorization"
	// FIDKey context 中的用户 fid
	FIDKey = "fid"
	// AddressKey context 中的登录地址
	AddressKey = "address"

	bearerPrefix = "Bearer "
)

// TokenParser 会话令牌校验
type TokenParser interface {
	ParseToken(token string) (*auth.Claims, error)
}

// Auth 返回 Bearer JWT 认证中间件
func Auth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeader)
		if header == "" {
			abortWithError(c, dto.ErrMissingAuthHeader)
			return
		}
		if !strings.HasPrefix(header, bearerPrefix) {
			abortWithError(c, dto.ErrInvalidAuthFormat)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if token == "" {
			abortWithError(c, dto.ErrInvalidAuthFormat)
			return
		}

		claims, err := parser.ParseToken(token)
		if err != nil {
			logger.Warn("token rejected",
				"path", c.Request.URL.Path,
				"ip", c.ClientIP(),
				"error", err,
			)
			abortWithError(c, dto.ErrUnauthorized)
			return
		}

		c.Set(FIDKey, claims.FID)
		c.Set(AddressKey, claims.Address)
		c.Next()
	}
}

// AdminToken 运维接口的静态令牌认证，未配置令牌时拒绝所有请求
func AdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeader)
		got := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if token == "" || !strings.HasPrefix(header, bearerPrefix) ||
			subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logger.Warn("admin token rejected", "path", c.Request.URL.Path, "ip", c.ClientIP())
			abortWithError(c, dto.ErrUnauthorized)
			return
		}
		c.Next()
	}
}
