package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	corsMethods = strings.Join([]string{"GET", "POST", "PUT", "OPTIONS"}, ", ")
	corsHeaders = strings.Join([]string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		TraceIDHeader,
	}, ", ")
)

// CORS 返回 CORS 中间件
// origins 为空或包含 * 时允许任意来源
func CORS(origins []string) gin.HandlerFunc {
	wildcard := len(origins) == 0 || slices.Contains(origins, "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		if !wildcard && !slices.Contains(origins, origin) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		if wildcard {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", corsMethods)
		c.Header("Access-Control-Allow-Headers", corsHeaders)
		c.Header("Access-Control-Expose-Headers", TraceIDHeader)

		// 预检请求
		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Max-Age", strconv.Itoa(86400))
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
