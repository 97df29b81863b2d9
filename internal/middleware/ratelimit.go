package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// PerSecond 每个 key 的稳定速率
	PerSecond float64
	Burst     int
	// KeyFunc 默认按客户端 IP
	KeyFunc func(*gin.Context) string
	// IdleTTL 空闲多久后回收 limiter
	IdleTTL time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit 返回进程内令牌桶限流中间件
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.PerSecond * 2)
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}

	var (
		mu        sync.Mutex
		visitors  = make(map[string]*visitor)
		lastSweep = time.Now()
	)

	allow := func(key string) bool {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if now.Sub(lastSweep) > cfg.IdleTTL {
			for k, v := range visitors {
				if now.Sub(v.lastSeen) > cfg.IdleTTL {
					delete(visitors, k)
				}
			}
			lastSweep = now
		}

		v, ok := visitors[key]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst)}
			visitors[key] = v
		}
		v.lastSeen = now
		return v.limiter.Allow()
	}

	return func(c *gin.Context) {
		if !allow(cfg.KeyFunc(c)) {
			c.Header("Retry-After", "1")
			abortWithError(c, dto.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
