package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/metrics"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// Webhook 签名头
const (
	WebhookNonceHeader     = "X-Nonce"
	WebhookTimestampHeader = "X-Timestamp"
	WebhookSignatureHeader = "X-Signature"

	maxWebhookBody = 1 << 20
)

// WebhookConfig webhook 校验配置
type WebhookConfig struct {
	// Name 路由名，用于日志与指标
	Name   string
	Secret string
	// Skew 允许的时间偏差
	Skew time.Duration
	Now  func() time.Time
}

// SignWebhook 计算 hex(HMAC-SHA256(secret, nonce+timestamp+body))
func SignWebhook(secret, nonce, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookSignature 返回 webhook 签名校验中间件
// 未配置密钥时拒绝所有请求
func WebhookSignature(cfg WebhookConfig) gin.HandlerFunc {
	if cfg.Skew <= 0 {
		cfg.Skew = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	reject := func(c *gin.Context, reason string) {
		logger.Warn("webhook rejected",
			"route", cfg.Name,
			"reason", reason,
			"ip", c.ClientIP(),
		)
		metrics.RecordWebhookEvent(cfg.Name, "rejected")
		abortWithError(c, dto.ErrInvalidWebhookSignature)
	}

	return func(c *gin.Context) {
		if cfg.Secret == "" {
			reject(c, "secret not configured")
			return
		}

		nonce := c.GetHeader(WebhookNonceHeader)
		timestamp := c.GetHeader(WebhookTimestampHeader)
		signature := strings.TrimPrefix(c.GetHeader(WebhookSignatureHeader), "sha256=")
		if nonce == "" || timestamp == "" || signature == "" {
			reject(c, "missing signature headers")
			return
		}

		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			reject(c, "bad timestamp")
			return
		}
		if d := cfg.Now().Sub(time.Unix(ts, 0)); d > cfg.Skew || d < -cfg.Skew {
			reject(c, "timestamp out of window")
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			reject(c, "read body")
			return
		}

		got, err := hex.DecodeString(strings.ToLower(signature))
		if err != nil {
			reject(c, "bad signature encoding")
			return
		}
		want, _ := hex.DecodeString(SignWebhook(cfg.Secret, nonce, timestamp, body))
		if !hmac.Equal(got, want) {
			reject(c, "signature mismatch")
			return
		}

		// 还原请求体供 handler 读取
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
