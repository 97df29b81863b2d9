package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/ingest"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// EventIngestor 链上事件入库
type EventIngestor interface {
	HandleLogs(ctx context.Context, expected ingest.Kind, logs []ingest.RawLog) (*ingest.Result, error)
}

// WebhookHandler 链上事件 webhook 处理器
// 签名已由 middleware.WebhookSignature 校验
type WebhookHandler struct {
	ingestor EventIngestor
}

// NewWebhookHandler 创建 webhook 处理器
func NewWebhookHandler(ingestor EventIngestor) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor}
}

// PromotionCreated POST /webhooks/promotion-created
func (h *WebhookHandler) PromotionCreated(c *gin.Context) {
	h.handle(c, ingest.KindPromotionCreated)
}

// PromotionEnded POST /webhooks/promotion-ended
func (h *WebhookHandler) PromotionEnded(c *gin.Context) {
	h.handle(c, ingest.KindPromotionEnded)
}

// IntentSubmitted POST /webhooks/intent-submitted
func (h *WebhookHandler) IntentSubmitted(c *gin.Context) {
	h.handle(c, ingest.KindIntentSubmitted)
}

// IntentProcessed POST /webhooks/intent-processed
func (h *WebhookHandler) IntentProcessed(c *gin.Context) {
	h.handle(c, ingest.KindIntentProcessed)
}

func (h *WebhookHandler) handle(c *gin.Context, kind ingest.Kind) {
	var logs []ingest.RawLog
	if err := c.ShouldBindJSON(&logs); err != nil {
		BadRequest(c, "body must be an array of logs")
		return
	}

	res, err := h.ingestor.HandleLogs(c.Request.Context(), kind, logs)
	if err != nil {
		// 返回 5xx 让上游重投，入库是幂等的
		logger.Error("webhook ingestion failed",
			"event", string(kind),
			"logs", len(logs),
			"error", err,
		)
		InternalError(c)
		return
	}

	Success(c, &dto.WebhookResponse{
		Handled: res.Handled,
		Skipped: res.Skipped,
		Dropped: res.Dropped,
	})
}
