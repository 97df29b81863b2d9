package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/cache"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// PromotionReader 推广活动读取
type PromotionReader interface {
	Get(ctx context.Context, id uint64) (*model.Promotion, error)
	ListRanked(ctx context.Context, by cache.RankBy, limit int64) ([]*model.Promotion, error)
}

// PromotionHandler 推广活动处理器
type PromotionHandler struct {
	promotions PromotionReader
}

// NewPromotionHandler 创建推广活动处理器
func NewPromotionHandler(promotions PromotionReader) *PromotionHandler {
	return &PromotionHandler{promotions: promotions}
}

// ListPromotions 活跃推广排行
// GET /api/v1/promotions?sort=budget|rate&limit=N
func (h *PromotionHandler) ListPromotions(c *gin.Context) {
	by := cache.RankByBudget
	switch c.DefaultQuery("sort", string(cache.RankByBudget)) {
	case string(cache.RankByBudget):
	case string(cache.RankByRate):
		by = cache.RankByRate
	default:
		BadRequest(c, "sort must be budget or rate")
		return
	}

	limit := defaultListLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxListLimit {
			limit = parsed
		}
	}

	promotions, err := h.promotions.ListRanked(c.Request.Context(), by, int64(limit))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	resp := make([]*dto.PromotionResponse, 0, len(promotions))
	for _, p := range promotions {
		resp = append(resp, dto.NewPromotionResponse(p))
	}
	Success(c, resp)
}

// GetPromotion 推广详情
// GET /api/v1/promotions/:id
func (h *PromotionHandler) GetPromotion(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	p, err := h.promotions.Get(c.Request.Context(), id)
	if errors.Is(err, cache.ErrNotFound) {
		Error(c, dto.ErrPromotionNotFound)
		return
	}
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, dto.NewPromotionResponse(p))
}

// parseIDParam 解析路径中的推广 ID
func parseIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "invalid promotion id")
		return 0, false
	}
	return id, true
}
