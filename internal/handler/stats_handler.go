package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/cache"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
)

// StatsReader 定时任务产出的统计
type StatsReader interface {
	GetTierRates(ctx context.Context) ([]model.TierRateStats, error)
	GetTrend(ctx context.Context) (*model.TrendSummary, error)
}

// StatsHandler 统计处理器
type StatsHandler struct {
	stats StatsReader
}

// NewStatsHandler 创建统计处理器
func NewStatsHandler(stats StatsReader) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// GetTierRates 各等级用户数与平均单条价格
// GET /api/v1/stats/tier-rates
func (h *StatsHandler) GetTierRates(c *gin.Context) {
	stats, err := h.stats.GetTierRates(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if len(stats) == 0 {
		Error(c, dto.ErrStatsNotReady)
		return
	}

	out := make([]*dto.TierRateResponse, 0, len(stats))
	for _, st := range stats {
		out = append(out, &dto.TierRateResponse{
			Tier:        st.Tier.String(),
			Users:       st.Users,
			AvgCastRate: st.AvgCastRate.String(),
			UpdatedAt:   st.UpdatedAt,
		})
	}
	Success(c, out)
}

// GetTrend 热门推广摘要
// GET /api/v1/stats/trends
func (h *StatsHandler) GetTrend(c *gin.Context) {
	trend, err := h.stats.GetTrend(c.Request.Context())
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			Error(c, dto.ErrStatsNotReady)
			return
		}
		handleServiceError(c, err)
		return
	}
	Success(c, trend)
}
