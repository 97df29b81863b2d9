package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
)

// ScoreService 评分服务接口
type ScoreService interface {
	GetOrCompute(ctx context.Context, fid uint64) (*model.UserScore, error)
}

// ScoreHandler 评分处理器
type ScoreHandler struct {
	svc ScoreService
}

// NewScoreHandler 创建评分处理器
func NewScoreHandler(svc ScoreService) *ScoreHandler {
	return &ScoreHandler{svc: svc}
}

// GetMyScore 当前用户评分与等级
// GET /api/v1/me/score
func (h *ScoreHandler) GetMyScore(c *gin.Context) {
	score, err := h.svc.GetOrCompute(c.Request.Context(), GetFID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, &dto.ScoreResponse{
		FID:       score.FID,
		Composite: score.Composite,
		Tier:      score.Tier.String(),
		Score:     score.Score,
		Followers: score.Followers,
		ProUser:   score.ProUser,
	})
}
