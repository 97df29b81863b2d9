package service

import (
	"context"
	"errors"
	"time"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/cache"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/scoring"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/social"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// recentCastLimit 计算平均互动使用的内容条数
const recentCastLimit = 25

// ScoreService 用户评分
type ScoreService struct {
	scores *cache.ScoreStore
	users  UserSource
	now    func() time.Time
}

// NewScoreService 创建
func NewScoreService(scores *cache.ScoreStore, users UserSource) *ScoreService {
	return &ScoreService{scores: scores, users: users, now: time.Now}
}

// GetOrCompute 优先读缓存，缺失或损坏时重新计算
func (s *ScoreService) GetOrCompute(ctx context.Context, fid uint64) (*model.UserScore, error) {
	cached, err := s.scores.Get(ctx, fid)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrNotFound) && !errors.Is(err, cache.ErrCorrupt) {
		return nil, err
	}
	return s.Compute(ctx, fid)
}

// Compute 从社交接口拉取指标重新计算并缓存
func (s *ScoreService) Compute(ctx context.Context, fid uint64) (*model.UserScore, error) {
	user, err := s.users.GetUser(ctx, fid)
	if err != nil {
		return nil, upstreamError("get user", err)
	}
	casts, err := s.users.GetUserCasts(ctx, fid, recentCastLimit)
	if err != nil {
		return nil, upstreamError("get user casts", err)
	}

	eng := social.AverageEngagement(casts)
	score := &model.UserScore{
		FID:        fid,
		Score:      user.ReputationScore(),
		Followers:  user.FollowerCount,
		AvgLikes:   eng.AvgLikes,
		AvgRecasts: eng.AvgRecasts,
		AvgReplies: eng.AvgReplies,
		ProUser:    user.PowerBadge,
		UpdatedAt:  s.now().Unix(),
	}
	in := scoring.FromUserScore(score)
	score.Composite = scoring.Composite(in)
	score.Tier = scoring.TierFor(score.Composite)

	if err := s.scores.Save(ctx, score); err != nil {
		// 缓存失败不影响本次结果
		logger.Warn("save user score failed", "fid", fid, "error", err)
	}
	return score, nil
}
