// Package service 推广市场业务逻辑
package service

import (
	"context"
	"fmt"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/social"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// UserSource 用户资料与近期内容
type UserSource interface {
	GetUser(ctx context.Context, fid uint64) (*social.User, error)
	GetUserCasts(ctx context.Context, fid uint64, limit int) ([]social.Cast, error)
}

// CastSource 按 hash 读取已发布内容
type CastSource interface {
	GetCastByHash(ctx context.Context, hash string) (*social.Cast, error)
}

// Notifier 推送通知
type Notifier interface {
	SendNotification(ctx context.Context, fids []uint64, n social.Notification) error
}

// ContentVerifier 内容校验
type ContentVerifier interface {
	Verify(ctx context.Context, expected, actual string) bool
}

// ScoreProvider 用户评分
type ScoreProvider interface {
	GetOrCompute(ctx context.Context, fid uint64) (*model.UserScore, error)
}

// SettlementPublisher 批次确认消息
type SettlementPublisher interface {
	PublishSettlement(ctx context.Context, event *model.SettlementEvent) error
}

// upstreamError 外部依赖错误，细节只进日志
func upstreamError(op string, err error) error {
	logger.Warn("upstream call failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %v", dto.ErrUpstreamError, op, err)
}
