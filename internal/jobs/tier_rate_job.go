package jobs

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/cache"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/scheduler"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/scoring"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// ScoreReader 已评分用户
type ScoreReader interface {
	ScoredFIDs(ctx context.Context) ([]uint64, error)
	Get(ctx context.Context, fid uint64) (*model.UserScore, error)
	Forget(ctx context.Context, fid uint64) error
}

// ActivePromotions 活跃推广
type ActivePromotions interface {
	ActiveIDs(ctx context.Context) ([]uint64, error)
	Get(ctx context.Context, id uint64) (*model.Promotion, error)
}

// TierRateWriter 等级统计写入
type TierRateWriter interface {
	SaveTierRates(ctx context.Context, stats []model.TierRateStats) error
}

// TierRateJob 统计各等级用户数与活跃推广的平均单条价格
type TierRateJob struct {
	scheduler.BaseJob
	scores     ScoreReader
	promotions ActivePromotions
	stats      TierRateWriter
	now        func() time.Time
}

// NewTierRateJob 创建等级统计任务
func NewTierRateJob(scores ScoreReader, promotions ActivePromotions, stats TierRateWriter) *TierRateJob {
	cfg := scheduler.DefaultJobConfigs[scheduler.JobNameTierRateAgg]
	return &TierRateJob{
		BaseJob: scheduler.NewBaseJob(
			scheduler.JobNameTierRateAgg,
			cfg.Timeout,
			cfg.LockTTL,
			cfg.UseWatchdog,
		),
		scores:     scores,
		promotions: promotions,
		stats:      stats,
		now:        time.Now,
	}
}

// Execute 执行统计
func (j *TierRateJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	result := &scheduler.JobResult{Details: make(map[string]interface{})}

	users, err := j.countUsers(ctx, result)
	if err != nil {
		return nil, err
	}

	rates, activeCount, err := j.averageRates(ctx, result)
	if err != nil {
		return nil, err
	}

	now := j.now().Unix()
	stats := make([]model.TierRateStats, 0, len(model.AllTiers))
	for _, tier := range model.AllTiers {
		stats = append(stats, model.TierRateStats{
			Tier:        tier,
			Users:       users[tier],
			AvgCastRate: model.NewUint256(rates[tier]),
			UpdatedAt:   now,
		})
		result.Details[tier.String()] = users[tier]
	}

	if err := j.stats.SaveTierRates(ctx, stats); err != nil {
		return nil, fmt.Errorf("save tier rates: %w", err)
	}

	result.AffectedCount = len(stats)
	result.Details["active_promotions"] = activeCount
	return result, nil
}

// countUsers 按等级计数，评分已过期的用户移出集合
func (j *TierRateJob) countUsers(ctx context.Context, result *scheduler.JobResult) (map[model.Tier]int64, error) {
	fids, err := j.scores.ScoredFIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scored users: %w", err)
	}

	users := make(map[model.Tier]int64, len(model.AllTiers))
	for _, fid := range fids {
		score, err := j.scores.Get(ctx, fid)
		switch {
		case errors.Is(err, cache.ErrNotFound):
			if err := j.scores.Forget(ctx, fid); err != nil {
				logger.Warn("forget expired score failed", "fid", fid, "error", err)
			}
			continue
		case errors.Is(err, cache.ErrCorrupt):
			result.ErrorCount++
			continue
		case err != nil:
			return nil, fmt.Errorf("read score %d: %w", fid, err)
		}
		users[score.Tier]++
		result.ProcessedCount++
	}
	return users, nil
}

// averageRates 各等级在活跃推广上的平均单价
func (j *TierRateJob) averageRates(ctx context.Context, result *scheduler.JobResult) (map[model.Tier]*big.Int, int, error) {
	ids, err := j.promotions.ActiveIDs(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list active promotions: %w", err)
	}

	sums := make(map[model.Tier]*big.Int, len(model.AllTiers))
	for _, tier := range model.AllTiers {
		sums[tier] = new(big.Int)
	}

	count := 0
	for _, id := range ids {
		p, err := j.promotions.Get(ctx, id)
		if err != nil {
			if errors.Is(err, cache.ErrNotFound) || errors.Is(err, cache.ErrCorrupt) {
				result.ErrorCount++
				continue
			}
			return nil, 0, fmt.Errorf("read promotion %d: %w", id, err)
		}
		for _, tier := range model.AllTiers {
			sums[tier].Add(sums[tier], scoring.FeeForTier(p.BaseRate.Big(), tier))
		}
		count++
	}

	if count > 0 {
		n := big.NewInt(int64(count))
		for _, tier := range model.AllTiers {
			sums[tier].Quo(sums[tier], n)
		}
	}
	return sums, count, nil
}
