// Package scoring 推广者分级与单价计算
package scoring

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
)

// 综合分权重与归一化上限
const (
	followerWeight   = 0.4
	scoreWeight      = 0.35
	engagementWeight = 0.25

	followerCap   = 10000 // 粉丝数达到该值记满分
	engagementCap = 50    // 平均互动达到该值记满分

	Tier3Threshold = 70.0
	Tier2Threshold = 40.0
)

var multipliers = map[model.Tier]decimal.Decimal{
	model.Tier1: decimal.NewFromInt(1),
	model.Tier2: decimal.NewFromInt(2),
	model.Tier3: decimal.NewFromFloat(3.5),
}

// Inputs 评分输入
type Inputs struct {
	Score      float64 // 外部信誉分 0~1
	Followers  int64
	AvgLikes   float64
	AvgRecasts float64
	AvgReplies float64
}

// FromUserScore 从缓存评分取输入
func FromUserScore(s *model.UserScore) Inputs {
	return Inputs{
		Score:      s.Score,
		Followers:  s.Followers,
		AvgLikes:   s.AvgLikes,
		AvgRecasts: s.AvgRecasts,
		AvgReplies: s.AvgReplies,
	}
}

// Composite 综合分 0~100
func Composite(in Inputs) float64 {
	followers := math.Min(100, float64(in.Followers)/followerCap*100)
	engagement := math.Min(100, (in.AvgLikes+in.AvgRecasts+in.AvgReplies)/engagementCap*100)
	return followerWeight*followers + scoreWeight*(in.Score*100) + engagementWeight*engagement
}

// TierFor 按综合分定级
func TierFor(composite float64) model.Tier {
	switch {
	case composite >= Tier3Threshold:
		return model.Tier3
	case composite >= Tier2Threshold:
		return model.Tier2
	default:
		return model.Tier1
	}
}

// ComputeTier 计算等级
func ComputeTier(in Inputs) model.Tier {
	return TierFor(Composite(in))
}

// Multiplier 等级倍数，未知等级按 1 倍
func Multiplier(tier model.Tier) decimal.Decimal {
	if m, ok := multipliers[tier]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// FeeForTier 基础单价乘以等级倍数，向下取整到最小单位
func FeeForTier(baseRate *big.Int, tier model.Tier) *big.Int {
	if baseRate == nil {
		return new(big.Int)
	}
	return decimal.NewFromBigInt(baseRate, 0).Mul(Multiplier(tier)).Floor().BigInt()
}

// ComputeFee 按推广者指标计算实际单价
func ComputeFee(baseRate *big.Int, in Inputs) *big.Int {
	return FeeForTier(baseRate, ComputeTier(in))
}
