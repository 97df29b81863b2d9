package model

// Tier 推广者等级
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

func (t Tier) String() string {
	switch t {
	case Tier1:
		return "TIER_1"
	case Tier2:
		return "TIER_2"
	case Tier3:
		return "TIER_3"
	default:
		return "UNKNOWN"
	}
}

// AllTiers 全部等级
var AllTiers = []Tier{Tier1, Tier2, Tier3}

// UserScore 用户评分缓存
type UserScore struct {
	FID        uint64  `json:"fid"`
	Score      float64 `json:"score"` // 外部信誉分 0~1
	Followers  int64   `json:"followers"`
	AvgLikes   float64 `json:"avg_likes"`
	AvgRecasts float64 `json:"avg_recasts"`
	AvgReplies float64 `json:"avg_replies"`
	Composite  float64 `json:"composite"`
	Tier       Tier    `json:"tier"`
	ProUser    bool    `json:"pro_user"`
	UpdatedAt  int64   `json:"updated_at"`
}

// TierRateStats 各等级统计
type TierRateStats struct {
	Tier        Tier    `json:"tier"`
	Users       int64   `json:"users"`
	AvgCastRate Uint256 `json:"avg_cast_rate"` // 活跃推广的平均单条价格
	UpdatedAt   int64   `json:"updated_at"`
}

// TrendSummary 热门推广摘要
type TrendSummary struct {
	Summary      string   `json:"summary"`
	PromotionIDs []uint64 `json:"promotion_ids"`
	GeneratedAt  int64    `json:"generated_at"`
}
