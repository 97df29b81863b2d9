package model

// PromotionState 推广活动状态 (与链上枚举一致)
type PromotionState uint8

const (
	PromotionStateActive    PromotionState = 0 // 进行中
	PromotionStateCompleted PromotionState = 1 // 已结束
	PromotionStateEjected   PromotionState = 2 // 已下架
)

func (s PromotionState) String() string {
	switch s {
	case PromotionStateActive:
		return "active"
	case PromotionStateCompleted:
		return "completed"
	case PromotionStateEjected:
		return "ejected"
	default:
		return "unknown"
	}
}

// AllPromotionStates 全部状态，用于维护状态分区集合
var AllPromotionStates = []PromotionState{
	PromotionStateActive,
	PromotionStateCompleted,
	PromotionStateEjected,
}

// Promotion 推广活动缓存快照
// 链上为准，缓存每次事件整体覆盖
type Promotion struct {
	ID              uint64         `json:"id"`
	Creator         string         `json:"creator"`
	CreatorFID      uint64         `json:"creator_fid"`
	CastURL         string         `json:"cast_url"`
	TotalBudget     Uint256        `json:"total_budget"`
	RemainingBudget Uint256        `json:"remaining_budget"`
	CommittedBudget Uint256        `json:"committed_budget"`
	BaseRate        Uint256        `json:"base_rate"`
	State           PromotionState `json:"state"`
	MinScore        float64        `json:"min_score"`     // 最低信誉分 0~1
	ProUserOnly     bool           `json:"pro_user_only"` // 仅限 pro 用户
	CreatedTime     int64          `json:"created_time"`
	Content         *CastContent   `json:"content,omitempty"`
	UpdatedAt       int64          `json:"updated_at"`
}

// IsActive 是否进行中
func (p *Promotion) IsActive() bool {
	return p.State == PromotionStateActive
}

// AvailableBudget 剩余预算减去已承诺预算，不足时为 0
func (p *Promotion) AvailableBudget() Uint256 {
	remaining := p.RemainingBudget.Big()
	if remaining.Cmp(p.CommittedBudget.Big()) <= 0 {
		return Uint256{}
	}
	return NewUint256(remaining.Sub(remaining, p.CommittedBudget.Big()))
}

// CastContent 被推广内容快照
type CastContent struct {
	Hash           string   `json:"hash"`
	Text           string   `json:"text"`
	Embeds         []string `json:"embeds,omitempty"`
	AuthorFID      uint64   `json:"author_fid"`
	AuthorUsername string   `json:"author_username"`
	Timestamp      int64    `json:"timestamp"`
}
