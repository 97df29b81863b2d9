package cache

import (
	"fmt"
	"strings"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
)

const keyPrefix = "hypeman:"

// 固定键
const (
	PromotionsByBudgetKey = keyPrefix + "promotions:by_budget"
	PromotionsByRateKey   = keyPrefix + "promotions:by_rate"
	IntentNonceKey        = keyPrefix + "intent:nonce"
	ScoredUsersKey        = keyPrefix + "users:scored"
	TierRatesKey          = keyPrefix + "stats:tier_rates"
	TrendsKey             = keyPrefix + "stats:trends"
)

// PromotionKey 推广活动快照哈希
func PromotionKey(id uint64) string {
	return fmt.Sprintf("%spromotion:%d", keyPrefix, id)
}

// PromotionIntentsKey 推广活动意图列表
func PromotionIntentsKey(id uint64) string {
	return fmt.Sprintf("%spromotion:%d:intents", keyPrefix, id)
}

// PromotionStateKey 状态分区集合
func PromotionStateKey(state model.PromotionState) string {
	return keyPrefix + "promotions:state:" + state.String()
}

// IssuedIntentKey 已签发意图
func IssuedIntentKey(intentHash string) string {
	return keyPrefix + "intent:issued:" + strings.ToLower(intentHash)
}

// UserScoreKey 用户评分
func UserScoreKey(fid uint64) string {
	return fmt.Sprintf("%suser:score:%d", keyPrefix, fid)
}

// DraftKey 推广者预期文案
func DraftKey(promotionID, fid uint64) string {
	return fmt.Sprintf("%spromotion:%d:draft:%d", keyPrefix, promotionID, fid)
}

// AuthNonceKey 登录挑战
func AuthNonceKey(nonce string) string {
	return keyPrefix + "auth:nonce:" + nonce
}
