package model

import (
	"strings"
	"time"
)

// ZeroCastHash 拒绝结算时写入的零值 cast hash
const ZeroCastHash = "0x0000000000000000000000000000000000000000000000000000000000000000"

// IntentKey 意图自然键，列表中定位元素只认这个三元组
type IntentKey struct {
	IntentHash  string `json:"intent_hash"`
	PromotionID uint64 `json:"promotion_id"`
	FID         uint64 `json:"fid"`
}

// IssuedIntent 已签发、尚未上链的意图记录
type IssuedIntent struct {
	IntentHash  string  `json:"intent_hash"`
	PromotionID uint64  `json:"promotion_id"`
	Wallet      string  `json:"wallet"`
	FID         uint64  `json:"fid"`
	Fee         Uint256 `json:"fee"`
	Expiry      int64   `json:"expiry"`
	Nonce       Uint256 `json:"nonce"`
	Signature   string  `json:"signature"`
	IssuedAt    int64   `json:"issued_at"`
}

// IntentEntry 推广活动意图列表中的一项
type IntentEntry struct {
	IntentHash  string  `json:"intent_hash"`
	PromotionID uint64  `json:"promotion_id"`
	Wallet      string  `json:"wallet"`
	FID         uint64  `json:"fid"`
	Fee         Uint256 `json:"fee"`
	Expiry      int64   `json:"expiry"`
	Nonce       Uint256 `json:"nonce"`
	CastHash    string  `json:"cast_hash,omitempty"`
	PostTime    int64   `json:"post_time,omitempty"`
	Processed   bool    `json:"processed"`
	TxHash      string  `json:"tx_hash,omitempty"`
	SubmittedAt int64   `json:"submitted_at"`
}

// Key 返回自然键
func (e *IntentEntry) Key() IntentKey {
	return IntentKey{
		IntentHash:  e.IntentHash,
		PromotionID: e.PromotionID,
		FID:         e.FID,
	}
}

// Matches 判断是否为同一意图 (hash 忽略大小写)
func (e *IntentEntry) Matches(k IntentKey) bool {
	return e.PromotionID == k.PromotionID &&
		e.FID == k.FID &&
		strings.EqualFold(e.IntentHash, k.IntentHash)
}

// HasCast 是否已提交内容
func (e *IntentEntry) HasCast() bool {
	return e.CastHash != "" && !strings.EqualFold(e.CastHash, ZeroCastHash)
}

// IsExpired 是否已过期
func (e *IntentEntry) IsExpired(now time.Time) bool {
	return e.Expiry > 0 && now.Unix() >= e.Expiry
}
