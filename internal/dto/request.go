package dto

import "github.com/saltoriousSIG/hypeman-client-sub000/internal/model"

// IssueIntentRequest 申请推广意图
// fid 与钱包来自登录态；wallet 可省略，填写时必须与登录地址一致
type IssueIntentRequest struct {
	PromotionID uint64 `json:"promotion_id"`
	Wallet      string `json:"wallet,omitempty"`
}

// IntentResponse 签名后的意图
type IntentResponse struct {
	IntentHash  string        `json:"intent_hash"`
	PromotionID uint64        `json:"promotion_id"`
	Wallet      string        `json:"wallet"`
	FID         uint64        `json:"fid"`
	Fee         model.Uint256 `json:"fee"`
	Expiry      int64         `json:"expiry"`
	Nonce       model.Uint256 `json:"nonce"`
	Signature   string        `json:"signature"`
	MessageHash string        `json:"message_hash"`
}

// AttachCastRequest 提交已发布内容
type AttachCastRequest struct {
	PromotionID uint64 `json:"promotion_id"`
	IntentHash  string `json:"intent_hash"`
	CastHash    string `json:"cast_hash"`
}

// SaveDraftRequest 保存预期文案
type SaveDraftRequest struct {
	Text string `json:"text"`
}

// NonceResponse 登录挑战
type NonceResponse struct {
	Nonce     string `json:"nonce"`
	ExpiresAt int64  `json:"expires_at"`
}

// VerifyRequest 登录校验
type VerifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
}

// SessionResponse 登录结果
type SessionResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	FID       uint64 `json:"fid"`
	Address   string `json:"address"`
}

// ScoreResponse 用户评分
type ScoreResponse struct {
	FID       uint64  `json:"fid"`
	Composite float64 `json:"composite"`
	Tier      string  `json:"tier"`
	Score     float64 `json:"score"`
	Followers int64   `json:"followers"`
	ProUser   bool    `json:"pro_user"`
}

// PromotionResponse 推广活动
type PromotionResponse struct {
	*model.Promotion
	StateName string `json:"state_name"`
}

// NewPromotionResponse 转换
func NewPromotionResponse(p *model.Promotion) *PromotionResponse {
	return &PromotionResponse{Promotion: p, StateName: p.State.String()}
}

// WebhookResponse webhook 处理结果
type WebhookResponse struct {
	Handled int `json:"handled"`
	Skipped int `json:"skipped"`
	Dropped int `json:"dropped"`
}

// TierRateResponse 等级统计
type TierRateResponse struct {
	Tier        string `json:"tier"`
	Users       int64  `json:"users"`
	AvgCastRate string `json:"avg_cast_rate"`
	UpdatedAt   int64  `json:"updated_at"`
}

// JobStatusResponse 定时任务状态
type JobStatusResponse struct {
	Name      string                `json:"name"`
	Enabled   bool                  `json:"enabled"`
	Cron      string                `json:"cron"`
	TimeoutMs int64                 `json:"timeout_ms"`
	IsLocked  bool                  `json:"is_locked"`
	LastRun   *JobExecutionResponse `json:"last_run,omitempty"`
}

// JobExecutionResponse 最近一次执行
type JobExecutionResponse struct {
	Status         string                 `json:"status"`
	StartedAt      int64                  `json:"started_at"`
	FinishedAt     int64                  `json:"finished_at"`
	ProcessedCount int                    `json:"processed_count"`
	AffectedCount  int                    `json:"affected_count"`
	Details        map[string]interface{} `json:"details,omitempty"`
	Error          string                 `json:"error,omitempty"`
}
