package model

// SettlementDecision 结算判定
type SettlementDecision string

const (
	DecisionAccept SettlementDecision = "accept" // 内容校验通过，发放报酬
	DecisionReject SettlementDecision = "reject" // 过期未发布或内容不符
	DecisionExited SettlementDecision = "exited" // 推广者已退出或链上已处理
)

// SettlementEvent 批次确认后对外发布的消息
type SettlementEvent struct {
	BatchID     string      `json:"batch_id"`
	TxHash      string      `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
	Accepted    []IntentKey `json:"accepted"`
	Rejected    []IntentKey `json:"rejected"`
	SettledAt   int64       `json:"settled_at"`
}
