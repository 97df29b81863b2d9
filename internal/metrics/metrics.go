// Package metrics 提供 hypeman 服务的 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hypeman"

// HTTP 请求指标
var (
	// HTTPRequestsTotal HTTP 请求总数
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration HTTP 请求耗时
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP 请求耗时(秒)",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

// 业务指标
var (
	// IntentsIssuedTotal 签发意图数
	IntentsIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_issued_total",
			Help:      "签发意图数",
		},
		[]string{"tier"},
	)

	// WebhookEventsTotal Webhook 事件数
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook 事件数",
		},
		[]string{"event", "result"}, // result: applied/skipped/dropped/failed/rejected
	)

	// SettlementBatchesTotal 结算批次数
	SettlementBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_batches_total",
			Help:      "结算批次数",
		},
		[]string{"status"}, // confirmed/failed/empty
	)

	// SettledIntentsTotal 结算意图数
	SettledIntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settled_intents_total",
			Help:      "结算意图数",
		},
		[]string{"decision"}, // accept/reject/exited
	)

	// VerifierDecisionsTotal 内容校验结果
	VerifierDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifier_decisions_total",
			Help:      "内容校验结果",
		},
		[]string{"tier", "matched"}, // tier: exact/judge/heuristic
	)

	// LedgerTxDuration 链上交易确认耗时
	LedgerTxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_tx_duration_seconds",
			Help:      "链上交易确认耗时(秒)",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"method", "status"},
	)

	// JobRunsTotal 定时任务执行次数
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "定时任务执行次数",
		},
		[]string{"job", "status"},
	)
)

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// RecordWebhookEvent 记录 webhook 事件
func RecordWebhookEvent(event, result string) {
	WebhookEventsTotal.WithLabelValues(event, result).Inc()
}

// RecordSettlementBatch 记录结算批次
func RecordSettlementBatch(status string, accepted, rejected, exited int) {
	SettlementBatchesTotal.WithLabelValues(status).Inc()
	if accepted > 0 {
		SettledIntentsTotal.WithLabelValues("accept").Add(float64(accepted))
	}
	if rejected > 0 {
		SettledIntentsTotal.WithLabelValues("reject").Add(float64(rejected))
	}
	if exited > 0 {
		SettledIntentsTotal.WithLabelValues("exited").Add(float64(exited))
	}
}

// RecordVerifierDecision 记录内容校验
func RecordVerifierDecision(tier string, matched bool) {
	m := "false"
	if matched {
		m = "true"
	}
	VerifierDecisionsTotal.WithLabelValues(tier, m).Inc()
}

// RecordLedgerTx 记录链上交易
func RecordLedgerTx(method, status string, durationSeconds float64) {
	LedgerTxDuration.WithLabelValues(method, status).Observe(durationSeconds)
}

// RecordJobRun 记录任务执行
func RecordJobRun(job, status string) {
	JobRunsTotal.WithLabelValues(job, status).Inc()
}
