// Package jobs 定时任务实现
package jobs

import (
	"context"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/scheduler"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/service"
)

// BatchRunner 结算批次执行
type BatchRunner interface {
	RunBatch(ctx context.Context) (*service.BatchResult, error)
}

// SettlementJob 定时结算已到期或已发布的意图
type SettlementJob struct {
	scheduler.BaseJob
	runner BatchRunner
}

// NewSettlementJob 创建结算任务
func NewSettlementJob(runner BatchRunner) *SettlementJob {
	cfg := scheduler.DefaultJobConfigs[scheduler.JobNameSettlementBatch]
	return &SettlementJob{
		BaseJob: scheduler.NewBaseJob(
			scheduler.JobNameSettlementBatch,
			cfg.Timeout,
			cfg.LockTTL,
			cfg.UseWatchdog,
		),
		runner: runner,
	}
}

// Execute 执行一次结算批次，失败时缓存不变，下次调度整体重试
func (j *SettlementJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	res, err := j.runner.RunBatch(ctx)
	if err != nil {
		return nil, err
	}

	return &scheduler.JobResult{
		ProcessedCount: len(res.Accepted) + len(res.Rejected) + len(res.Exited) + len(res.Reconciled),
		AffectedCount:  len(res.Accepted) + len(res.Rejected),
		Details: map[string]interface{}{
			"batch_id":   res.BatchID,
			"tx_hash":    res.TxHash,
			"accepted":   len(res.Accepted),
			"rejected":   len(res.Rejected),
			"exited":     len(res.Exited),
			"reconciled": len(res.Reconciled),
			"pending":    res.Pending,
			"promotions": res.Promotions,
		},
	}, nil
}
