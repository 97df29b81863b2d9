// Package scheduler 定时任务调度，多实例下由 Redis 锁保证单实例执行
package scheduler

import (
	"context"
	"time"
)

// Job 任务接口
type Job interface {
	// Name 任务名称
	Name() string
	// Execute 执行任务
	Execute(ctx context.Context) (*JobResult, error)
	// Timeout 任务超时时间
	Timeout() time.Duration
	// RequiresLock 是否需要分布式锁
	RequiresLock() bool
	// LockTTL 锁的TTL (仅在 RequiresLock() 返回 true 时有效)
	LockTTL() time.Duration
	// UseWatchdog 是否使用 Watchdog 锁续期 (长时间运行任务)
	UseWatchdog() bool
}

// JobResult 任务执行结果
type JobResult struct {
	// ProcessedCount 处理的记录数
	ProcessedCount int
	// AffectedCount 影响的记录数
	AffectedCount int
	// ErrorCount 错误数
	ErrorCount int
	// Details 详细信息
	Details map[string]interface{}
}

// BaseJob 基础任务实现
type BaseJob struct {
	name        string
	timeout     time.Duration
	lockTTL     time.Duration
	useWatchdog bool
}

// NewBaseJob 创建基础任务
func NewBaseJob(name string, timeout, lockTTL time.Duration, useWatchdog bool) BaseJob {
	return BaseJob{
		name:        name,
		timeout:     timeout,
		lockTTL:     lockTTL,
		useWatchdog: useWatchdog,
	}
}

// Name 任务名称
func (j BaseJob) Name() string {
	return j.name
}

// Timeout 任务超时时间
func (j BaseJob) Timeout() time.Duration {
	return j.timeout
}

// RequiresLock 是否需要分布式锁
func (j BaseJob) RequiresLock() bool {
	return j.lockTTL > 0
}

// LockTTL 锁的TTL
func (j BaseJob) LockTTL() time.Duration {
	return j.lockTTL
}

// UseWatchdog 是否使用 Watchdog 锁续期
func (j BaseJob) UseWatchdog() bool {
	return j.useWatchdog
}

// 任务名称
const (
	JobNameSettlementBatch = "settlement-batch"
	JobNameTierRateAgg     = "tier-rate-agg"
	JobNameTrendSummary    = "trend-summary"
)

// DefaultJobConfigs 默认超时与锁配置
var DefaultJobConfigs = map[string]struct {
	Timeout     time.Duration
	LockTTL     time.Duration
	UseWatchdog bool
}{
	JobNameSettlementBatch: {
		// 需要等待交易确认
		Timeout:     8 * time.Minute,
		LockTTL:     3 * time.Minute,
		UseWatchdog: true,
	},
	JobNameTierRateAgg: {
		Timeout:     2 * time.Minute,
		LockTTL:     3 * time.Minute,
		UseWatchdog: false,
	},
	JobNameTrendSummary: {
		Timeout:     3 * time.Minute,
		LockTTL:     4 * time.Minute,
		UseWatchdog: false,
	},
}
