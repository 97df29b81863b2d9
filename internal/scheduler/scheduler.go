package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/metrics"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// 执行状态
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ErrJobNotFound 任务未注册
var ErrJobNotFound = errors.New("job not found")

// Scheduler 任务调度器
type Scheduler struct {
	cron          *cron.Cron
	lockManager   *LockManager
	jobs          map[string]Job
	jobConfigs    map[string]JobConfig
	lastRuns      map[string]*Execution
	mu            sync.RWMutex
	maxConcurrent int
	running       chan struct{}
	ctx           context.Context
	cancel        context.CancelFunc
}

// JobConfig 任务配置
type JobConfig struct {
	Cron    string
	Enabled bool
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	MaxConcurrentJobs int
	RedisClient       redis.UniversalClient
}

// Execution 最近一次执行记录
type Execution struct {
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Result     *JobResult
	Error      string
}

// NewScheduler 创建调度器
func NewScheduler(cfg *SchedulerConfig) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	maxConcurrent := cfg.MaxConcurrentJobs
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}

	return &Scheduler{
		cron:          cron.New(cron.WithSeconds()), // 支持秒级调度
		lockManager:   NewLockManager(cfg.RedisClient),
		jobs:          make(map[string]Job),
		jobConfigs:    make(map[string]JobConfig),
		lastRuns:      make(map[string]*Execution),
		maxConcurrent: maxConcurrent,
		running:       make(chan struct{}, maxConcurrent),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// RegisterJob 注册任务
func (s *Scheduler) RegisterJob(job Job, config JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}

	s.jobs[job.Name()] = job
	s.jobConfigs[job.Name()] = config

	if !config.Enabled {
		logger.Info("job registered but disabled", "job", job.Name())
		return nil
	}

	_, err := s.cron.AddFunc(config.Cron, func() {
		s.executeJob(job)
	})
	if err != nil {
		delete(s.jobs, job.Name())
		delete(s.jobConfigs, job.Name())
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	logger.Info("job registered",
		"job", job.Name(),
		"cron", config.Cron)
	return nil
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("scheduler started")
}

// Stop 停止调度器并等待运行中的任务结束
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("scheduler stopped")
}

// TriggerJob 手动触发任务
func (s *Scheduler) TriggerJob(jobName string) error {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	go s.executeJob(job)
	return nil
}

// executeJob 执行任务，返回执行状态
func (s *Scheduler) executeJob(job Job) string {
	// 检查是否达到最大并发数
	select {
	case s.running <- struct{}{}:
		defer func() { <-s.running }()
	default:
		logger.Warn("max concurrent jobs reached, skipping",
			"job", job.Name())
		return s.record(job.Name(), &Execution{Status: StatusSkipped, Error: "max concurrent jobs reached"})
	}

	select {
	case <-s.ctx.Done():
		return StatusSkipped
	default:
	}

	ctx, cancel := context.WithTimeout(s.ctx, job.Timeout())
	defer cancel()

	if job.RequiresLock() {
		lock := s.lockManager.NewLock(job.Name(), job.LockTTL(), job.UseWatchdog())
		acquired, err := lock.TryLock(ctx)
		if err != nil {
			logger.Error("failed to acquire lock",
				"job", job.Name(),
				"error", err)
			return s.record(job.Name(), &Execution{Status: StatusFailed, Error: "failed to acquire lock: " + err.Error()})
		}
		if !acquired {
			logger.Debug("job is already running on another instance",
				"job", job.Name())
			return s.record(job.Name(), &Execution{Status: StatusSkipped, Error: "job is running on another instance"})
		}
		defer func() {
			if err := lock.Unlock(context.Background()); err != nil {
				logger.Error("failed to release lock",
					"job", job.Name(),
					"error", err)
			}
		}()
	}

	logger.Info("starting job", "job", job.Name())
	exec := &Execution{StartedAt: time.Now()}

	result, err := job.Execute(ctx)

	exec.FinishedAt = time.Now()
	exec.Result = result
	duration := exec.FinishedAt.Sub(exec.StartedAt)
	if err != nil {
		exec.Status = StatusFailed
		exec.Error = err.Error()
		logger.Error("job failed",
			"job", job.Name(),
			"duration", duration,
			"error", err)
	} else {
		exec.Status = StatusSuccess
		logger.Info("job completed",
			"job", job.Name(),
			"duration", duration,
			"result", result)
	}

	return s.record(job.Name(), exec)
}

func (s *Scheduler) record(jobName string, exec *Execution) string {
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now()
		exec.FinishedAt = exec.StartedAt
	}
	metrics.RecordJobRun(jobName, exec.Status)

	s.mu.Lock()
	s.lastRuns[jobName] = exec
	s.mu.Unlock()
	return exec.Status
}

// JobStatus 任务状态
type JobStatus struct {
	Name     string
	Enabled  bool
	Cron     string
	Timeout  time.Duration
	IsLocked bool
	LastRun  *Execution
}

// GetJobStatus 获取任务状态
func (s *Scheduler) GetJobStatus(ctx context.Context, jobName string) (*JobStatus, error) {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	config := s.jobConfigs[jobName]
	last := s.lastRuns[jobName]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	isLocked, err := s.lockManager.IsLocked(ctx, jobName)
	if err != nil {
		return nil, err
	}

	return &JobStatus{
		Name:     jobName,
		Enabled:  config.Enabled,
		Cron:     config.Cron,
		Timeout:  job.Timeout(),
		IsLocked: isLocked,
		LastRun:  last,
	}, nil
}

// ListJobStatus 列出所有任务状态，按名称排序
func (s *Scheduler) ListJobStatus(ctx context.Context) ([]*JobStatus, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	statuses := make([]*JobStatus, 0, len(names))
	for _, name := range names {
		status, err := s.GetJobStatus(ctx, name)
		if err != nil {
			logger.Error("failed to get job status",
				"job", name,
				"error", err)
			continue
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
