package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

// mockJob 模拟任务用于测试
type mockJob struct {
	BaseJob
	executeFunc func(ctx context.Context) (*JobResult, error)
	execCount   int64
}

func newMockJob(name string, lockTTL time.Duration, executeFunc func(ctx context.Context) (*JobResult, error)) *mockJob {
	return &mockJob{
		BaseJob:     NewBaseJob(name, 30*time.Second, lockTTL, false),
		executeFunc: executeFunc,
	}
}

func (j *mockJob) Execute(ctx context.Context) (*JobResult, error) {
	atomic.AddInt64(&j.execCount, 1)
	if j.executeFunc != nil {
		return j.executeFunc(ctx)
	}
	return &JobResult{ProcessedCount: 1, AffectedCount: 1}, nil
}

func (j *mockJob) GetExecCount() int64 {
	return atomic.LoadInt64(&j.execCount)
}

func TestScheduler_RegisterJob(t *testing.T) {
	_, rdb := setupTestRedis(t)
	s := NewScheduler(&SchedulerConfig{MaxConcurrentJobs: 3, RedisClient: rdb})

	job := newMockJob("test-job", time.Minute, nil)
	require.NoError(t, s.RegisterJob(job, JobConfig{Cron: "*/5 * * * * *", Enabled: true}))

	// 重复注册
	assert.Error(t, s.RegisterJob(job, JobConfig{Cron: "*/5 * * * * *", Enabled: true}))

	// 非法 cron 表达式
	bad := newMockJob("bad-job", time.Minute, nil)
	assert.Error(t, s.RegisterJob(bad, JobConfig{Cron: "not a cron", Enabled: true}))
	_, err := s.GetJobStatus(context.Background(), "bad-job")
	assert.Error(t, err)

	// 禁用的任务只注册不调度
	disabled := newMockJob("disabled-job", time.Minute, nil)
	require.NoError(t, s.RegisterJob(disabled, JobConfig{Cron: "invalid", Enabled: false}))
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_ExecuteJob_Success(t *testing.T) {
	_, rdb := setupTestRedis(t)
	s := NewScheduler(&SchedulerConfig{RedisClient: rdb})

	job := newMockJob("ok-job", time.Minute, nil)
	require.NoError(t, s.RegisterJob(job, JobConfig{Cron: "0 0 * * * *"}))

	assert.Equal(t, StatusSuccess, s.executeJob(job))
	assert.Equal(t, int64(1), job.GetExecCount())

	status, err := s.GetJobStatus(context.Background(), "ok-job")
	require.NoError(t, err)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, StatusSuccess, status.LastRun.Status)
	assert.Equal(t, 1, status.LastRun.Result.ProcessedCount)
	// 执行结束后锁已释放
	assert.False(t, status.IsLocked)
}

func TestScheduler_ExecuteJob_Failure(t *testing.T) {
	_, rdb := setupTestRedis(t)
	s := NewScheduler(&SchedulerConfig{RedisClient: rdb})

	job := newMockJob("fail-job", time.Minute, func(context.Context) (*JobResult, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, s.RegisterJob(job, JobConfig{Cron: "0 0 * * * *"}))

	assert.Equal(t, StatusFailed, s.executeJob(job))
	status, err := s.GetJobStatus(context.Background(), "fail-job")
	require.NoError(t, err)
	assert.Equal(t, "boom", status.LastRun.Error)
}

func TestScheduler_ExecuteJob_LockHeldElsewhere(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	s := NewScheduler(&SchedulerConfig{RedisClient: rdb})

	require.NoError(t, mr.Set(lockPrefix+"locked-job", "other-instance"))

	job := newMockJob("locked-job", time.Minute, nil)
	assert.Equal(t, StatusSkipped, s.executeJob(job))
	assert.Equal(t, int64(0), job.GetExecCount())

	// 不能释放别人持有的锁
	val, err := mr.Get(lockPrefix + "locked-job")
	require.NoError(t, err)
	assert.Equal(t, "other-instance", val)
}

func TestScheduler_ExecuteJob_MaxConcurrent(t *testing.T) {
	_, rdb := setupTestRedis(t)
	s := NewScheduler(&SchedulerConfig{MaxConcurrentJobs: 1, RedisClient: rdb})

	started := make(chan struct{})
	release := make(chan struct{})
	slow := newMockJob("slow-job", 0, func(context.Context) (*JobResult, error) {
		close(started)
		<-release
		return nil, nil
	})
	fast := newMockJob("fast-job", 0, nil)

	done := make(chan string)
	go func() { done <- s.executeJob(slow) }()
	<-started

	assert.Equal(t, StatusSkipped, s.executeJob(fast))
	assert.Equal(t, int64(0), fast.GetExecCount())

	close(release)
	assert.Equal(t, StatusSuccess, <-done)
}

func TestScheduler_TriggerJob(t *testing.T) {
	_, rdb := setupTestRedis(t)
	s := NewScheduler(&SchedulerConfig{RedisClient: rdb})

	ran := make(chan struct{}, 1)
	job := newMockJob("manual-job", time.Minute, func(context.Context) (*JobResult, error) {
		ran <- struct{}{}
		return nil, nil
	})
	require.NoError(t, s.RegisterJob(job, JobConfig{Cron: "0 0 0 * * *"}))

	require.NoError(t, s.TriggerJob("manual-job"))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered job did not run")
	}

	assert.ErrorIs(t, s.TriggerJob("missing"), ErrJobNotFound)
}

func TestDistributedLock_TryLockUnlock(t *testing.T) {
	_, rdb := setupTestRedis(t)
	ctx := context.Background()

	a := NewDistributedLock(rdb, "job", time.Minute, true)
	b := NewDistributedLock(rdb, "job", time.Minute, false)

	ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	held, err := a.IsHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	// b 释放不影响 a
	require.NoError(t, b.Unlock(ctx))
	held, err = a.IsHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, a.Unlock(ctx))
	held, err = a.IsHeld(ctx)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestDistributedLock_Renew(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	ctx := context.Background()

	l := NewDistributedLock(rdb, "renew-job", 30*time.Second, false)
	ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(20 * time.Second)
	require.NoError(t, l.renew(ctx))
	assert.Equal(t, 30*time.Second, mr.TTL(lockPrefix+"renew-job"))

	mr.FastForward(31 * time.Second)
	assert.ErrorIs(t, l.renew(ctx), errLockNotHeld)
}

func TestScheduler_ListJobStatus_Sorted(t *testing.T) {
	_, rdb := setupTestRedis(t)
	s := NewScheduler(&SchedulerConfig{RedisClient: rdb})

	for _, name := range []string{"b-job", "a-job"} {
		require.NoError(t, s.RegisterJob(newMockJob(name, time.Minute, nil), JobConfig{Cron: "0 0 * * * *"}))
	}

	statuses, err := s.ListJobStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "a-job", statuses[0].Name)
	assert.Nil(t, statuses[0].LastRun)
}
