package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

const lockPrefix = "hypeman:job:lock:"

var (
	// 只释放自己持有的锁
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

	// 只续期自己持有的锁
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

	errLockNotHeld = errors.New("lock not held")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client      redis.UniversalClient
	key         string
	value       string
	ttl         time.Duration
	stopCh      chan struct{}
	wg          sync.WaitGroup
	useWatchdog bool
	watching    bool
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client redis.UniversalClient, jobName string, ttl time.Duration, useWatchdog bool) *DistributedLock {
	return &DistributedLock{
		client:      client,
		key:         lockPrefix + jobName,
		value:       uuid.NewString(),
		ttl:         ttl,
		stopCh:      make(chan struct{}),
		useWatchdog: useWatchdog,
	}
}

// TryLock 尝试获取锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if ok && l.useWatchdog {
		l.startWatchdog(ctx)
	}
	return ok, nil
}

// Unlock 释放锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	if l.watching {
		close(l.stopCh)
		l.wg.Wait()
		l.watching = false
	}

	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// startWatchdog 在 TTL 的 1/3 时间点续期
func (l *DistributedLock) startWatchdog(ctx context.Context) {
	l.watching = true
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopCh:
				return
			case <-ticker.C:
				if err := l.renew(ctx); err != nil {
					logger.Warn("failed to renew lock",
						"key", l.key,
						"error", err)
				}
			}
		}
	}()
}

func (l *DistributedLock) renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return errLockNotHeld
	}
	return nil
}

// IsHeld 检查锁是否仍被持有
func (l *DistributedLock) IsHeld(ctx context.Context) (bool, error) {
	val, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == l.value, nil
}

// LockManager 锁管理器
type LockManager struct {
	client redis.UniversalClient
}

// NewLockManager 创建锁管理器
func NewLockManager(client redis.UniversalClient) *LockManager {
	return &LockManager{client: client}
}

// NewLock 创建新锁
func (m *LockManager) NewLock(jobName string, ttl time.Duration, useWatchdog bool) *DistributedLock {
	return NewDistributedLock(m.client, jobName, ttl, useWatchdog)
}

// IsLocked 检查任务是否被锁定
func (m *LockManager) IsLocked(ctx context.Context, jobName string) (bool, error) {
	exists, err := m.client.Exists(ctx, lockPrefix+jobName).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
