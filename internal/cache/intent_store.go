package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

const (
	// maxMutateAttempts 列表变动时重新定位的次数上限
	maxMutateAttempts = 5
	// issuedIntentGrace 已签发记录在过期后的保留时间
	issuedIntentGrace = 24 * time.Hour
)

// ErrConflict 多次重新定位后仍被并发修改
var ErrConflict = errors.New("cache: concurrent list modification")

// IntentStore 推广活动意图列表
// 列表索引不稳定，每次修改前按 (intentHash, promotion_id, fid) 重新定位
type IntentStore struct {
	c *Client
}

// NewIntentStore 创建
func NewIntentStore(c *Client) *IntentStore {
	return &IntentStore{c: c}
}

// located 定位结果，仅在一次修改内有效
type located struct {
	index int64
	raw   string
	entry *model.IntentEntry
}

// List 列出意图，无法解析的条目跳过并记录
func (s *IntentStore) List(ctx context.Context, promotionID uint64) ([]*model.IntentEntry, error) {
	key := PromotionIntentsKey(promotionID)
	raws, err := s.c.LRangeRaw(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}

	out := make([]*model.IntentEntry, 0, len(raws))
	for i, raw := range raws {
		var e model.IntentEntry
		if err := s.c.Open(raw, &e); err != nil {
			logger.Warn("intent entry anomaly", "key", key, "index", i, "error", err)
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}

// ListUnprocessed 未处理的意图
func (s *IntentStore) ListUnprocessed(ctx context.Context, promotionID uint64) ([]*model.IntentEntry, error) {
	all, err := s.List(ctx, promotionID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if !e.Processed {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *IntentStore) resolve(ctx context.Context, key model.IntentKey) (*located, error) {
	listKey := PromotionIntentsKey(key.PromotionID)
	raws, err := s.c.LRangeRaw(ctx, listKey, 0, -1)
	if err != nil {
		return nil, err
	}
	for i, raw := range raws {
		var e model.IntentEntry
		if err := s.c.Open(raw, &e); err != nil {
			continue
		}
		if e.Matches(key) {
			return &located{index: int64(i), raw: raw, entry: &e}, nil
		}
	}
	return nil, ErrNotFound
}

// Find 按自然键查找
func (s *IntentStore) Find(ctx context.Context, key model.IntentKey) (*model.IntentEntry, error) {
	loc, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	return loc.entry, nil
}

// FindByHash 仅按 intentHash 查找，事件中没有 fid 时使用
func (s *IntentStore) FindByHash(ctx context.Context, promotionID uint64, intentHash string) (*model.IntentEntry, error) {
	entries, err := s.List(ctx, promotionID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if strings.EqualFold(e.IntentHash, intentHash) {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

// Upsert 不存在则插入，存在则原位更新并保留 cast_hash/post_time/processed
func (s *IntentStore) Upsert(ctx context.Context, entry *model.IntentEntry) (bool, error) {
	key := entry.Key()
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		loc, err := s.resolve(ctx, key)
		if errors.Is(err, ErrNotFound) {
			if err := s.c.LPush(ctx, PromotionIntentsKey(key.PromotionID), entry); err != nil {
				return false, err
			}
			return true, nil
		}
		if err != nil {
			return false, err
		}

		merged := mergeEntry(loc.entry, entry)
		ok, err := s.c.LSetIfEqual(ctx, PromotionIntentsKey(key.PromotionID), loc.index, loc.raw, merged)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: upsert %s", ErrConflict, key.IntentHash)
}

// mergeEntry 以 incoming 为准，已有的内容提交与处理状态不回退
func mergeEntry(existing, incoming *model.IntentEntry) *model.IntentEntry {
	merged := *incoming
	if existing.CastHash != "" {
		merged.CastHash = existing.CastHash
		merged.PostTime = existing.PostTime
	}
	merged.Processed = existing.Processed || incoming.Processed
	if existing.SubmittedAt != 0 {
		merged.SubmittedAt = existing.SubmittedAt
	}
	if merged.TxHash == "" {
		merged.TxHash = existing.TxHash
	}
	return &merged
}

// Update 定位后修改，mutate 可能因并发重试而被多次调用
func (s *IntentStore) Update(ctx context.Context, key model.IntentKey, mutate func(*model.IntentEntry) error) (*model.IntentEntry, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		loc, err := s.resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := mutate(loc.entry); err != nil {
			return nil, err
		}
		ok, err := s.c.LSetIfEqual(ctx, PromotionIntentsKey(key.PromotionID), loc.index, loc.raw, loc.entry)
		if err != nil {
			return nil, err
		}
		if ok {
			return loc.entry, nil
		}
	}
	return nil, fmt.Errorf("%w: update %s", ErrConflict, key.IntentHash)
}

// MarkProcessed 标记已处理
func (s *IntentStore) MarkProcessed(ctx context.Context, key model.IntentKey) error {
	_, err := s.Update(ctx, key, func(e *model.IntentEntry) error {
		e.Processed = true
		return nil
	})
	return err
}

// Remove 按存储原值删除
func (s *IntentStore) Remove(ctx context.Context, key model.IntentKey) error {
	listKey := PromotionIntentsKey(key.PromotionID)
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		loc, err := s.resolve(ctx, key)
		if err != nil {
			return err
		}
		n, err := s.c.LRem(ctx, listKey, 1, loc.raw)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: remove %s", ErrConflict, key.IntentHash)
}

// SaveIssued 保存签发记录，过期时间为意图过期后再保留一段
func (s *IntentStore) SaveIssued(ctx context.Context, issued *model.IssuedIntent) error {
	ttl := time.Until(time.Unix(issued.Expiry, 0)) + issuedIntentGrace
	if ttl <= 0 {
		ttl = issuedIntentGrace
	}
	return s.c.Set(ctx, IssuedIntentKey(issued.IntentHash), issued, ttl)
}

// GetIssued 读取签发记录
func (s *IntentStore) GetIssued(ctx context.Context, intentHash string) (*model.IssuedIntent, error) {
	var issued model.IssuedIntent
	if err := s.c.GetJSON(ctx, IssuedIntentKey(intentHash), &issued); err != nil {
		return nil, err
	}
	return &issued, nil
}

// NextNonce 原子分配单调递增的 nonce
func (s *IntentStore) NextNonce(ctx context.Context) (uint64, error) {
	n, err := s.c.Incr(ctx, IntentNonceKey)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}
