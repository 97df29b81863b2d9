package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// RankBy 排行维度
type RankBy string

const (
	RankByBudget RankBy = "budget"
	RankByRate   RankBy = "rate"
)

// PromotionStore 推广活动快照与索引
type PromotionStore struct {
	c *Client
}

// NewPromotionStore 创建
func NewPromotionStore(c *Client) *PromotionStore {
	return &PromotionStore{c: c}
}

// Save 整体覆盖快照并更新索引
// 排行有序集合只保留进行中的活动
func (s *PromotionStore) Save(ctx context.Context, p *model.Promotion) error {
	if p.UpdatedAt == 0 {
		p.UpdatedAt = time.Now().Unix()
	}

	fields, err := s.sealPromotion(p)
	if err != nil {
		return err
	}

	key := PromotionKey(p.ID)
	member := strconv.FormatUint(p.ID, 10)

	return s.c.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields...)

		if p.IsActive() {
			pipe.ZAdd(ctx, PromotionsByBudgetKey, redis.Z{Score: toScore(p.RemainingBudget), Member: member})
			pipe.ZAdd(ctx, PromotionsByRateKey, redis.Z{Score: toScore(p.BaseRate), Member: member})
		} else {
			pipe.ZRem(ctx, PromotionsByBudgetKey, member)
			pipe.ZRem(ctx, PromotionsByRateKey, member)
		}

		for _, st := range model.AllPromotionStates {
			if st == p.State {
				pipe.SAdd(ctx, PromotionStateKey(st), member)
			} else {
				pipe.SRem(ctx, PromotionStateKey(st), member)
			}
		}
		return nil
	})
}

// sealPromotion 每个 JSON 顶层字段存为一个加密的哈希字段
func (s *PromotionStore) sealPromotion(p *model.Promotion) ([]interface{}, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}

	args := make([]interface{}, 0, 2*len(top))
	for f, v := range top {
		sealed, err := s.c.Seal([]byte(v))
		if err != nil {
			return nil, err
		}
		args = append(args, f, sealed)
	}
	return args, nil
}

// Get 读取快照
func (s *PromotionStore) Get(ctx context.Context, id uint64) (*model.Promotion, error) {
	key := PromotionKey(id)
	raw, err := s.c.Redis().HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}

	top := make(map[string]json.RawMessage, len(raw))
	for f, v := range raw {
		var plain string
		if err := s.c.Open(v, &plain); err != nil {
			return nil, err
		}
		if !json.Valid([]byte(plain)) {
			logger.Warn("promotion field anomaly", "key", key, "field", f)
			continue
		}
		top[f] = json.RawMessage(plain)
	}

	data, err := json.Marshal(top)
	if err != nil {
		return nil, err
	}
	var p model.Promotion
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &p, nil
}

// ListRanked 按预算或单价倒序列出进行中的活动
func (s *PromotionStore) ListRanked(ctx context.Context, by RankBy, limit int64) ([]*model.Promotion, error) {
	key := PromotionsByBudgetKey
	if by == RankByRate {
		key = PromotionsByRateKey
	}
	if limit <= 0 {
		limit = 20
	}

	members, err := s.c.ZRevRange(ctx, key, 0, limit-1)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Promotion, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		p, err := s.Get(ctx, id)
		if err != nil {
			logger.Warn("ranked promotion missing snapshot", "promotion_id", id, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// IDsByState 状态分区成员
func (s *PromotionStore) IDsByState(ctx context.Context, state model.PromotionState) ([]uint64, error) {
	members, err := s.c.SMembers(ctx, PromotionStateKey(state))
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ActiveIDs 进行中的活动
func (s *PromotionStore) ActiveIDs(ctx context.Context) ([]uint64, error) {
	return s.IDsByState(ctx, model.PromotionStateActive)
}

func toScore(v model.Uint256) float64 {
	f, _ := new(big.Float).SetInt(v.Big()).Float64()
	return f
}
