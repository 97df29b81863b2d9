package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
)

// DefaultScoreTTL 评分缓存有效期
const DefaultScoreTTL = 3 * 24 * time.Hour

// ScoreStore 用户评分缓存
type ScoreStore struct {
	c   *Client
	ttl time.Duration
}

// NewScoreStore 创建
func NewScoreStore(c *Client, ttl time.Duration) *ScoreStore {
	if ttl <= 0 {
		ttl = DefaultScoreTTL
	}
	return &ScoreStore{c: c, ttl: ttl}
}

// Get 读取评分
func (s *ScoreStore) Get(ctx context.Context, fid uint64) (*model.UserScore, error) {
	var score model.UserScore
	if err := s.c.GetJSON(ctx, UserScoreKey(fid), &score); err != nil {
		return nil, err
	}
	return &score, nil
}

// Save 写入评分并加入已评分集合
func (s *ScoreStore) Save(ctx context.Context, score *model.UserScore) error {
	sealed, err := s.c.Seal(score)
	if err != nil {
		return err
	}
	return s.c.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, UserScoreKey(score.FID), sealed, s.ttl)
		pipe.SAdd(ctx, ScoredUsersKey, strconv.FormatUint(score.FID, 10))
		return nil
	})
}

// ScoredFIDs 已评分用户
func (s *ScoreStore) ScoredFIDs(ctx context.Context) ([]uint64, error) {
	members, err := s.c.SMembers(ctx, ScoredUsersKey)
	if err != nil {
		return nil, err
	}
	fids := make([]uint64, 0, len(members))
	for _, m := range members {
		fid, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		fids = append(fids, fid)
	}
	return fids, nil
}

// Forget 评分已过期的用户移出集合
func (s *ScoreStore) Forget(ctx context.Context, fid uint64) error {
	return s.c.SRem(ctx, ScoredUsersKey, strconv.FormatUint(fid, 10))
}

// DraftStore 推广者预期文案
type DraftStore struct {
	c *Client
}

// NewDraftStore 创建
func NewDraftStore(c *Client) *DraftStore {
	return &DraftStore{c: c}
}

// Save 保存文案
func (s *DraftStore) Save(ctx context.Context, promotionID, fid uint64, text string, ttl time.Duration) error {
	return s.c.Set(ctx, DraftKey(promotionID, fid), text, ttl)
}

// Get 读取文案
func (s *DraftStore) Get(ctx context.Context, promotionID, fid uint64) (string, error) {
	return s.c.Get(ctx, DraftKey(promotionID, fid))
}
