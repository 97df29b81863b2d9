package cache

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// StatsStore 聚合统计
type StatsStore struct {
	c *Client
}

// NewStatsStore 创建
func NewStatsStore(c *Client) *StatsStore {
	return &StatsStore{c: c}
}

// SaveTierRates 每个等级一个哈希字段
func (s *StatsStore) SaveTierRates(ctx context.Context, stats []model.TierRateStats) error {
	fields := make(map[string]interface{}, len(stats))
	for _, st := range stats {
		fields[strconv.Itoa(int(st.Tier))] = st
	}
	if err := s.c.Del(ctx, TierRatesKey); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	return s.c.HSet(ctx, TierRatesKey, fields)
}

// GetTierRates 按等级升序返回
func (s *StatsStore) GetTierRates(ctx context.Context) ([]model.TierRateStats, error) {
	fields, err := s.c.HGetAll(ctx, TierRatesKey)
	if err != nil {
		return nil, err
	}
	out := make([]model.TierRateStats, 0, len(fields))
	for f, v := range fields {
		var st model.TierRateStats
		if err := json.Unmarshal([]byte(v), &st); err != nil {
			logger.Warn("tier rate field anomaly", "field", f, "error", err)
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out, nil
}

// SaveTrend 保存趋势摘要
func (s *StatsStore) SaveTrend(ctx context.Context, trend *model.TrendSummary) error {
	return s.c.Set(ctx, TrendsKey, trend, 0)
}

// GetTrend 读取趋势摘要
func (s *StatsStore) GetTrend(ctx context.Context) (*model.TrendSummary, error) {
	var trend model.TrendSummary
	if err := s.c.GetJSON(ctx, TrendsKey, &trend); err != nil {
		return nil, err
	}
	return &trend, nil
}
