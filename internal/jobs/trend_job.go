package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/cache"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/scheduler"
)

const (
	trendTopN         = 10
	trendMaxTextChars = 500

	trendSystemPrompt = "You summarise what a set of sponsored social posts are promoting. " +
		"Reply with one short neutral paragraph of at most three sentences. Do not invent details."
)

// Completer 文本模型
type Completer interface {
	Complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
}

// PromotionRanker 推广排行
type PromotionRanker interface {
	ListRanked(ctx context.Context, by cache.RankBy, limit int64) ([]*model.Promotion, error)
}

// TrendWriter 趋势摘要写入
type TrendWriter interface {
	SaveTrend(ctx context.Context, trend *model.TrendSummary) error
}

// TrendSummaryJob 汇总预算最高的推广内容
type TrendSummaryJob struct {
	scheduler.BaseJob
	promotions PromotionRanker
	llm        Completer
	stats      TrendWriter
	now        func() time.Time
}

// NewTrendSummaryJob 创建趋势摘要任务
func NewTrendSummaryJob(promotions PromotionRanker, completer Completer, stats TrendWriter) *TrendSummaryJob {
	cfg := scheduler.DefaultJobConfigs[scheduler.JobNameTrendSummary]
	return &TrendSummaryJob{
		BaseJob: scheduler.NewBaseJob(
			scheduler.JobNameTrendSummary,
			cfg.Timeout,
			cfg.LockTTL,
			cfg.UseWatchdog,
		),
		promotions: promotions,
		llm:        completer,
		stats:      stats,
		now:        time.Now,
	}
}

// Execute 执行摘要
func (j *TrendSummaryJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	top, err := j.promotions.ListRanked(ctx, cache.RankByBudget, trendTopN)
	if err != nil {
		return nil, fmt.Errorf("list top promotions: %w", err)
	}

	var (
		b   strings.Builder
		ids []uint64
	)
	for _, p := range top {
		if p.Content == nil || strings.TrimSpace(p.Content.Text) == "" {
			continue
		}
		text := p.Content.Text
		if r := []rune(text); len(r) > trendMaxTextChars {
			text = string(r[:trendMaxTextChars])
		}
		ids = append(ids, p.ID)
		fmt.Fprintf(&b, "%d. %s\n", len(ids), strings.ReplaceAll(text, "\n", " "))
	}

	result := &scheduler.JobResult{
		ProcessedCount: len(top),
		Details:        map[string]interface{}{"with_content": len(ids)},
	}
	// 没有可汇总的内容时保留上一次的摘要
	if len(ids) == 0 {
		return result, nil
	}

	summary, err := j.llm.Complete(ctx, trendSystemPrompt, b.String(), false)
	if err != nil {
		return nil, fmt.Errorf("summarise trends: %w", err)
	}

	if err := j.stats.SaveTrend(ctx, &model.TrendSummary{
		Summary:      strings.TrimSpace(summary),
		PromotionIDs: ids,
		GeneratedAt:  j.now().Unix(),
	}); err != nil {
		return nil, fmt.Errorf("save trend: %w", err)
	}

	result.AffectedCount = 1
	return result, nil
}
