// Package verifier 推广内容校验
//
// 三级判定：
//  1. 去除表情与标点后完全一致直接通过
//  2. 文本模型判断是否表达同一核心信息
//  3. 模型不可用时按词重叠率兜底
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/ai"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/metrics"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// DefaultOverlapThreshold 兜底判定的重叠率阈值 (严格大于)
const DefaultOverlapThreshold = 0.6

// 判定层级
const (
	TierExact     = "exact"
	TierJudge     = "judge"
	TierHeuristic = "heuristic"
)

// Judge 语义等价判断
type Judge interface {
	SameMessage(ctx context.Context, expected, actual string) (bool, error)
}

// Decision 判定结果
type Decision struct {
	Matched bool
	Tier    string
	Overlap float64 // 仅兜底层有值
}

// Verifier 内容校验
type Verifier struct {
	judge     Judge
	threshold float64
}

// NewVerifier 创建，judge 为 nil 时直接走兜底
func NewVerifier(judge Judge) *Verifier {
	return &Verifier{judge: judge, threshold: DefaultOverlapThreshold}
}

// Verify 实际发布内容是否与预期文案一致
func (v *Verifier) Verify(ctx context.Context, expected, actual string) bool {
	return v.Decide(ctx, expected, actual).Matched
}

// Decide 返回判定详情
func (v *Verifier) Decide(ctx context.Context, expected, actual string) Decision {
	d := v.decide(ctx, expected, actual)
	metrics.RecordVerifierDecision(d.Tier, d.Matched)
	return d
}

func (v *Verifier) decide(ctx context.Context, expected, actual string) Decision {
	if strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(actual)) {
		return Decision{Matched: true, Tier: TierExact}
	}
	ne, na := Normalize(expected), Normalize(actual)
	if ne != "" && ne == na {
		return Decision{Matched: true, Tier: TierExact}
	}

	if v.judge != nil {
		matched, err := v.judge.SameMessage(ctx, expected, actual)
		if err == nil {
			return Decision{Matched: matched, Tier: TierJudge}
		}
		logger.Warn("judge unavailable, falling back to token overlap", "error", err)
	}

	overlap := Overlap(expected, actual)
	return Decision{Matched: overlap > v.threshold, Tier: TierHeuristic, Overlap: overlap}
}

// Normalize 小写，表情与标点替换为空白后合并空白
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tokenSet(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range strings.Fields(Normalize(s)) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// countMatched 统计 a 中与 b 任一词互为子串的词数
func countMatched(a, b []string) int {
	n := 0
	for _, x := range a {
		for _, y := range b {
			if strings.Contains(y, x) || strings.Contains(x, y) {
				n++
				break
			}
		}
	}
	return n
}

// Overlap 双向子串重叠率，任一方无词时为 0
func Overlap(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	matched := countMatched(ta, tb) + countMatched(tb, ta)
	return float64(matched) / float64(len(ta)+len(tb))
}

const judgeSystemPrompt = `You compare two social media posts and decide whether they convey the same core message.
Be lenient about emoji, punctuation, casing, hashtags and writing style.
Be strict about topic, sentiment polarity and factual specifics such as numbers, prices, dates and named entities.
Respond with a JSON object of the form {"match": true} or {"match": false} and nothing else.`

// Completer 文本模型
type Completer interface {
	Complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
}

// ModelJudge 基于文本模型的判断
type ModelJudge struct {
	model Completer
}

var _ Judge = (*ModelJudge)(nil)

// NewModelJudge 创建
func NewModelJudge(model Completer) *ModelJudge {
	return &ModelJudge{model: model}
}

// NewOpenAIJudge 使用 OpenAI 兼容接口
func NewOpenAIJudge(cfg *ai.Config) (*ModelJudge, error) {
	client, err := ai.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewModelJudge(client), nil
}

// SameMessage 模型返回非法 JSON 时视为判断失败
func (j *ModelJudge) SameMessage(ctx context.Context, expected, actual string) (bool, error) {
	user := fmt.Sprintf("Expected post:\n%s\n\nActual post:\n%s", expected, actual)
	out, err := j.model.Complete(ctx, judgeSystemPrompt, user, true)
	if err != nil {
		return false, err
	}

	var verdict struct {
		Match *bool `json:"match"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &verdict); err != nil {
		return false, fmt.Errorf("parse judge verdict: %w", err)
	}
	if verdict.Match == nil {
		return false, fmt.Errorf("judge verdict missing match field: %q", out)
	}
	return *verdict.Match, nil
}
