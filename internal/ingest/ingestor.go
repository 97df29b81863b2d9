// Package ingest 合约事件入库
//
// webhook 至少投递一次，同一事件重放必须收敛到相同的缓存状态：
//   - 推广活动快照总是从链上重新读取并整体覆盖
//   - IntentSubmitted 仅在推广者已登记 (fid 非零) 时写入意图列表，
//     链上已处理的意图不会被迟到的重投重新插入
//   - IntentProcessed 零 cast hash 表示拒绝，删除意图；否则标记已处理
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/cache"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/contract"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/metrics"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/social"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// ErrPromotionMissing 链上不存在该推广活动
var ErrPromotionMissing = errors.New("ingest: promotion not found on ledger")

// 事件处理结果，用于指标
const (
	resultOK      = "ok"
	resultSkipped = "skipped"
	resultDropped = "dropped"
	resultError   = "error"
)

// LedgerReader 入库需要的链上只读接口
type LedgerReader interface {
	GetPromotion(ctx context.Context, promotionID *big.Int) (*contract.Promotion, error)
	GetPromoterDetails(ctx context.Context, promotionID *big.Int, wallet common.Address) (*contract.PromoterDetails, error)
	GetIsIntentProcessed(ctx context.Context, promotionID *big.Int, intentHash [32]byte) (bool, error)
}

// CastFetcher 推广内容查询
type CastFetcher interface {
	GetCastByURL(ctx context.Context, castURL string) (*social.Cast, error)
}

// Config 入库配置
type Config struct {
	IntentTTL time.Duration // 无签发记录时的过期兜底
}

// Ingestor 事件入库
type Ingestor struct {
	decoder    *Decoder
	ledger     LedgerReader
	casts      CastFetcher
	promotions *cache.PromotionStore
	intents    *cache.IntentStore
	intentTTL  time.Duration
	now        func() time.Time
}

// NewIngestor 创建，casts 为 nil 时不抓取推广内容
func NewIngestor(
	decoder *Decoder,
	ledger LedgerReader,
	casts CastFetcher,
	promotions *cache.PromotionStore,
	intents *cache.IntentStore,
	cfg *Config,
) *Ingestor {
	ttl := cfg.IntentTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	return &Ingestor{
		decoder:    decoder,
		ledger:     ledger,
		casts:      casts,
		promotions: promotions,
		intents:    intents,
		intentTTL:  ttl,
		now:        time.Now,
	}
}

// Result 一次 webhook 的处理统计
type Result struct {
	Handled int `json:"handled"`
	Skipped int `json:"skipped"`
	Dropped int `json:"dropped"`
}

// HandleLogs 解码并处理一批日志
// expected 非空时只处理该类型事件，其余跳过
// 单条失败不影响后续日志，所有错误合并返回，由发送方重投
func (i *Ingestor) HandleLogs(ctx context.Context, expected Kind, logs []RawLog) (*Result, error) {
	res := &Result{}
	var errs []error

	for idx, raw := range logs {
		ev, err := i.decoder.DecodeRaw(raw)
		if err != nil {
			logger.Warn("skip undecodable log",
				zap.Int("index", idx),
				zap.String("tx_hash", raw.TransactionHash),
				zap.Error(err))
			metrics.RecordWebhookEvent(string(expected), resultSkipped)
			res.Skipped++
			continue
		}
		if expected != "" && ev.Kind() != expected {
			logger.Warn("skip unexpected event kind",
				zap.String("expected", string(expected)),
				zap.String("got", string(ev.Kind())),
				zap.String("tx_hash", raw.TransactionHash))
			metrics.RecordWebhookEvent(string(ev.Kind()), resultSkipped)
			res.Skipped++
			continue
		}

		dropped, err := i.Handle(ctx, ev)
		switch {
		case err != nil:
			logger.Error("handle event failed",
				zap.String("event", string(ev.Kind())),
				zap.Uint64("promotion_id", ev.PromotionID()),
				zap.String("tx_hash", ev.Meta().TxHash.Hex()),
				zap.Error(err))
			metrics.RecordWebhookEvent(string(ev.Kind()), resultError)
			errs = append(errs, fmt.Errorf("%s %s: %w", ev.Kind(), ev.Meta().TxHash.Hex(), err))
		case dropped:
			metrics.RecordWebhookEvent(string(ev.Kind()), resultDropped)
			res.Dropped++
		default:
			metrics.RecordWebhookEvent(string(ev.Kind()), resultOK)
			res.Handled++
		}
	}

	return res, errors.Join(errs...)
}

// Handle 处理单个事件，dropped 表示事件有效但按规则不入库
func (i *Ingestor) Handle(ctx context.Context, ev Event) (dropped bool, err error) {
	if _, err := i.RefreshPromotion(ctx, ev.PromotionID()); err != nil {
		return false, err
	}

	switch e := ev.(type) {
	case *PromotionCreated, *PromotionEnded:
		return false, nil
	case *IntentSubmitted:
		return i.handleIntentSubmitted(ctx, e)
	case *IntentProcessed:
		return false, i.handleIntentProcessed(ctx, e)
	default:
		return false, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

// RefreshPromotion 从链上读取推广活动并整体覆盖缓存
// 推广内容快照在 cast_url 未变时沿用缓存
func (i *Ingestor) RefreshPromotion(ctx context.Context, id uint64) (*model.Promotion, error) {
	onchain, err := i.ledger.GetPromotion(ctx, new(big.Int).SetUint64(id))
	if err != nil {
		return nil, fmt.Errorf("read promotion %d: %w", id, err)
	}
	p := onchain.ToModel()
	if p.ID == 0 {
		return nil, fmt.Errorf("%w: %d", ErrPromotionMissing, id)
	}

	existing, err := i.promotions.Get(ctx, id)
	if err == nil && existing.Content != nil && existing.CastURL == p.CastURL {
		p.Content = existing.Content
	} else if i.casts != nil && p.CastURL != "" {
		p.Content = i.fetchContent(ctx, p)
	}

	p.UpdatedAt = i.now().Unix()
	if err := i.promotions.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save promotion %d: %w", id, err)
	}

	logger.Debug("promotion refreshed",
		zap.Uint64("promotion_id", id),
		zap.String("state", p.State.String()),
		zap.String("remaining_budget", p.RemainingBudget.String()))
	return p, nil
}

// fetchContent 抓取失败不阻塞入库，下次事件再补
func (i *Ingestor) fetchContent(ctx context.Context, p *model.Promotion) *model.CastContent {
	cast, err := i.casts.GetCastByURL(ctx, p.CastURL)
	if err != nil {
		logger.Warn("fetch promotion content failed",
			zap.Uint64("promotion_id", p.ID),
			zap.String("cast_url", p.CastURL),
			zap.Error(err))
		return nil
	}
	return &model.CastContent{
		Hash:           cast.Hash,
		Text:           cast.Text,
		Embeds:         cast.EmbedURLs(),
		AuthorFID:      cast.Author.FID,
		AuthorUsername: cast.Author.Username,
		Timestamp:      cast.Timestamp.Unix(),
	}
}

func (i *Ingestor) handleIntentSubmitted(ctx context.Context, e *IntentSubmitted) (bool, error) {
	details, err := i.ledger.GetPromoterDetails(ctx, new(big.Int).SetUint64(e.ID), e.Wallet)
	if err != nil {
		return false, fmt.Errorf("read promoter details: %w", err)
	}
	if !details.IsRegistered() {
		logger.Info("drop intent from unregistered promoter",
			zap.Uint64("promotion_id", e.ID),
			zap.String("wallet", e.Wallet.Hex()),
			zap.String("intent_hash", e.IntentHash.Hex()))
		return true, nil
	}

	entry := &model.IntentEntry{
		IntentHash:  e.IntentHash.Hex(),
		PromotionID: e.ID,
		Wallet:      e.Wallet.Hex(),
		FID:         details.Fid.Uint64(),
		SubmittedAt: i.now().Unix(),
	}

	existing, err := i.intents.Find(ctx, entry.Key())
	switch {
	case errors.Is(err, cache.ErrNotFound):
		processed, perr := i.ledger.GetIsIntentProcessed(ctx, new(big.Int).SetUint64(e.ID), e.IntentHash)
		if perr != nil {
			return false, fmt.Errorf("read intent processed: %w", perr)
		}
		if processed {
			logger.Info("drop late intent already processed on ledger",
				zap.Uint64("promotion_id", e.ID),
				zap.String("intent_hash", entry.IntentHash))
			return true, nil
		}
	case err != nil:
		return false, fmt.Errorf("find intent: %w", err)
	}

	issued, err := i.intents.GetIssued(ctx, entry.IntentHash)
	switch {
	case err == nil && issued.PromotionID == e.ID:
		entry.Fee = issued.Fee
		entry.Expiry = issued.Expiry
		entry.Nonce = issued.Nonce
	case err == nil || errors.Is(err, cache.ErrNotFound) || errors.Is(err, cache.ErrCorrupt):
		// 签发记录缺失，用事件字段兜底；已存在的条目保留原过期时间
		entry.Fee = model.NewUint256(e.Fee)
		entry.Expiry = entry.SubmittedAt + int64(i.intentTTL/time.Second)
		if existing != nil {
			entry.Expiry = existing.Expiry
			entry.Nonce = existing.Nonce
		}
		logger.Warn("issued intent record missing, using event fields",
			zap.String("intent_hash", entry.IntentHash),
			zap.Uint64("promotion_id", e.ID))
	default:
		return false, fmt.Errorf("read issued intent: %w", err)
	}

	created, err := i.intents.Upsert(ctx, entry)
	if err != nil {
		return false, fmt.Errorf("upsert intent: %w", err)
	}
	logger.Info("intent submitted",
		zap.Uint64("promotion_id", e.ID),
		zap.Uint64("fid", entry.FID),
		zap.String("intent_hash", entry.IntentHash),
		zap.Bool("created", created))
	return false, nil
}

func (i *Ingestor) handleIntentProcessed(ctx context.Context, e *IntentProcessed) error {
	entry, err := i.intents.FindByHash(ctx, e.ID, e.IntentHash.Hex())
	if errors.Is(err, cache.ErrNotFound) {
		// 已被结算任务删除或从未入库
		return nil
	}
	if err != nil {
		return err
	}

	if e.Rejected() {
		if err := i.intents.Remove(ctx, entry.Key()); err != nil && !errors.Is(err, cache.ErrNotFound) {
			return fmt.Errorf("remove rejected intent: %w", err)
		}
		return nil
	}

	_, err = i.intents.Update(ctx, entry.Key(), func(en *model.IntentEntry) error {
		en.Processed = true
		en.TxHash = e.TxHash.Hex()
		if !en.HasCast() {
			en.CastHash = e.CastHash.Hex()
		}
		return nil
	})
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	return err
}
