package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/cache"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/contract"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/metrics"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/social"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

var (
	ErrBatchSimulation = errors.New("settlement batch simulation failed")
	ErrBatchSubmit     = errors.New("settlement batch submit failed")
	ErrBatchReceipt    = errors.New("settlement batch not confirmed")
)

// SettlementLedger 结算需要的链上接口
type SettlementLedger interface {
	GetNextPromotionID(ctx context.Context) (*big.Int, error)
	GetPromoterDetailsMulti(ctx context.Context, queries []contract.PromoterQuery) ([]*contract.PromoterDetails, error)
	GetIsIntentProcessed(ctx context.Context, promotionID *big.Int, intentHash [32]byte) (bool, error)
	SimulateBatchProcessIntents(ctx context.Context, intents []contract.ProcessIntent) error
	BatchProcessIntents(ctx context.Context, intents []contract.ProcessIntent) (common.Hash, error)
	WaitForTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// SettlementConfig 配置
type SettlementConfig struct {
	AppURL       string        // 通知跳转地址
	FetchTimeout time.Duration // 单条内容抓取超时
}

// decision 一条意图的结算判定
type decision struct {
	entry    *model.IntentEntry
	kind     model.SettlementDecision
	castHash [32]byte
	postTime int64
	reason   string
	settled  bool // 链上已结算，只需对齐缓存
}

// BatchResult 一次结算的结果
type BatchResult struct {
	BatchID    string            `json:"batch_id"`
	TxHash     string            `json:"tx_hash,omitempty"`
	Accepted   []model.IntentKey `json:"accepted"`
	Rejected   []model.IntentKey `json:"rejected"`
	Exited     []model.IntentKey `json:"exited"`
	Reconciled []model.IntentKey `json:"reconciled"`
	Pending    int               `json:"pending"`
	Promotions int               `json:"promotions"`
	Duration   time.Duration     `json:"duration"`
}

// SettlementService 批量结算
//
// 每条未处理意图的判定：
//   - 推广者已退出 (state != 0)：直接标记已处理
//   - 链上已处理：按推广者记录的 cast hash 对齐缓存，零值为拒绝则删除，否则标记已处理并通知
//   - 未提交内容：过期则拒绝，否则保持待定
//   - 已提交内容：抓取内容与预期文案比对，一致则接受，不一致或抓取失败则拒绝
//
// 所有判定合并为一次 batchProcessIntents 调用，确认后才修改缓存；
// 模拟、发送或确认任一失败则缓存不做任何修改，下次整体重试
type SettlementService struct {
	ledger       SettlementLedger
	intents      *cache.IntentStore
	drafts       *cache.DraftStore
	casts        CastSource
	verifier     ContentVerifier
	notifier     Notifier
	publisher    SettlementPublisher
	appURL       string
	fetchTimeout time.Duration
	now          func() time.Time
}

// NewSettlementService 创建，notifier 与 publisher 可为 nil
func NewSettlementService(
	ledger SettlementLedger,
	intents *cache.IntentStore,
	drafts *cache.DraftStore,
	casts CastSource,
	verifier ContentVerifier,
	notifier Notifier,
	publisher SettlementPublisher,
	cfg *SettlementConfig,
) *SettlementService {
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = 10 * time.Second
	}
	return &SettlementService{
		ledger:       ledger,
		intents:      intents,
		drafts:       drafts,
		casts:        casts,
		verifier:     verifier,
		notifier:     notifier,
		publisher:    publisher,
		appURL:       cfg.AppURL,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
	}
}

// RunBatch 执行一次结算
func (s *SettlementService) RunBatch(ctx context.Context) (*BatchResult, error) {
	start := s.now()
	res := &BatchResult{BatchID: uuid.NewString()}
	log := logger.L().With(zap.String("batch_id", res.BatchID))

	next, err := s.ledger.GetNextPromotionID(ctx)
	if err != nil {
		metrics.RecordSettlementBatch("failed", 0, 0, 0)
		return res, fmt.Errorf("read next promotion id: %w", err)
	}

	var decisions []*decision
	for id := uint64(1); new(big.Int).SetUint64(id).Cmp(next) < 0; id++ {
		entries, err := s.intents.ListUnprocessed(ctx, id)
		if err != nil {
			log.Warn("list intents failed", zap.Uint64("promotion_id", id), zap.Error(err))
			continue
		}
		if len(entries) == 0 {
			continue
		}
		res.Promotions++

		promoters, err := s.promoterDetails(ctx, entries)
		if err != nil {
			// 链上读取失败，整个推广留到下次
			log.Warn("read promoter details failed", zap.Uint64("promotion_id", id), zap.Error(err))
			res.Pending += len(entries)
			continue
		}

		for idx, e := range entries {
			d, err := s.decide(ctx, e, promoters[idx])
			if err != nil {
				// 链上读取失败，留到下次
				log.Warn("decide intent failed",
					zap.Uint64("promotion_id", id),
					zap.String("intent_hash", e.IntentHash),
					zap.Error(err))
				res.Pending++
				continue
			}
			if d == nil {
				res.Pending++
				continue
			}
			log.Debug("intent decided",
				zap.Uint64("promotion_id", id),
				zap.String("intent_hash", e.IntentHash),
				zap.String("decision", string(d.kind)),
				zap.String("reason", d.reason))
			decisions = append(decisions, d)
		}
	}

	var onchain, direct []*decision
	for _, d := range decisions {
		if d.kind == model.DecisionExited || d.settled {
			direct = append(direct, d)
		} else {
			onchain = append(onchain, d)
		}
	}

	var receipt *types.Receipt
	if len(onchain) > 0 {
		receipt, err = s.submit(ctx, onchain)
		if err != nil {
			log.Error("settlement batch aborted, cache untouched",
				zap.Int("decisions", len(onchain)),
				zap.Error(err))
			metrics.RecordSettlementBatch("failed", 0, 0, 0)
			res.Duration = s.now().Sub(start)
			return res, err
		}
		res.TxHash = receipt.TxHash.Hex()
	}

	// 链上已确认，按内容重新定位后修改缓存
	var acceptedFIDs []uint64
	seen := make(map[uint64]struct{})
	for _, d := range onchain {
		key := d.entry.Key()
		switch d.kind {
		case model.DecisionAccept:
			_, err := s.intents.Update(ctx, key, func(e *model.IntentEntry) error {
				e.Processed = true
				e.TxHash = res.TxHash
				return nil
			})
			if err != nil {
				log.Warn("mark accepted intent failed", zap.String("intent_hash", key.IntentHash), zap.Error(err))
			}
			res.Accepted = append(res.Accepted, key)
			if _, ok := seen[key.FID]; !ok {
				seen[key.FID] = struct{}{}
				acceptedFIDs = append(acceptedFIDs, key.FID)
			}
		case model.DecisionReject:
			if err := s.intents.Remove(ctx, key); err != nil && !errors.Is(err, cache.ErrNotFound) {
				log.Warn("remove rejected intent failed", zap.String("intent_hash", key.IntentHash), zap.Error(err))
			}
			res.Rejected = append(res.Rejected, key)
		}
	}
	for _, d := range direct {
		key := d.entry.Key()
		switch {
		case d.kind == model.DecisionExited:
			if err := s.intents.MarkProcessed(ctx, key); err != nil && !errors.Is(err, cache.ErrNotFound) {
				log.Warn("mark exited intent failed", zap.String("intent_hash", key.IntentHash), zap.Error(err))
			}
			res.Exited = append(res.Exited, key)
		case d.kind == model.DecisionReject:
			if err := s.intents.Remove(ctx, key); err != nil && !errors.Is(err, cache.ErrNotFound) {
				log.Warn("remove settled rejection failed", zap.String("intent_hash", key.IntentHash), zap.Error(err))
			}
			res.Reconciled = append(res.Reconciled, key)
		default:
			castHash := common.Hash(d.castHash).Hex()
			_, err := s.intents.Update(ctx, key, func(e *model.IntentEntry) error {
				e.Processed = true
				if !e.HasCast() {
					e.CastHash = castHash
				}
				return nil
			})
			if err != nil {
				log.Warn("mark settled intent failed", zap.String("intent_hash", key.IntentHash), zap.Error(err))
			}
			res.Reconciled = append(res.Reconciled, key)
			if _, ok := seen[key.FID]; !ok {
				seen[key.FID] = struct{}{}
				acceptedFIDs = append(acceptedFIDs, key.FID)
			}
		}
	}

	s.notify(ctx, log, acceptedFIDs)
	if receipt != nil {
		s.publish(ctx, log, res, receipt)
	}

	res.Duration = s.now().Sub(start)
	metrics.RecordSettlementBatch("success", len(res.Accepted), len(res.Rejected), len(res.Exited))
	log.Info("settlement batch finished",
		zap.String("tx_hash", res.TxHash),
		zap.Int("accepted", len(res.Accepted)),
		zap.Int("rejected", len(res.Rejected)),
		zap.Int("exited", len(res.Exited)),
		zap.Int("reconciled", len(res.Reconciled)),
		zap.Int("pending", res.Pending),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// promoterDetails 一次批量读取推广的所有推广者记录，结果与 entries 一一对应
func (s *SettlementService) promoterDetails(ctx context.Context, entries []*model.IntentEntry) ([]*contract.PromoterDetails, error) {
	queries := make([]contract.PromoterQuery, len(entries))
	for i, e := range entries {
		queries[i] = contract.PromoterQuery{
			PromotionID: new(big.Int).SetUint64(e.PromotionID),
			Wallet:      common.HexToAddress(e.Wallet),
		}
	}
	details, err := s.ledger.GetPromoterDetailsMulti(ctx, queries)
	if err != nil {
		return nil, err
	}
	if len(details) != len(entries) {
		return nil, fmt.Errorf("promoter details: got %d records for %d intents", len(details), len(entries))
	}
	return details, nil
}

// decide 返回 nil 表示本轮保持待定
func (s *SettlementService) decide(ctx context.Context, e *model.IntentEntry, details *contract.PromoterDetails) (*decision, error) {
	if details.State != 0 {
		return &decision{entry: e, kind: model.DecisionExited, reason: "promoter exited"}, nil
	}

	promotionID := new(big.Int).SetUint64(e.PromotionID)
	processed, err := s.ledger.GetIsIntentProcessed(ctx, promotionID, common.HexToHash(e.IntentHash))
	if err != nil {
		return nil, fmt.Errorf("read intent processed: %w", err)
	}
	if processed {
		if details.CastHash == ([32]byte{}) {
			return &decision{entry: e, kind: model.DecisionReject, settled: true, reason: "rejected on chain"}, nil
		}
		return &decision{entry: e, kind: model.DecisionAccept, settled: true, castHash: details.CastHash, reason: "settled on chain"}, nil
	}

	if !e.HasCast() {
		if e.IsExpired(s.now()) {
			return reject(e, "expired without cast"), nil
		}
		return nil, nil
	}

	return s.verifyCast(ctx, e), nil
}

// verifyCast 抓取失败或缺少预期文案一律拒绝
func (s *SettlementService) verifyCast(ctx context.Context, e *model.IntentEntry) *decision {
	castHash, err := contract.PadCastHash(e.CastHash)
	if err != nil {
		return reject(e, "invalid cast hash")
	}

	expected, err := s.drafts.Get(ctx, e.PromotionID, e.FID)
	if err != nil {
		return reject(e, "expected text unavailable")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	cast, err := s.casts.GetCastByHash(fetchCtx, e.CastHash)
	if err != nil {
		var apiErr *social.APIError
		if errors.As(err, &apiErr) {
			logger.Warn("cast fetch error body", "status", apiErr.StatusCode, "body", apiErr.Body)
		}
		return reject(e, "cast fetch failed")
	}

	if !s.verifier.Verify(ctx, expected, cast.Text) {
		return reject(e, "content mismatch")
	}

	postTime := e.PostTime
	if postTime == 0 {
		postTime = s.now().Unix()
	}
	return &decision{entry: e, kind: model.DecisionAccept, castHash: castHash, postTime: postTime, reason: "content verified"}
}

func reject(e *model.IntentEntry, reason string) *decision {
	return &decision{entry: e, kind: model.DecisionReject, reason: reason}
}

// submit 模拟、发送并等待确认
func (s *SettlementService) submit(ctx context.Context, decisions []*decision) (*types.Receipt, error) {
	items := make([]contract.ProcessIntent, 0, len(decisions))
	for _, d := range decisions {
		items = append(items, contract.ProcessIntent{
			PromotionId: new(big.Int).SetUint64(d.entry.PromotionID),
			IntentHash:  common.HexToHash(d.entry.IntentHash),
			Wallet:      common.HexToAddress(d.entry.Wallet),
			CastHash:    d.castHash,
			PostTime:    big.NewInt(d.postTime),
		})
	}

	start := time.Now()
	if err := s.ledger.SimulateBatchProcessIntents(ctx, items); err != nil {
		metrics.RecordLedgerTx("batchProcessIntents", "simulate_failed", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %v", ErrBatchSimulation, err)
	}
	txHash, err := s.ledger.BatchProcessIntents(ctx, items)
	if err != nil {
		metrics.RecordLedgerTx("batchProcessIntents", "send_failed", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %v", ErrBatchSubmit, err)
	}
	receipt, err := s.ledger.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		metrics.RecordLedgerTx("batchProcessIntents", "receipt_failed", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: tx %s: %v", ErrBatchReceipt, txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		metrics.RecordLedgerTx("batchProcessIntents", "reverted", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: tx %s reverted", ErrBatchReceipt, txHash.Hex())
	}
	metrics.RecordLedgerTx("batchProcessIntents", "success", time.Since(start).Seconds())
	return receipt, nil
}

// notify 一次性通知所有通过的推广者，失败只记录
func (s *SettlementService) notify(ctx context.Context, log *zap.Logger, fids []uint64) {
	if s.notifier == nil || len(fids) == 0 {
		return
	}
	err := s.notifier.SendNotification(ctx, fids, social.Notification{
		Title:     "Your promotion payout is ready",
		Body:      "Your cast was verified and your reward has been settled.",
		TargetURL: s.appURL,
	})
	if err != nil {
		log.Warn("payout notification failed", zap.Int("fids", len(fids)), zap.Error(err))
	}
}

func (s *SettlementService) publish(ctx context.Context, log *zap.Logger, res *BatchResult, receipt *types.Receipt) {
	if s.publisher == nil {
		return
	}
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	event := &model.SettlementEvent{
		BatchID:     res.BatchID,
		TxHash:      res.TxHash,
		BlockNumber: block,
		Accepted:    res.Accepted,
		Rejected:    res.Rejected,
		SettledAt:   s.now().Unix(),
	}
	if err := s.publisher.PublishSettlement(ctx, event); err != nil {
		log.Warn("publish settlement event failed", zap.Error(err))
	}
}
