package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/cache"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/codec"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/metrics"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/scoring"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/social"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

const (
	// DefaultIntentTTL 意图有效期
	DefaultIntentTTL = time.Hour
	// DefaultDraftTTL 预期文案保留时间
	DefaultDraftTTL = 7 * 24 * time.Hour
	// maxDraftLength 文案长度上限 (字节)
	maxDraftLength = 1024
)

// IssueRequest 签发请求
type IssueRequest struct {
	FID         uint64
	Wallet      string
	PromotionID uint64
}

// AttachCastRequest 提交已发布内容
type AttachCastRequest struct {
	FID         uint64
	PromotionID uint64
	IntentHash  string
	CastHash    string
}

// IntentServiceConfig 配置
type IntentServiceConfig struct {
	TTL      time.Duration
	DraftTTL time.Duration
}

// IntentService 意图签发与内容提交
type IntentService struct {
	promotions *cache.PromotionStore
	intents    *cache.IntentStore
	drafts     *cache.DraftStore
	scores     ScoreProvider
	casts      CastSource
	signer     *codec.Signer
	ttl        time.Duration
	draftTTL   time.Duration
	now        func() time.Time
}

// NewIntentService 创建
func NewIntentService(
	promotions *cache.PromotionStore,
	intents *cache.IntentStore,
	drafts *cache.DraftStore,
	scores ScoreProvider,
	casts CastSource,
	signer *codec.Signer,
	cfg *IntentServiceConfig,
) *IntentService {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultIntentTTL
	}
	draftTTL := cfg.DraftTTL
	if draftTTL == 0 {
		draftTTL = DefaultDraftTTL
	}
	return &IntentService{
		promotions: promotions,
		intents:    intents,
		drafts:     drafts,
		scores:     scores,
		casts:      casts,
		signer:     signer,
		ttl:        ttl,
		draftTTL:   draftTTL,
		now:        time.Now,
	}
}

func (r *IssueRequest) validate() error {
	var missing []string
	if r.FID == 0 {
		missing = append(missing, "fid")
	}
	if r.Wallet == "" {
		missing = append(missing, "wallet")
	}
	if r.PromotionID == 0 {
		missing = append(missing, "promotion_id")
	}
	if len(missing) > 0 {
		return dto.ErrMissingFields.WithMessage("missing fields: " + strings.Join(missing, ", "))
	}
	if !common.IsHexAddress(r.Wallet) {
		return dto.ErrInvalidWalletAddr
	}
	return nil
}

// loadActivePromotion 读取缓存中的推广活动
func (s *IntentService) loadActivePromotion(ctx context.Context, id uint64) (*model.Promotion, error) {
	p, err := s.promotions.Get(ctx, id)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, dto.ErrPromotionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load promotion %d: %w", id, err)
	}
	if !p.IsActive() {
		return nil, dto.ErrPromotionNotActive
	}
	return p, nil
}

// IssueIntent 计算单价、校验预算后签发意图
// 参数校验在任何缓存或链上访问之前完成
func (s *IntentService) IssueIntent(ctx context.Context, req *IssueRequest) (*codec.SignedIntent, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	p, err := s.loadActivePromotion(ctx, req.PromotionID)
	if err != nil {
		return nil, err
	}

	score, err := s.scores.GetOrCompute(ctx, req.FID)
	if err != nil {
		return nil, err
	}
	if p.MinScore > 0 && score.Score < p.MinScore {
		return nil, dto.ErrNotEligible.WithMessage("reputation score below promotion minimum")
	}
	if p.ProUserOnly && !score.ProUser {
		return nil, dto.ErrNotEligible.WithMessage("promotion is limited to pro users")
	}

	fee := scoring.FeeForTier(p.BaseRate.Big(), score.Tier)
	if p.AvailableBudget().Big().Cmp(fee) < 0 {
		return nil, dto.ErrInsufficientBudget
	}

	var intentHash common.Hash
	if _, err := rand.Read(intentHash[:]); err != nil {
		return nil, fmt.Errorf("generate intent hash: %w", err)
	}

	nonce, err := s.intents.NextNonce(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate nonce: %w", err)
	}

	now := s.now()
	wallet := common.HexToAddress(req.Wallet)
	intent := &codec.Intent{
		IntentHash:  intentHash,
		PromotionID: new(big.Int).SetUint64(req.PromotionID),
		Wallet:      wallet,
		FID:         new(big.Int).SetUint64(req.FID),
		Fee:         fee,
		Expiry:      big.NewInt(now.Add(s.ttl).Unix()),
		Nonce:       new(big.Int).SetUint64(nonce),
	}

	signed, err := s.signer.SignIntent(intent)
	if err != nil {
		return nil, err
	}

	issued := &model.IssuedIntent{
		IntentHash:  intentHash.Hex(),
		PromotionID: req.PromotionID,
		Wallet:      wallet.Hex(),
		FID:         req.FID,
		Fee:         model.NewUint256(fee),
		Expiry:      intent.Expiry.Int64(),
		Nonce:       model.NewUint256(intent.Nonce),
		Signature:   hexutil.Encode(signed.Signature),
		IssuedAt:    now.Unix(),
	}
	if err := s.intents.SaveIssued(ctx, issued); err != nil {
		return nil, fmt.Errorf("save issued intent: %w", err)
	}

	metrics.IntentsIssuedTotal.WithLabelValues(score.Tier.String()).Inc()
	logger.Info("intent issued",
		"promotion_id", req.PromotionID,
		"fid", req.FID,
		"intent_hash", issued.IntentHash,
		"tier", score.Tier.String(),
		"fee", issued.Fee.String(),
		"nonce", nonce,
	)
	return signed, nil
}

func (r *AttachCastRequest) validate() error {
	var missing []string
	if r.FID == 0 {
		missing = append(missing, "fid")
	}
	if r.PromotionID == 0 {
		missing = append(missing, "promotion_id")
	}
	if r.IntentHash == "" {
		missing = append(missing, "intent_hash")
	}
	if r.CastHash == "" {
		missing = append(missing, "cast_hash")
	}
	if len(missing) > 0 {
		return dto.ErrMissingFields.WithMessage("missing fields: " + strings.Join(missing, ", "))
	}
	if _, err := hexutil.Decode(r.CastHash); err != nil {
		return dto.ErrInvalidParams.WithMessage("cast_hash must be 0x-prefixed hex")
	}
	return nil
}

// AttachCast 校验内容作者后写入 cast_hash
func (s *IntentService) AttachCast(ctx context.Context, req *AttachCastRequest) (*model.IntentEntry, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	key := model.IntentKey{IntentHash: req.IntentHash, PromotionID: req.PromotionID, FID: req.FID}
	entry, err := s.intents.Find(ctx, key)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, dto.ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	if entry.Processed {
		return nil, dto.ErrIntentAlreadyProcessed
	}
	if !entry.HasCast() && entry.IsExpired(s.now()) {
		return nil, dto.ErrIntentExpired
	}

	cast, err := s.casts.GetCastByHash(ctx, req.CastHash)
	if errors.Is(err, social.ErrCastNotFound) {
		return nil, dto.ErrCastNotFound
	}
	if err != nil {
		return nil, upstreamError("get cast", err)
	}
	if cast.Author.FID != req.FID {
		return nil, dto.ErrCastAuthorMismatch
	}

	postTime := cast.Timestamp.Unix()
	if cast.Timestamp.IsZero() {
		postTime = s.now().Unix()
	}

	updated, err := s.intents.Update(ctx, key, func(e *model.IntentEntry) error {
		if e.Processed {
			return dto.ErrIntentAlreadyProcessed
		}
		e.CastHash = cast.Hash
		e.PostTime = postTime
		return nil
	})
	if errors.Is(err, cache.ErrNotFound) {
		return nil, dto.ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}

	logger.Info("cast attached",
		"promotion_id", req.PromotionID,
		"fid", req.FID,
		"intent_hash", req.IntentHash,
		"cast_hash", cast.Hash,
	)
	return updated, nil
}

// SaveDraft 保存预期文案，结算时用于内容校验
func (s *IntentService) SaveDraft(ctx context.Context, fid, promotionID uint64, text string) error {
	text = strings.TrimSpace(text)
	if fid == 0 || promotionID == 0 || text == "" {
		return dto.ErrMissingFields
	}
	if len(text) > maxDraftLength {
		return dto.ErrInvalidParams.WithMessage("draft text too long")
	}
	if _, err := s.loadActivePromotion(ctx, promotionID); err != nil {
		return err
	}
	return s.drafts.Save(ctx, promotionID, fid, text, s.draftTTL)
}

// ListOwnIntents 用户在某推广下的意图
func (s *IntentService) ListOwnIntents(ctx context.Context, fid, promotionID uint64) ([]*model.IntentEntry, error) {
	all, err := s.intents.List(ctx, promotionID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.IntentEntry, 0)
	for _, e := range all {
		if e.FID == fid {
			out = append(out, e)
		}
	}
	return out, nil
}
