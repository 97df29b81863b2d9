package handler

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/codec"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/model"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/service"
)

// IntentService 意图服务接口
type IntentService interface {
	IssueIntent(ctx context.Context, req *service.IssueRequest) (*codec.SignedIntent, error)
	AttachCast(ctx context.Context, req *service.AttachCastRequest) (*model.IntentEntry, error)
	SaveDraft(ctx context.Context, fid, promotionID uint64, text string) error
	ListOwnIntents(ctx context.Context, fid, promotionID uint64) ([]*model.IntentEntry, error)
}

// IntentHandler 意图处理器
type IntentHandler struct {
	svc IntentService
}

// NewIntentHandler 创建意图处理器
func NewIntentHandler(svc IntentService) *IntentHandler {
	return &IntentHandler{svc: svc}
}

// IssueIntent 申请签名意图
// POST /api/v1/intents
func (h *IntentHandler) IssueIntent(c *gin.Context) {
	var req dto.IssueIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	wallet, bizErr := sessionWallet(GetAddress(c), req.Wallet)
	if bizErr != nil {
		Error(c, bizErr)
		return
	}

	signed, err := h.svc.IssueIntent(c.Request.Context(), &service.IssueRequest{
		FID:         GetFID(c),
		Wallet:      wallet,
		PromotionID: req.PromotionID,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, newIntentResponse(signed))
}

// AttachCast 提交已发布内容
// POST /api/v1/intents/cast
func (h *IntentHandler) AttachCast(c *gin.Context) {
	var req dto.AttachCastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	entry, err := h.svc.AttachCast(c.Request.Context(), &service.AttachCastRequest{
		FID:         GetFID(c),
		PromotionID: req.PromotionID,
		IntentHash:  req.IntentHash,
		CastHash:    req.CastHash,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, entry)
}

// SaveDraft 保存预期文案
// PUT /api/v1/promotions/:id/draft
func (h *IntentHandler) SaveDraft(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req dto.SaveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	if err := h.svc.SaveDraft(c.Request.Context(), GetFID(c), id, req.Text); err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, nil)
}

// ListOwnIntents 当前用户在推广下的意图
// GET /api/v1/promotions/:id/intents
func (h *IntentHandler) ListOwnIntents(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	entries, err := h.svc.ListOwnIntents(c.Request.Context(), GetFID(c), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, entries)
}

// sessionWallet 只允许为登录时签名的地址申请意图
func sessionWallet(session, requested string) (string, *dto.BizError) {
	if !common.IsHexAddress(session) {
		return "", dto.ErrUnauthorized
	}
	if requested == "" {
		return session, nil
	}
	if !common.IsHexAddress(requested) {
		return "", dto.ErrInvalidWalletAddr
	}
	if common.HexToAddress(requested) != common.HexToAddress(session) {
		return "", dto.ErrWalletMismatch
	}
	return session, nil
}

func newIntentResponse(s *codec.SignedIntent) *dto.IntentResponse {
	return &dto.IntentResponse{
		IntentHash:  s.Intent.IntentHash.Hex(),
		PromotionID: s.Intent.PromotionID.Uint64(),
		Wallet:      s.Intent.Wallet.Hex(),
		FID:         s.Intent.FID.Uint64(),
		Fee:         model.NewUint256(s.Intent.Fee),
		Expiry:      s.Intent.Expiry.Int64(),
		Nonce:       model.NewUint256(s.Intent.Nonce),
		Signature:   hexutil.Encode(s.Signature),
		MessageHash: s.Hash.Hex(),
	}
}
