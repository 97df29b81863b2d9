package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/auth"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/codec"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/dto"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// Authenticator 登录服务接口
type Authenticator interface {
	IssueNonce(ctx context.Context) (string, time.Time, error)
	Verify(ctx context.Context, message, signature, nonce string) (*auth.Session, error)
}

// AuthHandler 登录处理器
type AuthHandler struct {
	auth Authenticator
}

// NewAuthHandler 创建登录处理器
func NewAuthHandler(a Authenticator) *AuthHandler {
	return &AuthHandler{auth: a}
}

// Nonce 生成登录挑战
// POST /api/auth/nonce
func (h *AuthHandler) Nonce(c *gin.Context) {
	nonce, expiresAt, err := h.auth.IssueNonce(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	Success(c, &dto.NonceResponse{Nonce: nonce, ExpiresAt: expiresAt.Unix()})
}

// Verify 校验登录签名并签发令牌
// POST /api/auth/verify
func (h *AuthHandler) Verify(c *gin.Context) {
	var req dto.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if req.Message == "" || req.Signature == "" || req.Nonce == "" {
		Error(c, dto.ErrMissingFields)
		return
	}

	session, err := h.auth.Verify(c.Request.Context(), req.Message, req.Signature, req.Nonce)
	if err != nil {
		if bizErr := authError(err); bizErr != nil {
			logger.Warn("sign-in rejected", "ip", c.ClientIP(), "error", err)
			Error(c, bizErr)
			return
		}
		handleServiceError(c, err)
		return
	}

	Success(c, &dto.SessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.Unix(),
		FID:       session.FID,
		Address:   session.Address,
	})
}

// authError 登录错误映射为业务错误
func authError(err error) *dto.BizError {
	switch {
	case errors.Is(err, auth.ErrMalformedMessage), errors.Is(err, auth.ErrMissingFID):
		return dto.ErrInvalidParams.WithMessage("malformed sign-in message")
	case errors.Is(err, auth.ErrNonceNotFound), errors.Is(err, auth.ErrNonceMismatch):
		return dto.ErrInvalidNonce
	case errors.Is(err, auth.ErrMessageExpired):
		return dto.ErrSignatureExpired
	case errors.Is(err, auth.ErrDomainMismatch),
		errors.Is(err, auth.ErrSignerMismatch),
		errors.Is(err, codec.ErrInvalidSignature):
		return dto.ErrInvalidSignature
	}
	return nil
}
