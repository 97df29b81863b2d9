package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/codec"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

var (
	// ErrDomainMismatch 消息域名与服务不一致
	ErrDomainMismatch = errors.New("auth: domain mismatch")
	// ErrNonceMismatch 消息中的 nonce 与请求不一致
	ErrNonceMismatch = errors.New("auth: nonce mismatch")
	// ErrMessageExpired 消息不在有效期内
	ErrMessageExpired = errors.New("auth: message expired")
	// ErrSignerMismatch 签名者与声明地址不一致
	ErrSignerMismatch = errors.New("auth: signer mismatch")
)

// Session 登录结果
type Session struct {
	Token     string
	ExpiresAt time.Time
	FID       uint64
	Address   string
}

// Authenticator 登录校验
type Authenticator struct {
	domain string
	nonces *NonceStore
	tokens *TokenManager
	now    func() time.Time
}

// NewAuthenticator 创建登录校验器
// domain 为空时不校验域名
func NewAuthenticator(domain string, nonces *NonceStore, tokens *TokenManager) *Authenticator {
	return &Authenticator{
		domain: domain,
		nonces: nonces,
		tokens: tokens,
		now:    time.Now,
	}
}

// IssueNonce 生成登录挑战
func (a *Authenticator) IssueNonce(ctx context.Context) (string, time.Time, error) {
	return a.nonces.Issue(ctx)
}

// Verify 校验登录消息与签名，成功后消费 nonce 并签发令牌
func (a *Authenticator) Verify(ctx context.Context, message, signature, nonce string) (*Session, error) {
	msg, err := ParseMessage(message)
	if err != nil {
		return nil, err
	}
	if a.domain != "" && !strings.EqualFold(msg.Domain, a.domain) {
		return nil, fmt.Errorf("%w: %s", ErrDomainMismatch, msg.Domain)
	}
	if msg.Nonce != nonce {
		return nil, ErrNonceMismatch
	}
	if !msg.ValidAt(a.now()) {
		return nil, ErrMessageExpired
	}

	fid, err := msg.FID()
	if err != nil {
		return nil, err
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrInvalidSignature, err)
	}
	signer, err := codec.RecoverMessageSigner([]byte(message), sig)
	if err != nil {
		return nil, err
	}
	if signer != msg.Address {
		return nil, fmt.Errorf("%w: recovered %s", ErrSignerMismatch, signer.Hex())
	}

	// 签名有效后才消费，避免无效请求烧掉挑战
	if err := a.nonces.Consume(ctx, nonce); err != nil {
		return nil, err
	}

	token, expiresAt, err := a.tokens.Issue(fid, msg.Address.Hex())
	if err != nil {
		return nil, err
	}

	logger.Info("user signed in", "fid", fid, "address", msg.Address.Hex())
	return &Session{
		Token:     token,
		ExpiresAt: expiresAt,
		FID:       fid,
		Address:   msg.Address.Hex(),
	}, nil
}

// ParseToken 校验会话令牌
func (a *Authenticator) ParseToken(token string) (*Claims, error) {
	return a.tokens.Parse(token)
}
