package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/cache"
)

// ErrNonceNotFound 挑战不存在、已过期或已被使用
var ErrNonceNotFound = errors.New("auth: nonce not found")

// NonceStore 登录挑战存储，单次有效
type NonceStore struct {
	cache *cache.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewNonceStore 创建挑战存储
func NewNonceStore(c *cache.Client, ttl time.Duration) *NonceStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &NonceStore{cache: c, ttl: ttl, now: time.Now}
}

// Issue 生成新的挑战
// EIP-4361 要求 nonce 仅含字母数字
func (s *NonceStore) Issue(ctx context.Context) (string, time.Time, error) {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	expiresAt := s.now().Add(s.ttl)
	if err := s.cache.Set(ctx, cache.AuthNonceKey(nonce), "1", s.ttl); err != nil {
		return "", time.Time{}, err
	}
	return nonce, expiresAt, nil
}

// Consume 原子地取出并删除挑战
func (s *NonceStore) Consume(ctx context.Context, nonce string) error {
	if nonce == "" {
		return ErrNonceNotFound
	}
	if _, err := s.cache.GetDel(ctx, cache.AuthNonceKey(nonce)); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return ErrNonceNotFound
		}
		return err
	}
	return nil
}

// Exists 判断挑战是否仍有效
func (s *NonceStore) Exists(ctx context.Context, nonce string) (bool, error) {
	if nonce == "" {
		return false, nil
	}
	return s.cache.Exists(ctx, cache.AuthNonceKey(nonce))
}
