package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/cache"
)

const (
	testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testDomain = "hypeman.app"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func buildMessage(domain, address, nonce string, fid uint64, expires time.Time) string {
	return fmt.Sprintf(`%s wants you to sign in with your Ethereum account:
%s

Farcaster Auth

URI: https://%s/login
Version: 1
Chain ID: 10
Nonce: %s
Issued At: %s
Expiration Time: %s
Resources:
- farcaster://fid/%d`,
		domain, address, domain, nonce,
		testNow.Add(-time.Minute).Format(time.RFC3339),
		expires.Format(time.RFC3339),
		fid)
}

func signMessage(t *testing.T, message string) string {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func testAddress(t *testing.T) string {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func setupAuthenticator(t *testing.T) (*miniredis.Miniredis, *Authenticator) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cipher, err := cache.NewCipher("xor", "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	c := cache.NewClient(rdb, cipher)

	tokens, err := NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)
	tokens.now = func() time.Time { return testNow }

	a := NewAuthenticator(testDomain, NewNonceStore(c, 5*time.Minute), tokens)
	a.now = func() time.Time { return testNow }
	return mr, a
}

func TestParseMessage(t *testing.T) {
	addr := "0x00000000000000000000000000000000000000Aa"
	msg, err := ParseMessage(buildMessage(testDomain, addr, "abc12345", 42, testNow.Add(time.Hour)))
	require.NoError(t, err)

	assert.Equal(t, testDomain, msg.Domain)
	assert.Equal(t, "abc12345", msg.Nonce)
	assert.Equal(t, "Farcaster Auth", msg.Statement)
	assert.Equal(t, int64(10), msg.ChainID)
	assert.Equal(t, "1", msg.Version)
	require.NotNil(t, msg.ExpirationTime)
	assert.True(t, msg.ExpirationTime.Equal(testNow.Add(time.Hour)))

	fid, err := msg.FID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), fid)
}

func TestParseMessage_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"bad header":  "hello\n0x00000000000000000000000000000000000000aa",
		"bad address": "hypeman.app wants you to sign in with your Ethereum account:\nnot-an-address\n\nNonce: x",
		"no nonce":    "hypeman.app wants you to sign in with your Ethereum account:\n0x00000000000000000000000000000000000000aa\n\nVersion: 1",
		"bad time":    "hypeman.app wants you to sign in with your Ethereum account:\n0x00000000000000000000000000000000000000aa\n\nNonce: x\nIssued At: yesterday",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMessage(raw)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestMessage_FID_Missing(t *testing.T) {
	msg := &Message{Resources: []string{"https://example.com"}}
	_, err := msg.FID()
	assert.ErrorIs(t, err, ErrMissingFID)

	msg.Resources = []string{"farcaster://fid/abc"}
	_, err = msg.FID()
	assert.ErrorIs(t, err, ErrMissingFID)
}

func TestAuthenticator_Verify_Success(t *testing.T) {
	_, a := setupAuthenticator(t)
	ctx := context.Background()

	nonce, _, err := a.IssueNonce(ctx)
	require.NoError(t, err)

	addr := testAddress(t)
	message := buildMessage(testDomain, addr, nonce, 777, testNow.Add(time.Hour))
	session, err := a.Verify(ctx, message, signMessage(t, message), nonce)
	require.NoError(t, err)

	assert.Equal(t, uint64(777), session.FID)
	assert.Equal(t, addr, session.Address)
	assert.Equal(t, testNow.Add(time.Hour), session.ExpiresAt)

	claims, err := a.ParseToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(777), claims.FID)
	assert.Equal(t, addr, claims.Address)

	// nonce 单次有效
	_, err = a.Verify(ctx, message, signMessage(t, message), nonce)
	assert.ErrorIs(t, err, ErrNonceNotFound)
}

func TestAuthenticator_Verify_Rejections(t *testing.T) {
	_, a := setupAuthenticator(t)
	ctx := context.Background()
	addr := testAddress(t)

	t.Run("domain mismatch", func(t *testing.T) {
		nonce, _, err := a.IssueNonce(ctx)
		require.NoError(t, err)
		message := buildMessage("evil.app", addr, nonce, 1, testNow.Add(time.Hour))
		_, err = a.Verify(ctx, message, signMessage(t, message), nonce)
		assert.ErrorIs(t, err, ErrDomainMismatch)
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		message := buildMessage(testDomain, addr, "aaaaaaaa", 1, testNow.Add(time.Hour))
		_, err := a.Verify(ctx, message, signMessage(t, message), "bbbbbbbb")
		assert.ErrorIs(t, err, ErrNonceMismatch)
	})

	t.Run("expired", func(t *testing.T) {
		nonce, _, err := a.IssueNonce(ctx)
		require.NoError(t, err)
		message := buildMessage(testDomain, addr, nonce, 1, testNow.Add(-time.Second))
		_, err = a.Verify(ctx, message, signMessage(t, message), nonce)
		assert.ErrorIs(t, err, ErrMessageExpired)
	})

	t.Run("signer mismatch", func(t *testing.T) {
		nonce, _, err := a.IssueNonce(ctx)
		require.NoError(t, err)
		message := buildMessage(testDomain, "0x00000000000000000000000000000000000000aa", nonce, 1, testNow.Add(time.Hour))
		_, err = a.Verify(ctx, message, signMessage(t, message), nonce)
		assert.ErrorIs(t, err, ErrSignerMismatch)

		// 失败的校验不会消费 nonce
		ok, err := a.nonces.Exists(ctx, nonce)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown nonce", func(t *testing.T) {
		message := buildMessage(testDomain, addr, "neverissued1", 1, testNow.Add(time.Hour))
		_, err := a.Verify(ctx, message, signMessage(t, message), "neverissued1")
		assert.ErrorIs(t, err, ErrNonceNotFound)
	})
}

func TestNonceStore_Expires(t *testing.T) {
	mr, a := setupAuthenticator(t)
	ctx := context.Background()

	nonce, _, err := a.IssueNonce(ctx)
	require.NoError(t, err)
	assert.Len(t, nonce, 32)

	mr.FastForward(6 * time.Minute)
	assert.ErrorIs(t, a.nonces.Consume(ctx, nonce), ErrNonceNotFound)
}

func TestTokenManager_Parse_Invalid(t *testing.T) {
	m, err := NewTokenManager("secret-a", time.Hour)
	require.NoError(t, err)
	other, err := NewTokenManager("secret-b", time.Hour)
	require.NoError(t, err)

	token, _, err := other.Issue(1, "0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)

	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// 过期
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := m.Issue(1, "0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	m.now = time.Now
	_, err = m.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenManager("", time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)
}
