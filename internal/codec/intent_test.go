package codec

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// newTestIntent 构造固定向量
func newTestIntent() *Intent {
	return &Intent{
		IntentHash:  common.HexToHash("0x" + strings.Repeat("11", 32)),
		PromotionID: big.NewInt(1),
		Wallet:      common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		FID:         big.NewInt(2),
		Fee:         big.NewInt(1_000_000),
		Expiry:      big.NewInt(1_700_000_000),
		Nonce:       big.NewInt(7),
	}
}

func word(v uint64) string {
	return fmt.Sprintf("%064x", v)
}

func TestEncodeIntent_FixedVector(t *testing.T) {
	encoded, err := EncodeIntent(newTestIntent())
	require.NoError(t, err)

	expected := strings.Repeat("11", 32) +
		word(1) +
		word(0xaa) +
		word(2) +
		word(1_000_000) +
		word(1_700_000_000) +
		word(7)

	assert.Len(t, encoded, 7*32)
	assert.Equal(t, expected, hex.EncodeToString(encoded))
	assert.Equal(t, "000000000000000000000000000000000000000000000000000000006553f100", hex.EncodeToString(encoded[5*32:6*32]))
}

func TestEncodeIntent_Deterministic(t *testing.T) {
	a, err := EncodeIntent(newTestIntent())
	require.NoError(t, err)
	b, err := EncodeIntent(newTestIntent())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, HashIntent(a), HashIntent(b))
	assert.Equal(t, crypto.Keccak256Hash(a), HashIntent(a))
}

func TestEncodeIntent_Invalid(t *testing.T) {
	intent := newTestIntent()
	intent.Fee = nil
	_, err := EncodeIntent(intent)
	assert.ErrorIs(t, err, ErrInvalidIntent)

	intent = newTestIntent()
	intent.Nonce = big.NewInt(-1)
	_, err = EncodeIntent(intent)
	assert.ErrorIs(t, err, ErrInvalidIntent)

	_, err = EncodeIntent(nil)
	assert.ErrorIs(t, err, ErrInvalidIntent)
}

func TestSigner_SignIntent(t *testing.T) {
	signer, err := NewSigner(testAdminKey)
	require.NoError(t, err)

	signed, err := signer.SignIntent(newTestIntent())
	require.NoError(t, err)

	assert.Len(t, signed.Signature, SignatureLength)
	v := signed.Signature[64]
	assert.True(t, v == 27 || v == 28)
	assert.True(t, Verify(signed.Hash, signed.Signature, signer.Address()))

	recovered, err := RecoverSigner(signed.Hash, signed.Signature)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)

	// 确定性签名 (RFC6979)
	again, err := signer.SignIntent(newTestIntent())
	require.NoError(t, err)
	assert.Equal(t, signed.Signature, again.Signature)
}

func TestSigner_MutationInvalidatesSignature(t *testing.T) {
	signer, err := NewSigner("0x" + testAdminKey)
	require.NoError(t, err)

	signed, err := signer.SignIntent(newTestIntent())
	require.NoError(t, err)

	mutations := map[string]func(i *Intent){
		"intentHash":  func(i *Intent) { i.IntentHash[0] ^= 0x01 },
		"promotionId": func(i *Intent) { i.PromotionID = big.NewInt(2) },
		"wallet":      func(i *Intent) { i.Wallet = common.HexToAddress("0x00000000000000000000000000000000000000ab") },
		"fid":         func(i *Intent) { i.FID = big.NewInt(3) },
		"fee":         func(i *Intent) { i.Fee = big.NewInt(1_000_001) },
		"expiry":      func(i *Intent) { i.Expiry = big.NewInt(1_700_000_001) },
		"nonce":       func(i *Intent) { i.Nonce = big.NewInt(8) },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			intent := newTestIntent()
			mutate(intent)

			encoded, err := EncodeIntent(intent)
			require.NoError(t, err)
			hash := HashIntent(encoded)

			assert.NotEqual(t, signed.Hash, hash)
			assert.False(t, Verify(hash, signed.Signature, signer.Address()))
		})
	}
}

func TestVerify_WrongSigner(t *testing.T) {
	signer, err := NewSigner(testAdminKey)
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	signed, err := signer.SignIntent(newTestIntent())
	require.NoError(t, err)

	assert.False(t, Verify(signed.Hash, signed.Signature, crypto.PubkeyToAddress(other.PublicKey)))
	assert.False(t, Verify(signed.Hash, signed.Signature[:64], signer.Address()))
}

func TestNewSigner_InvalidKey(t *testing.T) {
	_, err := NewSigner("not-a-key")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
