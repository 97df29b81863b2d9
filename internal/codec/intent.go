// Package codec 意图编码与签名
// 编码结果必须与链上验签合约逐字节一致
package codec

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidIntent    = errors.New("invalid intent")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidKey       = errors.New("invalid private key")
)

// SignatureLength r || s || v
const SignatureLength = 65

// intentArguments (bytes32 intentHash, uint256 promotionId, address wallet, uint256 fid,
// uint256 fee, uint256 expiry, uint256 nonce)
var intentArguments abi.Arguments

func init() {
	bytes32, _ := abi.NewType("bytes32", "", nil)
	uint256, _ := abi.NewType("uint256", "", nil)
	address, _ := abi.NewType("address", "", nil)

	intentArguments = abi.Arguments{
		{Name: "intentHash", Type: bytes32},
		{Name: "promotionId", Type: uint256},
		{Name: "wallet", Type: address},
		{Name: "fid", Type: uint256},
		{Name: "fee", Type: uint256},
		{Name: "expiry", Type: uint256},
		{Name: "nonce", Type: uint256},
	}
}

// Intent 待签名意图
type Intent struct {
	IntentHash  common.Hash
	PromotionID *big.Int
	Wallet      common.Address
	FID         *big.Int
	Fee         *big.Int
	Expiry      *big.Int
	Nonce       *big.Int
}

// SignedIntent 签名结果
type SignedIntent struct {
	Intent    Intent
	Signature []byte
	Hash      common.Hash
}

func (i *Intent) validate() error {
	if i == nil {
		return fmt.Errorf("%w: nil", ErrInvalidIntent)
	}
	fields := map[string]*big.Int{
		"promotionId": i.PromotionID,
		"fid":         i.FID,
		"fee":         i.Fee,
		"expiry":      i.Expiry,
		"nonce":       i.Nonce,
	}
	for name, v := range fields {
		if v == nil {
			return fmt.Errorf("%w: %s is nil", ErrInvalidIntent, name)
		}
		if v.Sign() < 0 || v.BitLen() > 256 {
			return fmt.Errorf("%w: %s out of range", ErrInvalidIntent, name)
		}
	}
	return nil
}

// EncodeIntent 标准 ABI 编码 (非 packed)，7 个 32 字节字
func EncodeIntent(intent *Intent) ([]byte, error) {
	if err := intent.validate(); err != nil {
		return nil, err
	}

	encoded, err := intentArguments.Pack(
		[32]byte(intent.IntentHash),
		intent.PromotionID,
		intent.Wallet,
		intent.FID,
		intent.Fee,
		intent.Expiry,
		intent.Nonce,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	return encoded, nil
}

// HashIntent keccak256(encoded)
func HashIntent(encoded []byte) common.Hash {
	return crypto.Keccak256Hash(encoded)
}

// Sign personal-sign 签名，v 取 27/28
func Sign(hash common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, ErrInvalidKey
	}
	sig, err := crypto.Sign(accounts.TextHash(hash.Bytes()), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverSigner 从 personal-sign 签名恢复地址
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	return RecoverMessageSigner(hash.Bytes(), sig)
}

// RecoverMessageSigner 对任意消息的 personal-sign 签名恢复地址
func RecoverMessageSigner(message, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: bad recovery id", ErrInvalidSignature)
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify 校验签名是否来自 signer
func Verify(hash common.Hash, sig []byte, signer common.Address) bool {
	recovered, err := RecoverSigner(hash, sig)
	if err != nil {
		return false
	}
	return recovered == signer
}

// Signer 服务端管理员密钥签名器
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner 从 hex 私钥创建
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewSignerFromKey(key), nil
}

// NewSignerFromKey 从私钥创建
func NewSignerFromKey(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address 管理员地址
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKey 交易签名使用
func (s *Signer) PrivateKey() *ecdsa.PrivateKey {
	return s.key
}

// SignIntent 编码、哈希并签名
func (s *Signer) SignIntent(intent *Intent) (*SignedIntent, error) {
	encoded, err := EncodeIntent(intent)
	if err != nil {
		return nil, err
	}

	hash := HashIntent(encoded)
	sig, err := Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign intent: %w", err)
	}

	return &SignedIntent{
		Intent:    *intent,
		Signature: sig,
		Hash:      hash,
	}, nil
}
