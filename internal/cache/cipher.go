package cache

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// KeyLength 加密密钥长度
const KeyLength = 32

var (
	ErrInvalidKey        = errors.New("cache: invalid encryption key")
	ErrDecrypt           = errors.New("cache: decrypt failed")
	ErrUnsupportedCipher = errors.New("cache: unsupported cipher")
)

// Cipher 值加密接口
// Decrypt(Encrypt(v)) == v
type Cipher interface {
	Encrypt(plain []byte) (string, error)
	Decrypt(s string) ([]byte, error)
}

// ParseKey 解析密钥: 64 位 hex 或 32 字节原文
func ParseKey(s string) ([]byte, error) {
	if len(s) == 2*KeyLength {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	if len(s) == KeyLength {
		return []byte(s), nil
	}
	return nil, fmt.Errorf("%w: expected %d bytes or %d hex chars", ErrInvalidKey, KeyLength, 2*KeyLength)
}

// NewCipher 按名称创建: xor | aes-gcm
func NewCipher(kind, key string) (Cipher, error) {
	k, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "", "xor":
		return NewXORCipher(k)
	case "aes-gcm":
		return NewGCMCipher(k)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCipher, kind)
	}
}

// XORCipher 循环密钥异或 + base64
// 兼容历史数据，不提供机密性保证
type XORCipher struct {
	key []byte
}

// NewXORCipher 创建 XOR 加密器
func NewXORCipher(key []byte) (*XORCipher, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKey
	}
	k := make([]byte, KeyLength)
	copy(k, key)
	return &XORCipher{key: k}, nil
}

func (x *XORCipher) xor(in []byte) []byte {
	out := make([]byte, len(in))
	for i := range in {
		out[i] = in[i] ^ x.key[i%len(x.key)]
	}
	return out
}

// Encrypt 加密
func (x *XORCipher) Encrypt(plain []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(x.xor(plain)), nil
}

// Decrypt 解密
func (x *XORCipher) Decrypt(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return x.xor(raw), nil
}

// GCMCipher AES-256-GCM，密文格式 base64(nonce || ciphertext)
type GCMCipher struct {
	aead cipher.AEAD
}

// NewGCMCipher 创建 AES-GCM 加密器
func NewGCMCipher(key []byte) (*GCMCipher, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &GCMCipher{aead: aead}, nil
}

// Encrypt 加密
func (g *GCMCipher) Encrypt(plain []byte) (string, error) {
	nonce := make([]byte, g.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := g.aead.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 解密
func (g *GCMCipher) Decrypt(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	ns := g.aead.NonceSize()
	if len(raw) < ns+g.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	plain, err := g.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plain, nil
}
