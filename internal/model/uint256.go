package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
)

// Uint256 无符号大整数，JSON 中以十进制字符串表示，避免精度丢失
// 零值表示 0
type Uint256 struct {
	i *big.Int
}

// NewUint256 从 big.Int 创建，nil 视为 0
func NewUint256(v *big.Int) Uint256 {
	if v == nil || v.Sign() == 0 {
		return Uint256{}
	}
	return Uint256{i: new(big.Int).Set(v)}
}

// Uint256FromUint64 从 uint64 创建
func Uint256FromUint64(v uint64) Uint256 {
	return NewUint256(new(big.Int).SetUint64(v))
}

// ParseUint256 解析十进制或 0x 十六进制字符串
func ParseUint256(s string) (Uint256, error) {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return Uint256{}, fmt.Errorf("invalid uint256 %q", s)
	}
	if v.Sign() < 0 {
		return Uint256{}, fmt.Errorf("negative uint256 %q", s)
	}
	if v.BitLen() > 256 {
		return Uint256{}, fmt.Errorf("uint256 overflow %q", s)
	}
	return NewUint256(v), nil
}

// Big 返回副本
func (u Uint256) Big() *big.Int {
	if u.i == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(u.i)
}

// Uint64 截断为 uint64
func (u Uint256) Uint64() uint64 {
	if u.i == nil {
		return 0
	}
	return u.i.Uint64()
}

// IsZero 是否为 0
func (u Uint256) IsZero() bool {
	return u.i == nil || u.i.Sign() == 0
}

// Cmp 比较大小
func (u Uint256) Cmp(o Uint256) int {
	return u.Big().Cmp(o.Big())
}

func (u Uint256) String() string {
	if u.i == nil {
		return "0"
	}
	return u.i.String()
}

// MarshalJSON 序列化为字符串
func (u Uint256) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON 兼容字符串和裸数字两种历史格式
func (u *Uint256) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*u = Uint256{}
		return nil
	}

	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	if s == "" {
		*u = Uint256{}
		return nil
	}

	v, err := ParseUint256(s)
	if err != nil {
		return err
	}
	*u = v
	return nil
}
