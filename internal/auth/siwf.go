// Package auth 实现 Sign-In-With-Farcaster 登录与 JWT 会话
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	headerSuffix   = " wants you to sign in with your Ethereum account:"
	fidResourceTag = "farcaster://fid/"
)

var (
	// ErrMalformedMessage 登录消息格式错误
	ErrMalformedMessage = errors.New("auth: malformed sign-in message")
	// ErrMissingFID 登录消息缺少 fid 资源
	ErrMissingFID = errors.New("auth: sign-in message has no fid resource")
)

// Message 解析后的登录消息
type Message struct {
	Domain         string
	Address        common.Address
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	Resources      []string
}

// ParseMessage 解析 EIP-4361 格式的登录消息
func ParseMessage(raw string) (*Message, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return nil, ErrMalformedMessage
	}

	header := strings.TrimSpace(lines[0])
	if !strings.HasSuffix(header, headerSuffix) {
		return nil, fmt.Errorf("%w: header", ErrMalformedMessage)
	}
	msg := &Message{Domain: strings.TrimSuffix(header, headerSuffix)}
	if msg.Domain == "" {
		return nil, fmt.Errorf("%w: empty domain", ErrMalformedMessage)
	}

	addr := strings.TrimSpace(lines[1])
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("%w: address %q", ErrMalformedMessage, addr)
	}
	msg.Address = common.HexToAddress(addr)

	inResources := false
	for _, line := range lines[2:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if inResources {
			if strings.HasPrefix(line, "- ") {
				msg.Resources = append(msg.Resources, strings.TrimPrefix(line, "- "))
				continue
			}
			inResources = false
		}

		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			if line == "Resources:" {
				inResources = true
				continue
			}
			// 首个非字段行视为声明
			if msg.Statement == "" && msg.URI == "" {
				msg.Statement = line
			}
			continue
		}

		var err error
		switch key {
		case "URI":
			msg.URI = value
		case "Version":
			msg.Version = value
		case "Chain ID":
			msg.ChainID, err = strconv.ParseInt(value, 10, 64)
		case "Nonce":
			msg.Nonce = value
		case "Issued At":
			msg.IssuedAt, err = time.Parse(time.RFC3339, value)
		case "Expiration Time":
			var t time.Time
			if t, err = time.Parse(time.RFC3339, value); err == nil {
				msg.ExpirationTime = &t
			}
		case "Not Before":
			var t time.Time
			if t, err = time.Parse(time.RFC3339, value); err == nil {
				msg.NotBefore = &t
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, key, err)
		}
	}

	if msg.Nonce == "" {
		return nil, fmt.Errorf("%w: missing nonce", ErrMalformedMessage)
	}
	return msg, nil
}

// FID 从资源列表中提取 farcaster://fid/N
func (m *Message) FID() (uint64, error) {
	for _, r := range m.Resources {
		if !strings.HasPrefix(r, fidResourceTag) {
			continue
		}
		fid, err := strconv.ParseUint(strings.TrimPrefix(r, fidResourceTag), 10, 64)
		if err != nil || fid == 0 {
			return 0, fmt.Errorf("%w: %q", ErrMissingFID, r)
		}
		return fid, nil
	}
	return 0, ErrMissingFID
}

// ValidAt 检查时间窗口
func (m *Message) ValidAt(now time.Time) bool {
	if m.ExpirationTime != nil && !now.Before(*m.ExpirationTime) {
		return false
	}
	if m.NotBefore != nil && now.Before(*m.NotBefore) {
		return false
	}
	return true
}
