// Package ai 文本模型客户端 (OpenAI 兼容接口)
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

var (
	ErrNotConfigured = errors.New("ai: api key not configured")
	ErrEmptyResponse = errors.New("ai: empty completion")
)

// Config 模型配置
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration // 单次请求超时
	MaxRetries int
}

// Client 带超时与有限重试的对话补全
type Client struct {
	client     *openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

// NewClient 创建客户端，未配置 key 时返回 ErrNotConfigured
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		client:     openai.NewClientWithConfig(oc),
		model:      model,
		timeout:    timeout,
		maxRetries: retries,
		backoff:    500 * time.Millisecond,
	}, nil
}

// Complete 发送 system + user 消息，jsonMode 要求模型输出 JSON 对象
func (c *Client) Complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		content, err := c.once(ctx, req)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warn("text model call failed",
			"model", c.model,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return "", fmt.Errorf("text model: %w", lastErr)
}

func (c *Client) once(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
