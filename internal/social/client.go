// Package social Farcaster 内容 API 客户端 (Neynar v2 接口)
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// ErrCastNotFound 内容不存在
var ErrCastNotFound = errors.New("social: cast not found")

// maxErrorBody 错误响应体最多记录的字节数
const maxErrorBody = 2048

// APIError 非 2xx 响应
type APIError struct {
	StatusCode int
	Body       string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("social api %s: status %d", e.Path, e.StatusCode)
}

// Config 客户端配置
type Config struct {
	BaseURL       string
	APIKey        string
	RatePerSecond float64
	Timeout       time.Duration
}

// Client 限流的 REST 客户端
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient 创建客户端
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// Cast 内容
type Cast struct {
	Hash      string    `json:"hash"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Author    User      `json:"author"`
	Embeds    []Embed   `json:"embeds"`
	Reactions struct {
		LikesCount   int64 `json:"likes_count"`
		RecastsCount int64 `json:"recasts_count"`
	} `json:"reactions"`
	Replies struct {
		Count int64 `json:"count"`
	} `json:"replies"`
}

// Embed 内嵌链接
type Embed struct {
	URL string `json:"url"`
}

// EmbedURLs 内嵌链接列表
func (c *Cast) EmbedURLs() []string {
	out := make([]string, 0, len(c.Embeds))
	for _, e := range c.Embeds {
		if e.URL != "" {
			out = append(out, e.URL)
		}
	}
	return out
}

// User 用户
type User struct {
	FID           uint64  `json:"fid"`
	Username      string  `json:"username"`
	DisplayName   string  `json:"display_name"`
	FollowerCount int64   `json:"follower_count"`
	PowerBadge    bool    `json:"power_badge"`
	Score         float64 `json:"score"`
	Experimental  struct {
		NeynarUserScore float64 `json:"neynar_user_score"`
	} `json:"experimental"`
	VerifiedAddresses struct {
		EthAddresses []string `json:"eth_addresses"`
	} `json:"verified_addresses"`
}

// ReputationScore 信誉分，兼容新旧字段
func (u *User) ReputationScore() float64 {
	if u.Score > 0 {
		return u.Score
	}
	return u.Experimental.NeynarUserScore
}

// Notification 推送通知
type Notification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	TargetURL string `json:"target_url"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("social api %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw), Path: path}
		logger.Warn("social api error",
			"path", path,
			"status", resp.StatusCode,
			"body", apiErr.Body,
		)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode social api %s: %w", path, err)
	}
	return nil
}

func (c *Client) getCast(ctx context.Context, identifier, kind string) (*Cast, error) {
	var resp struct {
		Cast *Cast `json:"cast"`
	}
	q := url.Values{"identifier": {identifier}, "type": {kind}}
	if err := c.do(ctx, http.MethodGet, "/v2/farcaster/cast", q, nil, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrCastNotFound
		}
		return nil, err
	}
	if resp.Cast == nil {
		return nil, ErrCastNotFound
	}
	return resp.Cast, nil
}

// GetCastByHash 按 hash 获取内容
func (c *Client) GetCastByHash(ctx context.Context, hash string) (*Cast, error) {
	return c.getCast(ctx, hash, "hash")
}

// GetCastByURL 按链接获取内容
func (c *Client) GetCastByURL(ctx context.Context, castURL string) (*Cast, error) {
	return c.getCast(ctx, castURL, "url")
}

// GetUser 获取用户
func (c *Client) GetUser(ctx context.Context, fid uint64) (*User, error) {
	var resp struct {
		Users []User `json:"users"`
	}
	q := url.Values{"fids": {strconv.FormatUint(fid, 10)}}
	if err := c.do(ctx, http.MethodGet, "/v2/farcaster/user/bulk", q, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Users) == 0 {
		return nil, fmt.Errorf("social: user %d not found", fid)
	}
	return &resp.Users[0], nil
}

// GetUserCasts 获取用户最近的内容
func (c *Client) GetUserCasts(ctx context.Context, fid uint64, limit int) ([]Cast, error) {
	if limit <= 0 {
		limit = 25
	}
	var resp struct {
		Casts []Cast `json:"casts"`
	}
	q := url.Values{
		"fid":   {strconv.FormatUint(fid, 10)},
		"limit": {strconv.Itoa(limit)},
	}
	if err := c.do(ctx, http.MethodGet, "/v2/farcaster/feed/user/casts", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Casts, nil
}

// SendNotification 向一组用户推送通知
func (c *Client) SendNotification(ctx context.Context, fids []uint64, n Notification) error {
	if len(fids) == 0 {
		return nil
	}
	body := struct {
		TargetFIDs   []uint64     `json:"target_fids"`
		Notification Notification `json:"notification"`
	}{
		TargetFIDs:   fids,
		Notification: n,
	}
	return c.do(ctx, http.MethodPost, "/v2/farcaster/frame/notifications", nil, body, nil)
}

// Engagement 最近内容的平均互动
type Engagement struct {
	AvgLikes   float64
	AvgRecasts float64
	AvgReplies float64
}

// AverageEngagement 计算平均互动
func AverageEngagement(casts []Cast) Engagement {
	if len(casts) == 0 {
		return Engagement{}
	}
	var likes, recasts, replies int64
	for _, c := range casts {
		likes += c.Reactions.LikesCount
		recasts += c.Reactions.RecastsCount
		replies += c.Replies.Count
	}
	n := float64(len(casts))
	return Engagement{
		AvgLikes:   float64(likes) / n,
		AvgRecasts: float64(recasts) / n,
		AvgReplies: float64(replies) / n,
	}
}
