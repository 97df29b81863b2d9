// Package cache 加密的 Redis 状态缓存
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/config"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

var (
	// ErrNotFound 键不存在
	ErrNotFound = errors.New("cache: not found")
	// ErrCorrupt 存储值既无法解密也无法解析
	ErrCorrupt = errors.New("cache: corrupt value")
)

// compareAndSetScript 仅当索引处的值未变时才 LSET
var compareAndSetScript = redis.NewScript(`
local cur = redis.call("LINDEX", KEYS[1], ARGV[1])
if cur == ARGV[2] then
	redis.call("LSET", KEYS[1], ARGV[1], ARGV[3])
	return 1
end
return 0
`)

// NewRedisClient 创建 Redis 客户端
func NewRedisClient(cfg *config.RedisConfig) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addresses,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Client 带值加密的缓存客户端
// 计数器、有序集合与集合成员 (推广 ID / fid) 不加密
type Client struct {
	rdb    redis.UniversalClient
	cipher Cipher
}

// NewClient 创建缓存客户端
func NewClient(rdb redis.UniversalClient, cipher Cipher) *Client {
	return &Client{
		rdb:    rdb,
		cipher: cipher,
	}
}

// Redis 底层客户端
func (c *Client) Redis() redis.UniversalClient {
	return c.rdb
}

// Ping 健康检查
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Seal 序列化并加密；字符串与字节原样加密，其余 JSON 序列化
func (c *Client) Seal(v interface{}) (string, error) {
	var plain []byte
	switch val := v.(type) {
	case string:
		plain = []byte(val)
	case []byte:
		plain = val
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal cache value: %w", err)
		}
		plain = data
	}
	return c.cipher.Encrypt(plain)
}

// Open 解密并反序列化到 dst
// 解密失败时按未加密的历史数据尝试解析
func (c *Client) Open(raw string, dst interface{}) error {
	plain, err := c.cipher.Decrypt(raw)
	if err == nil {
		if err = decodeInto(plain, dst); err == nil {
			return nil
		}
	}
	if legacyErr := decodeInto([]byte(raw), dst); legacyErr == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}

func decodeInto(data []byte, dst interface{}) error {
	if s, ok := dst.(*string); ok {
		*s = string(data)
		return nil
	}
	return json.Unmarshal(data, dst)
}

// openString 解密字符串，失败时返回原始值并记录异常
func (c *Client) openString(key, raw string) string {
	plain, err := c.cipher.Decrypt(raw)
	if err != nil {
		logger.Warn("cache decrypt anomaly, returning raw value",
			"key", key,
			"error", err,
		)
		return raw
	}
	return string(plain)
}

func mapNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return err
}

// Get 读取字符串值
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", mapNil(err)
	}
	return c.openString(key, raw), nil
}

// GetJSON 读取并反序列化
func (c *Client) GetJSON(ctx context.Context, key string, dst interface{}) error {
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return mapNil(err)
	}
	if err := c.Open(raw, dst); err != nil {
		logger.Warn("cache value anomaly", "key", key, "error", err)
		return err
	}
	return nil
}

// Set 写入值，ttl 为 0 表示不过期
func (c *Client) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	sealed, err := c.Seal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, sealed, ttl).Err()
}

// GetDel 读取并删除
func (c *Client) GetDel(ctx context.Context, key string) (string, error) {
	raw, err := c.rdb.GetDel(ctx, key).Result()
	if err != nil {
		return "", mapNil(err)
	}
	return c.openString(key, raw), nil
}

// Del 删除
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// Exists 判断键是否存在
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Expire 设置过期
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

// Incr 原子自增 (明文计数器)
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}

// LRangeRaw 返回存储原值，用于按值删除
func (c *Client) LRangeRaw(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.rdb.LRange(ctx, key, start, stop).Result()
}

// LRange 返回解密后的列表
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	raws, err := c.LRangeRaw(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(raws))
	for i, raw := range raws {
		out[i] = c.openString(key, raw)
	}
	return out, nil
}

// LPush 头部插入
func (c *Client) LPush(ctx context.Context, key string, values ...interface{}) error {
	sealed := make([]interface{}, 0, len(values))
	for _, v := range values {
		s, err := c.Seal(v)
		if err != nil {
			return err
		}
		sealed = append(sealed, s)
	}
	return c.rdb.LPush(ctx, key, sealed...).Err()
}

// LSet 按索引覆盖
func (c *Client) LSet(ctx context.Context, key string, index int64, v interface{}) error {
	sealed, err := c.Seal(v)
	if err != nil {
		return err
	}
	return c.rdb.LSet(ctx, key, index, sealed).Err()
}

// LSetIfEqual 索引处仍为 expectedRaw 时覆盖，返回是否成功
func (c *Client) LSetIfEqual(ctx context.Context, key string, index int64, expectedRaw string, v interface{}) (bool, error) {
	sealed, err := c.Seal(v)
	if err != nil {
		return false, err
	}
	n, err := compareAndSetScript.Run(ctx, c.rdb, []string{key}, index, expectedRaw, sealed).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// LRem 按存储原值删除 (raw 来自 LRangeRaw)
func (c *Client) LRem(ctx context.Context, key string, count int64, raw string) (int64, error) {
	return c.rdb.LRem(ctx, key, count, raw).Result()
}

// LLen 列表长度
func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	return c.rdb.LLen(ctx, key).Result()
}

// HSet 写入哈希字段，字段值逐个加密
func (c *Client) HSet(ctx context.Context, key string, fields map[string]interface{}) error {
	args, err := c.sealFields(fields)
	if err != nil {
		return err
	}
	return c.rdb.HSet(ctx, key, args...).Err()
}

func (c *Client) sealFields(fields map[string]interface{}) ([]interface{}, error) {
	args := make([]interface{}, 0, 2*len(fields))
	for f, v := range fields {
		s, err := c.Seal(v)
		if err != nil {
			return nil, err
		}
		args = append(args, f, s)
	}
	return args, nil
}

// HGetAll 读取并解密全部字段
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	raw, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for f, v := range raw {
		out[f] = c.openString(key, v)
	}
	return out, nil
}

// HDel 删除哈希字段
func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	return c.rdb.HDel(ctx, key, fields...).Err()
}

// ZAdd 有序集合写入
func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// ZRem 有序集合删除
func (c *Client) ZRem(ctx context.Context, key string, members ...interface{}) error {
	return c.rdb.ZRem(ctx, key, members...).Err()
}

// ZRevRange 按分数倒序
func (c *Client) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.rdb.ZRevRange(ctx, key, start, stop).Result()
}

// ZScore 成员分数
func (c *Client) ZScore(ctx context.Context, key, member string) (float64, error) {
	score, err := c.rdb.ZScore(ctx, key, member).Result()
	return score, mapNil(err)
}

// SAdd 集合写入
func (c *Client) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return c.rdb.SAdd(ctx, key, members...).Err()
}

// SRem 集合删除
func (c *Client) SRem(ctx context.Context, key string, members ...interface{}) error {
	return c.rdb.SRem(ctx, key, members...).Err()
}

// SMembers 集合成员
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.rdb.SMembers(ctx, key).Result()
}

// SIsMember 是否为成员
func (c *Client) SIsMember(ctx context.Context, key string, member interface{}) (bool, error) {
	return c.rdb.SIsMember(ctx, key, member).Result()
}

// SMove 集合间移动
func (c *Client) SMove(ctx context.Context, src, dst string, member interface{}) (bool, error) {
	return c.rdb.SMove(ctx, src, dst, member).Result()
}

// Pipelined MULTI/EXEC 事务管道，一次往返原子执行
// 管道内不会自动加密，调用方需使用 Seal/Open
func (c *Client) Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) error {
	_, err := c.rdb.TxPipelined(ctx, fn)
	return err
}
