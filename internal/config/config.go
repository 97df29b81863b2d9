package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 配置
type Config struct {
	Service    ServiceConfig    `yaml:"service" json:"service"`
	Redis      RedisConfig      `yaml:"redis" json:"redis"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Blockchain BlockchainConfig `yaml:"blockchain" json:"blockchain"`
	Social     SocialConfig     `yaml:"social" json:"social"`
	AI         AIConfig         `yaml:"ai" json:"ai"`
	Webhook    WebhookConfig    `yaml:"webhook" json:"webhook"`
	Auth       AuthConfig       `yaml:"auth" json:"auth"`
	Intent     IntentConfig     `yaml:"intent" json:"intent"`
	Scoring    ScoringConfig    `yaml:"scoring" json:"scoring"`
	Settlement SettlementConfig `yaml:"settlement" json:"settlement"`
	Jobs       JobsConfig       `yaml:"jobs" json:"jobs"`
	Kafka      KafkaConfig      `yaml:"kafka" json:"kafka"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name     string `yaml:"name" json:"name"`
	HTTPPort int    `yaml:"http_port" json:"http_port"`
	Env      string `yaml:"env" json:"env"`
	// CORSOrigins 允许的前端来源，空表示任意
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
	// RateLimit 每个 IP 每秒请求数
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addresses []string `yaml:"addresses" json:"addresses"`
	Password  string   `yaml:"password" json:"password"`
	DB        int      `yaml:"db" json:"db"`
	PoolSize  int      `yaml:"pool_size" json:"pool_size"`
}

// CacheConfig 缓存加密配置
type CacheConfig struct {
	// Cipher 加密方式: xor (兼容历史数据), aes-gcm
	Cipher string `yaml:"cipher" json:"cipher"`
	Key    string `yaml:"key" json:"-"`
}

// BlockchainConfig 区块链配置
type BlockchainConfig struct {
	RPCURL          string        `yaml:"rpc_url" json:"rpc_url"`
	BackupRPCURLs   []string      `yaml:"backup_rpc_urls" json:"backup_rpc_urls"`
	ChainID         int64         `yaml:"chain_id" json:"chain_id"`
	ContractAddress string        `yaml:"contract_address" json:"contract_address"`
	PrivateKey      string        `yaml:"private_key" json:"-"`
	CallTimeout     time.Duration `yaml:"call_timeout" json:"call_timeout"`
	ReceiptTimeout  time.Duration `yaml:"receipt_timeout" json:"receipt_timeout"`
}

// SocialConfig 社交平台 API 配置
type SocialConfig struct {
	BaseURL       string        `yaml:"base_url" json:"base_url"`
	APIKey        string        `yaml:"api_key" json:"-"`
	RatePerSecond float64       `yaml:"rate_per_second" json:"rate_per_second"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	AppURL        string        `yaml:"app_url" json:"app_url"`
}

// AIConfig 文本模型配置
type AIConfig struct {
	APIKey     string        `yaml:"api_key" json:"-"`
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	Model      string        `yaml:"model" json:"model"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
}

// WebhookConfig Webhook 签名配置
type WebhookConfig struct {
	PromotionCreatedSecret string        `yaml:"promotion_created_secret" json:"-"`
	PromotionEndedSecret   string        `yaml:"promotion_ended_secret" json:"-"`
	IntentSubmittedSecret  string        `yaml:"intent_submitted_secret" json:"-"`
	IntentProcessedSecret  string        `yaml:"intent_processed_secret" json:"-"`
	TimestampSkew          time.Duration `yaml:"timestamp_skew" json:"timestamp_skew"`
}

// AuthConfig 登录配置
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" json:"-"`
	TokenTTL  time.Duration `yaml:"token_ttl" json:"token_ttl"`
	Domain    string        `yaml:"domain" json:"domain"`
	NonceTTL  time.Duration `yaml:"nonce_ttl" json:"nonce_ttl"`
}

// IntentConfig 意图签发配置
type IntentConfig struct {
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

// ScoringConfig 评分缓存配置
type ScoringConfig struct {
	ScoreTTL time.Duration `yaml:"score_ttl" json:"score_ttl"`
}

// SettlementConfig 结算配置
type SettlementConfig struct {
	ReceiptTimeout time.Duration `yaml:"receipt_timeout" json:"receipt_timeout"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
}

// JobsConfig 定时任务配置
type JobsConfig struct {
	MaxConcurrent int       `yaml:"max_concurrent" json:"max_concurrent"`
	HTTPPort      int       `yaml:"http_port" json:"http_port"`
	AdminToken    string    `yaml:"admin_token" json:"-"`
	Settlement    JobConfig `yaml:"settlement" json:"settlement"`
	TierRate      JobConfig `yaml:"tier_rate" json:"tier_rate"`
	TrendSummary  JobConfig `yaml:"trend_summary" json:"trend_summary"`
}

// JobConfig 单个任务配置
type JobConfig struct {
	Cron    string `yaml:"cron" json:"cron"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers" json:"brokers"`
	ClientID string   `yaml:"client_id" json:"client_id"`
	Topic    string   `yaml:"topic" json:"topic"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse 解析配置内容
func Parse(data []byte) (*Config, error) {
	// 环境变量替换
	content := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)

	return &cfg, nil
}

// expandEnvVars 展开环境变量 ${VAR:default}
func expandEnvVars(s string) string {
	result := s
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := result[start+2 : end]
		parts := strings.SplitN(expr, ":", 2)
		varName := parts[0]
		defaultVal := ""
		if len(parts) > 1 {
			defaultVal = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			value = defaultVal
		}

		result = result[:start] + value + result[end+1:]
	}
	return result
}

// setDefaults 设置默认值
func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "hypeman"
	}
	if cfg.Service.HTTPPort == 0 {
		cfg.Service.HTTPPort = 8080
	}
	if cfg.Service.Env == "" {
		cfg.Service.Env = "dev"
	}
	if cfg.Service.RateLimit == 0 {
		cfg.Service.RateLimit = 10
	}

	if len(cfg.Redis.Addresses) == 0 {
		cfg.Redis.Addresses = []string{"localhost:6379"}
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 50
	}

	if cfg.Cache.Cipher == "" {
		cfg.Cache.Cipher = "xor"
	}

	if cfg.Blockchain.ChainID == 0 {
		cfg.Blockchain.ChainID = 8453 // Base 主网
	}
	if cfg.Blockchain.CallTimeout == 0 {
		cfg.Blockchain.CallTimeout = 10 * time.Second
	}
	if cfg.Blockchain.ReceiptTimeout == 0 {
		cfg.Blockchain.ReceiptTimeout = 2 * time.Minute
	}

	if cfg.Social.BaseURL == "" {
		cfg.Social.BaseURL = "https://api.neynar.com"
	}
	if cfg.Social.RatePerSecond == 0 {
		cfg.Social.RatePerSecond = 5
	}
	if cfg.Social.Timeout == 0 {
		cfg.Social.Timeout = 10 * time.Second
	}

	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 15 * time.Second
	}
	if cfg.AI.MaxRetries == 0 {
		cfg.AI.MaxRetries = 2
	}

	if cfg.Webhook.TimestampSkew == 0 {
		cfg.Webhook.TimestampSkew = 5 * time.Minute
	}

	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
	if cfg.Auth.NonceTTL == 0 {
		cfg.Auth.NonceTTL = 5 * time.Minute
	}

	if cfg.Intent.TTL == 0 {
		cfg.Intent.TTL = time.Hour
	}

	if cfg.Scoring.ScoreTTL == 0 {
		cfg.Scoring.ScoreTTL = 3 * 24 * time.Hour
	}

	if cfg.Settlement.ReceiptTimeout == 0 {
		cfg.Settlement.ReceiptTimeout = cfg.Blockchain.ReceiptTimeout
	}
	if cfg.Settlement.FetchTimeout == 0 {
		cfg.Settlement.FetchTimeout = 10 * time.Second
	}

	if cfg.Jobs.MaxConcurrent == 0 {
		cfg.Jobs.MaxConcurrent = 3
	}
	if cfg.Jobs.HTTPPort == 0 {
		cfg.Jobs.HTTPPort = 8081
	}
	if cfg.Jobs.Settlement.Cron == "" {
		cfg.Jobs.Settlement.Cron = "0 */10 * * * *"
	}
	if cfg.Jobs.TierRate.Cron == "" {
		cfg.Jobs.TierRate.Cron = "0 0 * * * *"
	}
	if cfg.Jobs.TrendSummary.Cron == "" {
		cfg.Jobs.TrendSummary.Cron = "0 0 */6 * * *"
	}

	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = cfg.Service.Name
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "intents-settled"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate 校验必填配置
// dev 环境允许缺省密钥，便于本地调试
func (c *Config) Validate() error {
	if c.Service.Env == "dev" {
		return nil
	}

	var errs []error
	if c.Blockchain.RPCURL == "" {
		errs = append(errs, errors.New("blockchain.rpc_url is required"))
	}
	if c.Blockchain.ContractAddress == "" {
		errs = append(errs, errors.New("blockchain.contract_address is required"))
	}
	if c.Blockchain.PrivateKey == "" {
		errs = append(errs, errors.New("blockchain.private_key is required"))
	}
	if c.Cache.Key == "" {
		errs = append(errs, errors.New("cache.key is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	switch c.Cache.Cipher {
	case "xor", "aes-gcm":
	default:
		errs = append(errs, fmt.Errorf("cache.cipher %q is not supported", c.Cache.Cipher))
	}

	return errors.Join(errs...)
}

// RPCURLs 返回主备 RPC 地址列表
func (c *BlockchainConfig) RPCURLs() []string {
	urls := make([]string, 0, 1+len(c.BackupRPCURLs))
	if c.RPCURL != "" {
		urls = append(urls, c.RPCURL)
	}
	return append(urls, c.BackupRPCURLs...)
}

// GetEnvInt 获取环境变量整数值
func GetEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
