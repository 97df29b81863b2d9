// Package app 提供 API 与定时任务服务的应用生命周期管理
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/ai"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/blockchain"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/cache"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/codec"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/config"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/contract"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/handler"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/service"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/social"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/verifier"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// components 两个服务共用的基础设施
type components struct {
	redis  redis.UniversalClient
	cache  *cache.Client
	chain  *blockchain.Client
	ledger *contract.PromotionManager
	social *social.Client

	promotions *cache.PromotionStore
	intents    *cache.IntentStore
	drafts     *cache.DraftStore
	scores     *cache.ScoreStore
	stats      *cache.StatsStore
}

// newComponents 连接 Redis 与链上节点并创建存储
func newComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{}

	c.redis = cache.NewRedisClient(&cfg.Redis)
	if err := c.redis.Ping(ctx).Err(); err != nil {
		c.close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("redis connected", zap.Strings("addrs", cfg.Redis.Addresses))

	cipher, err := cache.NewCipher(cfg.Cache.Cipher, cfg.Cache.Key)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("init cache cipher: %w", err)
	}
	c.cache = cache.NewClient(c.redis, cipher)

	c.promotions = cache.NewPromotionStore(c.cache)
	c.intents = cache.NewIntentStore(c.cache)
	c.drafts = cache.NewDraftStore(c.cache)
	c.scores = cache.NewScoreStore(c.cache, cfg.Scoring.ScoreTTL)
	c.stats = cache.NewStatsStore(c.cache)

	c.chain, err = blockchain.NewClient(ctx, &blockchain.ClientConfig{
		ChainID:     cfg.Blockchain.ChainID,
		PrivateKey:  cfg.Blockchain.PrivateKey,
		RPCURLs:     cfg.Blockchain.RPCURLs(),
		CallTimeout: cfg.Blockchain.CallTimeout,
	})
	if err != nil {
		c.close()
		return nil, fmt.Errorf("connect chain: %w", err)
	}

	c.ledger, err = contract.NewPromotionManager(
		common.HexToAddress(cfg.Blockchain.ContractAddress),
		c.chain,
		cfg.Settlement.ReceiptTimeout,
	)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("bind promotion manager: %w", err)
	}
	logger.Info("chain connected",
		zap.Int64("chain_id", cfg.Blockchain.ChainID),
		zap.String("contract", cfg.Blockchain.ContractAddress))

	c.social = social.NewClient(&social.Config{
		BaseURL:       cfg.Social.BaseURL,
		APIKey:        cfg.Social.APIKey,
		RatePerSecond: cfg.Social.RatePerSecond,
		Timeout:       cfg.Social.Timeout,
	})

	return c, nil
}

// pingers 就绪探针依赖
func (c *components) pingers() map[string]handler.Pinger {
	return map[string]handler.Pinger{
		"redis": c.cache,
		"chain": handler.PingerFunc(c.chain.HealthCheck),
	}
}

func (c *components) close() {
	if c.chain != nil {
		c.chain.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			logger.Error("redis close error", zap.Error(err))
		}
	}
}

// newSigner 管理员签名密钥，dev 环境未配置时使用临时密钥
func newSigner(cfg *config.Config) (*codec.Signer, error) {
	if cfg.Blockchain.PrivateKey != "" {
		return codec.NewSigner(cfg.Blockchain.PrivateKey)
	}
	if cfg.Service.Env != "dev" {
		return nil, errors.New("blockchain.private_key is required")
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	signer := codec.NewSignerFromKey(key)
	logger.Warn("using ephemeral admin key, signed intents will not settle on chain",
		zap.String("address", signer.Address().Hex()))
	return signer, nil
}

// newVerifier 未配置模型时只用精确匹配与词重叠兜底
func newVerifier(cfg *config.Config) *verifier.Verifier {
	judge, err := verifier.NewOpenAIJudge(aiConfig(cfg))
	if err != nil {
		if !errors.Is(err, ai.ErrNotConfigured) {
			logger.Warn("content judge unavailable", zap.Error(err))
		}
		return verifier.NewVerifier(nil)
	}
	return verifier.NewVerifier(judge)
}

func aiConfig(cfg *config.Config) *ai.Config {
	return &ai.Config{
		APIKey:     cfg.AI.APIKey,
		BaseURL:    cfg.AI.BaseURL,
		Model:      cfg.AI.Model,
		Timeout:    cfg.AI.Timeout,
		MaxRetries: cfg.AI.MaxRetries,
	}
}

// newScoreService 评分服务
func (c *components) newScoreService() *service.ScoreService {
	return service.NewScoreService(c.scores, c.social)
}
