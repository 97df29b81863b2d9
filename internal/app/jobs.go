package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/ai"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/config"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/handler"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/jobs"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/kafka"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/router"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/scheduler"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/service"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

// Jobs 定时任务服务
//
// 任务列表:
//  1. settlement-batch: 批量结算 (默认每 10 分钟)
//  2. tier-rate-agg: 等级统计 (默认每小时)
//  3. trend-summary: 热门推广摘要 (默认每 6 小时，需配置文本模型)
type Jobs struct {
	cfg *config.Config

	deps       *components
	producer   *kafka.Producer
	scheduler  *scheduler.Scheduler
	health     *handler.HealthHandler
	httpServer *http.Server
}

// NewJobs 创建定时任务应用
func NewJobs(cfg *config.Config) *Jobs {
	return &Jobs{cfg: cfg}
}

// Run 启动应用
func (a *Jobs) Run(ctx context.Context) error {
	// 1. 初始化依赖
	deps, err := newComponents(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.deps = deps

	// 2. 初始化调度器
	a.scheduler = scheduler.NewScheduler(&scheduler.SchedulerConfig{
		MaxConcurrentJobs: a.cfg.Jobs.MaxConcurrent,
		RedisClient:       deps.redis,
	})

	// 3. 注册任务
	if err := a.registerJobs(); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	// 4. 启动调度器
	a.scheduler.Start()

	// 5. 启动运维 HTTP 服务
	a.startHTTP()
	a.health.SetReady(true)

	return nil
}

// Shutdown 优雅关闭
func (a *Jobs) Shutdown(ctx context.Context) error {
	logger.Info("shutting down jobs service...")

	if a.health != nil {
		a.health.SetReady(false)
	}
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 等待运行中的任务结束
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			logger.Error("kafka producer close error", zap.Error(err))
		}
	}

	if a.deps != nil {
		a.deps.close()
	}

	logger.Info("jobs service stopped")
	return nil
}

// registerJobs 注册任务
func (a *Jobs) registerJobs() error {
	jc := a.cfg.Jobs

	settlement, err := a.newSettlementService()
	if err != nil {
		return err
	}
	if err := a.scheduler.RegisterJob(jobs.NewSettlementJob(settlement), scheduler.JobConfig{
		Cron:    jc.Settlement.Cron,
		Enabled: jc.Settlement.Enabled && a.cfg.Blockchain.PrivateKey != "",
	}); err != nil {
		return err
	}
	if a.cfg.Blockchain.PrivateKey == "" {
		logger.Warn("settlement disabled: blockchain.private_key not configured")
	}

	if err := a.scheduler.RegisterJob(
		jobs.NewTierRateJob(a.deps.scores, a.deps.promotions, a.deps.stats),
		scheduler.JobConfig{Cron: jc.TierRate.Cron, Enabled: jc.TierRate.Enabled},
	); err != nil {
		return err
	}

	llm, err := ai.NewClient(aiConfig(a.cfg))
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		logger.Warn("trend summary disabled: ai.api_key not configured")
	case err != nil:
		return fmt.Errorf("init ai client: %w", err)
	default:
		if err := a.scheduler.RegisterJob(
			jobs.NewTrendSummaryJob(a.deps.promotions, llm, a.deps.stats),
			scheduler.JobConfig{Cron: jc.TrendSummary.Cron, Enabled: jc.TrendSummary.Enabled},
		); err != nil {
			return err
		}
	}

	return nil
}

// newSettlementService 批次确认消息在未配置 Kafka 时丢弃
func (a *Jobs) newSettlementService() (*service.SettlementService, error) {
	var publisher service.SettlementPublisher = kafka.NoopPublisher{}
	if len(a.cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(&a.cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("init kafka producer: %w", err)
		}
		a.producer = producer
		publisher = producer
		logger.Info("kafka producer ready",
			zap.Strings("brokers", a.cfg.Kafka.Brokers),
			zap.String("topic", a.cfg.Kafka.Topic))
	}

	return service.NewSettlementService(
		a.deps.ledger,
		a.deps.intents,
		a.deps.drafts,
		a.deps.social,
		newVerifier(a.cfg),
		a.deps.social,
		publisher,
		&service.SettlementConfig{
			AppURL:       a.cfg.Social.AppURL,
			FetchTimeout: a.cfg.Settlement.FetchTimeout,
		},
	), nil
}

// startHTTP 健康检查、指标与任务运维接口
func (a *Jobs) startHTTP() {
	if a.cfg.Service.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	a.health = handler.NewHealthHandler(a.deps.pingers())
	r := router.New(engine, a.cfg, nil)
	r.RegisterMiddleware()
	r.RegisterJobRoutes(a.health, handler.NewJobHandler(a.scheduler))

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Jobs.HTTPPort),
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}
