package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/auth"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/config"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/handler"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/ingest"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/router"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/service"
)

// API 用户接口与 webhook 入库服务
type API struct {
	cfg    *config.Config
	logger *zap.Logger

	httpServer *http.Server
	engine     *gin.Engine

	deps          *components
	authenticator *auth.Authenticator
	handlers      *router.Handlers
}

// NewAPI 创建 API 应用
func NewAPI(cfg *config.Config, logger *zap.Logger) *API {
	return &API{
		cfg:    cfg,
		logger: logger,
	}
}

// Start 启动应用
func (a *API) Start(ctx context.Context) error {
	// 1. 初始化依赖
	if err := a.initDependencies(ctx); err != nil {
		return fmt.Errorf("init dependencies: %w", err)
	}

	// 2. 初始化 HTTP 服务
	a.initHTTPServer()

	// 3. 设置就绪状态
	a.handlers.Health.SetReady(true)

	// 4. 启动 HTTP 服务
	go func() {
		a.logger.Info("starting HTTP server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop 停止应用
func (a *API) Stop(ctx context.Context) error {
	a.logger.Info("stopping application")

	if a.handlers != nil {
		a.handlers.Health.SetReady(false)
	}

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if a.deps != nil {
		a.deps.close()
	}

	a.logger.Info("application stopped")
	return nil
}

// WaitForShutdown 等待关闭信号
func (a *API) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	a.logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.Stop(ctx); err != nil {
		a.logger.Error("application stop error", zap.Error(err))
	}
}

// Engine 返回 Gin 引擎（用于测试）
func (a *API) Engine() *gin.Engine {
	return a.engine
}

// initDependencies 初始化依赖
func (a *API) initDependencies(ctx context.Context) error {
	deps, err := newComponents(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.deps = deps

	signer, err := newSigner(a.cfg)
	if err != nil {
		return fmt.Errorf("init signer: %w", err)
	}

	decoder, err := ingest.NewDecoder(common.HexToAddress(a.cfg.Blockchain.ContractAddress))
	if err != nil {
		return fmt.Errorf("init event decoder: %w", err)
	}

	tokens, err := auth.NewTokenManager(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("init token manager: %w", err)
	}
	a.authenticator = auth.NewAuthenticator(
		a.cfg.Auth.Domain,
		auth.NewNonceStore(deps.cache, a.cfg.Auth.NonceTTL),
		tokens,
	)

	// 初始化 Services
	scoreService := deps.newScoreService()
	intentService := service.NewIntentService(
		deps.promotions,
		deps.intents,
		deps.drafts,
		scoreService,
		deps.social,
		signer,
		&service.IntentServiceConfig{TTL: a.cfg.Intent.TTL},
	)
	ingestor := ingest.NewIngestor(
		decoder,
		deps.ledger,
		deps.social,
		deps.promotions,
		deps.intents,
		&ingest.Config{IntentTTL: a.cfg.Intent.TTL},
	)

	// 初始化 Handlers
	a.handlers = &router.Handlers{
		Health:    handler.NewHealthHandler(deps.pingers()),
		Promotion: handler.NewPromotionHandler(deps.promotions),
		Intent:    handler.NewIntentHandler(intentService),
		Score:     handler.NewScoreHandler(scoreService),
		Stats:     handler.NewStatsHandler(deps.stats),
		Auth:      handler.NewAuthHandler(a.authenticator),
		Webhook:   handler.NewWebhookHandler(ingestor),
	}

	a.logger.Info("admin signer ready", zap.String("address", signer.Address().Hex()))
	return nil
}

// initHTTPServer 初始化 HTTP 服务
func (a *API) initHTTPServer() {
	if a.cfg.Service.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	a.engine = gin.New()

	r := router.New(a.engine, a.cfg, a.authenticator)
	r.RegisterMiddleware()
	r.RegisterRoutes(a.handlers)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Service.HTTPPort),
		Handler:      a.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
