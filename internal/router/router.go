// Package router 提供路由注册
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/config"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/handler"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Health    *handler.HealthHandler
	Promotion *handler.PromotionHandler
	Intent    *handler.IntentHandler
	Score     *handler.ScoreHandler
	Stats     *handler.StatsHandler
	Auth      *handler.AuthHandler
	Webhook   *handler.WebhookHandler
}

// Router 路由管理器
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
	tokens middleware.TokenParser
}

// New 创建路由管理器
func New(engine *gin.Engine, cfg *config.Config, tokens middleware.TokenParser) *Router {
	return &Router{
		engine: engine,
		cfg:    cfg,
		tokens: tokens,
	}
}

// RegisterMiddleware 注册全局中间件
func (r *Router) RegisterMiddleware() {
	// Recovery → Trace → Logger → CORS → Metrics
	r.engine.Use(
		middleware.Recovery(),
		middleware.Trace(),
		middleware.Logger(),
		middleware.CORS(r.cfg.Service.CORSOrigins),
		middleware.Metrics(),
	)
}

// RegisterRoutes 注册路由
func (r *Router) RegisterRoutes(h *Handlers) {
	// ========== 健康检查 ==========
	r.engine.GET("/health/live", h.Health.Live)
	r.engine.GET("/health/ready", h.Health.Ready)

	// ========== Prometheus ==========
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := middleware.RateLimit(middleware.RateLimitConfig{PerSecond: r.cfg.Service.RateLimit})

	// ========== 登录 ==========
	authGroup := r.engine.Group("/api/auth", limiter)
	{
		authGroup.POST("/nonce", h.Auth.Nonce)
		authGroup.POST("/verify", h.Auth.Verify)
	}

	v1 := r.engine.Group("/api/v1", limiter)

	// ========== 公开接口 ==========
	v1.GET("/promotions", h.Promotion.ListPromotions)
	v1.GET("/promotions/:id", h.Promotion.GetPromotion)
	v1.GET("/stats/tier-rates", h.Stats.GetTierRates)
	v1.GET("/stats/trends", h.Stats.GetTrend)

	// ========== 认证接口 ==========
	private := v1.Group("", middleware.Auth(r.tokens))
	{
		private.POST("/intents", h.Intent.IssueIntent)
		private.POST("/intents/cast", h.Intent.AttachCast)
		private.PUT("/promotions/:id/draft", h.Intent.SaveDraft)
		private.GET("/promotions/:id/intents", h.Intent.ListOwnIntents)
		private.GET("/me/score", h.Score.GetMyScore)
	}

	// ========== Webhook，每个路由独立密钥 ==========
	wh := r.cfg.Webhook
	hooks := r.engine.Group("/webhooks")
	{
		hooks.POST("/promotion-created", r.webhookAuth("promotion-created", wh.PromotionCreatedSecret), h.Webhook.PromotionCreated)
		hooks.POST("/promotion-ended", r.webhookAuth("promotion-ended", wh.PromotionEndedSecret), h.Webhook.PromotionEnded)
		hooks.POST("/intent-submitted", r.webhookAuth("intent-submitted", wh.IntentSubmittedSecret), h.Webhook.IntentSubmitted)
		hooks.POST("/intent-processed", r.webhookAuth("intent-processed", wh.IntentProcessedSecret), h.Webhook.IntentProcessed)
	}
}

func (r *Router) webhookAuth(name, secret string) gin.HandlerFunc {
	return middleware.WebhookSignature(middleware.WebhookConfig{
		Name:   name,
		Secret: secret,
		Skew:   r.cfg.Webhook.TimestampSkew,
	})
}

// RegisterJobRoutes 定时任务服务的运维路由
func (r *Router) RegisterJobRoutes(health *handler.HealthHandler, jobs *handler.JobHandler) {
	r.engine.GET("/health/live", health.Live)
	r.engine.GET("/health/ready", health.Ready)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := r.engine.Group("/jobs")
	{
		admin.GET("", jobs.ListJobs)
		admin.GET("/:name", jobs.GetJob)
		admin.POST("/:name/trigger", middleware.AdminToken(r.cfg.Jobs.AdminToken), jobs.TriggerJob)
	}
}
