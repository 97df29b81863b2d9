package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/saltoriousSIG/hypeman-client-sub000/internal/app"
	"github.com/saltoriousSIG/hypeman-client-sub000/internal/config"
	"github.com/saltoriousSIG/hypeman-client-sub000/pkg/logger"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 本地开发读取 .env，不存在时忽略
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("load config: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		panic("invalid config: " + err.Error())
	}

	// 初始化日志
	if err := logger.Init(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.Service.Name + "-api",
		Environment: cfg.Service.Env,
	}); err != nil {
		panic("init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.L()
	log.Info("starting service",
		zap.String("service", cfg.Service.Name),
		zap.String("env", cfg.Service.Env),
		zap.Int("port", cfg.Service.HTTPPort),
	)

	// 创建应用
	application := app.NewAPI(cfg, log)

	// 启动应用
	if err := application.Start(context.Background()); err != nil {
		log.Fatal("failed to start application", zap.Error(err))
	}

	log.Info("service started successfully",
		zap.Int("port", cfg.Service.HTTPPort),
	)

	// 等待关闭信号
	application.WaitForShutdown()

	os.Exit(0)
}
