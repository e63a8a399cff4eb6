package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"outbox/backend/internal/audit"
	"outbox/backend/internal/blob"
	"outbox/backend/internal/config"
	"outbox/backend/internal/health"
	"outbox/backend/internal/logger"
	"outbox/backend/internal/mailer"
	"outbox/backend/internal/monitoring"
	"outbox/backend/internal/queue"
	"outbox/backend/internal/settings"
	"outbox/backend/internal/storage/sqlite"
	httptransport "outbox/backend/internal/transport/http"
	"outbox/backend/internal/worker"
)

// main 启动同时包含 HTTP API、投递 worker 与保留期清理的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化日志系统
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
		MaxSizeMB:   100,
		MaxBackups:  3,
		MaxAgeDays:  28,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting outbox server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	store, err := sqlite.NewStore(cfg.Database.Path, cfg.Database.BusyTimeout)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() { _ = store.Close() }()
	log.Info("sqlite storage initialized", zap.String("path", cfg.Database.Path))

	// 初始化 blob 存储
	blobs, err := blob.NewStore(cfg.Blobs.Directory, cfg.Blobs.MaxSizeMB, store)
	if err != nil {
		log.Fatal("failed to initialize blob storage", zap.Error(err))
	}
	log.Info("blob storage initialized", zap.String("dir", cfg.Blobs.Directory))

	// 初始化监控、审计与设置
	metrics := monitoring.NewMetrics()
	auditLog := audit.New(store, log)
	settingsSvc := settings.New(store, cfg, log)
	healthChecker := health.NewHealthChecker(store, cfg.Blobs.Directory, log)

	// 初始化队列管理器与投递组件
	manager := queue.NewManager(store, blobs, settingsSvc, auditLog, metrics, log)
	apiKeys := queue.NewAPIKeyService(store, auditLog, log)
	sender := mailer.NewSMTPSender(log)
	delivery := worker.NewDelivery(manager, store, blobs, settingsSvc, sender, auditLog, metrics, cfg.Queue.MaxConcurrency, log)
	purge := worker.NewPurge(store, blobs, settingsSvc, auditLog, metrics, cfg.Retention.SweepInterval, log)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:   cfg,
		Manager:  manager,
		APIKeys:  apiKeys,
		Settings: settingsSvc,
		Store:    store,
		Health:   healthChecker,
		Metrics:  metrics,
		Logger:   log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 投递 worker goroutine
	group.Go(func() error {
		return delivery.Run(groupCtx)
	})

	// 保留期清理 goroutine
	group.Go(func() error {
		return purge.Run(groupCtx)
	})

	// 优雅停机 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}
