package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"outbox/backend/internal/audit"
	"outbox/backend/internal/blob"
	"outbox/backend/internal/config"
	"outbox/backend/internal/logger"
	"outbox/backend/internal/mailer"
	"outbox/backend/internal/monitoring"
	"outbox/backend/internal/queue"
	"outbox/backend/internal/settings"
	"outbox/backend/internal/storage/sqlite"
	"outbox/backend/internal/worker"
)

// main 只运行投递 worker 与保留期清理，不带 HTTP API。
//
// 与 cmd/server 指向同一个数据库文件时必须二选一：
// 单写者存储不支持两个进程同时投递。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

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

	log.Info("starting outbox worker", zap.String("db", cfg.Database.Path))

	store, err := sqlite.NewStore(cfg.Database.Path, cfg.Database.BusyTimeout)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	blobs, err := blob.NewStore(cfg.Blobs.Directory, cfg.Blobs.MaxSizeMB, store)
	if err != nil {
		log.Fatal("failed to initialize blob storage", zap.Error(err))
	}

	metrics := monitoring.NewMetrics()
	auditLog := audit.New(store, log)
	settingsSvc := settings.New(store, cfg, log)
	manager := queue.NewManager(store, blobs, settingsSvc, auditLog, metrics, log)
	sender := mailer.NewSMTPSender(log)
	delivery := worker.NewDelivery(manager, store, blobs, settingsSvc, sender, auditLog, metrics, cfg.Queue.MaxConcurrency, log)
	purge := worker.NewPurge(store, blobs, settingsSvc, auditLog, metrics, cfg.Retention.SweepInterval, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return delivery.Run(groupCtx) })
	group.Go(func() error { return purge.Run(groupCtx) })

	if err := group.Wait(); err != nil {
		log.Error("worker exited with error", zap.Error(err))
	}
	log.Info("worker stopped")
}
