package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"outbox/backend/internal/config"
	"outbox/backend/internal/logger"
	"outbox/backend/internal/storage/sqlite"
)

// main 建库并执行迁移后退出。
//
// 服务启动时也会自动迁移；这个工具用于部署流水线里
// 提前建表，或在只读实例上验证库文件可打开。
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	store, err := sqlite.NewStore(cfg.Database.Path, cfg.Database.BusyTimeout)
	if err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	if err := store.Health(); err != nil {
		log.Fatal("database health check failed", zap.Error(err))
	}
	log.Info("migration completed", zap.String("path", cfg.Database.Path))
}
