package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"outbox/backend/internal/audit"
	"outbox/backend/internal/config"
	"outbox/backend/internal/queue"
	"outbox/backend/internal/storage/sqlite"
)

// main 签发一个 API Key 并把明文打印到 stdout。
//
// 明文只在这里出现一次，调用方妥善保存。
func main() {
	description := flag.String("description", "", "标识调用方的描述，会作为消息的来源标签")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := sqlite.NewStore(cfg.Database.Path, cfg.Database.BusyTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	log := zap.NewNop()
	keys := queue.NewAPIKeyService(store, audit.New(store, log), log)
	key, err := keys.Create(*description)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create api key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("API Key: %s\n", key.Key)
	if key.Description != "" {
		fmt.Printf("Description: %s\n", key.Description)
	}
}
