package health

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"outbox/backend/internal/storage"
)

// HealthChecker 健康检查器
type HealthChecker struct {
	health  healthcheck.Handler
	store   storage.Store
	blobDir string
	logger  *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store storage.Store, blobDir string, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health:  healthcheck.NewHandler(),
		store:   store,
		blobDir: blobDir,
		logger:  logger,
	}
	hc.addChecks()
	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	// 数据库连接检查
	hc.health.AddLivenessCheck("database", func() error {
		return hc.store.Health()
	})

	// blob 目录可写检查：投递与入队都依赖它
	hc.health.AddReadinessCheck("blob-storage", hc.probeBlobDir)
}

// Handler 返回健康检查处理器
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// CheckHealth 执行一次完整检查，返回各项结果
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if err := hc.store.Health(); err != nil {
		results["database"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["database"] = "OK"
	}

	if err := hc.probeBlobDir(); err != nil {
		results["blob-storage"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["blob-storage"] = "OK"
	}
	return results
}

// probeBlobDir 在 blob 目录写入并删除一个探针文件
func (hc *HealthChecker) probeBlobDir() error {
	probe := filepath.Join(hc.blobDir, ".health-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return err
	}
	return os.Remove(probe)
}
