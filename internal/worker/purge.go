package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"outbox/backend/internal/audit"
	"outbox/backend/internal/blob"
	"outbox/backend/internal/domain"
	"outbox/backend/internal/monitoring"
	"outbox/backend/internal/settings"
	"outbox/backend/internal/storage"
)

// Purge 保留期清理任务
//
// 周期性删除终态（sent/dead/cancelled）且 updated_at 早于
// 保留期的消息及其附件行，随后回收不再被任何附件引用的
// blob 文件。非终态消息无论多旧都不会被触及。
type Purge struct {
	store    storage.Store
	blobs    *blob.Store
	settings *settings.Service
	audit    *audit.Logger
	metrics  *monitoring.Metrics
	interval time.Duration
	log      *zap.Logger
}

// NewPurge 创建清理任务
func NewPurge(store storage.Store, blobs *blob.Store, svc *settings.Service, auditLog *audit.Logger, metrics *monitoring.Metrics, interval time.Duration, log *zap.Logger) *Purge {
	return &Purge{
		store:    store,
		blobs:    blobs,
		settings: svc,
		audit:    auditLog,
		metrics:  metrics,
		interval: interval,
		log:      log,
	}
}

// Run 运行清理循环，直到 ctx 取消
func (p *Purge) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("retention sweep started", zap.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			p.log.Info("retention sweep stopping")
			return nil
		case <-ticker.C:
			if err := p.Sweep(); err != nil {
				p.log.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep 执行一次清理
//
// 保留天数每轮从配置快照取，app_setting 里的调整即时生效。
func (p *Purge) Sweep() error {
	snap := p.settings.Snapshot()
	cutoff := time.Now().UTC().AddDate(0, 0, -snap.RetentionDays)

	count, hashes, err := p.store.PurgeTerminal(cutoff)
	if err != nil {
		return fmt.Errorf("purge terminal messages: %w", err)
	}
	if count == 0 {
		return nil
	}

	// 行已删完，再回收失去最后一个引用的 blob
	var removed int
	for _, hash := range hashes {
		ok, err := p.blobs.DeleteIfUnreferenced(hash)
		if err != nil {
			p.log.Warn("blob gc failed", zap.String("hash", hash), zap.Error(err))
			continue
		}
		if ok {
			removed++
			p.metrics.BlobsDeleted.Inc()
		}
	}

	p.metrics.MessagesPurged.Add(float64(count))
	p.audit.RecordJSON("retention", domain.AuditPurgeBatch, "", map[string]any{
		"messages_deleted": count,
		"blobs_deleted":    removed,
		"cutoff":           cutoff.Format(time.RFC3339),
	})
	p.log.Info("retention sweep completed",
		zap.Int64("messages_deleted", count),
		zap.Int("blobs_deleted", removed))
	return nil
}
