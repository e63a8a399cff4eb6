package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"outbox/backend/internal/audit"
	"outbox/backend/internal/blob"
	"outbox/backend/internal/domain"
	"outbox/backend/internal/mailer"
	"outbox/backend/internal/monitoring"
	"outbox/backend/internal/pool"
	"outbox/backend/internal/queue"
	"outbox/backend/internal/settings"
	"outbox/backend/internal/storage"
)

// errInterrupted 恢复扫描给被打断的投递记录的失败原因
var errInterrupted = errors.New("delivery interrupted")

// Delivery 投递 worker
//
// 每个周期：取配置快照 → 恢复卡死的 sending → 认领一批 →
// 并行投递并回写结果。周期之间睡 poll_interval。优雅停机时
// 等已开始的投递回写完再退出；已认领但还没开始的投递保持
// sending 且不扣配额，由下次启动的恢复扫描重新排期。
type Delivery struct {
	manager  *queue.Manager
	store    storage.Store
	blobs    *blob.Store
	settings *settings.Service
	sender   mailer.Sender
	audit    *audit.Logger
	metrics  *monitoring.Metrics
	log      *zap.Logger

	limiter *rate.Limiter
	pool    *pool.WorkerPool
}

// NewDelivery 创建投递 worker
func NewDelivery(manager *queue.Manager, store storage.Store, blobs *blob.Store, svc *settings.Service, sender mailer.Sender, auditLog *audit.Logger, metrics *monitoring.Metrics, maxConcurrency int, log *zap.Logger) *Delivery {
	return &Delivery{
		manager:  manager,
		store:    store,
		blobs:    blobs,
		settings: svc,
		sender:   sender,
		audit:    auditLog,
		metrics:  metrics,
		log:      log,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		pool:     pool.NewWorkerPool(maxConcurrency, maxConcurrency*2, metrics, log),
	}
}

// Run 运行投递循环，直到 ctx 取消
func (d *Delivery) Run(ctx context.Context) error {
	d.pool.Start()
	defer d.pool.Stop()

	d.log.Info("delivery worker started")
	for {
		snap := d.settings.Snapshot()
		d.cycle(ctx, snap)

		select {
		case <-ctx.Done():
			d.log.Info("delivery worker stopping")
			return nil
		case <-time.After(snap.PollInterval):
		}
	}
}

// cycle 执行一个完整的投递周期
func (d *Delivery) cycle(ctx context.Context, snap settings.Snapshot) {
	d.recoverStuck(snap)
	d.applyRateLimit(snap)

	batch, err := d.manager.ClaimBatch(snap.BatchSize)
	if err != nil {
		d.log.Error("claim batch failed", zap.Error(err))
		return
	}
	if len(batch) == 0 {
		return
	}
	d.log.Debug("claimed batch", zap.Int("count", len(batch)))

	var wg sync.WaitGroup
	for i := range batch {
		msg := batch[i]
		wg.Add(1)
		d.pool.Submit(func() {
			defer wg.Done()
			d.deliver(ctx, snap, &msg)
		})
	}
	// 在飞的投递必须全部回写完，才能进入下个周期或退出
	wg.Wait()

	// 顺带刷新队列深度指标
	if _, err := d.manager.Stats(); err != nil {
		d.log.Warn("refresh queue depth failed", zap.Error(err))
	}
}

// recoverStuck 恢复上次崩溃遗留的 sending 行
//
// sending 超过 recover_after 视为投递被打断，按一次失败处理：
// 消耗一次重试配额，按正常退避重新排期或进 dead。
func (d *Delivery) recoverStuck(snap settings.Snapshot) {
	cutoff := time.Now().UTC().Add(-snap.RecoverAfter)
	stuck, err := d.store.StuckSending(cutoff)
	if err != nil {
		d.log.Error("stuck sending scan failed", zap.Error(err))
		return
	}
	for i := range stuck {
		msg := stuck[i]
		d.metrics.MessagesRecovered.Inc()
		d.audit.Record("worker", domain.AuditMessageRecovered, msg.UUID, errInterrupted.Error())
		d.log.Warn("recovering interrupted delivery",
			zap.String("uuid", msg.UUID),
			zap.Time("stuck_since", msg.UpdatedAt))
		if err := d.manager.RecordFailure(&msg, errInterrupted); err != nil {
			d.log.Error("recover message failed", zap.String("uuid", msg.UUID), zap.Error(err))
		}
	}
}

// applyRateLimit 按快照刷新出站速率上限
func (d *Delivery) applyRateLimit(snap settings.Snapshot) {
	if snap.Mail.MaxPerSecond > 0 {
		d.limiter.SetLimit(rate.Limit(snap.Mail.MaxPerSecond))
		d.limiter.SetBurst(snap.Mail.MaxPerSecond)
	} else {
		d.limiter.SetLimit(rate.Inf)
	}
}

// deliver 投递单条消息并回写结果
func (d *Delivery) deliver(ctx context.Context, snap settings.Snapshot, msg *domain.Message) {
	if err := d.limiter.Wait(ctx); err != nil {
		// 停机途中：还没开始的投递不算失败，不扣重试配额。
		// 行保持 sending，由恢复扫描重新排期。
		d.log.Debug("delivery skipped, worker stopping",
			zap.String("uuid", msg.UUID), zap.Error(err))
		return
	}

	raw, err := mailer.BuildMIME(msg, d.blobs)
	if err != nil {
		d.recordFailure(msg, err)
		return
	}

	start := time.Now()
	err = d.sender.Send(ctx, snap.Mail, msg.FromAddress, msg.AllRecipients(), raw)
	d.metrics.DeliveryDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		d.recordFailure(msg, err)
		return
	}
	if err := d.manager.RecordSuccess(msg); err != nil {
		d.log.Error("record success failed", zap.String("uuid", msg.UUID), zap.Error(err))
	}
}

func (d *Delivery) recordFailure(msg *domain.Message, cause error) {
	if err := d.manager.RecordFailure(msg, cause); err != nil {
		d.log.Error("record failure failed", zap.String("uuid", msg.UUID), zap.Error(err))
	}
}
