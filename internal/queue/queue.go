package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"outbox/backend/internal/audit"
	"outbox/backend/internal/blob"
	"outbox/backend/internal/domain"
	"outbox/backend/internal/monitoring"
	"outbox/backend/internal/settings"
	"outbox/backend/internal/storage"
)

// AttachmentInput 入队请求中的一个附件（已解码的字节）
type AttachmentInput struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EnqueueInput 完整的入队请求
type EnqueueInput struct {
	Envelope    domain.Envelope
	Attachments []AttachmentInput

	// 来源标识，来自 API Key 或命令行工具
	Source         string
	SourceAPIKeyID *uint
}

// Manager 队列管理器
//
// 入队、认领、状态回写、取消与重发都经过这里；它是唯一
// 允许改写消息状态的组件。状态变更先过 domain.CheckTransition
// 的转移表，再由存储层的条件更新在事务内终审，Manager 负责
// 编排、审计与指标。
type Manager struct {
	store    storage.Store
	blobs    *blob.Store
	settings *settings.Service
	audit    *audit.Logger
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewManager 创建队列管理器
func NewManager(store storage.Store, blobs *blob.Store, settings *settings.Service, auditLog *audit.Logger, metrics *monitoring.Metrics, log *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		blobs:    blobs,
		settings: settings,
		audit:    auditLog,
		metrics:  metrics,
		log:      log,
	}
}

// Enqueue 校验并持久化一条消息
//
// 附件字节先写入内容寻址的 blob 目录（幂等，失败残留的
// 孤儿 blob 无引用、可被后续 GC 清掉），消息行与附件行随后
// 在同一个事务里落库。任何校验失败都同步返回，不产生行。
func (m *Manager) Enqueue(in EnqueueInput) (*domain.Message, error) {
	if err := in.Envelope.Validate(); err != nil {
		return nil, err
	}

	snap := m.settings.Snapshot()
	if snap.BlobMaxSizeMB > 0 {
		m.blobs.SetMaxSizeMB(snap.BlobMaxSizeMB)
	}

	// 先整体校验附件大小，再写任何 blob
	for _, att := range in.Attachments {
		if att.Filename == "" {
			return nil, fmt.Errorf("%w: attachment filename is required", domain.ErrValidation)
		}
		if int64(len(att.Data)) > m.blobs.MaxSize() {
			return nil, fmt.Errorf("%w: attachment %q exceeds %d bytes",
				domain.ErrBlobTooLarge, att.Filename, m.blobs.MaxSize())
		}
	}

	msg := &domain.Message{
		UUID:             uuid.New().String(),
		Status:           domain.StatusQueued,
		FromAddress:      in.Envelope.From,
		ToRecipients:     domain.EncodeRecipients(in.Envelope.To),
		CcRecipients:     domain.EncodeRecipients(in.Envelope.Cc),
		BccRecipients:    domain.EncodeRecipients(in.Envelope.Bcc),
		Subject:          in.Envelope.Subject,
		Body:             in.Envelope.Body,
		BodyType:         in.Envelope.BodyType,
		RetriesRemaining: snap.MaxRetries,
		Source:           in.Source,
		SourceAPIKeyID:   in.SourceAPIKeyID,
	}

	for _, att := range in.Attachments {
		hash, err := m.blobs.Put(att.Data)
		if err != nil {
			return nil, fmt.Errorf("store attachment %q: %w", att.Filename, err)
		}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			Filename:    att.Filename,
			ContentType: contentType,
			SizeBytes:   int64(len(att.Data)),
			SHA256:      hash,
		})
	}

	if err := m.store.CreateMessage(msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	m.metrics.MessagesEnqueued.Inc()
	m.audit.RecordJSON(in.Source, domain.AuditMessageSubmitted, msg.UUID, map[string]any{
		"to":          msg.To(),
		"subject":     msg.Subject,
		"attachments": len(msg.Attachments),
	})
	m.log.Info("message enqueued",
		zap.String("uuid", msg.UUID),
		zap.String("source", in.Source),
		zap.Int("attachments", len(msg.Attachments)))
	return msg, nil
}

// ClaimBatch 原子认领一批可投递消息并翻转为 sending
func (m *Manager) ClaimBatch(limit int) ([]domain.Message, error) {
	msgs, err := m.store.ClaimBatch(limit, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	m.metrics.ClaimedBatchSize.Observe(float64(len(msgs)))
	return msgs, nil
}

// RecordSuccess 把投递成功的消息置为 sent
//
// 守卫失败（消息已不在 sending）说明出现了并发干预，
// 记冲突并返回错误，但不回滚任何东西。
func (m *Manager) RecordSuccess(msg *domain.Message) error {
	ok, err := m.store.MarkSent(msg.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if !ok {
		m.metrics.ConflictsTotal.Inc()
		return fmt.Errorf("%w: message %s is no longer sending", domain.ErrInvalidTransition, msg.UUID)
	}
	m.metrics.MessagesDelivered.Inc()
	m.audit.Record("worker", domain.AuditMessageSent, msg.UUID, "")
	m.log.Info("message delivered", zap.String("uuid", msg.UUID))
	return nil
}

// RecordFailure 记录一次投递失败
//
// 扣减 retries_remaining；还有余量则置 failed 并按指数退避
// 排期下一次重试，耗尽则置 dead。所有失败都按可重试处理：
// SMTP 的永久拒绝与瞬时故障在这里不作区分，配额由
// retries_remaining 统一约束。
func (m *Manager) RecordFailure(msg *domain.Message, deliveryErr error) error {
	snap := m.settings.Snapshot()
	now := time.Now().UTC()
	reason := deliveryErr.Error()

	remaining := msg.RetriesRemaining - 1
	if remaining < 0 {
		remaining = 0
	}

	if remaining == 0 {
		ok, err := m.store.MarkDead(msg.ID, reason, now)
		if err != nil {
			return fmt.Errorf("mark dead: %w", err)
		}
		if !ok {
			m.metrics.ConflictsTotal.Inc()
			return fmt.Errorf("%w: message %s is no longer sending", domain.ErrInvalidTransition, msg.UUID)
		}
		m.metrics.DeliveryFailures.Inc()
		m.metrics.MessagesDead.Inc()
		m.audit.Record("worker", domain.AuditMessageDead, msg.UUID, reason)
		m.log.Warn("message dead, retries exhausted",
			zap.String("uuid", msg.UUID),
			zap.String("error", reason))
		return nil
	}

	// 第 N 次失败（从 0 计）决定退避档位
	attempt := snap.MaxRetries - msg.RetriesRemaining
	delay := Backoff(attempt, snap.RetryBaseSeconds, snap.RetryMaxSeconds)
	nextRetry := now.Add(delay)

	ok, err := m.store.MarkFailed(msg.ID, remaining, nextRetry, reason, now)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if !ok {
		m.metrics.ConflictsTotal.Inc()
		return fmt.Errorf("%w: message %s is no longer sending", domain.ErrInvalidTransition, msg.UUID)
	}
	m.metrics.DeliveryFailures.Inc()
	m.audit.Record("worker", domain.AuditMessageFailed, msg.UUID, reason)
	m.log.Warn("delivery failed, retry scheduled",
		zap.String("uuid", msg.UUID),
		zap.Int("retries_remaining", remaining),
		zap.Duration("delay", delay),
		zap.String("error", reason))
	return nil
}

// Cancel 取消一条还在排队的消息
//
// 只有 queued 状态可以取消；正在投递或已进终态的消息
// 返回冲突错误。
func (m *Manager) Cancel(msgUUID, actor string) (*domain.Message, error) {
	msg, err := m.store.GetMessageByUUID(msgUUID)
	if err != nil {
		return nil, err
	}
	// 先过转移表，存储层的条件更新在事务内终审
	if err := domain.CheckTransition(msg.Status, domain.StatusCancelled); err != nil {
		m.metrics.ConflictsTotal.Inc()
		return nil, fmt.Errorf("cannot cancel message %s: %w", msg.UUID, err)
	}
	ok, err := m.store.CancelMessage(msg.ID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("cancel message: %w", err)
	}
	if !ok {
		m.metrics.ConflictsTotal.Inc()
		return nil, fmt.Errorf("%w: cannot cancel message in status %q",
			domain.ErrInvalidTransition, msg.Status)
	}
	m.metrics.MessagesCancelled.Inc()
	m.audit.Record(actor, domain.AuditMessageCancelled, msg.UUID, "")
	m.log.Info("message cancelled", zap.String("uuid", msg.UUID), zap.String("actor", actor))
	return m.store.GetMessageByUUID(msgUUID)
}

// Retry 把 failed 或 dead 的消息重新入队
//
// 这是管理员的显式操作，不属于投递状态机：重试配额恢复为
// 当前的 max_retries，next_retry_at 清空，消息立即可被认领。
func (m *Manager) Retry(msgUUID, actor string) (*domain.Message, error) {
	msg, err := m.store.GetMessageByUUID(msgUUID)
	if err != nil {
		return nil, err
	}
	snap := m.settings.Snapshot()
	ok, err := m.store.Requeue(msg.ID, snap.MaxRetries, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("requeue message: %w", err)
	}
	if !ok {
		m.metrics.ConflictsTotal.Inc()
		return nil, fmt.Errorf("%w: cannot retry message in status %q",
			domain.ErrInvalidTransition, msg.Status)
	}
	m.metrics.MessagesRetried.Inc()
	m.audit.Record(actor, domain.AuditMessageRetried, msg.UUID, "")
	m.log.Info("message re-queued", zap.String("uuid", msg.UUID), zap.String("actor", actor))
	return m.store.GetMessageByUUID(msgUUID)
}

// Get 按 UUID 查询消息
func (m *Manager) Get(msgUUID string) (*domain.Message, error) {
	return m.store.GetMessageByUUID(msgUUID)
}

// List 分页查询消息
func (m *Manager) List(filter storage.ListFilter) ([]domain.Message, int64, error) {
	return m.store.ListMessages(filter)
}

// Stats 按状态统计消息数量，并顺带刷新队列深度指标
func (m *Manager) Stats() (map[domain.Status]int64, error) {
	counts, err := m.store.CountByStatus()
	if err != nil {
		return nil, err
	}
	m.metrics.UpdateQueueDepth(counts)
	return counts, nil
}
