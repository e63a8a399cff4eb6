package audit

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"outbox/backend/internal/domain"
	"outbox/backend/internal/storage"
)

// Logger 审计记录写入器
//
// 审计失败绝不影响业务操作，只记一条警告日志。
type Logger struct {
	store storage.Store
	log   *zap.Logger
}

// New 创建审计写入器
func New(store storage.Store, log *zap.Logger) *Logger {
	return &Logger{store: store, log: log}
}

// Record 追加一条审计记录
func (a *Logger) Record(actor, action, target, details string) {
	entry := &domain.AuditLog{
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Action:    action,
		Target:    target,
		Details:   details,
	}
	if err := a.store.AppendAudit(entry); err != nil {
		a.log.Warn("audit write failed",
			zap.String("action", action),
			zap.String("target", target),
			zap.Error(err),
		)
	}
}

// RecordJSON 同 Record，details 以 JSON 编码
func (a *Logger) RecordJSON(actor, action, target string, details any) {
	data, err := json.Marshal(details)
	if err != nil {
		a.Record(actor, action, target, "")
		return
	}
	a.Record(actor, action, target, string(data))
}
