package domain

import "time"

// AuditLog 只追加的审计记录
//
// 引擎在每次状态转移和管理动作时写入，从不依赖其内容做决策。
// 记录永不被修改或删除，管理 API 只做分页读取。
type AuditLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Timestamp time.Time `json:"timestamp" gorm:"index;not null"`
	Actor     string    `json:"actor" gorm:"type:varchar(100)"`
	Action    string    `json:"action" gorm:"type:varchar(100);index;not null"`
	Target    string    `json:"target" gorm:"type:varchar(100)"`
	Details   string    `json:"details" gorm:"type:text"`
}

// TableName 指定表名
func (AuditLog) TableName() string {
	return "audit_log"
}

// 审计动作名
const (
	AuditMessageSubmitted = "message_submitted"
	AuditMessageSent      = "message_sent"
	AuditMessageFailed    = "message_failed"
	AuditMessageDead      = "message_dead"
	AuditMessageRetried   = "message_retried"
	AuditMessageCancelled = "message_cancelled"
	AuditMessageRecovered = "message_recovered"
	AuditPurgeBatch       = "purge_batch"
	AuditAPIKeyCreated    = "api_key_created"
	AuditAPIKeyDisabled   = "api_key_disabled"
	AuditAPIKeyEnabled    = "api_key_enabled"
	AuditAPIKeyDeleted    = "api_key_deleted"
)
