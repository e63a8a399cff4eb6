package storage

import (
	"time"

	"outbox/backend/internal/domain"
)

// ListFilter 消息列表查询条件
type ListFilter struct {
	Status domain.Status // 为空表示不过滤
	Search string        // 模糊匹配 subject/收件人/发件人/uuid
	Limit  int
	Offset int
}

// Store 持久化存储接口
//
// 背后是单写者的 SQLite 文件库，写事务由数据库串行化，
// 认领协议的原子性由 ClaimBatch 的事务保证，跨 worker
// 不需要任何进程内锁。
type Store interface {
	// 消息
	CreateMessage(msg *domain.Message) error
	GetMessageByUUID(uuid string) (*domain.Message, error)
	ListMessages(filter ListFilter) ([]domain.Message, int64, error)
	CountByStatus() (map[domain.Status]int64, error)

	// ClaimBatch 在单个事务内选出最多 limit 条可投递消息
	// （queued，或 failed 且 next_retry_at 已到），按 created_at
	// 升序，并把每条原子地翻转为 sending。并发调用者绝不会
	// 认领到同一行：竞争失败的行不会出现在返回集中。
	ClaimBatch(limit int, now time.Time) ([]domain.Message, error)

	// 下面的带守卫更新只在行处于期望状态时生效，
	// 返回 false 表示守卫失败（冲突），由调用方上报。
	MarkSent(id uint, now time.Time) (bool, error)
	MarkFailed(id uint, retriesRemaining int, nextRetryAt time.Time, lastError string, now time.Time) (bool, error)
	MarkDead(id uint, lastError string, now time.Time) (bool, error)
	Requeue(id uint, retries int, now time.Time) (bool, error)
	CancelMessage(id uint, now time.Time) (bool, error)

	// StuckSending 返回 sending 状态停留超过期限的行（worker 崩溃遗留）
	StuckSending(olderThan time.Time) ([]domain.Message, error)

	// PurgeTerminal 删除终态且 updated_at 早于 cutoff 的消息及其
	// 附件行，返回删除数量与被引用过的 blob 哈希集合。
	// 非终态消息无论多旧都不会被触及。
	PurgeTerminal(cutoff time.Time) (int64, []string, error)

	// 附件，按内容哈希的引用计数（查询推导，不维护计数器）
	CountAttachmentsByHash(hash string) (int64, error)

	// API Key
	CreateAPIKey(key *domain.APIKey) error
	GetAPIKeyByKey(key string) (*domain.APIKey, error)
	TouchAPIKey(id uint, now time.Time) error
	ListAPIKeys() ([]domain.APIKey, error)
	SetAPIKeyEnabled(id uint, enabled bool) error
	DeleteAPIKey(id uint) error

	// 审计（只追加，按时间倒序分页读取）
	AppendAudit(entry *domain.AuditLog) error
	ListAudit(limit, offset int) ([]domain.AuditLog, int64, error)

	// 运行期设置
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value, description string) error
	AllSettings() ([]domain.AppSetting, error)

	Health() error
	Close() error
}
