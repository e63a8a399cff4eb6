package domain

import "fmt"

// Status 消息投递状态（封闭枚举）
//
// 投递路径上的状态变更先经 CheckTransition 预检，存储层的
// 条件更新在事务内做最终裁决，两边遵循同一张转移表。管理员
// 重投（failed/dead -> queued，重置配额）是表外的显式操作，
// 不属于投递状态机。
type Status string

const (
	StatusQueued    Status = "queued"    // 已入队，等待投递
	StatusSending   Status = "sending"   // 已被某个 worker 认领，投递中
	StatusSent      Status = "sent"      // 投递成功（终态）
	StatusFailed    Status = "failed"    // 投递失败，等待重试
	StatusDead      Status = "dead"      // 重试耗尽（终态）
	StatusCancelled Status = "cancelled" // 已取消（终态）
)

// transitions 合法状态转移表
//
// 注意没有任何转移会跳过 sending：投递结果（sent/failed/dead）
// 只能从 sending 记录，重试到期的 failed 行被认领时也要先回到
// sending。进程在投递中崩溃会把消息留在 sending，由恢复扫描
// 处理。
var transitions = map[Status][]Status{
	StatusQueued:    {StatusSending, StatusCancelled},
	StatusSending:   {StatusSent, StatusFailed, StatusDead},
	StatusFailed:    {StatusSending},
	StatusSent:      {},
	StatusDead:      {},
	StatusCancelled: {},
}

// IsValid 判断是否为已知状态
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal 判断是否为终态
//
// 终态消息不再参与投递，仅等待保留期满后被清理。
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusDead || s == StatusCancelled
}

// CanTransition 判断 s -> to 是否为合法转移
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition 校验状态转移，非法转移返回 ErrInvalidTransition
func CheckTransition(from, to Status) error {
	if !from.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// BodyType 邮件正文格式
type BodyType string

const (
	BodyPlain    BodyType = "plain"
	BodyHTML     BodyType = "html"
	BodyMarkdown BodyType = "markdown"
)

// IsValid 判断是否为支持的正文格式
func (b BodyType) IsValid() bool {
	switch b {
	case BodyPlain, BodyHTML, BodyMarkdown:
		return true
	}
	return false
}
