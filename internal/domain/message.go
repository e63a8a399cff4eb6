package domain

import (
	"encoding/json"
	"time"
)

// Message 队列中的一封待投递邮件
//
// UUID 是对外暴露的稳定标识，与数据库自增主键分离。
// 收件人列表以 JSON 数组存储在文本列中（与导出格式保持一致）。
type Message struct {
	ID            uint   `json:"-" gorm:"primaryKey"`
	UUID          string `json:"uuid" gorm:"type:varchar(36);uniqueIndex;not null"`
	Status        Status `json:"status" gorm:"type:varchar(16);index;not null"`
	FromAddress   string `json:"from_address" gorm:"type:varchar(255);not null"`
	ToRecipients  string `json:"-" gorm:"type:text;not null"` // JSON 数组
	CcRecipients  string `json:"-" gorm:"type:text"`          // JSON 数组，可为空
	BccRecipients string `json:"-" gorm:"type:text"`          // JSON 数组，可为空
	Subject       string `json:"subject" gorm:"type:varchar(998)"`
	Body          string `json:"-" gorm:"type:text"`
	BodyType      BodyType `json:"body_type" gorm:"type:varchar(16);not null"`

	// 投递簿记
	RetriesRemaining int        `json:"retries_remaining" gorm:"not null"`
	NextRetryAt      *time.Time `json:"next_retry_at,omitempty" gorm:"index"`
	LastError        string     `json:"last_error,omitempty" gorm:"type:text"`
	Source           string     `json:"source,omitempty" gorm:"type:varchar(100);column:source_app"`
	SourceAPIKeyID   *uint      `json:"-"`

	CreatedAt time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"index"`
	SentAt    *time.Time `json:"sent_at,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty" gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "message"
}

// To 解码收件人列表
func (m *Message) To() []string {
	return decodeRecipients(m.ToRecipients)
}

// Cc 解码抄送列表
func (m *Message) Cc() []string {
	return decodeRecipients(m.CcRecipients)
}

// Bcc 解码密送列表
func (m *Message) Bcc() []string {
	return decodeRecipients(m.BccRecipients)
}

// AllRecipients 返回 to + cc + bcc 的完整收件人集合（SMTP RCPT 用）
func (m *Message) AllRecipients() []string {
	all := m.To()
	all = append(all, m.Cc()...)
	all = append(all, m.Bcc()...)
	return all
}

// EncodeRecipients 把地址列表编码为存储用的 JSON 文本，空列表编码为空串
func EncodeRecipients(addrs []string) string {
	if len(addrs) == 0 {
		return ""
	}
	data, err := json.Marshal(addrs)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeRecipients(raw string) []string {
	if raw == "" {
		return nil
	}
	var addrs []string
	if err := json.Unmarshal([]byte(raw), &addrs); err != nil {
		// 兼容历史上直接存单个地址的行
		return []string{raw}
	}
	return addrs
}
