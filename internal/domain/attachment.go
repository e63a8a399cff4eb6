package domain

import "time"

// Attachment 附件元数据行
//
// 实际字节内容按 SHA-256 内容寻址存放在 blob 目录，
// 多条记录可以共享同一个 blob（去重）。blob 文件只有在
// 最后一条引用它的记录被删除后才会被回收。
type Attachment struct {
	ID          uint      `json:"-" gorm:"primaryKey"`
	MessageID   uint      `json:"-" gorm:"index;not null"`
	Filename    string    `json:"filename" gorm:"type:varchar(255);not null"`
	ContentType string    `json:"content_type" gorm:"type:varchar(100)"`
	SizeBytes   int64     `json:"size_bytes" gorm:"not null"`
	SHA256      string    `json:"sha256" gorm:"column:sha256;type:varchar(64);index;not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName 指定表名
func (Attachment) TableName() string {
	return "attachment"
}
