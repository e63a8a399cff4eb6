package domain

import "time"

// APIKey 调用方凭证
//
// 引擎本身只消费由它派生出来的 source 标签；校验与签发
// 由 API 层完成。Key 以明文存储（与导入/导出工具兼容），
// 前缀 "ob_" 便于在日志与配置中识别。
type APIKey struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Key         string     `json:"key" gorm:"type:varchar(64);uniqueIndex;not null"`
	Description string     `json:"description" gorm:"type:varchar(255)"`
	Enabled     bool       `json:"enabled" gorm:"default:true;not null"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// TableName 指定表名
func (APIKey) TableName() string {
	return "api_key"
}

// SourceLabel 返回审计与消息行中使用的来源标签
func (k *APIKey) SourceLabel() string {
	if k.Description != "" {
		return k.Description
	}
	return k.Key[:min(len(k.Key), 11)] // "ob_" + 前 8 位
}
