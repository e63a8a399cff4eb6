package sqlite

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"outbox/backend/internal/domain"
)

// AppendAudit 追加一条审计记录（只插入，永不更新或删除）
func (s *Store) AppendAudit(entry *domain.AuditLog) error {
	return s.db.Create(entry).Error
}

// ListAudit 按时间倒序分页读取审计记录
func (s *Store) ListAudit(limit, offset int) ([]domain.AuditLog, int64, error) {
	var total int64
	if err := s.db.Model(&domain.AuditLog{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []domain.AuditLog
	err := s.db.Order("timestamp DESC, id DESC").Limit(limit).Offset(offset).Find(&entries).Error
	return entries, total, err
}

// GetSetting 读取运行期设置值，第二个返回值表示键是否存在
func (s *Store) GetSetting(key string) (string, bool, error) {
	var setting domain.AppSetting
	err := s.db.Where("key = ?", key).First(&setting).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return setting.Value, true, nil
}

// SetSetting 写入运行期设置（upsert）
func (s *Store) SetSetting(key, value, description string) error {
	setting := domain.AppSetting{Key: key, Value: value, Description: description}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description"}),
	}).Create(&setting).Error
}

// AllSettings 列出全部运行期设置
func (s *Store) AllSettings() ([]domain.AppSetting, error) {
	var settings []domain.AppSetting
	err := s.db.Order("key").Find(&settings).Error
	return settings, err
}
