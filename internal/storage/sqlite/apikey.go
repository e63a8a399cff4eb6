package sqlite

import (
	"time"

	"outbox/backend/internal/domain"
)

// CreateAPIKey 持久化新密钥
func (s *Store) CreateAPIKey(key *domain.APIKey) error {
	return s.db.Create(key).Error
}

// GetAPIKeyByKey 按密钥值查找（不区分启用状态，由调用方判断）
func (s *Store) GetAPIKeyByKey(key string) (*domain.APIKey, error) {
	var apiKey domain.APIKey
	err := s.db.Where("key = ?", key).First(&apiKey).Error
	if err != nil {
		return nil, notFound(err, domain.ErrAPIKeyNotFound)
	}
	return &apiKey, nil
}

// TouchAPIKey 更新最后使用时间
func (s *Store) TouchAPIKey(id uint, now time.Time) error {
	return s.db.Model(&domain.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", now).Error
}

// ListAPIKeys 列出全部密钥（新的在前）
func (s *Store) ListAPIKeys() ([]domain.APIKey, error) {
	var keys []domain.APIKey
	err := s.db.Order("created_at DESC").Find(&keys).Error
	return keys, err
}

// SetAPIKeyEnabled 启用/禁用密钥
func (s *Store) SetAPIKeyEnabled(id uint, enabled bool) error {
	res := s.db.Model(&domain.APIKey{}).
		Where("id = ?", id).
		Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

// DeleteAPIKey 删除密钥
func (s *Store) DeleteAPIKey(id uint) error {
	res := s.db.Delete(&domain.APIKey{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}
