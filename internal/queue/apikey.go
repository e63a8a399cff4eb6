package queue

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"outbox/backend/internal/audit"
	"outbox/backend/internal/domain"
	"outbox/backend/internal/storage"
)

// APIKeyService 调用方凭证的签发与校验
type APIKeyService struct {
	store storage.Store
	audit *audit.Logger
	log   *zap.Logger
}

// NewAPIKeyService 创建 API Key 服务
func NewAPIKeyService(store storage.Store, auditLog *audit.Logger, log *zap.Logger) *APIKeyService {
	return &APIKeyService{store: store, audit: auditLog, log: log}
}

// Create 签发一个新 Key
//
// Key 形如 "ob_" + 32 位十六进制随机串，生成后明文返回一次，
// 之后只能按前缀识别。
func (s *APIKeyService) Create(description string) (*domain.APIKey, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}
	key := &domain.APIKey{
		Key:         "ob_" + hex.EncodeToString(buf),
		Description: description,
		Enabled:     true,
	}
	if err := s.store.CreateAPIKey(key); err != nil {
		return nil, fmt.Errorf("persist api key: %w", err)
	}
	s.audit.Record("admin", domain.AuditAPIKeyCreated, key.SourceLabel(), description)
	s.log.Info("api key created", zap.String("label", key.SourceLabel()))
	return key, nil
}

// Verify 校验请求携带的 Key 并更新其最后使用时间
//
// 未知或被禁用的 Key 统一返回 ErrAPIKeyInvalid，不区分两种
// 情况，避免探测。
func (s *APIKeyService) Verify(key string) (*domain.APIKey, error) {
	rec, err := s.store.GetAPIKeyByKey(key)
	if err != nil {
		return nil, domain.ErrAPIKeyInvalid
	}
	if !rec.Enabled {
		return nil, domain.ErrAPIKeyInvalid
	}
	if err := s.store.TouchAPIKey(rec.ID, time.Now().UTC()); err != nil {
		// 只影响 last_used_at 展示，不阻断请求
		s.log.Warn("touch api key failed", zap.Error(err))
	}
	return rec, nil
}

// List 列出全部 Key
func (s *APIKeyService) List() ([]domain.APIKey, error) {
	return s.store.ListAPIKeys()
}

// SetEnabled 启用或禁用一个 Key
func (s *APIKeyService) SetEnabled(id uint, enabled bool) error {
	if err := s.store.SetAPIKeyEnabled(id, enabled); err != nil {
		return err
	}
	action := domain.AuditAPIKeyEnabled
	if !enabled {
		action = domain.AuditAPIKeyDisabled
	}
	s.audit.Record("admin", action, fmt.Sprintf("api_key:%d", id), "")
	return nil
}

// Delete 删除一个 Key
//
// 已有消息行上的 source 标签保留，删除只影响后续请求。
func (s *APIKeyService) Delete(id uint) error {
	if err := s.store.DeleteAPIKey(id); err != nil {
		return err
	}
	s.audit.Record("admin", domain.AuditAPIKeyDeleted, fmt.Sprintf("api_key:%d", id), "")
	return nil
}
