package settings

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"outbox/backend/internal/config"
	"outbox/backend/internal/storage"
)

// app_setting 表里可覆盖静态配置的键
const (
	KeyPollInterval     = "queue.poll_interval"
	KeyMaxRetries       = "queue.max_retries"
	KeyRetryBaseSeconds = "queue.retry_base_seconds"
	KeyRetryMaxSeconds  = "queue.retry_max_seconds"
	KeyBatchSize        = "queue.batch_size"
	KeyRecoverAfter     = "queue.recover_after"
	KeyRetentionDays    = "retention.days"
	KeyBlobMaxSizeMB    = "blobs.max_size_mb"
	KeySMTPServer       = "mail.smtp_server"
	KeySMTPPort         = "mail.smtp_port"
	KeySMTPUsername     = "mail.smtp_username"
	KeySMTPPassword     = "mail.smtp_password"
	KeyDefaultSender    = "mail.default_sender"
	KeyMaxPerSecond     = "mail.max_per_second"
)

// Snapshot 一个工作周期内生效的配置快照
//
// 队列管理器、投递 worker 与清理任务在每个周期开始时取一份
// 新快照，而不是缓存全局可变配置；app_setting 表中的改动
// 因此无需重启即可生效。
type Snapshot struct {
	PollInterval     time.Duration
	MaxRetries       int
	RetryBaseSeconds int
	RetryMaxSeconds  int
	BatchSize        int
	RecoverAfter     time.Duration
	RetentionDays    int
	BlobMaxSizeMB    int
	Mail             config.MailConfig
}

// Service 运行期设置服务
//
// 静态配置提供基线，app_setting 行按键覆盖。无法解析的覆盖值
// 记警告并保留基线，避免一条坏设置让 worker 停摆。
type Service struct {
	store storage.Store
	base  *config.Config
	log   *zap.Logger
}

// New 创建设置服务
func New(store storage.Store, base *config.Config, log *zap.Logger) *Service {
	return &Service{store: store, base: base, log: log}
}

// Snapshot 合并静态配置与运行期覆盖，返回本周期的配置快照
func (s *Service) Snapshot() Snapshot {
	snap := Snapshot{
		PollInterval:     s.base.Queue.PollInterval,
		MaxRetries:       s.base.Queue.MaxRetries,
		RetryBaseSeconds: s.base.Queue.RetryBaseSeconds,
		RetryMaxSeconds:  s.base.Queue.RetryMaxSeconds,
		BatchSize:        s.base.Queue.BatchSize,
		RecoverAfter:     s.base.Queue.RecoverAfter,
		RetentionDays:    s.base.Retention.Days,
		BlobMaxSizeMB:    s.base.Blobs.MaxSizeMB,
		Mail:             s.base.Mail,
	}

	s.overrideDuration(KeyPollInterval, &snap.PollInterval)
	s.overrideInt(KeyMaxRetries, &snap.MaxRetries)
	s.overrideInt(KeyRetryBaseSeconds, &snap.RetryBaseSeconds)
	s.overrideInt(KeyRetryMaxSeconds, &snap.RetryMaxSeconds)
	s.overrideInt(KeyBatchSize, &snap.BatchSize)
	s.overrideDuration(KeyRecoverAfter, &snap.RecoverAfter)
	s.overrideInt(KeyRetentionDays, &snap.RetentionDays)
	s.overrideInt(KeyBlobMaxSizeMB, &snap.BlobMaxSizeMB)
	s.overrideString(KeySMTPServer, &snap.Mail.Server)
	s.overrideInt(KeySMTPPort, &snap.Mail.Port)
	s.overrideString(KeySMTPUsername, &snap.Mail.Username)
	s.overrideString(KeySMTPPassword, &snap.Mail.Password)
	s.overrideString(KeyDefaultSender, &snap.Mail.DefaultSender)
	s.overrideInt(KeyMaxPerSecond, &snap.Mail.MaxPerSecond)

	return snap
}

// Set 写入一条运行期覆盖
func (s *Service) Set(key, value, description string) error {
	return s.store.SetSetting(key, value, description)
}

// All 列出全部运行期覆盖
func (s *Service) All() ([]Setting, error) {
	settings, err := s.store.AllSettings()
	if err != nil {
		return nil, err
	}
	out := make([]Setting, 0, len(settings))
	for _, st := range settings {
		out = append(out, Setting{Key: st.Key, Value: st.Value, Description: st.Description})
	}
	return out, nil
}

// Setting 对外展示的一条运行期覆盖
type Setting struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

func (s *Service) overrideString(key string, dst *string) {
	value, ok, err := s.store.GetSetting(key)
	if err != nil {
		s.log.Warn("read setting failed", zap.String("key", key), zap.Error(err))
		return
	}
	if ok {
		*dst = value
	}
}

func (s *Service) overrideInt(key string, dst *int) {
	value, ok, err := s.store.GetSetting(key)
	if err != nil {
		s.log.Warn("read setting failed", zap.String("key", key), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		s.log.Warn("invalid setting value, keeping configured default",
			zap.String("key", key), zap.String("value", value))
		return
	}
	*dst = n
}

func (s *Service) overrideDuration(key string, dst *time.Duration) {
	value, ok, err := s.store.GetSetting(key)
	if err != nil {
		s.log.Warn("read setting failed", zap.String("key", key), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		s.log.Warn("invalid setting value, keeping configured default",
			zap.String("key", key), zap.String("value", value))
		return
	}
	*dst = d
}
