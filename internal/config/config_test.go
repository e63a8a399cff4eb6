package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"OUTBOX_SERVER_HOST",
		"OUTBOX_SERVER_PORT",
		"OUTBOX_DATABASE_PATH",
		"OUTBOX_QUEUE_POLL_INTERVAL",
		"OUTBOX_QUEUE_MAX_RETRIES",
		"OUTBOX_QUEUE_RETRY_BASE_SECONDS",
		"OUTBOX_QUEUE_RETRY_MAX_SECONDS",
		"OUTBOX_QUEUE_BATCH_SIZE",
		"OUTBOX_QUEUE_RECOVER_AFTER",
		"OUTBOX_RETENTION_DAYS",
		"OUTBOX_BLOBS_MAX_SIZE_MB",
		"OUTBOX_MAIL_SMTP_SERVER",
		"OUTBOX_LOG_LEVEL",
	}

	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}

	// 测试后恢复环境变量
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	t.Run("加载默认配置成功", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "data/outbox.db", cfg.Database.Path)
		assert.Equal(t, 5*time.Second, cfg.Queue.PollInterval)
		assert.Equal(t, 5, cfg.Queue.MaxRetries)
		assert.Equal(t, 120, cfg.Queue.RetryBaseSeconds)
		assert.Equal(t, 3600, cfg.Queue.RetryMaxSeconds)
		assert.Equal(t, 10, cfg.Queue.BatchSize)
		// recover_after 默认是轮询间隔的 5 倍
		assert.Equal(t, 25*time.Second, cfg.Queue.RecoverAfter)
		assert.Equal(t, 30, cfg.Retention.Days)
		assert.Equal(t, 25, cfg.Blobs.MaxSizeMB)
		assert.Equal(t, "", cfg.Mail.Server)
		assert.Equal(t, 587, cfg.Mail.Port)
		assert.True(t, cfg.Mail.UseStartTLS)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		os.Setenv("OUTBOX_SERVER_HOST", "127.0.0.1")
		os.Setenv("OUTBOX_SERVER_PORT", "9090")
		os.Setenv("OUTBOX_DATABASE_PATH", "/var/lib/outbox/outbox.db")
		os.Setenv("OUTBOX_QUEUE_POLL_INTERVAL", "2s")
		os.Setenv("OUTBOX_QUEUE_MAX_RETRIES", "3")
		os.Setenv("OUTBOX_QUEUE_RETRY_BASE_SECONDS", "10")
		os.Setenv("OUTBOX_QUEUE_RETRY_MAX_SECONDS", "600")
		os.Setenv("OUTBOX_QUEUE_BATCH_SIZE", "25")
		os.Setenv("OUTBOX_QUEUE_RECOVER_AFTER", "1m")
		os.Setenv("OUTBOX_RETENTION_DAYS", "7")
		os.Setenv("OUTBOX_MAIL_SMTP_SERVER", "smtp.example.com")
		os.Setenv("OUTBOX_LOG_LEVEL", "debug")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "/var/lib/outbox/outbox.db", cfg.Database.Path)
		assert.Equal(t, 2*time.Second, cfg.Queue.PollInterval)
		assert.Equal(t, 3, cfg.Queue.MaxRetries)
		assert.Equal(t, 10, cfg.Queue.RetryBaseSeconds)
		assert.Equal(t, 600, cfg.Queue.RetryMaxSeconds)
		assert.Equal(t, 25, cfg.Queue.BatchSize)
		assert.Equal(t, time.Minute, cfg.Queue.RecoverAfter)
		assert.Equal(t, 7, cfg.Retention.Days)
		assert.Equal(t, "smtp.example.com", cfg.Mail.Server)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("退避上限小于基数失败", func(t *testing.T) {
		os.Setenv("OUTBOX_QUEUE_RETRY_BASE_SECONDS", "600")
		os.Setenv("OUTBOX_QUEUE_RETRY_MAX_SECONDS", "10")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "retry_max_seconds")

		os.Unsetenv("OUTBOX_QUEUE_RETRY_BASE_SECONDS")
		os.Unsetenv("OUTBOX_QUEUE_RETRY_MAX_SECONDS")
	})

	t.Run("无效轮询间隔回退默认值", func(t *testing.T) {
		os.Setenv("OUTBOX_QUEUE_POLL_INTERVAL", "not-a-duration")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.Queue.PollInterval)

		os.Unsetenv("OUTBOX_QUEUE_POLL_INTERVAL")
	})
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseDuration("", 5*time.Second))
	assert.Equal(t, 2*time.Minute, parseDuration("2m", time.Second))
	assert.Equal(t, time.Second, parseDuration("bogus", time.Second))
	assert.Equal(t, time.Second, parseDuration("-1s", time.Second))
}

func TestParseList(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "单个项目",
			input:    "item1",
			expected: []string{"item1"},
		},
		{
			name:     "多个项目",
			input:    "item1,item2,item3",
			expected: []string{"item1", "item2", "item3"},
		},
		{
			name:     "带空格的项目",
			input:    " item1 , item2 ",
			expected: []string{"item1", "item2"},
		},
		{
			name:     "空字符串",
			input:    "",
			expected: []string{},
		},
		{
			name:     "混合空值",
			input:    "item1,,item2,",
			expected: []string{"item1", "item2"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := parseList(tc.input)
			assert.Equal(t, tc.expected, result)
		})
	}
}
