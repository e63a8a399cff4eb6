package settings

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"outbox/backend/internal/config"
	"outbox/backend/internal/storage/sqlite"
)

func newTestService(t *testing.T) (*Service, *config.Config) {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "outbox.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{
		Queue: config.QueueConfig{
			PollInterval:     5 * time.Second,
			MaxRetries:       5,
			RetryBaseSeconds: 120,
			RetryMaxSeconds:  3600,
			BatchSize:        10,
			RecoverAfter:     25 * time.Second,
		},
		Retention: config.RetentionConfig{Days: 30},
		Blobs:     config.BlobConfig{MaxSizeMB: 25},
		Mail:      config.MailConfig{Server: "smtp.example.com", Port: 587},
	}
	return New(store, cfg, zap.NewNop()), cfg
}

func TestSnapshot(t *testing.T) {
	t.Run("无覆盖时等于静态配置", func(t *testing.T) {
		svc, cfg := newTestService(t)
		snap := svc.Snapshot()
		require.Equal(t, cfg.Queue.PollInterval, snap.PollInterval)
		require.Equal(t, cfg.Queue.MaxRetries, snap.MaxRetries)
		require.Equal(t, cfg.Retention.Days, snap.RetentionDays)
		require.Equal(t, cfg.Blobs.MaxSizeMB, snap.BlobMaxSizeMB)
		require.Equal(t, cfg.Mail.Server, snap.Mail.Server)
	})

	t.Run("覆盖在下一个快照生效", func(t *testing.T) {
		svc, _ := newTestService(t)
		require.NoError(t, svc.Set(KeyMaxRetries, "9", ""))
		require.NoError(t, svc.Set(KeyPollInterval, "500ms", ""))
		require.NoError(t, svc.Set(KeySMTPServer, "relay.example.net", ""))
		require.NoError(t, svc.Set(KeyBlobMaxSizeMB, "50", ""))

		snap := svc.Snapshot()
		require.Equal(t, 9, snap.MaxRetries)
		require.Equal(t, 500*time.Millisecond, snap.PollInterval)
		require.Equal(t, "relay.example.net", snap.Mail.Server)
		require.Equal(t, 50, snap.BlobMaxSizeMB)

		// 未覆盖的键保持基线
		require.Equal(t, 120, snap.RetryBaseSeconds)
	})

	t.Run("非法覆盖值保留基线", func(t *testing.T) {
		svc, cfg := newTestService(t)
		require.NoError(t, svc.Set(KeyMaxRetries, "not a number", ""))
		require.NoError(t, svc.Set(KeyPollInterval, "-3s", ""))

		snap := svc.Snapshot()
		require.Equal(t, cfg.Queue.MaxRetries, snap.MaxRetries)
		require.Equal(t, cfg.Queue.PollInterval, snap.PollInterval)
	})

	t.Run("重复写入为upsert", func(t *testing.T) {
		svc, _ := newTestService(t)
		require.NoError(t, svc.Set(KeyBatchSize, "20", "first"))
		require.NoError(t, svc.Set(KeyBatchSize, "40", "second"))

		require.Equal(t, 40, svc.Snapshot().BatchSize)
		all, err := svc.All()
		require.NoError(t, err)
		require.Len(t, all, 1)
		require.Equal(t, "40", all[0].Value)
	})
}
