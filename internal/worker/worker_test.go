package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"outbox/backend/internal/audit"
	"outbox/backend/internal/blob"
	"outbox/backend/internal/config"
	"outbox/backend/internal/domain"
	"outbox/backend/internal/monitoring"
	"outbox/backend/internal/queue"
	"outbox/backend/internal/settings"
	"outbox/backend/internal/storage"
	"outbox/backend/internal/storage/sqlite"
)

// MockSender 模拟 SMTP 投递器
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, cfg config.MailConfig, from string, recipients []string, raw []byte) error {
	args := m.Called(ctx, cfg, from, recipients, raw)
	return args.Error(0)
}

type workerEnv struct {
	delivery *Delivery
	purge    *Purge
	manager  *queue.Manager
	store    storage.Store
	blobs    *blob.Store
	sender   *MockSender
	settings *settings.Service
}

func newWorkerEnv(t *testing.T, cfg *config.Config) *workerEnv {
	t.Helper()

	dir := t.TempDir()
	store, err := sqlite.NewStore(filepath.Join(dir, "outbox.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	blobs, err := blob.NewStore(filepath.Join(dir, "blobs"), 25, store)
	require.NoError(t, err)

	log := zap.NewNop()
	metrics := monitoring.NewMetrics()
	svc := settings.New(store, cfg, log)
	auditLog := audit.New(store, log)
	manager := queue.NewManager(store, blobs, svc, auditLog, metrics, log)
	sender := &MockSender{}
	delivery := NewDelivery(manager, store, blobs, svc, sender, auditLog, metrics, 2, log)
	purge := NewPurge(store, blobs, svc, auditLog, metrics, time.Hour, log)
	return &workerEnv{
		delivery: delivery,
		purge:    purge,
		manager:  manager,
		store:    store,
		blobs:    blobs,
		sender:   sender,
		settings: svc,
	}
}

func baseConfig() *config.Config {
	return &config.Config{
		Queue: config.QueueConfig{
			PollInterval:     time.Second,
			MaxRetries:       3,
			RetryBaseSeconds: 10,
			RetryMaxSeconds:  3600,
			BatchSize:        10,
			RecoverAfter:     time.Hour,
			MaxConcurrency:   2,
		},
		Retention: config.RetentionConfig{Days: 30},
		Blobs:     config.BlobConfig{MaxSizeMB: 25},
		Mail:      config.MailConfig{Server: "smtp.example.com", Port: 587, Timeout: 5 * time.Second},
	}
}

func enqueue(t *testing.T, env *workerEnv) *domain.Message {
	t.Helper()
	msg, err := env.manager.Enqueue(queue.EnqueueInput{
		Envelope: domain.Envelope{
			From:    "noreply@example.com",
			To:      []string{"alice@example.com"},
			Subject: "hi",
			Body:    "body",
		},
		Source: "test",
	})
	require.NoError(t, err)
	return msg
}

func runCycle(t *testing.T, env *workerEnv) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.delivery.pool.Start()
	env.delivery.cycle(ctx, env.settings.Snapshot())
}

func TestDeliveryCycle(t *testing.T) {
	t.Run("投递成功置sent", func(t *testing.T) {
		env := newWorkerEnv(t, baseConfig())
		msg := enqueue(t, env)

		env.sender.On("Send", mock.Anything, mock.Anything, "noreply@example.com",
			[]string{"alice@example.com"}, mock.Anything).Return(nil).Once()

		runCycle(t, env)

		got, err := env.manager.Get(msg.UUID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusSent, got.Status)
		env.sender.AssertExpectations(t)
	})

	t.Run("投递失败按退避排期", func(t *testing.T) {
		env := newWorkerEnv(t, baseConfig())
		msg := enqueue(t, env)

		env.sender.On("Send", mock.Anything, mock.Anything, mock.Anything,
			mock.Anything, mock.Anything).Return(errors.New("450 try later")).Once()

		runCycle(t, env)

		got, err := env.manager.Get(msg.UUID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusFailed, got.Status)
		require.Equal(t, 2, got.RetriesRemaining)
		require.NotNil(t, got.NextRetryAt)
		require.Contains(t, got.LastError, "450 try later")
	})

	t.Run("SMTP未配置确定性失败", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Mail.Server = ""
		env := newWorkerEnv(t, cfg)
		msg := enqueue(t, env)

		env.sender.On("Send", mock.Anything, mock.Anything, mock.Anything,
			mock.Anything, mock.Anything).Return(domain.ErrSMTPNotConfigured).Once()

		runCycle(t, env)

		got, err := env.manager.Get(msg.UUID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusFailed, got.Status)
		require.Contains(t, got.LastError, "smtp")
	})
}

// blockingSender 卡住投递直到放行，用于制造在飞中的停机
type blockingSender struct {
	started chan struct{} // 每次 Send 开始时发一个信号
	release chan struct{} // 关闭后放行所有被卡住的 Send
}

func (s *blockingSender) Send(ctx context.Context, cfg config.MailConfig, from string, recipients []string, raw []byte) error {
	s.started <- struct{}{}
	<-s.release
	return nil
}

func TestGracefulShutdown(t *testing.T) {
	t.Run("在飞投递回写完成后Run返回", func(t *testing.T) {
		// 批大小大于并发度：取消时一部分投递在飞，
		// 其余还在池队列里排队
		cfg := baseConfig()
		env := newWorkerEnv(t, cfg)

		sender := &blockingSender{
			started: make(chan struct{}, 16),
			release: make(chan struct{}),
		}
		log := zap.NewNop()
		metrics := monitoring.NewMetrics()
		delivery := NewDelivery(env.manager, env.store, env.blobs, env.settings,
			sender, audit.New(env.store, log), metrics, 2, log)

		const total = 6
		var uuids []string
		for i := 0; i < total; i++ {
			uuids = append(uuids, enqueue(t, env).UUID)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- delivery.Run(ctx) }()

		// 等两个并发投递都进入 Send
		for i := 0; i < 2; i++ {
			select {
			case <-sender.started:
			case <-time.After(10 * time.Second):
				t.Fatal("delivery never started")
			}
		}

		// 先取消再放行：在飞的两条回写完，排队的跳过
		cancel()
		close(sender.release)

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("Run did not return after cancellation")
		}

		sent, sending := 0, 0
		for _, id := range uuids {
			got, err := env.manager.Get(id)
			require.NoError(t, err)
			switch got.Status {
			case domain.StatusSent:
				sent++
			case domain.StatusSending:
				sending++
				// 跳过的投递不扣重试配额，留给恢复扫描
				require.Equal(t, 3, got.RetriesRemaining)
			default:
				t.Fatalf("message %s in unexpected status %s", id, got.Status)
			}
		}
		require.Equal(t, 2, sent)
		require.Equal(t, total-2, sending)

		// 恢复扫描把跳过的行重新排期
		snap := env.settings.Snapshot()
		snap.RecoverAfter = -time.Second
		delivery.recoverStuck(snap)
		for _, id := range uuids {
			got, err := env.manager.Get(id)
			require.NoError(t, err)
			require.NotEqual(t, domain.StatusSending, got.Status)
		}
	})
}

func TestRecoverStuck(t *testing.T) {
	t.Run("卡死的sending按失败恢复", func(t *testing.T) {
		cfg := baseConfig()
		env := newWorkerEnv(t, cfg)
		msg := enqueue(t, env)

		// 认领后不回写，模拟 worker 崩溃
		claimed, err := env.manager.ClaimBatch(10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		snap := env.settings.Snapshot()
		snap.RecoverAfter = -time.Second // 任何 sending 都视为过期
		env.delivery.recoverStuck(snap)

		got, err := env.manager.Get(msg.UUID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusFailed, got.Status)
		require.Equal(t, 2, got.RetriesRemaining)
		require.Contains(t, got.LastError, "interrupted")
	})

	t.Run("新鲜的sending不受影响", func(t *testing.T) {
		env := newWorkerEnv(t, baseConfig())
		msg := enqueue(t, env)

		_, err := env.manager.ClaimBatch(10)
		require.NoError(t, err)

		env.delivery.recoverStuck(env.settings.Snapshot()) // RecoverAfter = 1h

		got, err := env.manager.Get(msg.UUID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusSending, got.Status)
	})
}

func TestRetentionSweep(t *testing.T) {
	t.Run("只清理过期的终态消息", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Retention.Days = -1 // cutoff 在未来，所有终态都算过期
		env := newWorkerEnv(t, cfg)

		sent := enqueue(t, env)
		queued := enqueue(t, env)
		cancelled := enqueue(t, env)

		claimed, err := env.store.ClaimBatch(1, time.Now().UTC())
		require.NoError(t, err)
		require.Equal(t, sent.UUID, claimed[0].UUID)
		require.NoError(t, env.manager.RecordSuccess(&claimed[0]))
		_, err = env.manager.Cancel(cancelled.UUID, "admin")
		require.NoError(t, err)

		require.NoError(t, env.purge.Sweep())

		_, err = env.manager.Get(sent.UUID)
		require.ErrorIs(t, err, domain.ErrMessageNotFound)
		_, err = env.manager.Get(cancelled.UUID)
		require.ErrorIs(t, err, domain.ErrMessageNotFound)

		// 非终态无论多旧都保留
		got, err := env.manager.Get(queued.UUID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusQueued, got.Status)
	})

	t.Run("blob在失去最后一个引用后回收", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Retention.Days = -1
		env := newWorkerEnv(t, cfg)

		payload := []byte("shared attachment bytes")
		attach := func() *domain.Message {
			msg, err := env.manager.Enqueue(queue.EnqueueInput{
				Envelope: domain.Envelope{
					From: "noreply@example.com",
					To:   []string{"alice@example.com"},
					Body: "body",
				},
				Attachments: []queue.AttachmentInput{
					{Filename: "a.bin", Data: payload},
				},
				Source: "test",
			})
			require.NoError(t, err)
			return msg
		}

		doomed := attach()
		survivor := attach()
		hash := doomed.Attachments[0].SHA256

		// doomed 送达后进入终态，survivor 留在队列里
		claimed, err := env.store.ClaimBatch(1, time.Now().UTC())
		require.NoError(t, err)
		require.Equal(t, doomed.UUID, claimed[0].UUID)
		require.NoError(t, env.manager.RecordSuccess(&claimed[0]))

		require.NoError(t, env.purge.Sweep())

		// survivor 还引用着同一个 blob，不能删
		require.True(t, env.blobs.Exists(hash))

		// survivor 也进终态后，下一轮清理连 blob 一起回收
		claimed, err = env.store.ClaimBatch(1, time.Now().UTC())
		require.NoError(t, err)
		require.Equal(t, survivor.UUID, claimed[0].UUID)
		require.NoError(t, env.manager.RecordSuccess(&claimed[0]))

		require.NoError(t, env.purge.Sweep())
		require.False(t, env.blobs.Exists(hash))
	})
}
