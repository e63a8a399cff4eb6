package sqlite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"outbox/backend/internal/domain"
)

// Store SQLite 存储实现
//
// WAL 模式 + busy_timeout，事务一律 BEGIN IMMEDIATE，
// 写写冲突在 BEGIN 处排队而不是在读升写时失败。
type Store struct {
	db *gorm.DB
}

// NewStore 打开（必要时创建）SQLite 数据库并执行迁移
//
// 连接参数全部写进 DSN，连接池里的每个连接都带相同设置。
// _txlock=immediate 让事务从一开始就持有写锁：并发认领者
// 在 busy_timeout 内排队，排到的看见前一个事务落盘后的
// 状态，不会拿到 SQLITE_BUSY_SNAPSHOT。
func NewStore(path string, busyTimeout time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate",
		path, busyTimeout.Milliseconds())

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

// migrate 执行数据库迁移（GORM AutoMigrate）
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Message{},
		&domain.Attachment{},
		&domain.APIKey{},
		&domain.AuditLog{},
		&domain.AppSetting{},
	)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// notFound 把 gorm 的未找到错误映射为领域错误
func notFound(err error, domainErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainErr
	}
	return err
}
