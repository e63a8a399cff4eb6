package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"outbox/backend/internal/domain"
)

// RefCounter 查询仍引用某个哈希的附件行数
//
// 引用计数完全由查询推导（不维护存储的计数器字段），
// 崩溃后不会产生计数漂移。
type RefCounter interface {
	CountAttachmentsByHash(hash string) (int64, error)
}

// Store 内容寻址的附件 blob 存储
//
// 路径布局: {dir}/{哈希前两位}/{完整哈希}，同样的字节内容
// 只存一份物理文件，任意多条附件行共享。
type Store struct {
	dir     string
	maxSize atomic.Int64
	refs    RefCounter
}

// NewStore 创建 blob 存储，确保根目录存在
func NewStore(dir string, maxSizeMB int, refs RefCounter) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	s := &Store{dir: dir, refs: refs}
	s.maxSize.Store(int64(maxSizeMB) * 1024 * 1024)
	return s, nil
}

// MaxSize 返回单个附件的字节上限
func (s *Store) MaxSize() int64 {
	return s.maxSize.Load()
}

// SetMaxSizeMB 调整大小上限，运行期设置覆盖时由队列管理器调用
func (s *Store) SetMaxSizeMB(maxSizeMB int) {
	s.maxSize.Store(int64(maxSizeMB) * 1024 * 1024)
}

// Put 写入一个 blob，返回其内容哈希
//
// 超过大小上限返回 ErrBlobTooLarge。写入是幂等的：哈希已存在时
// 直接复用现有文件。落盘走临时文件 + rename，避免半写的 blob。
func (s *Store) Put(data []byte) (string, error) {
	if limit := s.maxSize.Load(); int64(len(data)) > limit {
		return "", fmt.Errorf("%w: %d bytes (max %d)", domain.ErrBlobTooLarge, len(data), limit)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	path := s.path(hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blob subdirectory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+hash+".tmp*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename blob: %w", err)
	}
	return hash, nil
}

// Get 按哈希读取 blob 内容
//
// 不存在返回 ErrBlobNotFound——这意味着存储损坏或悬挂引用，
// 必须上报，不允许静默替换内容。
func (s *Store) Get(hash string) ([]byte, error) {
	data, err := os.ReadFile(s.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrBlobNotFound, hash)
		}
		return nil, fmt.Errorf("read blob %s: %w", hash, err)
	}
	return data, nil
}

// Exists 判断 blob 是否存在
func (s *Store) Exists(hash string) bool {
	_, err := os.Stat(s.path(hash))
	return err == nil
}

// DeleteIfUnreferenced 在最后一条引用行被删除后回收物理文件
//
// 删除前重新查询引用计数，只有确实无引用时才删文件，
// 返回是否真正删除。仅由保留期清理任务调用。
func (s *Store) DeleteIfUnreferenced(hash string) (bool, error) {
	count, err := s.refs.CountAttachmentsByHash(hash)
	if err != nil {
		return false, fmt.Errorf("count references for %s: %w", hash, err)
	}
	if count > 0 {
		return false, nil
	}

	err = os.Remove(s.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("remove blob %s: %w", hash, err)
	}
	return true, nil
}

// path 由哈希推导存储路径
func (s *Store) path(hash string) string {
	sub := hash
	if len(hash) >= 2 {
		sub = hash[:2]
	}
	return filepath.Join(s.dir, sub, hash)
}
