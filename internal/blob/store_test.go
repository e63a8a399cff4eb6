package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outbox/backend/internal/domain"
)

// fakeRefCounter 测试用的引用计数器
type fakeRefCounter struct {
	counts map[string]int64
}

func (f *fakeRefCounter) CountAttachmentsByHash(hash string) (int64, error) {
	return f.counts[hash], nil
}

func newTestStore(t *testing.T, maxSizeMB int) (*Store, *fakeRefCounter) {
	t.Helper()
	refs := &fakeRefCounter{counts: make(map[string]int64)}
	store, err := NewStore(t.TempDir(), maxSizeMB, refs)
	require.NoError(t, err)
	return store, refs
}

func TestStore_PutAndGet(t *testing.T) {
	store, _ := newTestStore(t, 1)

	data := []byte("attachment payload")
	hash, err := store.Put(data)
	require.NoError(t, err)

	expected := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(expected[:]), hash)

	got, err := store.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStore_PutDeduplicates(t *testing.T) {
	store, _ := newTestStore(t, 1)

	data := []byte("same bytes twice")
	hash1, err := store.Put(data)
	require.NoError(t, err)
	hash2, err := store.Put(data)
	require.NoError(t, err)

	assert.Equal(t, hash1, hash2)

	// 物理上只有一个文件
	var files int
	err = filepath.Walk(store.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, files)
}

func TestStore_PutSizeLimit(t *testing.T) {
	store, _ := newTestStore(t, 1)

	big := make([]byte, 1024*1024+1)
	_, err := store.Put(big)
	assert.ErrorIs(t, err, domain.ErrBlobTooLarge)

	// 正好在上限内可以写入
	ok := make([]byte, 1024*1024)
	_, err = store.Put(ok)
	assert.NoError(t, err)
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t, 1)

	_, err := store.Get("deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)
}

func TestStore_DeleteIfUnreferenced(t *testing.T) {
	store, refs := newTestStore(t, 1)

	hash, err := store.Put([]byte("shared content"))
	require.NoError(t, err)

	// 还有引用时不删除
	refs.counts[hash] = 1
	deleted, err := store.DeleteIfUnreferenced(hash)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, store.Exists(hash))

	// 最后一条引用消失后删除
	refs.counts[hash] = 0
	deleted, err = store.DeleteIfUnreferenced(hash)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, store.Exists(hash))

	// 再次调用是安全的空操作
	deleted, err = store.DeleteIfUnreferenced(hash)
	require.NoError(t, err)
	assert.False(t, deleted)
}
