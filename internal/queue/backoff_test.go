package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Run("指数翻倍", func(t *testing.T) {
		assert.Equal(t, 10*time.Second, Backoff(0, 10, 3600))
		assert.Equal(t, 20*time.Second, Backoff(1, 10, 3600))
		assert.Equal(t, 40*time.Second, Backoff(2, 10, 3600))
		assert.Equal(t, 80*time.Second, Backoff(3, 10, 3600))
	})

	t.Run("封顶于上限", func(t *testing.T) {
		assert.Equal(t, 3600*time.Second, Backoff(20, 120, 3600))
		// 大量失败次数不会溢出
		assert.Equal(t, 3600*time.Second, Backoff(100000, 120, 3600))
	})

	t.Run("默认策略的前几档", func(t *testing.T) {
		assert.Equal(t, 120*time.Second, Backoff(0, 120, 3600))
		assert.Equal(t, 240*time.Second, Backoff(1, 120, 3600))
		assert.Equal(t, 480*time.Second, Backoff(2, 120, 3600))
	})

	t.Run("非法输入被钳制", func(t *testing.T) {
		assert.Equal(t, 10*time.Second, Backoff(-3, 10, 3600))
		assert.Equal(t, 1*time.Second, Backoff(0, 0, 3600))
		// 上限小于基数时取基数
		assert.Equal(t, 10*time.Second, Backoff(0, 10, 5))
	})
}
