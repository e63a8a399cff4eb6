package queue

import "time"

// Backoff 计算第 attempt 次失败（从 0 计）后的重试延迟
//
// delay = base * 2^attempt，封顶 max。延迟是确定性的：
// 单写者的文件库不存在雪崩效应，加抖动只会让排障更难。
func Backoff(attempt, baseSeconds, maxSeconds int) time.Duration {
	if baseSeconds < 1 {
		baseSeconds = 1
	}
	if maxSeconds < baseSeconds {
		maxSeconds = baseSeconds
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := int64(baseSeconds)
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= int64(maxSeconds) {
			return time.Duration(maxSeconds) * time.Second
		}
	}
	return time.Duration(delay) * time.Second
}
