package domain

import "errors"

// 引擎级错误分类
//
// 所有引擎错误都必须归入以下类别之一，调用方通过 errors.Is 区分，
// 不允许抛出未分类的裸错误。
var (
	// ErrValidation 入队参数校验失败（信封格式、正文类型、附件超限等），
	// 同步拒绝，不落库。
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition 非法状态转移或认领竞争，
	// 向调用方返回冲突，记录日志，绝不导致 worker 进程退出。
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMessageNotFound 消息不存在
	ErrMessageNotFound = errors.New("message not found")

	// ErrBlobNotFound 附件 blob 缺失（存储损坏或悬挂引用），
	// 对单次投递是致命的，但不影响进程。
	ErrBlobNotFound = errors.New("blob not found")

	// ErrBlobTooLarge 附件超过配置的大小上限
	ErrBlobTooLarge = errors.New("attachment exceeds size limit")

	// ErrAPIKeyInvalid API Key 无效或已禁用
	ErrAPIKeyInvalid = errors.New("invalid or disabled API key")

	// ErrAPIKeyNotFound API Key 不存在
	ErrAPIKeyNotFound = errors.New("API key not found")

	// ErrSMTPNotConfigured SMTP 服务器未配置，投递尝试确定性失败
	ErrSMTPNotConfigured = errors.New("smtp server not configured")
)
