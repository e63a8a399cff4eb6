package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"outbox/backend/internal/domain"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	domain.ErrValidation:        "请求参数校验失败",
	domain.ErrInvalidTransition: "消息当前状态不允许该操作",
	domain.ErrMessageNotFound:   "消息不存在",
	domain.ErrBlobNotFound:      "附件内容不存在",
	domain.ErrBlobTooLarge:      "附件超过大小限制",
	domain.ErrAPIKeyInvalid:     "API Key无效",
	domain.ErrAPIKeyNotFound:    "API Key不存在",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for sentinel, msg := range errorMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return err.Error()
}

// respondError 按错误类别选择 HTTP 状态码
//
// 校验类 400，不存在类 404，状态冲突类 409，其余 500。
func respondError(c *gin.Context, err error) {
	msg := GetErrorMessage(err)
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrBlobTooLarge):
		BadRequest(c, msg)
	case errors.Is(err, domain.ErrMessageNotFound), errors.Is(err, domain.ErrAPIKeyNotFound):
		NotFound(c, msg)
	case errors.Is(err, domain.ErrInvalidTransition):
		Conflict(c, msg)
	default:
		InternalError(c, msg)
	}
}

// 通用错误消息
const (
	MsgInvalidRequest   = "请求参数格式错误"
	MsgInvalidJSON      = "JSON格式错误"
	MsgRequestBodyEmpty = "请求体不能为空"
	MsgInvalidBase64    = "附件内容不是合法的base64"
	MsgStatsFailed      = "获取统计信息失败"
	MsgListFailed       = "获取消息列表失败"
)
