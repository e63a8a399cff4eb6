package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"outbox/backend/internal/queue"
)

// 上下文键
const (
	ContextKeyAPIKey = "apiKey"
	ContextKeySource = "source"
)

// APIKeyAuth API Key认证中间件
type APIKeyAuth struct {
	keys *queue.APIKeyService
}

// NewAPIKeyAuth 创建API Key认证中间件
func NewAPIKeyAuth(keys *queue.APIKeyService) *APIKeyAuth {
	return &APIKeyAuth{keys: keys}
}

// RequireAPIKey 要求API Key认证
//
// 校验通过后把来源标签存入上下文，消息行与审计记录
// 都用它标识调用方。
func (m *APIKeyAuth) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			c.Abort()
			return
		}

		// 验证API Key并自动更新最后使用时间
		key, err := m.keys.Verify(apiKey)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid API key",
			})
			c.Abort()
			return
		}

		c.Set(ContextKeyAPIKey, key)
		c.Set(ContextKeySource, key.SourceLabel())
		c.Next()
	}
}
