package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"outbox/backend/internal/queue"
)

// APIKeyHandler API Key 管理处理器
type APIKeyHandler struct {
	keys *queue.APIKeyService
}

// NewAPIKeyHandler 创建 API Key 处理器
func NewAPIKeyHandler(keys *queue.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{keys: keys}
}

// Create 签发新 Key
//
// POST /api/v1/admin/apikeys
func (h *APIKeyHandler) Create(c *gin.Context) {
	var req struct {
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidJSON)
		return
	}
	key, err := h.keys.Create(req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	// 明文 Key 只在这一次响应中出现
	Created(c, key)
}

// List 列出全部 Key
//
// GET /api/v1/admin/apikeys
func (h *APIKeyHandler) List(c *gin.Context) {
	keys, err := h.keys.List()
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, keys)
}

// SetEnabled 启用/禁用 Key
//
// PATCH /api/v1/admin/apikeys/:id
func (h *APIKeyHandler) SetEnabled(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		BadRequest(c, MsgInvalidJSON)
		return
	}
	if err := h.keys.SetEnabled(uint(id), *req.Enabled); err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"id": id, "enabled": *req.Enabled})
}

// Delete 删除 Key
//
// DELETE /api/v1/admin/apikeys/:id
func (h *APIKeyHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if err := h.keys.Delete(uint(id)); err != nil {
		respondError(c, err)
		return
	}
	NoContent(c)
}
