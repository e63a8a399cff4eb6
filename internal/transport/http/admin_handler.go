package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"outbox/backend/internal/settings"
	"outbox/backend/internal/storage"
)

// AdminHandler 运行期设置与审计日志的管理处理器
type AdminHandler struct {
	settings *settings.Service
	store    storage.Store
	logger   *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(svc *settings.Service, store storage.Store, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{settings: svc, store: store, logger: logger}
}

// ListSettings 列出全部运行期覆盖
//
// GET /api/v1/admin/settings
func (h *AdminHandler) ListSettings(c *gin.Context) {
	all, err := h.settings.All()
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, all)
}

// SetSetting 写入一条运行期覆盖
//
// PUT /api/v1/admin/settings
//
// 立即落库；下一个 worker 周期开始生效，无需重启。
func (h *AdminHandler) SetSetting(c *gin.Context) {
	var req struct {
		Key         string `json:"key" binding:"required"`
		Value       string `json:"value" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidJSON)
		return
	}
	if err := h.settings.Set(req.Key, req.Value, req.Description); err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"key": req.Key, "value": req.Value})
}

// ListAudit 按时间倒序分页读取审计日志
//
// GET /api/v1/admin/audit?limit=50&offset=0
func (h *AdminHandler) ListAudit(c *gin.Context) {
	var query struct {
		Limit  int `form:"limit,default=50"`
		Offset int `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if query.Limit < 1 || query.Limit > 200 {
		query.Limit = 50
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	entries, total, err := h.store.ListAudit(query.Limit, query.Offset)
	if err != nil {
		h.logger.Error("list audit failed", zap.Error(err))
		InternalError(c, "获取审计日志失败")
		return
	}
	Success(c, gin.H{
		"entries": entries,
		"total":   total,
		"limit":   query.Limit,
		"offset":  query.Offset,
	})
}
