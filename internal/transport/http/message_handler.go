package httptransport

import (
	"encoding/base64"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"outbox/backend/internal/domain"
	"outbox/backend/internal/middleware"
	"outbox/backend/internal/queue"
	"outbox/backend/internal/storage"
)

// MessageHandler 消息相关的 HTTP 处理器
type MessageHandler struct {
	manager       *queue.Manager
	defaultSender string
	logger        *zap.Logger
}

// NewMessageHandler 创建消息处理器
func NewMessageHandler(manager *queue.Manager, defaultSender string, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		manager:       manager,
		defaultSender: defaultSender,
		logger:        logger,
	}
}

// submitRequest 提交消息的请求体
type submitRequest struct {
	From        string              `json:"from_address"`
	To          []string            `json:"to"`
	Cc          []string            `json:"cc"`
	Bcc         []string            `json:"bcc"`
	Subject     string              `json:"subject"`
	Body        string              `json:"body"`
	BodyType    string              `json:"body_type"`
	Attachments []attachmentPayload `json:"attachments"`
}

// attachmentPayload 请求中的单个附件，内容为 base64
type attachmentPayload struct {
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
	ContentBase64 string `json:"content_base64"`
}

// messageView 对外的消息视图
type messageView struct {
	UUID             string            `json:"uuid"`
	Status           domain.Status     `json:"status"`
	FromAddress      string            `json:"from_address"`
	To               []string          `json:"to"`
	Cc               []string          `json:"cc,omitempty"`
	Bcc              []string          `json:"bcc,omitempty"`
	Subject          string            `json:"subject"`
	BodyType         domain.BodyType   `json:"body_type"`
	RetriesRemaining int               `json:"retries_remaining"`
	NextRetryAt      *time.Time        `json:"next_retry_at,omitempty"`
	LastError        string            `json:"last_error,omitempty"`
	Source           string            `json:"source,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	SentAt           *time.Time        `json:"sent_at,omitempty"`
	Attachments      []attachmentView  `json:"attachments,omitempty"`
}

type attachmentView struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	SHA256      string `json:"sha256"`
}

func toView(msg *domain.Message) messageView {
	view := messageView{
		UUID:             msg.UUID,
		Status:           msg.Status,
		FromAddress:      msg.FromAddress,
		To:               msg.To(),
		Cc:               msg.Cc(),
		Bcc:              msg.Bcc(),
		Subject:          msg.Subject,
		BodyType:         msg.BodyType,
		RetriesRemaining: msg.RetriesRemaining,
		NextRetryAt:      msg.NextRetryAt,
		LastError:        msg.LastError,
		Source:           msg.Source,
		CreatedAt:        msg.CreatedAt,
		UpdatedAt:        msg.UpdatedAt,
		SentAt:           msg.SentAt,
	}
	for _, att := range msg.Attachments {
		view.Attachments = append(view.Attachments, attachmentView{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			SizeBytes:   att.SizeBytes,
			SHA256:      att.SHA256,
		})
	}
	return view
}

// Submit 提交一条消息入队
//
// POST /api/v1/messages
func (h *MessageHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidJSON)
		return
	}

	if req.From == "" {
		req.From = h.defaultSender
	}

	input := queue.EnqueueInput{
		Envelope: domain.Envelope{
			From:     req.From,
			To:       req.To,
			Cc:       req.Cc,
			Bcc:      req.Bcc,
			Subject:  req.Subject,
			Body:     req.Body,
			BodyType: domain.BodyType(req.BodyType),
		},
		Source: c.GetString(middleware.ContextKeySource),
	}
	if key, ok := c.Get(middleware.ContextKeyAPIKey); ok {
		if rec, ok := key.(*domain.APIKey); ok {
			input.SourceAPIKeyID = &rec.ID
		}
	}

	for _, att := range req.Attachments {
		data, err := base64.StdEncoding.DecodeString(att.ContentBase64)
		if err != nil {
			BadRequest(c, MsgInvalidBase64)
			return
		}
		input.Attachments = append(input.Attachments, queue.AttachmentInput{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Data:        data,
		})
	}

	msg, err := h.manager.Enqueue(input)
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, toView(msg))
}

// Get 查询单条消息
//
// GET /api/v1/messages/:uuid
func (h *MessageHandler) Get(c *gin.Context) {
	msg, err := h.manager.Get(c.Param("uuid"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, toView(msg))
}

// List 分页查询消息
//
// GET /api/v1/messages?status=failed&search=alice&limit=50&offset=0
func (h *MessageHandler) List(c *gin.Context) {
	var query struct {
		Status string `form:"status"`
		Search string `form:"search"`
		Limit  int    `form:"limit,default=50"`
		Offset int    `form:"offset"`
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
	if query.Status != "" && !domain.Status(query.Status).IsValid() {
		BadRequest(c, "未知的消息状态")
		return
	}

	msgs, total, err := h.manager.List(storage.ListFilter{
		Status: domain.Status(query.Status),
		Search: query.Search,
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		h.logger.Error("list messages failed", zap.Error(err))
		InternalError(c, MsgListFailed)
		return
	}

	views := make([]messageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, toView(&msgs[i]))
	}
	Success(c, gin.H{
		"messages": views,
		"total":    total,
		"limit":    query.Limit,
		"offset":   query.Offset,
	})
}

// Retry 把 failed/dead 的消息重新入队
//
// POST /api/v1/messages/:uuid/retry
func (h *MessageHandler) Retry(c *gin.Context) {
	msg, err := h.manager.Retry(c.Param("uuid"), c.GetString(middleware.ContextKeySource))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, toView(msg))
}

// Cancel 取消一条还在排队的消息
//
// POST /api/v1/messages/:uuid/cancel
func (h *MessageHandler) Cancel(c *gin.Context) {
	msg, err := h.manager.Cancel(c.Param("uuid"), c.GetString(middleware.ContextKeySource))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, toView(msg))
}

// Stats 按状态统计消息数量
//
// GET /api/v1/stats
func (h *MessageHandler) Stats(c *gin.Context) {
	counts, err := h.manager.Stats()
	if err != nil {
		h.logger.Error("stats failed", zap.Error(err))
		InternalError(c, MsgStatsFailed)
		return
	}
	Success(c, counts)
}
