package mailer

import (
	"github.com/russross/blackfriday/v2"

	"outbox/backend/internal/domain"
)

// RenderedBody 渲染后的正文
//
// Plain 与 HTML 至少有一个非空；两者都有时装配为
// multipart/alternative，纯文本在前。
type RenderedBody struct {
	Plain string
	HTML  string
}

// RenderBody 按 body_type 渲染正文
//
// markdown 渲染为 HTML，原文同时作为纯文本替代部分保留，
// 不支持 HTML 的客户端仍能读到可读的内容。
func RenderBody(body string, bodyType domain.BodyType) RenderedBody {
	switch bodyType {
	case domain.BodyHTML:
		return RenderedBody{HTML: body}
	case domain.BodyMarkdown:
		html := blackfriday.Run([]byte(body))
		return RenderedBody{Plain: body, HTML: string(html)}
	default:
		return RenderedBody{Plain: body}
	}
}
