package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"outbox/backend/internal/domain"
)

// BlobReader 按内容哈希读取附件字节
type BlobReader interface {
	Get(hash string) ([]byte, error)
}

// BuildMIME 把消息装配为完整的 RFC 5322 报文
//
// 结构：有附件时最外层是 multipart/mixed；正文若同时有纯文本
// 与 HTML 两种形态则是 multipart/alternative，纯文本在前。
// 附件字节从 blob 存储按哈希读取，base64 编码内联；blob 缺失
// 按投递失败处理（返回错误，消耗一次重试）。
func BuildMIME(msg *domain.Message, blobs BlobReader) ([]byte, error) {
	bodyType, bodyContent, err := encodeBody(RenderBody(msg.Body, msg.BodyType))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writeHeader := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}

	writeHeader("From", msg.FromAddress)
	writeHeader("To", strings.Join(msg.To(), ", "))
	if cc := msg.Cc(); len(cc) > 0 {
		writeHeader("Cc", strings.Join(cc, ", "))
	}
	// Bcc 收件人只进 SMTP 信封，不出现在报文头
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader("Date", time.Now().UTC().Format(time.RFC1123Z))
	writeHeader("Message-ID", messageID(msg))
	writeHeader("MIME-Version", "1.0")

	if len(msg.Attachments) == 0 {
		writeHeader("Content-Type", bodyType)
		buf.WriteString("\r\n")
		buf.Write(bodyContent)
		return buf.Bytes(), nil
	}

	mixed := multipart.NewWriter(&buf)
	writeHeader("Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mixed.Boundary()))
	buf.WriteString("\r\n")

	bodyPart, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {bodyType},
	})
	if err != nil {
		return nil, err
	}
	if _, err := bodyPart.Write(bodyContent); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		data, err := blobs.Get(att.SHA256)
		if err != nil {
			return nil, fmt.Errorf("attachment %q: %w", att.Filename, err)
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", fmt.Sprintf("%s; name=%q", att.ContentType, att.Filename))
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
		h.Set("Content-Transfer-Encoding", "base64")
		part, err := mixed.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, data); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeBody 把渲染结果编码为一个 MIME 实体，返回 Content-Type 与内容
func encodeBody(body RenderedBody) (string, []byte, error) {
	if body.Plain != "" && body.HTML != "" {
		var buf bytes.Buffer
		alt := multipart.NewWriter(&buf)
		for _, p := range []struct {
			contentType string
			content     string
		}{
			{"text/plain; charset=utf-8", body.Plain},
			{"text/html; charset=utf-8", body.HTML},
		} {
			part, err := alt.CreatePart(textproto.MIMEHeader{
				"Content-Type":              {p.contentType},
				"Content-Transfer-Encoding": {"8bit"},
			})
			if err != nil {
				return "", nil, err
			}
			if _, err := part.Write([]byte(p.content)); err != nil {
				return "", nil, err
			}
		}
		if err := alt.Close(); err != nil {
			return "", nil, err
		}
		contentType := fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary())
		return contentType, buf.Bytes(), nil
	}

	if body.HTML != "" {
		return "text/html; charset=utf-8", []byte(body.HTML), nil
	}
	return "text/plain; charset=utf-8", []byte(body.Plain), nil
}

func messageID(msg *domain.Message) string {
	host := "outbox.local"
	if at := strings.LastIndex(msg.FromAddress, "@"); at >= 0 && at < len(msg.FromAddress)-1 {
		host = msg.FromAddress[at+1:]
	}
	return fmt.Sprintf("<%s.%s@%s>", msg.UUID, uuid.New().String()[:8], host)
}

// writeBase64 按 76 列折行写 base64
func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := 76
		if n > len(encoded) {
			n = len(encoded)
		}
		if _, err := io.WriteString(w, encoded[:n]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}
