package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

// RFC 5321/5322 地址长度限制
const (
	MaxEmailLength   = 254
	MaxSubjectLength = 998
)

// Envelope 入队请求的信封部分（尚未持久化）
type Envelope struct {
	From     string
	To       []string
	Cc       []string
	Bcc      []string
	Subject  string
	Body     string
	BodyType BodyType
}

// Validate 校验信封
//
// 规则：发件人必填且格式合法；to/cc/bcc 合计至少一个收件人，
// 每个地址都必须通过 RFC 5322 语法检查；正文类型必须是
// plain/html/markdown 之一。任何违规都返回 ErrValidation 类错误，
// 调用方同步拒绝请求，不落库。
func (e *Envelope) Validate() error {
	if strings.TrimSpace(e.From) == "" {
		return fmt.Errorf("%w: from_address is required", ErrValidation)
	}
	if err := validateAddress(e.From); err != nil {
		return fmt.Errorf("%w: from_address: %v", ErrValidation, err)
	}

	total := len(e.To) + len(e.Cc) + len(e.Bcc)
	if total == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrValidation)
	}
	for _, list := range [][]string{e.To, e.Cc, e.Bcc} {
		for _, addr := range list {
			if err := validateAddress(addr); err != nil {
				return fmt.Errorf("%w: recipient %q: %v", ErrValidation, addr, err)
			}
		}
	}

	if e.BodyType == "" {
		e.BodyType = BodyPlain
	}
	if !e.BodyType.IsValid() {
		return fmt.Errorf("%w: body_type must be plain, html or markdown", ErrValidation)
	}
	if len(e.Subject) > MaxSubjectLength {
		return fmt.Errorf("%w: subject too long", ErrValidation)
	}
	return nil
}

func validateAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("empty address")
	}
	if len(addr) > MaxEmailLength {
		return fmt.Errorf("address too long")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return fmt.Errorf("invalid format")
	}
	// 不接受 "Name <a@b>" 形式，入队方必须传纯地址
	if parsed.Address != addr {
		return fmt.Errorf("display names are not allowed")
	}
	return nil
}
