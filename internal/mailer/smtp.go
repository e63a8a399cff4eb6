package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"outbox/backend/internal/config"
	"outbox/backend/internal/domain"
)

// Sender 单次出站投递
//
// worker 只依赖这个接口；测试用 mock 替身，生产环境是
// SMTPSender。
type Sender interface {
	Send(ctx context.Context, cfg config.MailConfig, from string, recipients []string, raw []byte) error
}

// SMTPSender 通过外部 SMTP 服务器投递
type SMTPSender struct {
	log *zap.Logger
}

// NewSMTPSender 创建 SMTP 投递器
func NewSMTPSender(log *zap.Logger) *SMTPSender {
	return &SMTPSender{log: log}
}

// Send 建连、认证并投递一封完整报文
//
// SMTP 服务器未配置时确定性失败（消耗一次重试配额），
// 不让 worker 崩溃。每次投递独立建连，队列吞吐远够不上
// 需要连接复用的量级。
func (s *SMTPSender) Send(ctx context.Context, cfg config.MailConfig, from string, recipients []string, raw []byte) error {
	if cfg.Server == "" {
		return domain.ErrSMTPNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port))

	var client *smtp.Client
	var err error
	if cfg.UseStartTLS {
		client, err = smtp.DialStartTLS(addr, &tls.Config{ServerName: cfg.Server})
	} else {
		client, err = smtp.Dial(addr)
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer client.Close()

	if cfg.Timeout > 0 {
		client.CommandTimeout = cfg.Timeout
		client.SubmissionTimeout = cfg.Timeout
	}

	if cfg.Username != "" {
		auth := sasl.NewPlainClient("", cfg.Username, cfg.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(from, nil); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish body: %w", err)
	}

	// 报文已被接受，Quit 阶段的异常响应不影响结果
	if err := client.Quit(); err != nil {
		s.log.Debug("smtp quit", zap.Error(err))
	}
	return nil
}
