/*
Package notify delivers leave notifications.

Three senders implement leave.NotificationSender:
  - SMTPSender: plain-text mail, one message per recipient
  - KafkaSender: hands messages to a mail service via the notification topic
  - LogSender: logs instead of sending, for local runs

New picks SMTP when email is enabled and a host is configured, and
LogSender otherwise.
*/
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

type SMTPConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	UseTLS   bool
	From     string
}

// New returns the sender described by cfg.
func New(cfg SMTPConfig, logger ...*zap.Logger) leave.NotificationSender {
	if !cfg.Enabled || cfg.Host == "" {
		return NewLogSender(logger...)
	}
	return NewSMTPSender(cfg)
}

type SMTPSender struct {
	cfg  SMTPConfig
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		cfg: cfg,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			dialer := net.Dialer{Timeout: 10 * time.Second}
			return dialer.DialContext(ctx, "tcp", addr)
		},
	}
}

// Send mails each recipient separately. Blank recipients are skipped; a
// failure for one recipient does not stop the others.
func (s *SMTPSender) Send(ctx context.Context, recipients []string, subject, body string) error {
	var errs []error
	for _, to := range recipients {
		if strings.TrimSpace(to) == "" {
			continue
		}
		if err := s.sendOne(ctx, to, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func (s *SMTPSender) sendOne(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	conn, err := s.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.cfg.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return err
		}
	}

	if s.cfg.User != "" {
		auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(buildMessage(s.cfg.From, to, subject, body)); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n" + body)
}
