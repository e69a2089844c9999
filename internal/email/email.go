// Package email abstracts outbound delivery for the outbox worker pool
// behind a single Sender interface, so the pool never branches on which
// provider is configured.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/resend/resend-go/v2"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender logs emails instead of sending them — used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("analysis notification email (local dev)", "to", to, "subject", subject, "body", body)
	return nil
}

// ResendSender sends emails via the Resend API — used in staging/production.
type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}
	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// SMTPConfig describes an operator-supplied relay. Plain net/smtp is used
// here deliberately: SMTP delivery is an external contract with no
// meaningful third-party client in the rest of the dependency set, unlike
// the oracle and LLM provider calls which get a tuned *http.Client.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends via an operator-configured SMTP relay, for operators who
// would rather not route notification mail through a third-party API.
type SMTPSender struct {
	cfg  SMTPConfig
	auth smtp.Auth
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		cfg:  cfg,
		auth: smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host),
	}
}

func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.cfg.From, to, subject, body)

	if err := smtp.SendMail(addr, s.auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// NewSender selects a Sender by provider name: "log" logs instead of
// sending, "resend" talks to the Resend API, "smtp" uses an operator relay.
func NewSender(provider, apiKey, from string, smtpCfg SMTPConfig, logger *slog.Logger) Sender {
	switch provider {
	case "resend":
		return &ResendSender{client: resend.NewClient(apiKey), from: from}
	case "smtp":
		return NewSMTPSender(smtpCfg)
	default:
		return &LogSender{logger: logger}
	}
}
