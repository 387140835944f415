package mail

import (
	"context"
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"ndaflow/internal/platform/config"
	"ndaflow/pkg/platform/sentinel"
)

// SMTPSender delivers composed responses through a standard submission
// endpoint. Each Send dials a fresh connection; outbound volume here is a
// handful of messages per polling cycle at most.
type SMTPSender struct {
	cfg    config.SMTPConfig
	dialer *gomail.Dialer
}

// NewSMTPSender builds a sender from SMTP settings.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %v: %w", msg.To, err, sentinel.ErrTransport)
	}
	return nil
}
