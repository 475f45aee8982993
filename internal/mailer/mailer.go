// Package mailer sends transactional email over SMTP. Delivery is
// best-effort: callers dispatch and discard the outcome.
package mailer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"verity/auth-identity/internal/config"
)

type Email struct {
	To       string
	Subject  string
	HTMLBody string
}

type Mailer struct {
	dialer *gomail.Dialer
	from   string
	origin string
	logger zerolog.Logger
}

func NewMailer(cfg config.Config, logger zerolog.Logger) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.SMTPFrom,
		origin: cfg.AppOrigin,
		logger: logger,
	}
}

func (m *Mailer) send(ctx context.Context, email Email) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/html", email.HTMLBody)

	done := make(chan error, 1)
	go func() { done <- m.dialer.DialAndSend(msg) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send %q to %s: %w", email.Subject, email.To, err)
		}
		m.logger.Debug().Str("to", email.To).Str("subject", email.Subject).Msg("email sent")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
