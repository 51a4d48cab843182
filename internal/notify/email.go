package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hostsentry-project/hostsentry/internal/core"
)

// Email sends alerts over SMTP with STARTTLS. The subject carries the
// alert title; the body carries the description.
type Email struct {
	cfg    core.EmailConfig
	logger zerolog.Logger

	// sendMail is swappable for tests; defaults to smtp.SendMail,
	// which negotiates STARTTLS when the server offers it.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmail creates the email notifier.
func NewEmail(cfg core.EmailConfig, logger zerolog.Logger) *Email {
	return &Email{
		cfg:      cfg,
		logger:   logger.With().Str("channel", "email").Logger(),
		sendMail: smtp.SendMail,
	}
}

func (m *Email) Name() string { return "email" }

// Send delivers the alert as a plain-text mail.
func (m *Email) Send(ctx context.Context, title, description string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPServer, m.cfg.SMTPPort)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPServer)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.Username)
	fmt.Fprintf(&msg, "To: %s\r\n", m.cfg.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", strings.ReplaceAll(title, "\n", " "))
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(description)

	if err := m.sendMail(addr, auth, m.cfg.Username, []string{m.cfg.To}, []byte(msg.String())); err != nil {
		return fmt.Errorf("email send failed: %w", err)
	}
	m.logger.Debug().Str("to", m.cfg.To).Msg("email alert sent")
	return nil
}
