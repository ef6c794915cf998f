package mailer

import (
	"context"
	"fmt"
	"strings"
)

// Message is a single outbound email with text and optional HTML bodies.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

func (m Message) validate() error {
	if strings.TrimSpace(m.ToEmail) == "" {
		return fmt.Errorf("empty recipient email")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("empty subject")
	}
	return nil
}

// Sender delivers one message and returns the provider message id when the
// provider reports one.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type Config struct {
	Provider      string
	FromName      string
	FromEmail     string
	MailerSendKey string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPass      string
	SMTPUseTLS    bool
}

// New picks a sender by provider name: "mailersend", "smtp" or "dev".
func New(cfg Config) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "dev":
		return NewDevMailer(), nil
	case "smtp":
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.FromEmail, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS), nil
	case "mailersend":
		return NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.FromEmail), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
