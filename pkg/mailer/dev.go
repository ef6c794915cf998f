package mailer

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/diagnosis/fieldops/pkg/logger"
)

// DevMailer logs messages instead of sending them and keeps the last ones
// around for inspection.
type DevMailer struct {
	mu   sync.Mutex
	sent []Message
}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.validate(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	logger.InfoContext(ctx, "[DEV MAIL] email",
		"message_id", id,
		"to", msg.ToEmail,
		"name", msg.ToName,
		"subject", msg.Subject,
		"text", msg.Text,
	)

	d.mu.Lock()
	d.sent = append(d.sent, msg)
	d.mu.Unlock()
	return id, nil
}

func (d *DevMailer) Sent() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Message(nil), d.sent...)
}
