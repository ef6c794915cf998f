package mailer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Providers(t *testing.T) {
	s, err := New(Config{Provider: "dev"})
	require.NoError(t, err)
	assert.IsType(t, &DevMailer{}, s)

	s, err = New(Config{Provider: "SMTP", SMTPHost: "localhost", SMTPPort: 1025, FromEmail: "ops@example.com"})
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, s)

	s, err = New(Config{Provider: "mailersend"})
	require.NoError(t, err)
	assert.IsType(t, &MailerSend{}, s)

	_, err = New(Config{Provider: "pigeon"})
	assert.Error(t, err)
}

func TestDevMailer_RecordsMessages(t *testing.T) {
	d := NewDevMailer()
	id, err := d.Send(context.Background(), Message{ToEmail: "a@example.com", Subject: "hi", Text: "body"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, d.Sent(), 1)
	assert.Equal(t, "a@example.com", d.Sent()[0].ToEmail)

	_, err = d.Send(context.Background(), Message{Subject: "no recipient"})
	assert.Error(t, err)
	assert.Len(t, d.Sent(), 1)
}

func TestMailerSend_DisabledWithoutKey(t *testing.T) {
	m := NewMailerSend("", "Ops", "ops@example.com")
	assert.False(t, m.Enabled)
	_, err := m.Send(context.Background(), Message{ToEmail: "a@example.com", Subject: "x"})
	assert.ErrorContains(t, err, "mailer disabled")
}

func TestBuildMIME(t *testing.T) {
	raw := string(buildMIME("ops@example.com", Message{
		ToEmail: "cust@example.com",
		ToName:  "Jane",
		Subject: "Visit completed",
		Text:    "plain",
		HTML:    "<p>html</p>",
	}))
	assert.Contains(t, raw, "To: Jane <cust@example.com>\r\n")
	assert.Contains(t, raw, "Subject: Visit completed\r\n")
	assert.Contains(t, raw, "Content-Type: text/plain")
	assert.Contains(t, raw, "<p>html</p>")
	assert.True(t, strings.HasSuffix(raw, "--"+boundary+"--\r\n"))

	textOnly := string(buildMIME("ops@example.com", Message{ToEmail: "c@example.com", Subject: "s", Text: "t"}))
	assert.NotContains(t, textOnly, "text/html")
}

func TestSMTPMailer_RejectsCancelledContext(t *testing.T) {
	m := NewSMTPMailer("127.0.0.1", 1, "ops@example.com", "", "", false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Send(ctx, Message{ToEmail: "a@example.com", Subject: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
