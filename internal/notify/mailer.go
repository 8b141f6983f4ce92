// Package notify sends the registration mails.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/JonMunkholm/worksplit/internal/logging"
)

// ErrNoRecipients is returned for a message without recipients.
var ErrNoRecipients = errors.New("message has no recipients")

// Message is one outgoing HTML mail.
type Message struct {
	To       []string
	Subject  string
	HTMLBody string
}

// Mailer delivers messages. Implementations do not retry.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer logs messages instead of sending them and keeps a copy of each.
// It is used when no SMTP host is configured.
type LogMailer struct {
	mu   sync.Mutex
	sent []Message
}

// NewLogMailer returns an empty LogMailer.
func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()

	logging.FromContext(ctx).Info("mail not sent, no SMTP host configured",
		slog.String("to", strings.Join(msg.To, ",")),
		slog.String("subject", msg.Subject),
		slog.Int("body_bytes", len(msg.HTMLBody)),
	)
	return nil
}

// Sent returns a copy of every message passed to Send.
func (m *LogMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
