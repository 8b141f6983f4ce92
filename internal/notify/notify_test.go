package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/worksplit/internal/registration"
)

func TestAdminSubject(t *testing.T) {
	tests := []struct {
		subject string
		count   int
		want    string
	}{
		{"", 3, "【covid-19-libdata】新たに3名を作業者として承認しました。"},
		{"%件 (%)", 2, "2件 (%)"},
		{"no placeholder", 5, "no placeholder"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := AdminSubject(tt.subject, tt.count); got != tt.want {
				t.Errorf("AdminSubject(%q, %d) = %q, want %q", tt.subject, tt.count, got, tt.want)
			}
		})
	}
}

func TestNotifyRegistrant(t *testing.T) {
	mailer := NewLogMailer()
	n := &RegistrationNotifier{Mailer: mailer, WorkbookURL: "https://sheets.example.org/d/abc"}

	err := n.NotifyRegistrant(context.Background(), registration.Registrant{
		Name:  "<b>hanako</b>",
		Email: "hanako@example.org",
	})
	require.NoError(t, err)

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"hanako@example.org"}, sent[0].To)
	assert.Equal(t, DefaultRegistrantSubject, sent[0].Subject)
	assert.Contains(t, sent[0].HTMLBody, "&lt;b&gt;hanako&lt;/b&gt;")
	assert.Contains(t, sent[0].HTMLBody, `href="https://sheets.example.org/d/abc"`)
}

func TestNotifyRegistrant_UnsafeURL(t *testing.T) {
	mailer := NewLogMailer()
	n := &RegistrationNotifier{Mailer: mailer, WorkbookURL: "javascript:alert(1)"}

	require.NoError(t, n.NotifyRegistrant(context.Background(), registration.Registrant{Email: "a@example.org"}))
	assert.NotContains(t, mailer.Sent()[0].HTMLBody, "javascript:")
}

func TestNotifyAdmin(t *testing.T) {
	mailer := NewLogMailer()
	n := &RegistrationNotifier{Mailer: mailer, AdminEmail: "admin@example.org"}

	approved := []registration.Registrant{
		{Name: "a", Email: "a@example.org", RegisteredAt: time.Date(2020, 4, 10, 9, 0, 0, 0, time.UTC)},
		{Name: "b", Email: "b@example.org", Affiliation: "図書館"},
	}
	require.NoError(t, n.NotifyAdmin(context.Background(), approved))

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"admin@example.org"}, sent[0].To)
	assert.Equal(t, "【covid-19-libdata】新たに2名を作業者として承認しました。", sent[0].Subject)
	assert.Equal(t, 2, strings.Count(sent[0].HTMLBody, "<tr><td>"))
	assert.Contains(t, sent[0].HTMLBody, "2020/04/10 09:00:00")
}

func TestNotifyAdmin_NoAddress(t *testing.T) {
	mailer := NewLogMailer()
	n := &RegistrationNotifier{Mailer: mailer}

	require.NoError(t, n.NotifyAdmin(context.Background(), []registration.Registrant{{Name: "a"}}))
	assert.Empty(t, mailer.Sent())
}

func TestLogMailer_NoRecipients(t *testing.T) {
	err := NewLogMailer().Send(context.Background(), Message{Subject: "x"})
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestNewSMTPMailer(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{From: "a@example.org"})
	assert.Error(t, err, "host required")

	_, err = NewSMTPMailer(SMTPConfig{Host: "smtp.example.org"})
	assert.Error(t, err, "from required")

	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.org", From: "a@example.org", RatePerMinute: 30})
	require.NoError(t, err)
	assert.Equal(t, 587, m.cfg.Port)
	assert.NotNil(t, m.limiter)
}

func TestSMTPMailer_Build(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.org", From: "noreply@example.org"})
	require.NoError(t, err)

	msg, err := m.build(Message{To: []string{"a@example.org"}, Subject: "件名", HTMLBody: "<p>x</p>"})
	require.NoError(t, err)
	to := msg.GetTo()
	require.Len(t, to, 1)
	assert.Equal(t, "a@example.org", to[0].Address)

	_, err = m.build(Message{To: []string{"not an address"}, Subject: "x"})
	assert.Error(t, err)
}
