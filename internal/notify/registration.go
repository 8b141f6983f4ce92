package notify

import (
	"context"
	"strconv"
	"strings"

	"github.com/JonMunkholm/worksplit/internal/logging"
	"github.com/JonMunkholm/worksplit/internal/registration"
)

// Default subjects. A "%" in the admin subject is replaced by the number of
// approved registrants.
const (
	DefaultRegistrantSubject = "【saveMLAK】COVID-19全国図書館調査へのご参加を承認いたしました"
	DefaultAdminSubject      = "【covid-19-libdata】新たに%名を作業者として承認しました。"
)

// RegistrationNotifier renders and sends the registration mails.
type RegistrationNotifier struct {
	Mailer            Mailer
	WorkbookURL       string
	AdminEmail        string
	RegistrantSubject string
	AdminSubject      string
}

var _ registration.Notifier = (*RegistrationNotifier)(nil)

// NotifyRegistrant tells an approved registrant where the workbook is.
func (n *RegistrationNotifier) NotifyRegistrant(ctx context.Context, r registration.Registrant) error {
	body, err := render(ctx, approvedBody(r, n.WorkbookURL))
	if err != nil {
		return err
	}

	subject := n.RegistrantSubject
	if subject == "" {
		subject = DefaultRegistrantSubject
	}
	return n.Mailer.Send(ctx, Message{
		To:       []string{r.Email},
		Subject:  subject,
		HTMLBody: body,
	})
}

// NotifyAdmin sends one summary of approved registrants to the admin
// address. Without an admin address it does nothing.
func (n *RegistrationNotifier) NotifyAdmin(ctx context.Context, approved []registration.Registrant) error {
	if n.AdminEmail == "" {
		logging.FromContext(ctx).Debug("admin notification skipped, no admin address")
		return nil
	}

	body, err := render(ctx, adminBody(approved))
	if err != nil {
		return err
	}

	return n.Mailer.Send(ctx, Message{
		To:       []string{n.AdminEmail},
		Subject:  AdminSubject(n.AdminSubject, len(approved)),
		HTMLBody: body,
	})
}

// AdminSubject fills the registrant count into subject.
func AdminSubject(subject string, count int) string {
	if subject == "" {
		subject = DefaultAdminSubject
	}
	return strings.Replace(subject, "%", strconv.Itoa(count), 1)
}
