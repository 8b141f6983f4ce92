package notify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/worksplit/internal/notify/templates"
	"github.com/JonMunkholm/worksplit/internal/registration"
)

// approvedBody is the mail sent to an approved registrant.
func approvedBody(r registration.Registrant, workbookURL string) templ.Component {
	return templates.Approved(templates.ApprovedParams{
		Name: r.Name,
		Link: templ.URL(workbookURL),
	})
}

// adminBody lists the registrants approved in one run.
func adminBody(approved []registration.Registrant) templ.Component {
	rows := make([]templates.AdminRow, len(approved))
	for i, r := range approved {
		rows[i] = templates.AdminRow{
			Name:        r.Name,
			Email:       r.Email,
			Affiliation: r.Affiliation,
		}
		if !r.RegisteredAt.IsZero() {
			rows[i].RegisteredAt = r.RegisteredAt.Format("2006/01/02 15:04:05")
		}
	}
	return templates.AdminSummary(rows)
}

func render(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", fmt.Errorf("render mail body: %w", err)
	}
	return buf.String(), nil
}
