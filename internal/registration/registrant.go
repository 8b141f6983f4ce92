// Package registration approves collaborators who signed up through the
// registration form.
//
// Each form submission lands as one row of the registration sheet. A row is
// pending while its status cell is empty. Processing grants the registrant
// editor access and mails them; the status cell then records the terminal
// outcome, approved or rejected.
package registration

import (
	"errors"
	"time"

	"github.com/JonMunkholm/worksplit/internal/table"
)

var (
	// ErrMultiRowInput is returned when an event covers more than one row.
	ErrMultiRowInput = errors.New("event range is not a single row")

	// ErrRowOutOfRange is returned when an event points outside the sheet.
	ErrRowOutOfRange = errors.New("event row outside sheet data")

	// ErrMissingEmail is the side-effect failure recorded for a row with no
	// email address.
	ErrMissingEmail = errors.New("registrant has no email address")
)

// Status is the registration state written to the status cell.
type Status string

// Pending is the status the form leaves on a new row. Approved and rejected
// values come from Labels; any other value also counts as pending.
const Pending Status = ""

// Labels names the columns of the registration sheet and the status values
// written into it.
type Labels struct {
	Name        string
	Email       string
	Affiliation string
	Timestamp   string
	Status      string

	Approved Status
	Rejected Status
}

// DefaultLabels returns the labels used by the registration form.
func DefaultLabels() Labels {
	return Labels{
		Name:        "名前（ニックネーム可）",
		Email:       "メールアドレス",
		Affiliation: "所属（任意）",
		Timestamp:   "タイムスタンプ",
		Status:      "登録処理",
		Approved:    "承認",
		Rejected:    "却下",
	}
}

// Registrant is one registration row.
type Registrant struct {
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Affiliation  string    `json:"affiliation,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	Status       Status    `json:"status"`

	// Row is the 1-based sheet row; the header is row 1.
	Row int `json:"row"`
}

// columns holds the resolved column indexes of a registration sheet.
type columns struct {
	name, email, affiliation, timestamp, status int
}

func resolveColumns(h table.Header, l Labels) (columns, error) {
	var (
		c   columns
		err error
	)
	if c.name, err = h.Resolve(l.Name, table.ErrColumnNotFound); err != nil {
		return c, err
	}
	if c.email, err = h.Resolve(l.Email, table.ErrColumnNotFound); err != nil {
		return c, err
	}
	if c.affiliation, err = h.Resolve(l.Affiliation, table.ErrColumnNotFound); err != nil {
		return c, err
	}
	if c.timestamp, err = h.Resolve(l.Timestamp, table.ErrColumnNotFound); err != nil {
		return c, err
	}
	if c.status, err = h.Resolve(l.Status, table.ErrColumnNotFound); err != nil {
		return c, err
	}
	return c, nil
}

func (c columns) registrant(row table.Row, sheetRow int) Registrant {
	return Registrant{
		Name:         table.KeyString(row.At(c.name)),
		Email:        table.KeyString(row.At(c.email)),
		Affiliation:  table.KeyString(row.At(c.affiliation)),
		RegisteredAt: table.CellTime(row.At(c.timestamp)),
		Status:       Status(table.KeyString(row.At(c.status))),
		Row:          sheetRow,
	}
}
