// Package workbook defines the document the split and merge workflows run
// against: an ordered set of named sheets, the editors allowed to work on
// them, and an audit trail.
//
// Three backends implement [Workbook]:
//
//   - [Memory], for tests and dry runs
//   - pgstore, PostgreSQL via pgx, for the server
//   - sqlitestore, a single-file workbook for local CLI use
//
// Sheet names are unique. Creating a sheet under a name already in use fails
// with [ErrDuplicateTableName] and leaves the existing sheet untouched.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/worksplit/internal/table"
)

var (
	// ErrDuplicateTableName is returned when a sheet name is already taken.
	ErrDuplicateTableName = errors.New("duplicate table name")

	// ErrSheetNotFound is returned when no sheet has the requested name.
	ErrSheetNotFound = errors.New("sheet not found")

	// ErrCellOutOfRange is returned by SetCell for coordinates outside the
	// sheet's data range.
	ErrCellOutOfRange = errors.New("cell out of range")
)

// Format is the presentation attached to a sheet.
type Format struct {
	HeaderBackground string        `json:"header_background,omitempty"`
	Borders          bool          `json:"borders,omitempty"`
	TextColumns      []int         `json:"text_columns,omitempty"`
	Filter           *table.Filter `json:"filter,omitempty"`
}

// SheetInfo describes a sheet without its data.
type SheetInfo struct {
	GID       int64     `json:"gid"`
	Name      string    `json:"name"`
	Position  int64     `json:"position"`
	RowCount  int       `json:"row_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Sheet is a stored sheet with its data.
type Sheet struct {
	SheetInfo
	Header table.Header `json:"header"`
	Rows   []table.Row  `json:"rows"`
	Format Format       `json:"format"`
}

// Table returns the sheet as a table snapshot.
func (s *Sheet) Table() table.Table {
	return table.Table{
		Name:   s.Name,
		Header: s.Header.Clone(),
		Rows:   s.Rows,
		Filter: s.Format.Filter,
	}
}

// NewSheet is the input to CreateSheet.
type NewSheet struct {
	Name   string
	Header table.Header
	Rows   []table.Row
	Format Format

	// First places the sheet before every existing sheet instead of after.
	First bool
}

// AuditRecord is one stored audit entry.
type AuditRecord struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	Severity     string         `json:"severity"`
	SheetName    string         `json:"sheet_name,omitempty"`
	RowsAffected int            `json:"rows_affected"`
	RunID        string         `json:"run_id,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Detail       map[string]any `json:"detail,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Workbook is the document store.
type Workbook interface {
	// CreateSheet stores a new sheet holding header and rows.
	CreateSheet(ctx context.Context, s NewSheet) (SheetInfo, error)

	// CreateFilteredSheet stores a new sheet holding the header of source
	// and the source rows matching c.
	CreateFilteredSheet(ctx context.Context, name, source string, c table.Criteria, f Format) (SheetInfo, error)

	// GetSheet returns a sheet with all of its rows.
	GetSheet(ctx context.Context, name string) (*Sheet, error)

	// ListSheets returns the sheets whose name starts with prefix, in
	// sheet order. An empty prefix lists every sheet.
	ListSheets(ctx context.Context, prefix string) ([]SheetInfo, error)

	// DeleteSheet removes a sheet and its rows.
	DeleteSheet(ctx context.Context, name string) error

	// SetFilter replaces the interactive filter of a sheet; nil removes it.
	SetFilter(ctx context.Context, name string, f *table.Filter) error

	// SetCell overwrites one cell. row and col are zero-based data
	// coordinates (row 0 is the first row below the header).
	SetCell(ctx context.Context, name string, row, col int, value table.Cell) error

	// GrantEditor adds email to the editor list. Granting twice is a no-op.
	GrantEditor(ctx context.Context, email string) error

	// Editors returns the editor list in grant order.
	Editors(ctx context.Context) ([]string, error)

	// RecordAudit appends an audit record.
	RecordAudit(ctx context.Context, rec AuditRecord) error

	// ListAudit returns the newest audit records first.
	ListAudit(ctx context.Context, limit int) ([]AuditRecord, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// PrepareRows fits every row to the header width and renders cells of
// text-formatted columns as strings, the way a column with a text number
// format keeps codes such as "011002" intact.
func PrepareRows(header table.Header, rows []table.Row, f Format) []table.Row {
	text := make(map[int]bool, len(f.TextColumns))
	for _, c := range f.TextColumns {
		text[c] = true
	}

	out := make([]table.Row, len(rows))
	for i, r := range rows {
		row := make(table.Row, len(header))
		copy(row, r)
		for c := range row {
			if text[c] && row[c] != nil {
				row[c] = table.KeyString(row[c])
			}
		}
		out[i] = row
	}
	return out
}

// ValidateName rejects names no backend can store.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("invalid sheet name %q", name)
	}
	return nil
}

// FilteredSheet builds the NewSheet that CreateFilteredSheet stores for a
// given source sheet. Backends share it so every one filters identically.
func FilteredSheet(name string, source *Sheet, c table.Criteria, f Format) NewSheet {
	filtered := table.Apply(source.Table(), c)
	return NewSheet{
		Name:   name,
		Header: filtered.Header,
		Rows:   filtered.Rows,
		Format: f,
	}
}

// MatchesPrefix reports whether a sheet name is listed under prefix.
func MatchesPrefix(name, prefix string) bool {
	return strings.HasPrefix(name, prefix)
}
