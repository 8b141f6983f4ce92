package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cell is a single scalar cell value.
// Supported kinds: string, int64, float64, bool, time.Time and nil (empty).
type Cell = any

// Row is an ordered sequence of cells aligned to a Header.
type Row []Cell

// Header is the ordered list of column labels of a table.
type Header []string

// Table is a header row plus zero or more data rows of the same width.
type Table struct {
	Name   string
	Header Header
	Rows   []Row

	// Filter is the interactive filter attached to the table, if any.
	// It is presentation state only and never changes Rows.
	Filter *Filter
}

// Filter is the interactive filter state of a sheet. A filter with no
// criteria only marks the data range as filterable.
type Filter struct {
	Criteria []Criteria `json:"criteria,omitempty"`
}

// Index returns the zero-based index of label, or -1 when absent.
// Matching is exact and case-sensitive.
func (h Header) Index(label string) int {
	for i, l := range h {
		if l == label {
			return i
		}
	}
	return -1
}

// Resolve returns the index of label or an error wrapping notFound.
func (h Header) Resolve(label string, notFound error) (int, error) {
	idx := h.Index(label)
	if idx < 0 {
		return -1, fmt.Errorf("%w: %q", notFound, label)
	}
	return idx, nil
}

// Clone returns a copy of the header.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	copy(out, h)
	return out
}

// Clone returns a shallow copy of the row. Cells are immutable scalars,
// so the copy is independent of the original.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// At returns the cell at idx, or nil when the row is shorter.
func (r Row) At(idx int) Cell {
	if idx < 0 || idx >= len(r) {
		return nil
	}
	return r[idx]
}

// Width returns the number of columns.
func (t Table) Width() int {
	return len(t.Header)
}

// Len returns the number of data rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Rectangular returns a copy of t whose trailing empty header labels are
// removed and whose rows are padded or truncated to the header width.
func Rectangular(t Table) Table {
	header := trimHeader(t.Header)
	rows := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = fitRow(r, len(header))
	}
	return Table{Name: t.Name, Header: header, Rows: rows, Filter: t.Filter}
}

// trimHeader drops trailing empty labels, the way a sheet's first row
// extends past the last used column.
func trimHeader(h Header) Header {
	end := len(h)
	for end > 0 && strings.TrimSpace(h[end-1]) == "" {
		end--
	}
	return h[:end].Clone()
}

func fitRow(r Row, width int) Row {
	out := make(Row, width)
	copy(out, r)
	return out
}

// KeyString converts a cell to the string used for key comparison.
func KeyString(c Cell) string {
	switch v := c.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return formatTime(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func formatTime(t time.Time) string {
	u := t.UTC()
	if u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0 {
		return u.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

// IsEmpty reports whether a cell renders as an empty string.
func IsEmpty(c Cell) bool {
	return strings.TrimSpace(KeyString(c)) == ""
}
