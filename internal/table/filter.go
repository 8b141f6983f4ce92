package table

import "fmt"

// Criteria is a text-equals filter on one column.
// A row matches when KeyString of its cell equals Equals exactly.
type Criteria struct {
	Column int    `json:"column"`
	Label  string `json:"label"`
	Equals string `json:"equals"`
}

// NewCriteria resolves label against header and returns criteria matching
// rows whose cell equals value.
func NewCriteria(header Header, label, value string) (Criteria, error) {
	idx, err := header.Resolve(label, ErrKeyColumnNotFound)
	if err != nil {
		return Criteria{}, err
	}
	return Criteria{Column: idx, Label: label, Equals: value}, nil
}

// Match reports whether row satisfies the criteria.
func (c Criteria) Match(row Row) bool {
	return KeyString(row.At(c.Column)) == c.Equals
}

// String renders the criteria for logs.
func (c Criteria) String() string {
	return fmt.Sprintf("%s == %q", c.Label, c.Equals)
}

// FilterRows returns copies of the rows of t matching c, in source order.
func FilterRows(t Table, c Criteria) []Row {
	var out []Row
	for _, row := range t.Rows {
		if c.Match(row) {
			out = append(out, row.Clone())
		}
	}
	return out
}

// Apply returns a new table holding t's header and the rows matching c.
func Apply(t Table, c Criteria) Table {
	return Table{Header: t.Header.Clone(), Rows: FilterRows(t, c)}
}
