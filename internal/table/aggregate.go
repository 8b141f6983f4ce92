package table

// AggregateOptions controls Aggregate.
type AggregateOptions struct {
	// Name is the name given to the resulting table.
	Name string

	// RequireMatches makes an empty partition list an error
	// (ErrNoPartitionsFound) instead of a header-only result.
	RequireMatches bool
}

// Aggregate concatenates the data rows of partitions, in the given order,
// below a verbatim copy of source. Partition headers and filters are
// ignored; rows are neither reordered nor deduplicated.
func Aggregate(source Header, partitions []Table, opts AggregateOptions) (Table, error) {
	if len(partitions) == 0 && opts.RequireMatches {
		return Table{}, ErrNoPartitionsFound
	}

	total := 0
	for _, p := range partitions {
		total += len(p.Rows)
	}

	out := Table{
		Name:   opts.Name,
		Header: source.Clone(),
		Rows:   make([]Row, 0, total),
	}
	for _, p := range partitions {
		for _, row := range StripFilter(p).Rows {
			out.Rows = append(out.Rows, row.Clone())
		}
	}
	return out, nil
}

// StripFilter returns t without its interactive filter. Rows are untouched.
func StripFilter(t Table) Table {
	t.Filter = nil
	return t
}
