package table

// Group is the set of rows sharing one key-column value.
type Group struct {
	Key  string
	Rows []Row
}

// PartitionResult is an ordered mapping from key value to rows.
// Keys appear in the order they were first encountered in the source.
type PartitionResult []Group

// Get returns the rows for key.
func (p PartitionResult) Get(key string) ([]Row, bool) {
	for _, part := range p {
		if part.Key == key {
			return part.Rows, true
		}
	}
	return nil, false
}

// Keys returns the partition keys in order.
func (p PartitionResult) Keys() []string {
	keys := make([]string, len(p))
	for i, part := range p {
		keys[i] = part.Key
	}
	return keys
}

// RowCount returns the total number of rows across all partitions.
func (p PartitionResult) RowCount() int {
	n := 0
	for _, part := range p {
		n += len(part.Rows)
	}
	return n
}

// Partition groups the data rows of t by the value of the column labelled
// keyColumnLabel. Each row lands in exactly one partition, in source order.
// Returns ErrKeyColumnNotFound if the label is absent from the header.
func Partition(t Table, keyColumnLabel string) (PartitionResult, error) {
	idx, err := t.Header.Resolve(keyColumnLabel, ErrKeyColumnNotFound)
	if err != nil {
		return nil, err
	}

	positions := make(map[string]int)
	var result PartitionResult

	for _, row := range t.Rows {
		key := KeyString(row.At(idx))
		pos, ok := positions[key]
		if !ok {
			pos = len(result)
			positions[key] = pos
			result = append(result, Group{Key: key})
		}
		result[pos].Rows = append(result[pos].Rows, row.Clone())
	}

	return result, nil
}

// DistinctValues returns the distinct key strings of the labelled column
// in first-encounter order.
func DistinctValues(t Table, keyColumnLabel string) ([]string, error) {
	idx, err := t.Header.Resolve(keyColumnLabel, ErrKeyColumnNotFound)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var values []string
	for _, row := range t.Rows {
		key := KeyString(row.At(idx))
		if seen[key] {
			continue
		}
		seen[key] = true
		values = append(values, key)
	}
	return values, nil
}

// PartitionByValues produces one row-set per given value by filtering rows
// whose key cell equals that value exactly. Partitions follow the order of
// values; a repeated value is only used once. Values with no matching rows
// yield an empty partition.
func PartitionByValues(t Table, keyColumnLabel string, values []string) (PartitionResult, error) {
	idx, err := t.Header.Resolve(keyColumnLabel, ErrKeyColumnNotFound)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(values))
	result := make(PartitionResult, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true

		c := Criteria{Column: idx, Label: keyColumnLabel, Equals: v}
		result = append(result, Group{Key: v, Rows: FilterRows(t, c)})
	}
	return result, nil
}
