// Package table holds the pure data model and transformations behind the
// split and merge workflows.
//
// Nothing in this package touches storage. A [Table] is a header row plus
// rectangular data rows; every function here takes tables as values and
// returns new tables or row slices without mutating its inputs.
//
// # Partitioning
//
// Rows are grouped by the value found in a key column. The key column is
// identified by its header label, resolved once per call by exact,
// case-sensitive match:
//
//	parts, err := table.Partition(master, "都道府県")
//	if errors.Is(err, table.ErrKeyColumnNotFound) {
//	    // label missing from the header
//	}
//	for _, p := range parts {
//	    fmt.Println(p.Key, len(p.Rows))
//	}
//
// The filter-based mode first enumerates the distinct key values with
// [DistinctValues], then builds one [Criteria] per value. Criteria can be
// applied in-process with [FilterRows] or handed to a storage backend that
// performs the filtering itself; both yield the same rows.
//
// # Aggregation
//
// [Aggregate] rebuilds a combined table from materialized partitions: the
// header is taken from the source table and partition rows are concatenated
// in the order the partitions are given. Duplicates are passed through.
//
// # Cells
//
// Cells are scalar values: string, int64, float64, bool, time.Time or nil.
// [KeyString] defines how any cell is compared as a key, and [EncodeRow] /
// [DecodeRow] persist rows as JSON without losing cell kinds.
package table
