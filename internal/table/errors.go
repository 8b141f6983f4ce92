package table

import "errors"

var (
	// ErrKeyColumnNotFound is returned when the key column label is absent
	// from a table's header.
	ErrKeyColumnNotFound = errors.New("key column not found")

	// ErrColumnNotFound is returned when any other required label is absent.
	ErrColumnNotFound = errors.New("column not found")

	// ErrNoPartitionsFound is returned by Aggregate when matches are required
	// and none exist.
	ErrNoPartitionsFound = errors.New("no partitions found")
)
