package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyFile is returned when a CSV input has no header row.
var ErrEmptyFile = errors.New("empty file")

// ImportStats describes a CSV read.
type ImportStats struct {
	Rows         int
	SkippedEmpty int
	BytesRead    int64
}

// ReadCSV reads a CSV table: the first record is the header, every
// following non-empty record is a data row. The result is rectangular.
func ReadCSV(r io.Reader, name string) (Table, ImportStats, error) {
	src, counter := WrapForImport(r)

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var stats ImportStats

	header, err := cr.Read()
	if err == io.EOF {
		return Table{}, stats, ErrEmptyFile
	}
	if err != nil {
		return Table{}, stats, fmt.Errorf("invalid csv: read header: %w", err)
	}

	t := Table{Name: name, Header: Header(header)}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, stats, fmt.Errorf("invalid csv: %w", err)
		}
		if blankRecord(rec) {
			stats.SkippedEmpty++
			continue
		}
		row := make(Row, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}

	t = Rectangular(t)
	stats.Rows = len(t.Rows)
	stats.BytesRead = counter.BytesRead
	return t, stats, nil
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WriteCSV writes t's header and rows, rendering cells with KeyString.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(t.Header))
	for i, row := range t.Rows {
		for j := range rec {
			rec[j] = KeyString(row.At(j))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
