package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// timeKey tags time cells in the JSON encoding of a row.
const timeKey = "$time"

// EncodeRow encodes a row as a JSON array. Times are written as
// {"$time": RFC3339Nano}; every other cell maps to its JSON scalar.
func EncodeRow(r Row) ([]byte, error) {
	out := make([]any, len(r))
	for i, c := range r {
		switch v := c.(type) {
		case time.Time:
			out[i] = map[string]string{timeKey: v.Format(time.RFC3339Nano)}
		case int:
			out[i] = int64(v)
		case nil, string, int64, float64, bool:
			out[i] = v
		default:
			out[i] = KeyString(v)
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return data, nil
}

// DecodeRow decodes a row written by EncodeRow. Integral numbers decode
// to int64, other numbers to float64.
func DecodeRow(data []byte) (Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}

	row := make(Row, len(raw))
	for i, v := range raw {
		c, err := decodeCell(v)
		if err != nil {
			return nil, fmt.Errorf("decode row: cell %d: %w", i, err)
		}
		row[i] = c
	}
	return row, nil
}

func decodeCell(v any) (Cell, error) {
	switch val := v.(type) {
	case nil, string, bool:
		return val, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", val.String())
		}
		return f, nil
	case map[string]any:
		s, ok := val[timeKey].(string)
		if !ok || len(val) != 1 {
			return nil, fmt.Errorf("unsupported object cell")
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("invalid time %q: %w", s, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported cell type %T", v)
	}
}
