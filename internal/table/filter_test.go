package table

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewCriteria(t *testing.T) {
	c, err := NewCriteria(Header{"region", "count"}, "count", "2")
	if err != nil {
		t.Fatalf("NewCriteria() error = %v", err)
	}
	want := Criteria{Column: 1, Label: "count", Equals: "2"}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("NewCriteria() mismatch (-want +got):\n%s", diff)
	}

	if _, err := NewCriteria(Header{"region"}, "Region", "A"); !errors.Is(err, ErrKeyColumnNotFound) {
		t.Errorf("NewCriteria(missing) error = %v, want ErrKeyColumnNotFound", err)
	}
}

func TestCriteria_Match(t *testing.T) {
	c := Criteria{Column: 1, Label: "count", Equals: "2"}

	tests := []struct {
		name string
		row  Row
		want bool
	}{
		{"int cell", Row{"B", int64(2)}, true},
		{"integral float", Row{"B", 2.0}, true},
		{"string cell", Row{"B", "2"}, true},
		{"different value", Row{"B", int64(3)}, false},
		{"padded string", Row{"B", " 2"}, false},
		{"short row", Row{"B"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Match(tt.row); got != tt.want {
				t.Errorf("Match(%v) = %v, want %v", tt.row, got, tt.want)
			}
		})
	}
}

func TestCriteria_MatchEmpty(t *testing.T) {
	// blank and missing cells both render as ""
	c := Criteria{Column: 2, Label: "note", Equals: ""}
	if !c.Match(Row{"A", 1}) {
		t.Error("Match() on short row should equal empty criteria")
	}
	if !c.Match(Row{"A", 1, nil}) {
		t.Error("Match() on nil cell should equal empty criteria")
	}
}

func TestFilterRows(t *testing.T) {
	src := regionTable()
	c, err := NewCriteria(src.Header, "region", "A")
	if err != nil {
		t.Fatal(err)
	}

	got := FilterRows(src, c)
	want := []Row{{"A", int64(1)}, {"A", int64(3)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FilterRows() mismatch (-want +got):\n%s", diff)
	}

	got[0][1] = int64(99)
	if src.Rows[0][1] != int64(1) {
		t.Error("FilterRows() returned rows aliasing the source")
	}

	none := FilterRows(src, Criteria{Column: 0, Label: "region", Equals: "Z"})
	if len(none) != 0 {
		t.Errorf("FilterRows(no match) = %v, want empty", none)
	}
}

func TestApply(t *testing.T) {
	src := regionTable()
	got := Apply(src, Criteria{Column: 0, Label: "region", Equals: "B"})

	if diff := cmp.Diff(Header{"region", "count"}, got.Header); diff != "" {
		t.Errorf("Apply() header mismatch (-want +got):\n%s", diff)
	}
	if got.Len() != 1 || got.Rows[0][0] != "B" {
		t.Errorf("Apply() rows = %v", got.Rows)
	}
}
