package table

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestReadCSV(t *testing.T) {
	in := "\xEF\xBB\xBF市町村コード,都道府県,市町村,,\n" +
		"011002,北海道,札幌市\n" +
		",,\n" +
		"131016,東京都,千代田区,extra\n"

	got, stats, err := ReadCSV(strings.NewReader(in), "master")
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}

	if got.Name != "master" {
		t.Errorf("Name = %q, want %q", got.Name, "master")
	}
	if len(got.Header) != 3 || got.Header[0] != "市町村コード" {
		t.Errorf("Header = %q, want three labels without BOM", got.Header)
	}
	if got.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", got.Len())
	}
	for i, row := range got.Rows {
		if len(row) != got.Width() {
			t.Errorf("row %d width = %d, want %d", i, len(row), got.Width())
		}
	}
	if got.Rows[0][0] != "011002" {
		t.Errorf("code cell = %v, want leading zero kept", got.Rows[0][0])
	}
	if stats.Rows != 2 || stats.SkippedEmpty != 1 {
		t.Errorf("stats = %+v, want 2 rows and 1 skipped", stats)
	}
	if stats.BytesRead != int64(len(in)) {
		t.Errorf("BytesRead = %d, want %d", stats.BytesRead, len(in))
	}
}

func TestReadCSV_Empty(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader(""), "x")
	if !errors.Is(err, ErrEmptyFile) {
		t.Errorf("error = %v, want ErrEmptyFile", err)
	}
}

func TestWriteCSV(t *testing.T) {
	tbl := Table{
		Header: Header{"region", "count", "memo"},
		Rows: []Row{
			{"A", int64(1), nil},
			{"B", 2.5, "a,b"},
		},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, tbl); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	want := "region,count,memo\nA,1,\nB,2.5,\"a,b\"\n"
	if buf.String() != want {
		t.Errorf("WriteCSV() = %q, want %q", buf.String(), want)
	}
}
