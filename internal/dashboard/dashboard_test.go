package dashboard

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/worksplit/internal/table"
	"github.com/JonMunkholm/worksplit/internal/workbook"
)

func TestColumnLetter(t *testing.T) {
	tests := []struct {
		col  int
		want string
	}{
		{0, "A"},
		{4, "E"},
		{7, "H"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{701, "ZZ"},
		{702, "AAA"},
		{-1, ""},
	}

	for _, tt := range tests {
		if got := ColumnLetter(tt.col); got != tt.want {
			t.Errorf("ColumnLetter(%d) = %q, want %q", tt.col, got, tt.want)
		}
	}
}

func surveySheet(name string, gid int64, rows ...table.Row) *workbook.Sheet {
	return &workbook.Sheet{
		SheetInfo: workbook.SheetInfo{GID: gid, Name: name},
		Header:    table.Header{"市町村コード", "都道府県", "市町村", "図書館", "調査対象", "URL", "メモ", "調査済"},
		Rows:      rows,
	}
}

func TestBuild(t *testing.T) {
	opts := DefaultOptions()
	opts.WorkbookURL = "https://sheets.example.org/d/abc"

	sheets := []*workbook.Sheet{
		surveySheet("分割_北海道", 11,
			table.Row{"011002", "北海道", "札幌市", "中央図書館", "○", "", "", int64(1)},
			table.Row{"011002", "北海道", "札幌市", "分館", "○", "", "", nil},
			table.Row{"012025", "北海道", "函館市", "市立", "", "", "", int64(3)},
			table.Row{"012025", "北海道", "函館市", "分室", "○", "", "", "2"},
		),
		surveySheet("分割_沖縄県", 12,
			table.Row{"472018", "沖縄県", "那覇市", "市立", "", "", "", nil},
		),
	}

	got := Build(sheets, opts)

	want := []Line{
		{
			Name: "北海道", SheetName: "分割_北海道", GID: 11,
			URL:   "https://sheets.example.org/d/abc#gid=11",
			Count: 3, Done: 2, Ratio: 2.0 / 3.0, HasRatio: true,
		},
		{
			Name: "沖縄県", SheetName: "分割_沖縄県", GID: 12,
			URL: "https://sheets.example.org/d/abc#gid=12",
		},
	}

	ignoreFormulas := cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".Formulas"
	}, cmp.Ignore())
	if diff := cmp.Diff(want, got.Lines, ignoreFormulas); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}

	if got.Lines[1].RatioCell() != NoRatio {
		t.Errorf("RatioCell() = %v, want %q", got.Lines[1].RatioCell(), NoRatio)
	}
}

func TestBuild_Formulas(t *testing.T) {
	opts := DefaultOptions()
	opts.WorkbookURL = "https://sheets.example.org/d/abc"

	got := Build([]*workbook.Sheet{
		surveySheet("分割_東京都", 5),
		surveySheet(`分割_"quoted"`, 6),
	}, opts)

	want := [4]string{
		`=HYPERLINK("https://sheets.example.org/d/abc#gid=5", "東京都")`,
		`=IFERROR(COUNTIF(INDIRECT(JOIN("", "分割_", $A2, "!E2:E")), "○"), "-")`,
		`=IFERROR(COUNTIFS(INDIRECT(JOIN("", "分割_", $A2, "!E2:E")), "○", INDIRECT(JOIN("", "分割_", $A2, "!H2:H")), ">0"), "-")`,
		`=IFERROR($C2/$B2, "-")`,
	}
	if diff := cmp.Diff(want, got.Lines[0].Formulas); diff != "" {
		t.Errorf("formulas mismatch (-want +got):\n%s", diff)
	}

	if f := got.Lines[1].Formulas[0]; f != `=HYPERLINK("https://sheets.example.org/d/abc#gid=6", """quoted""")` {
		t.Errorf("quoted name formula = %s", f)
	}
	if f := got.Lines[1].Formulas[3]; f != `=IFERROR($C3/$B3, "-")` {
		t.Errorf("second row ratio formula = %s", f)
	}
}

func TestDashboardTable(t *testing.T) {
	d := Dashboard{Lines: []Line{
		{Name: "北海道", Count: 4, Done: 1, Ratio: 0.25, HasRatio: true, Formulas: [4]string{"=a", "=b", "=c", "=d"}},
		{Name: "沖縄県"},
	}}

	values := d.Table("【分割シート一覧】", false)
	if diff := cmp.Diff(Header, values.Header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	wantRows := []table.Row{
		{"北海道", int64(4), int64(1), 0.25, nil, nil, nil},
		{"沖縄県", int64(0), int64(0), "-", nil, nil, nil},
	}
	if diff := cmp.Diff(wantRows, values.Rows); diff != "" {
		t.Errorf("value rows mismatch (-want +got):\n%s", diff)
	}

	formulas := d.Table("x", true)
	if formulas.Rows[0][0] != "=a" || formulas.Rows[0][3] != "=d" || formulas.Rows[0][4] != nil {
		t.Errorf("formula row = %v", formulas.Rows[0])
	}
}
