// Package dashboard computes the status overview of the partition sheets:
// how many target rows each region has and how many are done.
//
// Each line carries both the computed values and the spreadsheet formulas
// that produce the same numbers live, so an exported overview keeps working
// when pasted back into a spreadsheet.
package dashboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/worksplit/internal/table"
	"github.com/JonMunkholm/worksplit/internal/workbook"
)

// Header is the header row of the overview sheet.
var Header = table.Header{"都道府県名", "件数", "調査済", "完了率", "調査完了日", "担当", "メモ"}

// NoRatio is shown as the completion ratio of a sheet with no target rows.
const NoRatio = "-"

// Options controls Build.
type Options struct {
	// Prefix is stripped from sheet names to get the display name.
	Prefix string

	// WorkbookURL is the base of every sheet link.
	WorkbookURL string

	// TargetColumn is the zero-based column marking rows to survey and
	// TargetMarker the value marking them.
	TargetColumn int
	TargetMarker string

	// DoneColumn is the zero-based column holding a positive number once
	// a row is surveyed.
	DoneColumn int
}

// DefaultOptions returns the layout of the survey master: targets marked
// "○" in column E, results in column H.
func DefaultOptions() Options {
	return Options{
		Prefix:       "分割_",
		TargetColumn: 4,
		TargetMarker: "○",
		DoneColumn:   7,
	}
}

// Line is the overview of one partition sheet.
type Line struct {
	Name      string  `json:"name"`
	SheetName string  `json:"sheet_name"`
	GID       int64   `json:"gid"`
	URL       string  `json:"url"`
	Count     int     `json:"count"`
	Done      int     `json:"done"`
	Ratio     float64 `json:"ratio"`
	HasRatio  bool    `json:"has_ratio"`

	// Formulas hold the name, count, done and ratio cells as formulas.
	Formulas [4]string `json:"formulas"`
}

// RatioCell returns the ratio cell value: the ratio, or NoRatio.
func (l Line) RatioCell() table.Cell {
	if !l.HasRatio {
		return NoRatio
	}
	return l.Ratio
}

// Dashboard is the computed overview.
type Dashboard struct {
	Lines []Line `json:"lines"`
}

// Build computes one line per sheet, in the given order.
func Build(sheets []*workbook.Sheet, opts Options) Dashboard {
	d := Dashboard{Lines: make([]Line, 0, len(sheets))}
	for i, s := range sheets {
		d.Lines = append(d.Lines, buildLine(s, i+2, opts))
	}
	return d
}

func buildLine(s *workbook.Sheet, sheetRow int, opts Options) Line {
	line := Line{
		Name:      strings.TrimPrefix(s.Name, opts.Prefix),
		SheetName: s.Name,
		GID:       s.GID,
		URL:       SheetURL(opts.WorkbookURL, s.GID),
	}

	for _, row := range s.Rows {
		if table.KeyString(row.At(opts.TargetColumn)) != opts.TargetMarker {
			continue
		}
		line.Count++
		if n, ok := table.CellNumber(row.At(opts.DoneColumn)); ok && n > 0 {
			line.Done++
		}
	}
	if line.Count > 0 {
		line.Ratio = float64(line.Done) / float64(line.Count)
		line.HasRatio = true
	}

	line.Formulas = formulas(line, sheetRow, opts)
	return line
}

// SheetURL links to one sheet of the workbook.
func SheetURL(workbookURL string, gid int64) string {
	return workbookURL + "#gid=" + strconv.FormatInt(gid, 10)
}

func formulas(l Line, r int, opts Options) [4]string {
	prefix := quote(opts.Prefix)
	marker := quote(opts.TargetMarker)
	target := rangeRef(opts.TargetColumn)
	done := rangeRef(opts.DoneColumn)

	return [4]string{
		fmt.Sprintf(`=HYPERLINK(%s, %s)`, quote(l.URL), quote(l.Name)),
		fmt.Sprintf(`=IFERROR(COUNTIF(INDIRECT(JOIN("", %s, $A%d, "!%s")), %s), "-")`,
			prefix, r, target, marker),
		fmt.Sprintf(`=IFERROR(COUNTIFS(INDIRECT(JOIN("", %s, $A%d, "!%s")), %s, INDIRECT(JOIN("", %s, $A%d, "!%s")), ">0"), "-")`,
			prefix, r, target, marker, prefix, r, done),
		fmt.Sprintf(`=IFERROR($C%d/$B%d, "-")`, r, r),
	}
}

// rangeRef is the open-ended data range of a column, e.g. "E2:E".
func rangeRef(col int) string {
	letter := ColumnLetter(col)
	return letter + "2:" + letter
}

// quote renders s as a formula string literal.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ColumnLetter converts a zero-based column index to its A1 letters.
func ColumnLetter(col int) string {
	if col < 0 {
		return ""
	}
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// Table renders the overview as a sheet. With formulas set the first four
// cells of each row are the live formulas instead of computed values.
func (d Dashboard) Table(name string, withFormulas bool) table.Table {
	rows := make([]table.Row, len(d.Lines))
	for i, l := range d.Lines {
		row := make(table.Row, len(Header))
		if withFormulas {
			for c, f := range l.Formulas {
				row[c] = f
			}
		} else {
			row[0] = l.Name
			row[1] = int64(l.Count)
			row[2] = int64(l.Done)
			row[3] = l.RatioCell()
		}
		rows[i] = row
	}
	return table.Table{Name: name, Header: Header.Clone(), Rows: rows}
}
