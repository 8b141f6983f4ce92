// Package workbooktest holds the behaviour every workbook backend must share.
package workbooktest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/worksplit/internal/table"
	"github.com/JonMunkholm/worksplit/internal/workbook"
)

// Opener returns a fresh, empty workbook. The suite closes it.
type Opener func(t *testing.T) workbook.Workbook

// Master is the sample master sheet used by the suite.
func Master() workbook.NewSheet {
	return workbook.NewSheet{
		Name:   "master",
		Header: table.Header{"市町村コード", "都道府県", "市町村", "調査対象", "調査済"},
		Rows: []table.Row{
			{"011002", "北海道", "札幌市", "○", int64(1)},
			{"012025", "北海道", "函館市", "", nil},
			{"131016", "東京都", "千代田区", "○", nil},
			{"131024", "東京都", "中央区", "○", int64(2)},
			{"271004", "大阪府", "大阪市", "○", 0.5},
		},
		Format: workbook.Format{
			HeaderBackground: "#fff2cc",
			Borders:          true,
			TextColumns:      []int{0},
		},
	}
}

// Run executes the conformance suite against the backend returned by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, wb workbook.Workbook)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"DuplicateName", testDuplicateName},
		{"SheetNotFound", testSheetNotFound},
		{"CreateFiltered", testCreateFiltered},
		{"ListOrderAndPrefix", testListOrderAndPrefix},
		{"FirstPosition", testFirstPosition},
		{"Delete", testDelete},
		{"SetFilter", testSetFilter},
		{"SetCell", testSetCell},
		{"TextColumns", testTextColumns},
		{"Editors", testEditors},
		{"Audit", testAudit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := open(t)
			t.Cleanup(func() { _ = wb.Close() })
			tt.fn(t, wb)
		})
	}
}

func testCreateAndGet(t *testing.T, wb workbook.Workbook) {
	ctx := context.Background()
	in := Master()

	info, err := wb.CreateSheet(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "master", info.Name)
	assert.Equal(t, len(in.Rows), info.RowCount)
	assert.NotZero(t, info.GID)

	got, err := wb.GetSheet(ctx, "master")
	require.NoError(t, err)
	assert.Equal(t, in.Header, got.Header)
	require.Len(t, got.Rows, len(in.Rows))
	for i := range in.Rows {
		assert.Equal(t, in.Rows[i], got.Rows[i], "row %d", i)
	}
	assert.Equal(t, "#fff2cc", got.Format.HeaderBackground)
	assert.True(t, got.Format.Borders)
	assert.Equal(t, info.GID, got.GID)
}

func testDuplicateName(t *testing.T, wb workbook.Workbook) {
	ctx := context.Background()
	_, err := wb.CreateSheet(ctx, Master())
	require.NoError(t, err)

	dup := workbook.NewSheet{Name: "master", Header: table.Header{"x"}}
	_, err = wb.CreateSheet(ctx, dup)
	require.ErrorIs(t, err, workbook.ErrDuplicateTableName)

	got, err := wb.GetSheet(ctx, "master")
	require.NoError(t, err)
	assert.Len(t, got.Rows, len(Master().Rows), "existing sheet is untouched")
}

func testSheetNotFound(t *testing.T, wb workbook.Workbook) {
	ctx := context.Background()

	_, err := wb.GetSheet(ctx, "missing")
	assert.ErrorIs(t, err, workbook.ErrSheetNotFound)
	assert.ErrorIs(t, wb.DeleteSheet(ctx, "missing"), workbook.ErrSheetNotFound)
	assert.ErrorIs(t, wb.SetFilter(ctx, "missing", nil), workbook.ErrSheetNotFound)

	_, err = wb.CreateFilteredSheet(ctx, "out", "missing", table.Criteria{}, workbook.Format{})
	assert.ErrorIs(t, err, workbook.ErrSheetNotFound)
}

func testCreateFiltered(t *testing.T, wb workbook.Workbook) {
	ctx := context.Background()
	master := Master()
	_, err := wb.CreateSheet(ctx, master)
	require.NoError(t, err)

	c, err := table.NewCriteria(master.Header, "都道府県", "東京都")
	require.NoError(t, err)

	f := workbook.Format{Filter: &table.Filter{Criteria: []table.Criteria{c}}}
	info, err := wb.CreateFilteredSheet(ctx, "分割_東京都", "master", c, f)
	require.NoError(t, err)
	assert.Equal(t, 2, info.RowCount)

	got, err := wb.GetSheet(ctx, "分割_東京都")
	require.NoError(t, err)
	assert.Equal(t, master.Header, got.Header)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "千代田区", got.Rows[0][2])
	assert.Equal(t, "中央区", got.Rows[1][2])
	require.NotNil(t, got.Format.Filter)
	assert.Equal(t, []table.Criteria{c}, got.Format.Filter.Criteria)

	empty, err := table.NewCriteria(master.Header, "都道府県", "沖縄県")
	require.NoError(t, err)
	info, err = wb.CreateFilteredSheet(ctx, "分割_沖縄県", "master", empty, workbook.Format{})
	require.NoError(t, err)
	assert.Zero(t, info.RowCount)
}

func testListOrderAndPrefix(t *testing.T, wb workbook.Workbook) {
	ctx := context.Background()
	for _, name := range []string{"master", "分割_北海道", "分割_東京都", "other", "分割_大阪府"} {
		_, err := wb.CreateSheet(ctx, workbook.NewSheet{Name: name, Header: table.Header{"a"}})
		require.NoError(t, err)
	}

	parts, err := wb.ListSheets(ctx, "分割_")
	require.NoError(t, err)
	assert.Equal(t, []string{"分割_北海道", "分割_東京都", "分割_大阪府"}, names(parts))

	all, err := wb.ListSheets(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, "master", all[0].Name)
}

func testFirstPosition(t *testing.T, wb workbook.Workbook) {
	ctx := context.Background()
	_, err := wb.CreateSheet(ctx, workbook.NewSheet{Name: "a", Header: table.Header{"x"}})
	require.NoError(t, err)
	_, err = wb.CreateSheet(ctx, workbook.NewSheet{Name: "b", Header: table.Header{"x"}})
	require.NoError(t, err)
	_, err = wb.CreateSheet(ctx, workbook.NewSheet{Name: "index", Header: table.Header{"x"}, First: true})
	require.NoError(t, err)

	all, err := wb.ListSheets(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"index", "a", "b"}, names(all))
}

func testDelete(t *testing.T, wb workbook.Workbook) {
	ctx := context.Background()
	_, err := wb.CreateSheet(ctx, Master())
	require.NoError(t, err)

	require.NoError(t, wb.DeleteSheet(ctx, "master"))

	_, err = wb.GetSheet(ctx, "master")
	assert.ErrorIs(t, err, workbook.ErrSheetNotFound)

	_, err = wb.CreateSheet(ctx, Master())
	assert.NoError(t, err, "name is free again after delete")
}

func testSetFilter(t *testing.T, wb workbook.Workbook) {
	ctx := context.Background()
	in := Master()
	in.Format.Filter = &table.Filter{}
	_, err := wb.CreateSheet(ctx, in)
	require.NoError(t, err)

	require.NoError(t, wb.SetFilter(ctx, "master", nil))

	got, err := wb.GetSheet(ctx, "master")
	require.NoError(t, err)
	assert.Nil(t, got.Format.Filter)
	assert.Len(t, got.Rows, len(in.Rows), "removing a filter keeps rows")
}

func testSetCell(t *testing.T, wb workbook.Workbook) {
	ctx := context.Background()
	_, err := wb.CreateSheet(ctx, Master())
	require.NoError(t, err)

	require.NoError(t, wb.SetCell(ctx, "master", 1, 4, int64(3)))

	got, err := wb.GetSheet(ctx, "master")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Rows[1][4])
	assert.Equal(t, "函館市", got.Rows[1][2])

	assert.ErrorIs(t, wb.SetCell(ctx, "master", 99, 0, "x"), workbook.ErrCellOutOfRange)
	assert.ErrorIs(t, wb.SetCell(ctx, "master", 0, 99, "x"), workbook.ErrCellOutOfRange)
	assert.ErrorIs(t, wb.SetCell(ctx, "missing", 0, 0, "x"), workbook.ErrSheetNotFound)
}

func testTextColumns(t *testing.T, wb workbook.Workbook) {
	ctx := context.Background()
	in := workbook.NewSheet{
		Name:   "codes",
		Header: table.Header{"code", "n"},
		Rows:   []table.Row{{int64(11002), int64(1)}},
		Format: workbook.Format{TextColumns: []int{0}},
	}
	_, err := wb.CreateSheet(ctx, in)
	require.NoError(t, err)

	got, err := wb.GetSheet(ctx, "codes")
	require.NoError(t, err)
	assert.Equal(t, "11002", got.Rows[0][0])
	assert.Equal(t, int64(1), got.Rows[0][1])
}

func testEditors(t *testing.T, wb workbook.Workbook) {
	ctx := context.Background()
	require.NoError(t, wb.GrantEditor(ctx, "a@example.org"))
	require.NoError(t, wb.GrantEditor(ctx, "b@example.org"))
	require.NoError(t, wb.GrantEditor(ctx, "a@example.org"))

	got, err := wb.Editors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, got)
}

func testAudit(t *testing.T, wb workbook.Workbook) {
	ctx := context.Background()
	base := time.Date(2020, 4, 9, 10, 0, 0, 0, time.UTC)

	for i, action := range []string{"split", "merge", "cleanup"} {
		err := wb.RecordAudit(ctx, workbook.AuditRecord{
			Action:       action,
			Severity:     "high",
			RowsAffected: i,
			Detail:       map[string]any{"n": "v"},
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	got, err := wb.ListAudit(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "cleanup", got[0].Action)
	assert.Equal(t, "merge", got[1].Action)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, "v", got[0].Detail["n"])
}

func names(infos []workbook.SheetInfo) []string {
	out := make([]string, len(infos))
	for i, s := range infos {
		out[i] = s.Name
	}
	return out
}
