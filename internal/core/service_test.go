package core

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/worksplit/internal/config"
	"github.com/JonMunkholm/worksplit/internal/notify"
	"github.com/JonMunkholm/worksplit/internal/registration"
	"github.com/JonMunkholm/worksplit/internal/table"
	"github.com/JonMunkholm/worksplit/internal/workbook"
	"github.com/JonMunkholm/worksplit/internal/workbook/workbooktest"
)

type fixture struct {
	svc    *Service
	wb     *workbook.Memory
	mailer *notify.LogMailer
}

func newFixture(t *testing.T, mutate ...func(*Options)) fixture {
	t.Helper()

	wb := workbook.NewMemory()
	_, err := wb.CreateSheet(context.Background(), workbooktest.Master())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.SourceSheet = "master"
	opts.Dashboard.TargetColumn = 3
	opts.Dashboard.DoneColumn = 4
	opts.Dashboard.WorkbookURL = "https://sheets.example.org/d/abc"
	for _, m := range mutate {
		m(&opts)
	}

	mailer := notify.NewLogMailer()
	proc := registration.NewProcessor(wb, wb, &notify.RegistrationNotifier{
		Mailer:     mailer,
		AdminEmail: "admin@example.org",
	}, registration.Labels{})

	return fixture{svc: NewService(wb, proc, opts), wb: wb, mailer: mailer}
}

func sheetNames(t *testing.T, wb workbook.Workbook, prefix string) []string {
	t.Helper()
	infos, err := wb.ListSheets(context.Background(), prefix)
	require.NoError(t, err)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

func rowsOf(t *testing.T, wb workbook.Workbook, name string) []table.Row {
	t.Helper()
	s, err := wb.GetSheet(context.Background(), name)
	require.NoError(t, err)
	return s.Rows
}

func TestSplit_FilterMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Split(ctx, SplitRequest{})
	require.NoError(t, err)

	assert.Equal(t, config.SplitModeFilter, res.Mode)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 5, res.Rows, "every source row lands in exactly one partition")
	assert.Equal(t, []string{"分割_北海道", "分割_東京都", "分割_大阪府"}, sheetNames(t, f.wb, "分割_"))

	tokyo, err := f.wb.GetSheet(ctx, "分割_東京都")
	require.NoError(t, err)
	assert.Len(t, tokyo.Rows, 2)
	require.NotNil(t, tokyo.Format.Filter)
	require.Len(t, tokyo.Format.Filter.Criteria, 1)
	assert.Equal(t, "東京都", tokyo.Format.Filter.Criteria[0].Equals)
	assert.Equal(t, []int{0}, tokyo.Format.TextColumns)

	// the master keeps its rows and has no filter added
	master, err := f.wb.GetSheet(ctx, "master")
	require.NoError(t, err)
	assert.Len(t, master.Rows, 5)
	assert.Nil(t, master.Format.Filter)
}

func TestSplit_ModesProduceSameMembership(t *testing.T) {
	byFilter := newFixture(t)
	byGroup := newFixture(t, func(o *Options) { o.SplitMode = config.SplitModeGroup })
	ctx := context.Background()

	_, err := byFilter.svc.Split(ctx, SplitRequest{})
	require.NoError(t, err)
	_, err = byGroup.svc.Split(ctx, SplitRequest{})
	require.NoError(t, err)

	names := sheetNames(t, byFilter.wb, "分割_")
	require.Equal(t, names, sheetNames(t, byGroup.wb, "分割_"))

	for _, name := range names {
		if diff := cmp.Diff(rowsOf(t, byFilter.wb, name), rowsOf(t, byGroup.wb, name)); diff != "" {
			t.Errorf("%s rows differ between modes (-filter +group):\n%s", name, diff)
		}
	}
}

func TestSplit_ExplicitValues(t *testing.T) {
	for _, mode := range []string{config.SplitModeFilter, config.SplitModeGroup} {
		t.Run(mode, func(t *testing.T) {
			f := newFixture(t)

			res, err := f.svc.Split(context.Background(), SplitRequest{
				Mode:   mode,
				Values: []string{"大阪府", "北海道", "大阪府", "沖縄県"},
			})
			require.NoError(t, err)

			keys := make([]string, len(res.Sheets))
			for i, s := range res.Sheets {
				keys[i] = s.Key
			}
			assert.Equal(t, []string{"大阪府", "北海道", "沖縄県"}, keys)
			assert.Equal(t, 0, res.Sheets[2].Rows)
		})
	}
}

func TestSplit_KeyColumnNotFound(t *testing.T) {
	for _, mode := range []string{config.SplitModeFilter, config.SplitModeGroup} {
		t.Run(mode, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Split(context.Background(), SplitRequest{Mode: mode, KeyColumn: "県"})
			require.ErrorIs(t, err, table.ErrKeyColumnNotFound)
			assert.Equal(t, "SPL001", MapError(err).Code)
			assert.Empty(t, sheetNames(t, f.wb, "分割_"), "nothing is materialized")
		})
	}
}

func TestSplit_DuplicateNameStopsRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wb.CreateSheet(ctx, workbook.NewSheet{
		Name:   "分割_東京都",
		Header: table.Header{"memo"},
		Rows:   []table.Row{{"keep me"}},
	})
	require.NoError(t, err)

	res, err := f.svc.Split(ctx, SplitRequest{})
	require.ErrorIs(t, err, workbook.ErrDuplicateTableName)
	require.NotNil(t, res)

	// sheets created before the failure are kept
	require.Len(t, res.Sheets, 1)
	assert.Equal(t, "分割_北海道", res.Sheets[0].Name)
	assert.Contains(t, sheetNames(t, f.wb, "分割_"), "分割_北海道")

	// the existing sheet is untouched
	assert.Equal(t, []table.Row{{"keep me"}}, rowsOf(t, f.wb, "分割_東京都"))
}

func TestSplit_BadRequest(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.SourceSheet = "" })

	_, err := f.svc.Split(context.Background(), SplitRequest{})
	assert.ErrorIs(t, err, ErrSourceRequired)

	_, err = f.svc.Split(context.Background(), SplitRequest{Source: "master", Mode: "hash"})
	assert.ErrorIs(t, err, ErrUnknownSplitMode)

	_, err = f.svc.Split(context.Background(), SplitRequest{Source: "nope"})
	assert.ErrorIs(t, err, workbook.ErrSheetNotFound)
}

func TestMerge_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Split(ctx, SplitRequest{})
	require.NoError(t, err)

	res, err := f.svc.Merge(ctx, MergeRequest{})
	require.NoError(t, err)
	assert.Equal(t, "【統合】", res.Destination)
	assert.Equal(t, []string{"分割_北海道", "分割_東京都", "分割_大阪府"}, res.Partitions)
	assert.Equal(t, 5, res.Rows)

	master, err := f.wb.GetSheet(ctx, "master")
	require.NoError(t, err)
	merged, err := f.wb.GetSheet(ctx, "【統合】")
	require.NoError(t, err)

	if diff := cmp.Diff(master.Header, merged.Header); diff != "" {
		t.Errorf("merged header mismatch (-master +merged):\n%s", diff)
	}
	if diff := cmp.Diff(master.Rows, merged.Rows); diff != "" {
		t.Errorf("merged rows mismatch (-master +merged):\n%s", diff)
	}

	// partition filters are removed in the store
	tokyo, err := f.wb.GetSheet(ctx, "分割_東京都")
	require.NoError(t, err)
	assert.Nil(t, tokyo.Format.Filter)
}

func TestMerge_NoPartitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Merge(ctx, MergeRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rows)

	merged, err := f.wb.GetSheet(ctx, "【統合】")
	require.NoError(t, err)
	assert.Len(t, merged.Header, 5)
	assert.Empty(t, merged.Rows)

	require.NoError(t, f.wb.DeleteSheet(ctx, "【統合】"))
	required := true
	_, err = f.svc.Merge(ctx, MergeRequest{RequireMatches: &required})
	require.ErrorIs(t, err, table.ErrNoPartitionsFound)
	assert.Equal(t, "MRG001", MapError(err).Code)
}

func TestMerge_DestinationExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Merge(ctx, MergeRequest{})
	require.NoError(t, err)

	_, err = f.svc.Merge(ctx, MergeRequest{})
	assert.ErrorIs(t, err, workbook.ErrDuplicateTableName)
}

func TestMerge_DestinationExistsKeepsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Split(ctx, SplitRequest{})
	require.NoError(t, err)
	_, err = f.wb.CreateSheet(ctx, workbook.NewSheet{Name: "【統合】", Header: table.Header{"x"}})
	require.NoError(t, err)

	_, err = f.svc.Merge(ctx, MergeRequest{})
	require.ErrorIs(t, err, workbook.ErrDuplicateTableName)
	assert.Equal(t, "SPL002", MapError(err).Code)

	for _, name := range sheetNames(t, f.wb, "分割_") {
		s, err := f.wb.GetSheet(ctx, name)
		require.NoError(t, err)
		assert.NotNil(t, s.Format.Filter, "%s keeps its filter", name)
	}
}

func TestMerge_NoPrefix(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Prefix = "" })

	_, err := f.svc.Merge(context.Background(), MergeRequest{})
	require.ErrorIs(t, err, ErrPrefixRequired)
	assert.Equal(t, []string{"master"}, sheetNames(t, f.wb, ""))
}

func TestBuildDashboard_NoPrefix(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Prefix = "" })

	_, err := f.svc.BuildDashboard(context.Background())
	assert.ErrorIs(t, err, ErrPrefixRequired)
}

func TestCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Split(ctx, SplitRequest{})
	require.NoError(t, err)

	res, err := f.svc.Cleanup(ctx, "")
	require.NoError(t, err)
	assert.Len(t, res.Deleted, 3)
	assert.Equal(t, 5, res.Rows)
	assert.Empty(t, sheetNames(t, f.wb, "分割_"))
	assert.Equal(t, []string{"master"}, sheetNames(t, f.wb, ""))

	// split can run again after cleanup
	_, err = f.svc.Split(ctx, SplitRequest{})
	assert.NoError(t, err)
}

func TestCleanup_NoPrefix(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Prefix = "" })

	_, err := f.svc.Cleanup(context.Background(), "")
	require.ErrorIs(t, err, ErrPrefixRequired)
	assert.Equal(t, []string{"master"}, sheetNames(t, f.wb, ""))
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Split(ctx, SplitRequest{})
	require.NoError(t, err)

	res, err := f.svc.Dashboard(ctx)
	require.NoError(t, err)
	require.Len(t, res.Dashboard.Lines, 3)

	got := make(map[string][2]int)
	for _, l := range res.Dashboard.Lines {
		got[l.Name] = [2]int{l.Count, l.Done}
	}
	want := map[string][2]int{
		"北海道": {1, 1},
		"東京都": {2, 1},
		"大阪府": {1, 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dashboard counts mismatch (-want +got):\n%s", diff)
	}

	// the overview is the first sheet and a rebuild replaces it
	_, err = f.svc.Dashboard(ctx)
	require.NoError(t, err)
	names := sheetNames(t, f.wb, "")
	assert.Equal(t, "【分割シート一覧】", names[0])
	assert.Len(t, rowsOf(t, f.wb, "【分割シート一覧】"), 3)
}

func TestDashboardExport_Formulas(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Split(ctx, SplitRequest{})
	require.NoError(t, err)

	var values, formulas bytes.Buffer
	require.NoError(t, f.svc.DashboardExport(ctx, &values, false))
	require.NoError(t, f.svc.DashboardExport(ctx, &formulas, true))

	assert.NotContains(t, values.String(), "=HYPERLINK")
	assert.Contains(t, formulas.String(), "=HYPERLINK")
	assert.Contains(t, formulas.String(), "#gid=")
}

func TestImportExportCSV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	input := "\ufeff市町村コード,都道府県,市町村\n011002,北海道,札幌市\n,,\n472018,沖縄県,那覇市\n"
	res, err := f.svc.ImportCSV(ctx, "import", strings.NewReader(input), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 1, res.SkippedEmpty)

	var out bytes.Buffer
	require.NoError(t, f.svc.ExportCSV(ctx, "import", &out))
	assert.Equal(t, "市町村コード,都道府県,市町村\n011002,北海道,札幌市\n472018,沖縄県,那覇市\n", out.String())

	_, err = f.svc.ImportCSV(ctx, "import", strings.NewReader(input), ImportOptions{})
	assert.ErrorIs(t, err, workbook.ErrDuplicateTableName)

	_, err = f.svc.ImportCSV(ctx, "import", strings.NewReader("a,b\n1,2\n"), ImportOptions{Replace: true})
	require.NoError(t, err)
	assert.Len(t, rowsOf(t, f.wb, "import"), 1)

	_, err = f.svc.ImportCSV(ctx, "empty", strings.NewReader(""), ImportOptions{})
	assert.ErrorIs(t, err, table.ErrEmptyFile)
}

func TestRun_TooManyRuns(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxRunWait = 20 * time.Millisecond })

	require.True(t, f.svc.Limiter().TryAcquire())
	defer f.svc.Limiter().Release()

	_, err := f.svc.Split(context.Background(), SplitRequest{})
	require.ErrorIs(t, err, ErrTooManyRuns)
	assert.Equal(t, 429, HTTPStatus(err))
	assert.Empty(t, sheetNames(t, f.wb, "分割_"))
}

func TestAuditLog(t *testing.T) {
	f := newFixture(t)
	ctx := ContextWithRequester(context.Background(), Requester{IPAddress: "192.0.2.1", UserAgent: "test"})

	_, err := f.svc.Split(ctx, SplitRequest{})
	require.NoError(t, err)
	_, err = f.svc.Cleanup(ctx, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteSheet(ctx, "master"))

	entries, err := f.svc.AuditLog(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, string(ActionSheetDelete), entries[0].Action)
	assert.Equal(t, string(SeverityCritical), entries[0].Severity)
	assert.Equal(t, string(ActionCleanup), entries[1].Action)
	assert.Equal(t, string(SeverityCritical), entries[1].Severity)
	assert.Equal(t, string(ActionSplit), entries[2].Action)
	assert.Equal(t, string(SeverityHigh), entries[2].Severity)
	assert.Equal(t, 5, entries[2].RowsAffected)
	assert.NotEmpty(t, entries[2].RunID)
	assert.NotEqual(t, entries[1].RunID, entries[2].RunID)
	assert.Equal(t, "192.0.2.1", entries[2].IPAddress)

	limited, err := f.svc.AuditLog(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func newRegistrationRows(t *testing.T, f fixture, rows ...table.Row) {
	t.Helper()
	_, err := f.wb.CreateSheet(context.Background(), workbook.NewSheet{
		Name:   "フォームの回答 1",
		Header: table.Header{"タイムスタンプ", "名前（ニックネーム可）", "メールアドレス", "所属（任意）", "登録処理"},
		Rows:   rows,
	})
	require.NoError(t, err)
}

func TestHandleRegistrationEvent(t *testing.T) {
	f := newFixture(t)
	newRegistrationRows(t, f, table.Row{"2020/04/10 9:00:00", "hanako", "hanako@example.org", "", nil})
	ctx := context.Background()

	res, err := f.svc.HandleRegistrationEvent(ctx, registration.Event{Row: 2, NumRows: 1})
	require.NoError(t, err)
	assert.Equal(t, registration.Status("承認"), res.Registrant.Status)

	editors, err := f.wb.Editors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hanako@example.org"}, editors)

	entries, err := f.svc.AuditLog(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(SeverityMedium), entries[0].Severity)

	_, err = f.svc.HandleRegistrationEvent(ctx, registration.Event{Row: 2, NumRows: 2})
	require.ErrorIs(t, err, registration.ErrMultiRowInput)
	assert.Equal(t, "REG001", MapError(err).Code)
}

func TestProcessPending(t *testing.T) {
	f := newFixture(t)
	newRegistrationRows(t, f,
		table.Row{"2020/04/10 9:00:00", "a", "a@example.org", "", nil},
		table.Row{"2020/04/10 9:05:00", "b", "", "", nil},
		table.Row{"2020/04/10 9:10:00", "c", "c@example.org", "", "承認"},
	)

	batch, err := f.svc.ProcessPending(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Approved)
	assert.Equal(t, 1, batch.Rejected)

	// one registrant mail plus one admin summary
	assert.Len(t, f.mailer.Sent(), 2)
}

func TestRegistrationDisabled(t *testing.T) {
	svc := NewService(workbook.NewMemory(), nil, DefaultOptions())

	_, err := svc.ProcessPending(context.Background(), "")
	assert.ErrorIs(t, err, ErrRegistrationDisabled)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg, err := config.LoadFile("")
	require.NoError(t, err)
	cfg.Workbook.SourceSheet = "全国"

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "全国", opts.SourceSheet)
	assert.Equal(t, 4, opts.Dashboard.TargetColumn)
	assert.Equal(t, 7, opts.Dashboard.DoneColumn)
	assert.Equal(t, "分割_", opts.Dashboard.Prefix)

	cfg.Workbook.DoneColumn = "7"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}
