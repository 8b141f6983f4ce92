package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/worksplit/internal/config"
	"github.com/JonMunkholm/worksplit/internal/dashboard"
	"github.com/JonMunkholm/worksplit/internal/logging"
	"github.com/JonMunkholm/worksplit/internal/registration"
	"github.com/JonMunkholm/worksplit/internal/table"
	"github.com/JonMunkholm/worksplit/internal/workbook"
)

// DefaultRunTimeout is the maximum duration of a run.
const DefaultRunTimeout = 10 * time.Minute

var (
	// ErrSourceRequired is returned when a run has no source sheet.
	ErrSourceRequired = errors.New("source sheet is required")

	// ErrUnknownSplitMode is returned for a split mode other than filter or group.
	ErrUnknownSplitMode = errors.New("unknown split mode")

	// ErrPrefixRequired is returned by Merge, Cleanup and the dashboard when no
	// partition prefix is configured.
	ErrPrefixRequired = errors.New("partition prefix is required")
)

// Options holds the workbook layout and run limits of a Service.
type Options struct {
	SourceSheet       string
	KeyColumn         string
	Prefix            string
	MergedSheet       string
	DashboardSheet    string
	RegistrationSheet string

	// CodeColumn labels a column kept as text in created sheets.
	CodeColumn       string
	HeaderBackground string

	SplitMode      string
	RequireMatches bool

	Dashboard dashboard.Options

	MaxConcurrentRuns int
	MaxRunWait        time.Duration
	RunTimeout        time.Duration
}

// DefaultOptions returns the layout of the survey workbook.
func DefaultOptions() Options {
	return Options{
		KeyColumn:         "都道府県",
		Prefix:            "分割_",
		MergedSheet:       "【統合】",
		DashboardSheet:    "【分割シート一覧】",
		RegistrationSheet: "フォームの回答 1",
		CodeColumn:        "市町村コード",
		HeaderBackground:  "#fff2cc",
		SplitMode:         config.SplitModeFilter,
		Dashboard:         dashboard.DefaultOptions(),
		MaxConcurrentRuns: DefaultMaxConcurrentRuns,
		MaxRunWait:        DefaultMaxRunWait,
		RunTimeout:        DefaultRunTimeout,
	}
}

// OptionsFromConfig builds Options from loaded configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	target, err := config.ColumnIndex(cfg.Workbook.TargetColumn)
	if err != nil {
		return Options{}, fmt.Errorf("dashboard target column: %w", err)
	}
	done, err := config.ColumnIndex(cfg.Workbook.DoneColumn)
	if err != nil {
		return Options{}, fmt.Errorf("dashboard done column: %w", err)
	}

	return Options{
		SourceSheet:       cfg.Workbook.SourceSheet,
		KeyColumn:         cfg.Workbook.KeyColumn,
		Prefix:            cfg.Workbook.Prefix,
		MergedSheet:       cfg.Workbook.MergedSheet,
		DashboardSheet:    cfg.Workbook.DashboardSheet,
		RegistrationSheet: cfg.Registration.Sheet,
		CodeColumn:        cfg.Workbook.CodeColumn,
		HeaderBackground:  cfg.Workbook.HeaderBackground,
		SplitMode:         cfg.Workbook.SplitMode,
		RequireMatches:    cfg.Workbook.RequireMatches,
		Dashboard: dashboard.Options{
			Prefix:       cfg.Workbook.Prefix,
			WorkbookURL:  cfg.Workbook.URL,
			TargetColumn: target,
			TargetMarker: cfg.Workbook.TargetMarker,
			DoneColumn:   done,
		},
		MaxConcurrentRuns: cfg.Run.MaxConcurrent,
		MaxRunWait:        cfg.Run.MaxWait,
		RunTimeout:        cfg.Run.Timeout,
	}, nil
}

// Service provides the workbook workflows.
type Service struct {
	wb        workbook.Workbook
	processor *registration.Processor
	opts      Options
	limiter   *RunLimiter
}

// NewService creates a Service over wb. processor handles registrations.
func NewService(wb workbook.Workbook, processor *registration.Processor, opts Options) *Service {
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	if opts.Dashboard.Prefix == "" {
		opts.Dashboard.Prefix = opts.Prefix
	}
	return &Service{
		wb:        wb,
		processor: processor,
		opts:      opts,
		limiter:   NewRunLimiter(opts.MaxConcurrentRuns, opts.MaxRunWait),
	}
}

// Options returns the options in use.
func (s *Service) Options() Options {
	return s.opts
}

// Limiter exposes the run limiter for monitoring and graceful shutdown.
func (s *Service) Limiter() *RunLimiter {
	return s.limiter
}

// Ping checks the workbook store.
func (s *Service) Ping(ctx context.Context) error {
	return s.wb.Ping(ctx)
}

// startRun acquires a run slot and returns a run context carrying a new run
// ID and the run timeout. finish releases the slot.
func (s *Service) startRun(ctx context.Context, action AuditAction) (context.Context, func(), error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, nil, err
	}

	ctx = logging.ContextWithRunID(ctx, uuid.NewString())
	ctx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)

	logging.FromContext(ctx).Info("run started", "action", action)
	start := time.Now()

	finish := func() {
		cancel()
		s.limiter.Release()
		logging.FromContext(ctx).Info("run finished",
			"action", action,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return ctx, finish, nil
}

// sheetFormat is the presentation of every sheet a run creates.
func (s *Service) sheetFormat(header table.Header) workbook.Format {
	f := workbook.Format{
		HeaderBackground: s.opts.HeaderBackground,
		Borders:          true,
		Filter:           &table.Filter{},
	}
	if idx := header.Index(s.opts.CodeColumn); s.opts.CodeColumn != "" && idx >= 0 {
		f.TextColumns = []int{idx}
	}
	return f
}

// ReadTable returns a snapshot of a sheet.
func (s *Service) ReadTable(ctx context.Context, name string) (table.Table, error) {
	sheet, err := s.wb.GetSheet(ctx, name)
	if err != nil {
		return table.Table{}, err
	}
	return sheet.Table(), nil
}

// ListSheets lists sheets whose name starts with prefix, in sheet order.
func (s *Service) ListSheets(ctx context.Context, prefix string) ([]workbook.SheetInfo, error) {
	return s.wb.ListSheets(ctx, prefix)
}

// GetSheet returns a sheet with its rows.
func (s *Service) GetSheet(ctx context.Context, name string) (*workbook.Sheet, error) {
	return s.wb.GetSheet(ctx, name)
}

// DeleteSheet removes one sheet.
func (s *Service) DeleteSheet(ctx context.Context, name string) error {
	sheet, err := s.wb.GetSheet(ctx, name)
	if err != nil {
		return err
	}
	if err := s.wb.DeleteSheet(ctx, name); err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}

	logging.FromContext(ctx).Info("sheet deleted", "sheet", name, "rows", len(sheet.Rows))
	s.recordAudit(ctx, AuditParams{
		Action:       ActionSheetDelete,
		SheetName:    name,
		RowsAffected: len(sheet.Rows),
	})
	return nil
}

// ImportOptions controls ImportCSV.
type ImportOptions struct {
	// Replace deletes an existing sheet of the same name first.
	Replace bool

	// First places the sheet before all others.
	First bool
}

// ImportResult describes an imported sheet.
type ImportResult struct {
	RunID        string             `json:"run_id"`
	Sheet        workbook.SheetInfo `json:"sheet"`
	Rows         int                `json:"rows"`
	SkippedEmpty int                `json:"skipped_empty"`
	BytesRead    int64              `json:"bytes_read"`
}

// ImportCSV creates a sheet from CSV data.
func (s *Service) ImportCSV(ctx context.Context, name string, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	if err := workbook.ValidateName(name); err != nil {
		return nil, err
	}

	ctx, finish, err := s.startRun(ctx, ActionImport)
	if err != nil {
		return nil, err
	}
	defer finish()

	logger := logging.WithFields(ctx, "sheet", name)

	t, stats, err := table.ReadCSV(r, name)
	if err != nil {
		return nil, fmt.Errorf("import %q: %w", name, err)
	}

	if opts.Replace {
		if err := s.wb.DeleteSheet(ctx, name); err != nil && !errors.Is(err, workbook.ErrSheetNotFound) {
			return nil, fmt.Errorf("replace %q: %w", name, err)
		}
	}

	info, err := s.wb.CreateSheet(ctx, workbook.NewSheet{
		Name:   name,
		Header: t.Header,
		Rows:   t.Rows,
		Format: s.sheetFormat(t.Header),
		First:  opts.First,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("sheet imported",
		"rows", stats.Rows,
		"skipped_empty", stats.SkippedEmpty,
		"bytes", stats.BytesRead,
	)
	s.recordAudit(ctx, AuditParams{
		Action:       ActionImport,
		SheetName:    name,
		RowsAffected: stats.Rows,
		Detail:       map[string]any{"bytes": stats.BytesRead, "replace": opts.Replace},
	})

	return &ImportResult{
		RunID:        logging.RunIDFromContext(ctx),
		Sheet:        info,
		Rows:         stats.Rows,
		SkippedEmpty: stats.SkippedEmpty,
		BytesRead:    stats.BytesRead,
	}, nil
}

// ExportCSV writes a sheet as CSV.
func (s *Service) ExportCSV(ctx context.Context, name string, w io.Writer) error {
	t, err := s.ReadTable(ctx, name)
	if err != nil {
		return err
	}
	if err := table.WriteCSV(w, t); err != nil {
		return fmt.Errorf("export %q: %w", name, err)
	}
	return nil
}
