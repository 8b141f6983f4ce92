package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/worksplit/internal/dashboard"
	"github.com/JonMunkholm/worksplit/internal/logging"
	"github.com/JonMunkholm/worksplit/internal/table"
	"github.com/JonMunkholm/worksplit/internal/workbook"
)

// DashboardResult describes a dashboard rebuild.
type DashboardResult struct {
	RunID     string              `json:"run_id"`
	Sheet     string              `json:"sheet"`
	GID       int64               `json:"gid"`
	Dashboard dashboard.Dashboard `json:"dashboard"`
}

// BuildDashboard computes the status overview of the partition sheets
// without writing it.
func (s *Service) BuildDashboard(ctx context.Context) (dashboard.Dashboard, error) {
	if s.opts.Prefix == "" {
		return dashboard.Dashboard{}, ErrPrefixRequired
	}
	infos, err := s.wb.ListSheets(ctx, s.opts.Prefix)
	if err != nil {
		return dashboard.Dashboard{}, fmt.Errorf("list partitions: %w", err)
	}

	sheets := make([]*workbook.Sheet, 0, len(infos))
	for _, info := range infos {
		sheet, err := s.wb.GetSheet(ctx, info.Name)
		if err != nil {
			return dashboard.Dashboard{}, err
		}
		sheets = append(sheets, sheet)
	}
	return dashboard.Build(sheets, s.opts.Dashboard), nil
}

// Dashboard rebuilds the overview sheet. The previous overview is replaced
// and the new one is placed first.
func (s *Service) Dashboard(ctx context.Context) (*DashboardResult, error) {
	ctx, finish, err := s.startRun(ctx, ActionDashboard)
	if err != nil {
		return nil, err
	}
	defer finish()

	name := s.opts.DashboardSheet
	d, err := s.BuildDashboard(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.wb.DeleteSheet(ctx, name); err != nil && !errors.Is(err, workbook.ErrSheetNotFound) {
		return nil, fmt.Errorf("replace %q: %w", name, err)
	}

	t := d.Table(name, false)
	info, err := s.wb.CreateSheet(ctx, workbook.NewSheet{
		Name:   name,
		Header: t.Header,
		Rows:   t.Rows,
		Format: workbook.Format{
			HeaderBackground: s.opts.HeaderBackground,
			Borders:          true,
		},
		First: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", name, err)
	}

	logging.FromContext(ctx).Info("dashboard rebuilt", "sheet", name, "lines", len(d.Lines))
	s.recordAudit(ctx, AuditParams{
		Action:       ActionDashboard,
		SheetName:    name,
		RowsAffected: len(d.Lines),
	})

	return &DashboardResult{
		RunID:     logging.RunIDFromContext(ctx),
		Sheet:     name,
		GID:       info.GID,
		Dashboard: d,
	}, nil
}

// DashboardExport writes the overview as CSV. With formulas the first four
// columns hold the spreadsheet formulas instead of computed values.
func (s *Service) DashboardExport(ctx context.Context, w io.Writer, formulas bool) error {
	d, err := s.BuildDashboard(ctx)
	if err != nil {
		return err
	}
	return table.WriteCSV(w, d.Table(s.opts.DashboardSheet, formulas))
}
