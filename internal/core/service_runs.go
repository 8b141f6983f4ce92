package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/worksplit/internal/config"
	"github.com/JonMunkholm/worksplit/internal/logging"
	"github.com/JonMunkholm/worksplit/internal/table"
	"github.com/JonMunkholm/worksplit/internal/workbook"
)

// SplitRequest selects what to split. Empty fields use the service options.
type SplitRequest struct {
	Source    string `json:"source,omitempty"`
	KeyColumn string `json:"key_column,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	Mode      string `json:"mode,omitempty"`

	// Values restricts the split to these key values, in this order.
	// Empty splits by every distinct value of the key column.
	Values []string `json:"values,omitempty"`
}

// SplitSheet is one created partition sheet.
type SplitSheet struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	GID  int64  `json:"gid"`
	Rows int    `json:"rows"`
}

// SplitResult describes a split run. On failure it lists the sheets created
// before the error; they are not rolled back.
type SplitResult struct {
	RunID     string       `json:"run_id"`
	Source    string       `json:"source"`
	KeyColumn string       `json:"key_column"`
	Mode      string       `json:"mode"`
	Sheets    []SplitSheet `json:"sheets"`
	Rows      int          `json:"rows"`
}

// Split partitions the source sheet by the key column and creates one sheet
// per key value, named prefix + value.
//
// In filter mode each sheet is created from the source by a text-equals
// criterion on the key column, one criterion per distinct value. In group
// mode the rows are grouped in one pass and each group is written as is.
// Both produce the same row membership.
func (s *Service) Split(ctx context.Context, req SplitRequest) (*SplitResult, error) {
	req = s.splitDefaults(req)
	if req.Source == "" {
		return nil, ErrSourceRequired
	}
	if req.Mode != config.SplitModeFilter && req.Mode != config.SplitModeGroup {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSplitMode, req.Mode)
	}

	ctx, finish, err := s.startRun(ctx, ActionSplit)
	if err != nil {
		return nil, err
	}
	defer finish()

	logger := logging.WithFields(ctx,
		"source", req.Source,
		"key_column", req.KeyColumn,
		"mode", req.Mode,
	)

	res := &SplitResult{
		RunID:     logging.RunIDFromContext(ctx),
		Source:    req.Source,
		KeyColumn: req.KeyColumn,
		Mode:      req.Mode,
	}

	src, err := s.ReadTable(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	if req.Mode == config.SplitModeFilter {
		err = s.splitByFilter(ctx, src, req, res)
	} else {
		err = s.splitByGroup(ctx, src, req, res)
	}

	s.recordAudit(ctx, AuditParams{
		Action:       ActionSplit,
		SheetName:    req.Source,
		RowsAffected: res.Rows,
		Detail:       splitDetail(res, err),
	})

	if err != nil {
		logger.Error("split failed", "sheets_created", len(res.Sheets), "error", err)
		return res, err
	}

	logger.Info("split completed", "sheets", len(res.Sheets), "rows", res.Rows)
	return res, nil
}

func (s *Service) splitDefaults(req SplitRequest) SplitRequest {
	if req.Source == "" {
		req.Source = s.opts.SourceSheet
	}
	if req.KeyColumn == "" {
		req.KeyColumn = s.opts.KeyColumn
	}
	if req.Prefix == "" {
		req.Prefix = s.opts.Prefix
	}
	if req.Mode == "" {
		req.Mode = s.opts.SplitMode
	}
	if req.Mode == "" {
		req.Mode = config.SplitModeFilter
	}
	return req
}

// splitByFilter hands one criterion per value to the workbook.
func (s *Service) splitByFilter(ctx context.Context, src table.Table, req SplitRequest, res *SplitResult) error {
	values := req.Values
	if len(values) == 0 {
		var err error
		values, err = table.DistinctValues(src, req.KeyColumn)
		if err != nil {
			return err
		}
	} else if _, err := src.Header.Resolve(req.KeyColumn, table.ErrKeyColumnNotFound); err != nil {
		return err
	}

	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true

		c, err := table.NewCriteria(src.Header, req.KeyColumn, v)
		if err != nil {
			return err
		}

		f := s.sheetFormat(src.Header)
		f.Filter = &table.Filter{Criteria: []table.Criteria{c}}

		name := req.Prefix + v
		info, err := s.wb.CreateFilteredSheet(ctx, name, req.Source, c, f)
		if err != nil {
			return fmt.Errorf("create %q: %w", name, err)
		}
		s.addSplitSheet(ctx, res, v, info)
	}
	return nil
}

// splitByGroup groups the rows in process and writes each group.
func (s *Service) splitByGroup(ctx context.Context, src table.Table, req SplitRequest, res *SplitResult) error {
	var (
		parts table.PartitionResult
		err   error
	)
	if len(req.Values) > 0 {
		parts, err = table.PartitionByValues(src, req.KeyColumn, req.Values)
	} else {
		parts, err = table.Partition(src, req.KeyColumn)
	}
	if err != nil {
		return err
	}

	for _, p := range parts {
		name := req.Prefix + p.Key
		info, err := s.wb.CreateSheet(ctx, workbook.NewSheet{
			Name:   name,
			Header: src.Header,
			Rows:   p.Rows,
			Format: s.sheetFormat(src.Header),
		})
		if err != nil {
			return fmt.Errorf("create %q: %w", name, err)
		}
		s.addSplitSheet(ctx, res, p.Key, info)
	}
	return nil
}

func (s *Service) addSplitSheet(ctx context.Context, res *SplitResult, key string, info workbook.SheetInfo) {
	res.Sheets = append(res.Sheets, SplitSheet{
		Key:  key,
		Name: info.Name,
		GID:  info.GID,
		Rows: info.RowCount,
	})
	res.Rows += info.RowCount

	logging.FromContext(ctx).Debug("partition sheet created",
		"sheet", info.Name,
		"gid", info.GID,
		"rows", info.RowCount,
	)
}

func splitDetail(res *SplitResult, err error) map[string]any {
	d := map[string]any{
		"key_column": res.KeyColumn,
		"mode":       res.Mode,
		"sheets":     len(res.Sheets),
	}
	if err != nil {
		d["error"] = err.Error()
	}
	return d
}

// MergeRequest selects what to merge. Empty fields use the service options.
type MergeRequest struct {
	Source      string `json:"source,omitempty"`
	Prefix      string `json:"prefix,omitempty"`
	Destination string `json:"destination,omitempty"`

	// RequireMatches overrides the configured policy when set.
	RequireMatches *bool `json:"require_matches,omitempty"`
}

// MergeResult describes a merge run.
type MergeResult struct {
	RunID       string   `json:"run_id"`
	Destination string   `json:"destination"`
	GID         int64    `json:"gid"`
	Partitions  []string `json:"partitions"`
	Rows        int      `json:"rows"`
}

// Merge concatenates every partition sheet into the destination sheet.
//
// The header is taken from the source sheet. Partitions are found by prefix
// in sheet order; each one's filter is removed in the store before its rows
// are read. The prefix must be non-empty and the destination must not exist
// yet; both are checked before any filter is touched.
func (s *Service) Merge(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	if req.Source == "" {
		req.Source = s.opts.SourceSheet
	}
	if req.Prefix == "" {
		req.Prefix = s.opts.Prefix
	}
	if req.Destination == "" {
		req.Destination = s.opts.MergedSheet
	}
	requireMatches := s.opts.RequireMatches
	if req.RequireMatches != nil {
		requireMatches = *req.RequireMatches
	}
	if req.Source == "" {
		return nil, ErrSourceRequired
	}
	if req.Prefix == "" {
		return nil, ErrPrefixRequired
	}

	ctx, finish, err := s.startRun(ctx, ActionMerge)
	if err != nil {
		return nil, err
	}
	defer finish()

	logger := logging.WithFields(ctx,
		"source", req.Source,
		"prefix", req.Prefix,
		"destination", req.Destination,
	)

	src, err := s.ReadTable(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	if err := s.ensureAbsent(ctx, req.Destination); err != nil {
		return nil, fmt.Errorf("create %q: %w", req.Destination, err)
	}

	infos, err := s.wb.ListSheets(ctx, req.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	partitions := make([]table.Table, 0, len(infos))
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if err := s.wb.SetFilter(ctx, info.Name, nil); err != nil {
			return nil, fmt.Errorf("remove filter of %q: %w", info.Name, err)
		}
		t, err := s.ReadTable(ctx, info.Name)
		if err != nil {
			return nil, err
		}
		partitions = append(partitions, t)
		names = append(names, info.Name)
	}

	merged, err := table.Aggregate(src.Header, partitions, table.AggregateOptions{
		Name:           req.Destination,
		RequireMatches: requireMatches,
	})
	if err != nil {
		return nil, err
	}

	info, err := s.wb.CreateSheet(ctx, workbook.NewSheet{
		Name:   merged.Name,
		Header: merged.Header,
		Rows:   merged.Rows,
		Format: s.sheetFormat(merged.Header),
	})
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", req.Destination, err)
	}

	logger.Info("merge completed", "partitions", len(names), "rows", len(merged.Rows))
	s.recordAudit(ctx, AuditParams{
		Action:       ActionMerge,
		SheetName:    req.Destination,
		RowsAffected: len(merged.Rows),
		Detail:       map[string]any{"partitions": len(names), "prefix": req.Prefix},
	})

	return &MergeResult{
		RunID:       logging.RunIDFromContext(ctx),
		Destination: info.Name,
		GID:         info.GID,
		Partitions:  names,
		Rows:        len(merged.Rows),
	}, nil
}

// ensureAbsent returns ErrDuplicateTableName when a sheet called name exists.
func (s *Service) ensureAbsent(ctx context.Context, name string) error {
	_, err := s.wb.GetSheet(ctx, name)
	switch {
	case err == nil:
		return workbook.ErrDuplicateTableName
	case errors.Is(err, workbook.ErrSheetNotFound):
		return nil
	default:
		return err
	}
}

// CleanupResult lists the deleted partition sheets.
type CleanupResult struct {
	RunID   string   `json:"run_id"`
	Deleted []string `json:"deleted"`
	Rows    int      `json:"rows"`
}

// Cleanup deletes every sheet whose name starts with prefix (the configured
// prefix when empty). Sheets deleted before a failure stay deleted.
func (s *Service) Cleanup(ctx context.Context, prefix string) (*CleanupResult, error) {
	if prefix == "" {
		prefix = s.opts.Prefix
	}
	if prefix == "" {
		// An empty prefix would match the whole workbook.
		return nil, ErrPrefixRequired
	}

	ctx, finish, err := s.startRun(ctx, ActionCleanup)
	if err != nil {
		return nil, err
	}
	defer finish()

	logger := logging.WithFields(ctx, "prefix", prefix)
	res := &CleanupResult{RunID: logging.RunIDFromContext(ctx)}

	infos, err := s.wb.ListSheets(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	for _, info := range infos {
		if err := s.wb.DeleteSheet(ctx, info.Name); err != nil {
			err = fmt.Errorf("delete %q: %w", info.Name, err)
			s.recordCleanup(ctx, prefix, res, err)
			return res, err
		}
		res.Deleted = append(res.Deleted, info.Name)
		res.Rows += info.RowCount
	}

	logger.Info("cleanup completed", "deleted", len(res.Deleted), "rows", res.Rows)
	s.recordCleanup(ctx, prefix, res, nil)
	return res, nil
}

func (s *Service) recordCleanup(ctx context.Context, prefix string, res *CleanupResult, err error) {
	detail := map[string]any{"prefix": prefix, "sheets": len(res.Deleted)}
	if err != nil {
		detail["error"] = err.Error()
	}
	s.recordAudit(ctx, AuditParams{
		Action:       ActionCleanup,
		RowsAffected: res.Rows,
		Detail:       detail,
	})
}
