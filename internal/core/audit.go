package core

import (
	"context"

	"github.com/JonMunkholm/worksplit/internal/logging"
	"github.com/JonMunkholm/worksplit/internal/workbook"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionSplit        AuditAction = "split"
	ActionMerge        AuditAction = "merge"
	ActionCleanup      AuditAction = "cleanup"
	ActionDashboard    AuditAction = "dashboard"
	ActionRegistration AuditAction = "registration"
	ActionImport       AuditAction = "import"
	ActionSheetDelete  AuditAction = "sheet_delete"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// DefaultAuditLimit is the number of entries AuditLog returns by default.
const DefaultAuditLimit = 100

// AuditParams contains parameters for creating an audit log entry.
type AuditParams struct {
	Action       AuditAction
	SheetName    string
	RowsAffected int
	Detail       map[string]any
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionCleanup, ActionSheetDelete:
		return SeverityCritical
	case ActionSplit, ActionMerge, ActionImport:
		return SeverityHigh
	case ActionDashboard:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// recordAudit appends an audit entry for the current run. A failed write is
// logged and does not fail the run.
func (s *Service) recordAudit(ctx context.Context, p AuditParams) {
	req := RequesterFromContext(ctx)
	rec := workbook.AuditRecord{
		Action:       string(p.Action),
		Severity:     string(determineSeverity(p.Action)),
		SheetName:    p.SheetName,
		RowsAffected: p.RowsAffected,
		RunID:        logging.RunIDFromContext(ctx),
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		Detail:       p.Detail,
	}

	// The run context may already be past its deadline.
	if err := s.wb.RecordAudit(context.WithoutCancel(ctx), rec); err != nil {
		logging.FromContext(ctx).Error("audit write failed", "action", p.Action, "error", err)
	}
}

// AuditLog returns the newest audit entries first. limit <= 0 uses
// DefaultAuditLimit.
func (s *Service) AuditLog(ctx context.Context, limit int) ([]workbook.AuditRecord, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	return s.wb.ListAudit(ctx, limit)
}
