package core

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/JonMunkholm/worksplit/internal/logging"
	"github.com/JonMunkholm/worksplit/internal/registration"
)

// ErrRegistrationDisabled is returned when the service has no processor.
var ErrRegistrationDisabled = errors.New("registration processing is not configured")

// HandleRegistrationEvent processes one form submission. An empty event
// sheet means the configured registration sheet.
//
// Registration runs do not take a run slot: they touch only the
// registration sheet and the editor list.
func (s *Service) HandleRegistrationEvent(ctx context.Context, ev registration.Event) (registration.Result, error) {
	if s.processor == nil {
		return registration.Result{}, ErrRegistrationDisabled
	}
	if ev.Sheet == "" {
		ev.Sheet = s.opts.RegistrationSheet
	}

	ctx = logging.ContextWithRunID(ctx, uuid.NewString())
	res, err := s.processor.HandleEvent(ctx, ev)
	if err != nil {
		return res, err
	}
	if res.Skipped {
		return res, nil
	}

	detail := map[string]any{"row": ev.Row, "status": string(res.Registrant.Status)}
	if res.Error != "" {
		detail["error"] = res.Error
	}
	s.recordAudit(ctx, AuditParams{
		Action:       ActionRegistration,
		SheetName:    ev.Sheet,
		RowsAffected: 1,
		Detail:       detail,
	})
	return res, nil
}

// ProcessPending processes every pending row of the registration sheet
// (the configured one when sheet is empty).
func (s *Service) ProcessPending(ctx context.Context, sheet string) (registration.BatchResult, error) {
	if s.processor == nil {
		return registration.BatchResult{}, ErrRegistrationDisabled
	}
	if sheet == "" {
		sheet = s.opts.RegistrationSheet
	}

	ctx = logging.ContextWithRunID(ctx, uuid.NewString())
	batch, err := s.processor.ProcessPending(ctx, sheet)

	// Rows already written are recorded even when the batch stopped early.
	if n := len(batch.Results); n > 0 {
		s.recordAudit(ctx, AuditParams{
			Action:       ActionRegistration,
			SheetName:    sheet,
			RowsAffected: n,
			Detail:       map[string]any{"approved": batch.Approved, "rejected": batch.Rejected},
		})
	}
	if err != nil {
		return batch, err
	}

	logging.FromContext(ctx).Info("pending registrations processed",
		"sheet", sheet,
		"approved", batch.Approved,
		"rejected", batch.Rejected,
	)
	return batch, nil
}
