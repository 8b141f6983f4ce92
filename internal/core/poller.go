package core

// poller.go runs pending registrations in the background.
//
// Form submissions normally arrive as events. The poller is the fallback for
// rows that were appended while the server was down or whose event was lost:
// it runs ProcessPending on the registration sheet immediately on start and
// then every interval. Failures are logged and never stop the poller.

import (
	"context"
	"log/slog"
	"time"
)

// StartRegistrationPoller blocks, processing pending registrations every
// interval until ctx is cancelled. Run it in its own goroutine.
func (s *Service) StartRegistrationPoller(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	slog.Info("registration poller started",
		"sheet", s.opts.RegistrationSheet,
		"interval", interval,
	)

	// Run immediately on startup
	s.runPollJob(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("registration poller stopped")
			return
		case <-ticker.C:
			s.runPollJob(ctx)
		}
	}
}

// runPollJob performs one ProcessPending pass.
func (s *Service) runPollJob(ctx context.Context) {
	start := time.Now()

	batch, err := s.ProcessPending(ctx, "")
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("registration poll failed", "error", err)
		}
		return
	}

	slog.Debug("registration poll completed",
		"approved", batch.Approved,
		"rejected", batch.Rejected,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
