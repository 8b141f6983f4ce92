// Package core drives the workbook workflows: splitting a master sheet into
// per-region partition sheets, merging them back, cleaning them up,
// building the status dashboard, importing and exporting sheets as CSV,
// and processing collaborator registrations.
//
// The package holds no transport concerns. The HTTP server in internal/web
// and the CLI in cmd/worksplit both call the same [Service].
//
// # Runs
//
// Split, merge, cleanup, dashboard and import are runs. Each run:
//
//  1. acquires a slot from the [RunLimiter] (fails with [ErrTooManyRuns]
//     when none frees up in time)
//  2. gets a run ID that every log entry and the audit record carry
//  3. is bounded by the configured run timeout
//
// A run reads each sheet once. Partition sheets created before a failure
// are kept; the result lists them next to the error.
//
// # Error Handling
//
// Technical errors are mapped to coded user messages with [MapError] and to
// HTTP status codes with [HTTPStatus]:
//
//   - SPL001-SPL005: Split errors (key column, duplicate sheet, bad request)
//   - MRG001: Merge errors
//   - REG001-REG004: Registration errors
//   - SHT001-SHT003: Sheet errors
//   - RUN001-RUN003: Run errors (busy, cancelled, timeout)
//   - DB001-DB008, FILE001-FILE005, RATE001: Store, upload and throttling errors
//
// # Audit Logging
//
// Every run and sheet deletion is recorded in the workbook's audit log with
// a severity level:
//
//   - Low: Dashboard rebuilds
//   - Medium: Registration processing
//   - High: Split, merge, import
//   - Critical: Cleanup, sheet deletion
package core
