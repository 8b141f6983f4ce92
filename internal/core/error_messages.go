package core

// # Error Codes Reference
//
// User-friendly error messages with codes for support reference. Users quote
// the code; support looks it up here.
//
// Sentinel errors are matched first with errors.Is, then the remaining
// technical errors by case-insensitive substring.
//
// # Split Errors (SPL001-SPL099)
//
//	SPL001 - Key column not found: The source sheet has no column with the key label
//	         Action: Check the key column label against the sheet header
//	         Sentinel: table.ErrKeyColumnNotFound
//
//	SPL002 - Duplicate sheet: A sheet with this name already exists
//	         Action: Run cleanup or delete the sheet before running again
//	         Sentinel: workbook.ErrDuplicateTableName
//
//	SPL003 - No source: No source sheet was given or configured
//	         Action: Pass a source sheet or set SOURCE_SHEET_NAME
//	         Sentinel: ErrSourceRequired
//
//	SPL004 - Unknown mode: Split mode must be filter or group
//	         Sentinel: ErrUnknownSplitMode
//
// # Merge Errors (MRG001-MRG099)
//
//	MRG001 - No partitions: No sheet matches the partition prefix
//	         Action: Run split first or check the prefix
//	         Sentinel: table.ErrNoPartitionsFound
//
// # Registration Errors (REG001-REG099)
//
//	REG001 - Multiple rows: A form event must cover exactly one row
//	         Sentinel: registration.ErrMultiRowInput
//
//	REG002 - Column not found: The registration sheet lacks a labelled column
//	         Action: Check the registration column labels
//	         Sentinel: table.ErrColumnNotFound
//
//	REG003 - Row out of range: The event row is not a data row of the sheet
//	         Sentinel: registration.ErrRowOutOfRange
//
// # Sheet Errors (SHT001-SHT099)
//
//	SHT001 - Sheet not found: No sheet has this name
//	         Sentinel: workbook.ErrSheetNotFound
//
//	SHT002 - Cell out of range: The cell is outside the sheet's data
//	         Sentinel: workbook.ErrCellOutOfRange
//
//	SHT003 - Invalid name: Sheet names must not be blank
//	         Patterns: "invalid sheet name"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - System busy: Another run is in progress
//	         Action: Please wait a moment and try again
//	         Sentinel: ErrTooManyRuns
//
//	RUN002 - Request cancelled: Patterns: "context canceled"
//	RUN003 - Run timeout: Patterns: "context deadline exceeded"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key           Patterns: "duplicate key"
//	DB002 - Unique constraint       Patterns: "unique constraint", "violates unique"
//	DB004 - Connection refused      Patterns: "connection refused"
//	DB005 - Connection reset        Patterns: "connection reset"
//	DB006 - Timeout                 Patterns: "timeout"
//	DB007 - Deadlock                Patterns: "deadlock"
//	DB008 - Workbook file locked    Patterns: "database is locked"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large        Patterns: "file too large", "request body too large"
//	FILE002 - Invalid CSV           Patterns: "invalid csv"
//	FILE004 - No file               Patterns: "no file provided"
//	FILE005 - Empty file            Patterns: "empty file"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check application logs for the original
// technical error when users report ERR000.

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/worksplit/internal/registration"
	"github.com/JonMunkholm/worksplit/internal/table"
	"github.com/JonMunkholm/worksplit/internal/workbook"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// sentinelMessage maps a sentinel error to its message and HTTP status.
type sentinelMessage struct {
	err    error
	status int
	msg    UserMessage
}

// sentinelMessages are checked in order with errors.Is. Key column before
// column, since a missing key column is the more specific failure.
var sentinelMessages = []sentinelMessage{
	{
		err:    table.ErrKeyColumnNotFound,
		status: http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "The source sheet has no column with the key label",
			Action:  "Check the key column label against the sheet header",
			Code:    "SPL001",
		},
	},
	{
		err:    workbook.ErrDuplicateTableName,
		status: http.StatusConflict,
		msg: UserMessage{
			Message: "A sheet with this name already exists",
			Action:  "Run cleanup or delete the sheet before running again",
			Code:    "SPL002",
		},
	},
	{
		err:    ErrSourceRequired,
		status: http.StatusBadRequest,
		msg: UserMessage{
			Message: "No source sheet was given",
			Action:  "Pass a source sheet or set SOURCE_SHEET_NAME",
			Code:    "SPL003",
		},
	},
	{
		err:    ErrUnknownSplitMode,
		status: http.StatusBadRequest,
		msg: UserMessage{
			Message: "Unknown split mode",
			Action:  "Use filter or group",
			Code:    "SPL004",
		},
	},
	{
		err:    ErrPrefixRequired,
		status: http.StatusBadRequest,
		msg: UserMessage{
			Message: "No partition prefix was given",
			Action:  "Pass a prefix or set PARTITION_PREFIX",
			Code:    "SPL005",
		},
	},
	{
		err:    table.ErrNoPartitionsFound,
		status: http.StatusNotFound,
		msg: UserMessage{
			Message: "No partition sheets were found",
			Action:  "Run split first or check the partition prefix",
			Code:    "MRG001",
		},
	},
	{
		err:    registration.ErrMultiRowInput,
		status: http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "A registration event must cover exactly one row",
			Action:  "Send one event per submitted row",
			Code:    "REG001",
		},
	},
	{
		err:    table.ErrColumnNotFound,
		status: http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "A required column is missing from the sheet",
			Action:  "Check the column labels against the sheet header",
			Code:    "REG002",
		},
	},
	{
		err:    registration.ErrRowOutOfRange,
		status: http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "The row is not a data row of the sheet",
			Action:  "Check the row number of the event",
			Code:    "REG003",
		},
	},
	{
		err:    ErrRegistrationDisabled,
		status: http.StatusServiceUnavailable,
		msg: UserMessage{
			Message: "Registration processing is not configured",
			Action:  "Configure a registration processor for this server",
			Code:    "REG004",
		},
	},
	{
		err:    workbook.ErrSheetNotFound,
		status: http.StatusNotFound,
		msg: UserMessage{
			Message: "Sheet not found",
			Action:  "Verify the sheet name is correct",
			Code:    "SHT001",
		},
	},
	{
		err:    workbook.ErrCellOutOfRange,
		status: http.StatusUnprocessableEntity,
		msg: UserMessage{
			Message: "The cell is outside the sheet's data",
			Action:  "Check the row and column",
			Code:    "SHT002",
		},
	},
	{
		err:    ErrTooManyRuns,
		status: http.StatusTooManyRequests,
		msg: UserMessage{
			Message: "Another run is in progress",
			Action:  "Please wait a moment and try again",
			Code:    "RUN001",
		},
	},
	{
		err:    table.ErrEmptyFile,
		status: http.StatusBadRequest,
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a CSV file with a header row",
			Code:    "FILE005",
		},
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	status  int
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Patterns are matched using strings.Contains, so partial matches work.
// The first matching pattern wins, so order matters:
//   - More specific patterns should come before general ones
//   - Multiple patterns can map to the same error code
var errorPatterns = []errorPattern{
	// =========================================================================
	// Sheet and run errors without a sentinel
	// =========================================================================
	{
		pattern: "invalid sheet name",
		status:  http.StatusBadRequest,
		msg: UserMessage{
			Message: "Invalid sheet name",
			Action:  "Sheet names must not be blank",
			Code:    "SHT003",
		},
	},
	{
		pattern: "context canceled",
		status:  499,
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context deadline exceeded",
		status:  http.StatusGatewayTimeout,
		msg: UserMessage{
			Message: "The run timed out",
			Action:  "Try again later or raise RUN_TIMEOUT",
			Code:    "RUN003",
		},
	},

	// =========================================================================
	// Database Errors (DB001-DB008)
	// =========================================================================
	{
		pattern: "duplicate key",
		status:  http.StatusConflict,
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Check for duplicate entries",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		status:  http.StatusConflict,
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		status:  http.StatusConflict,
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Check for duplicate entries",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection refused",
		status:  http.StatusServiceUnavailable,
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		status:  http.StatusServiceUnavailable,
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		status:  http.StatusGatewayTimeout,
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		status:  http.StatusServiceUnavailable,
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "database is locked",
		status:  http.StatusServiceUnavailable,
		msg: UserMessage{
			Message: "The workbook file is in use",
			Action:  "Close other programs using the workbook and try again",
			Code:    "DB008",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE004)
	// =========================================================================
	{
		pattern: "file too large",
		status:  http.StatusRequestEntityTooLarge,
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		status:  http.StatusRequestEntityTooLarge,
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		status:  http.StatusBadRequest,
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with consistent quoting",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		status:  http.StatusBadRequest,
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE004",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		status:  http.StatusTooManyRequests,
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// lookup finds the message and status for err.
func lookup(err error) (UserMessage, int) {
	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg, sm.status
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg, ep.status
		}
	}

	return defaultMessage, http.StatusInternalServerError
}

// MapError converts a technical error to a user-friendly message.
// Sentinel errors are matched first, then known patterns (case-insensitive).
// If nothing matches, a generic fallback message with code ERR000 is returned.
//
// Example:
//
//	_, err := svc.Split(ctx, SplitRequest{KeyColumn: "県"})
//	msg := MapError(err)
//	// msg.Code == "SPL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	msg, _ := lookup(err)
	return msg
}

// HTTPStatus returns the response status for err. Unknown errors are 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	_, status := lookup(err)
	return status
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known sentinel or pattern.
// Returns false for the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
