package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Errors are matched first by sentinel (errors.Is), then by
// case-insensitive substring of the error text.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - No valid rows: the dry run found nothing to import
//	         Action: Check that the file matches the selected layout
//	IMP002 - Rejected: a hard-fail check rejected the batch
//	         Action: Review the dry-run reasons before committing
//	IMP003 - Identity collision: two different items hashed to one ID
//	         Action: Contact support with the row references in the log
//	IMP004 - Busy: another commit holds the import lock
//	         Action: Wait for the running import to finish and retry
//	IMP005 - Invalid range: the requested row range is not valid
//	         Action: Use 1-based positions with from <= to
//
// # Layout and Item Errors (LAY001, ITM001)
//
//	LAY001 - Unknown layout
//	ITM001 - Item not found
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Unique constraint       Patterns: "duplicate key", "violates unique"
//	DB004 - Connection refused      Patterns: "connection refused"
//	DB005 - Connection reset        Patterns: "connection reset"
//	DB006 - Timeout                 Patterns: "timeout"
//	DB007 - Deadlock                Patterns: "deadlock"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large        Patterns: "file too large", "request body too large"
//	FILE002 - Unsupported format    Patterns: "unsupported file type"
//	FILE003 - Not a workbook        Patterns: "not a valid zip file", "invalid workbook"
//	FILE004 - No file               Patterns: "no file provided"
//	FILE005 - No matching sheet     Patterns: "no matching sheet"
//	FILE006 - Invalid CSV           Patterns: "invalid csv"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled      Patterns: "context canceled"
//	REQ002 - Request timeout        Patterns: "context deadline exceeded"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check application logs
// for the original technical error when users report ERR000.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages is checked before the text patterns.
var sentinelMessages = []sentinelMessage{
	{ErrNoValidRows, UserMessage{
		Message: "No importable rows were found",
		Action:  "Check that the file matches the selected layout",
		Code:    "IMP001",
	}},
	{ErrItemIdentityCollision, UserMessage{
		Message: "Two different items resolved to the same item ID; the batch was stopped",
		Action:  "Contact support with the row references in the log",
		Code:    "IMP003",
	}},
	{ErrHardFail, UserMessage{
		Message: "The import was rejected by a pre-commit check",
		Action:  "Review the dry-run reasons before committing",
		Code:    "IMP002",
	}},
	{ErrImportBusy, UserMessage{
		Message: "Another import is being committed",
		Action:  "Wait for the running import to finish and try again",
		Code:    "IMP004",
	}},
	{ErrLockLost, UserMessage{
		Message: "The commit lost its lock and stopped between rows",
		Action:  "Run the commit again; committed rows are skipped",
		Code:    "IMP006",
	}},
	{ErrItemStateChanged, UserMessage{
		Message: "Item stock kept changing while the commit ran",
		Action:  "Make sure only one import commits at a time, then run it again",
		Code:    "IMP007",
	}},
	{ErrUnknownLayout, UserMessage{
		Message: "Unknown sheet layout",
		Action:  "Choose one of the configured layouts",
		Code:    "LAY001",
	}},
	{ErrItemNotFound, UserMessage{
		Message: "Item not found",
		Action:  "Verify the item ID is correct",
		Code:    "ITM001",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so more specific patterns come first.
var errorPatterns = []errorPattern{
	// Import range
	{
		pattern: "invalid row range",
		msg: UserMessage{
			Message: "The requested row range is not valid",
			Action:  "Use 1-based positions with from <= to",
			Code:    "IMP005",
		},
	},

	// Database
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Run the import again; committed rows are skipped",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Run the import again; committed rows are skipped",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Run the commit again; it resumes where it stopped",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// Files
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the workbook or raise IMPORT_MAX_FILE_SIZE",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the workbook or raise IMPORT_MAX_FILE_SIZE",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "Unsupported file type",
			Action:  "Upload an .xlsx workbook or a .csv export",
			Code:    "FILE002",
		},
	},
	{
		pattern: "not a valid zip file",
		msg: UserMessage{
			Message: "The file is not a valid Excel workbook",
			Action:  "Save the file as .xlsx and try again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "invalid workbook",
		msg: UserMessage{
			Message: "The file is not a valid Excel workbook",
			Action:  "Save the file as .xlsx and try again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a workbook to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "no matching sheet",
		msg: UserMessage{
			Message: "The workbook has none of the layout's sheets",
			Action:  "Check the sheet names or pick another layout",
			Code:    "FILE005",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with consistent quoting",
			Code:    "FILE006",
		},
	},

	// Request lifecycle
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Run the commit again; it resumes where it stopped",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Run the commit again; it resumes where it stopped",
			Code:    "REQ002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Sentinel errors are matched with errors.Is; everything else by the first
// case-insensitive pattern contained in the error text.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
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

// IsUserFacing reports whether an error maps to a specific message rather
// than the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
