package core

// error_messages.go maps technical errors to user-facing messages with a
// code operators can quote to support.
//
// Engine errors are mapped by kind first:
//
//	IMP001 validation_error  Action: fix the file or mapping and upload again
//	IMP002 row_error         Action: correct the listed rows
//	IMP003 not_found         Action: the session may have expired, start a new import
//	IMP004 forbidden         Action: only the user who started the import can change it
//	IMP005 state_error       Action: refresh the import and check its status
//	IMP006 storage_error     Action: retry the commit, nothing was written
//
// Specific messages inside a kind (database constraint, busy system,
// timeouts) are found by case-insensitive pattern match, first match wins:
//
//	DB001-DB005   database errors
//	VAL001-VAL004 value format errors
//	FILE001-FILE003 file errors
//	SYS001-SYS003 capacity, cancellation and timeouts
//
// ERR000 is the fallback; check the logs for the technical error.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A record with this identity already exists", "Resolve the row as a merge or skip instead", "DB001"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Review the import for duplicate plants", "DB001"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB002"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB003"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB004"}},
	{"no longer exists", UserMessage{"A matched plant was removed while the import was open", "Start a new import for the affected rows", "DB005"}},

	{"invalid date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024", "VAL001"}},
	{"invalid number", UserMessage{"Invalid number format detected", "Use plain numbers such as 12 or 12.5", "VAL002"}},
	{"required field", UserMessage{"Required field is empty", "Ensure all required columns have values", "VAL003"}},
	{"missing required columns", UserMessage{"Required column is missing from the file", "Check the column headers against the mapping", "VAL004"}},

	{"maximum size", UserMessage{"File exceeds the maximum size", "Split the file into smaller files", "FILE001"}},
	{"no header row", UserMessage{"The file has no header row", "Add a header row naming each column", "FILE002"}},
	{"unreadable input", UserMessage{"The file could not be read", "Export the sheet again as CSV or XLSX", "FILE003"}},

	{"too many concurrent imports", UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "SYS001"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "SYS002"}},
	{"deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or try again later", "SYS003"}},
}

var kindMessages = map[ErrorKind]UserMessage{
	KindValidation: {"The import could not be accepted", "Fix the file or mapping and upload again", "IMP001"},
	KindRow:        {"Some rows could not be parsed", "Correct the listed rows", "IMP002"},
	KindNotFound:   {"Import session or conflict not found", "The session may have expired. Please start a new import", "IMP003"},
	KindForbidden:  {"This import belongs to another user", "Only the user who started the import can change it", "IMP004"},
	KindState:      {"The import is not in a state that allows this", "Refresh the import and check its status", "IMP005"},
	KindStorage:    {"Saving the import failed and nothing was written", "Please retry the commit", "IMP006"},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Known
// patterns win over the generic message of the error's kind.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	var e *Error
	if errors.As(err, &e) {
		if msg, ok := kindMessages[e.Kind]; ok {
			return msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
