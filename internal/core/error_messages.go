package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference. Presentation layers use it to show batch-level
// failures (storage, source file) distinctly from row-level rejections,
// which are never errors and are reported through the Outcome instead.
//
// Codes:
//
//	DB001-DB007   storage failures (duplicates, connectivity, timeouts)
//	FILE001-FILE006 source file problems
//	IMP001-IMP004 import service failures
//	RPT001        report parameter errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage is a user-facing rendering of an error.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched case-insensitively against the error text, in order.
// Cause-specific patterns come before the generic stage sentinels below so a
// lookup failure caused by a dropped connection reports the connection problem.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A work log with the same date, member, project and work type already exists",
			Action:  "Another import may have run at the same time; re-run this import to skip the duplicates",
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
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "i/o timeout",
		msg:     timeoutMessage,
	},
	{
		pattern: "context deadline exceeded",
		msg:     timeoutMessage,
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated with a header row",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file is empty",
			Action:  "Please import a CSV file with a header row and data rows",
			Code:    "FILE005",
		},
	},
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "The file could not be found",
			Action:  "Check the path and try again",
			Code:    "FILE006",
		},
	},
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "The server is busy with other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP003",
		},
	},
	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "Import result not found or expired",
			Action:  "Run the import again to get a fresh result",
			Code:    "IMP004",
		},
	},
	{
		pattern: "invalid period",
		msg: UserMessage{
			Message: "The reporting period is invalid",
			Action:  "Use YYYY-MM-DD dates with From on or before To",
			Code:    "RPT001",
		},
	},
	{
		pattern: "unknown report kind",
		msg: UserMessage{
			Message: "That report does not exist",
			Action:  "Choose one of: monthly, projects, members",
			Code:    "RPT002",
		},
	},
	{
		pattern: "unknown format",
		msg: UserMessage{
			Message: "That export format is not supported",
			Action:  "Choose one of: json, csv, xlsx",
			Code:    "RPT003",
		},
	},
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request could not be understood",
			Action:  "Check the request parameters and try again",
			Code:    "REQ001",
		},
	},
}

// timeoutMessage covers network timeouts and expired deadlines (DB006).
var timeoutMessage = UserMessage{
	Message: "Operation timed out",
	Action:  "Try importing a smaller file or try again later",
	Code:    "DB006",
}

// sentinelMessages map wrapped sentinel errors when no specific pattern matched.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{context.DeadlineExceeded, timeoutMessage},
	{ErrStoreLookup, UserMessage{
		Message: "Could not check existing work logs in the database",
		Action:  "Nothing was imported; please try again",
		Code:    "IMP001",
	}},
	{ErrBulkInsert, UserMessage{
		Message: "Saving work logs to the database failed",
		Action:  "Nothing was imported; please try again",
		Code:    "IMP002",
	}},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If nothing matches, a generic fallback with code ERR000 is returned.
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

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsBatchFailure reports whether err came from the storage boundary of an
// import, as opposed to a problem with the source file.
func IsBatchFailure(err error) bool {
	return errors.Is(err, ErrStoreLookup) || errors.Is(err, ErrBulkInsert)
}

// IsUserFacing returns true if the error maps to a specific (non-default) message.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps an error with its user-facing message.
type UserError struct {
	Err     error
	Message UserMessage
}

func (e *UserError) Error() string {
	return e.Message.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a UserError from a technical error.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Err:     err,
		Message: MapError(err),
	}
}
