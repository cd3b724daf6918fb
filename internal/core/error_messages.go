package core

// error_messages.go maps technical errors to messages users can act on.
//
// Each message carries a code that users can quote to support:
//
//	DB001  Duplicate code: a record with this code already exists
//	DB002  Missing parent: a referenced record does not exist
//	DB003  Database unavailable: connection refused or reset
//	DB004  Timeout: the operation took too long
//	DB005  Deadlock: conflicting writes, retry
//	FILE001 File too large
//	FILE002 Invalid CSV
//	FILE003 Unsupported file type
//	FILE004 No file provided
//	FILE005 Empty file
//	IMP001 Too many imports in progress
//	IMP002 Request cancelled
//	IMP003 Request timed out
//	IMP004 Unknown object type
//	AUTH001 Permission denied
//	ERR000 Anything else; check the logs for the technical error
//
// Patterns are matched case-insensitively with strings.Contains. The first
// match wins, so specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage is an error explained for end users.
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
	{"duplicate key", UserMessage{
		Message: "A record with this code already exists",
		Action:  "Use a different code or leave it empty to generate one",
		Code:    "DB001",
	}},
	{"violates unique", UserMessage{
		Message: "A record with this code already exists",
		Action:  "Use a different code or leave it empty to generate one",
		Code:    "DB001",
	}},
	{"foreign key", UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Import parent records before their children",
		Code:    "DB002",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB003",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB003",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"file too large", UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}},
	{"invalid csv", UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Save the sheet as comma-separated values and try again",
		Code:    "FILE002",
	}},
	{"unsupported file type", UserMessage{
		Message: "File is not a CSV or XLSX file",
		Action:  "Upload a .csv or .xlsx file",
		Code:    "FILE003",
	}},
	{"no file provided", UserMessage{
		Message: "No file was selected",
		Action:  "Please select a file to import",
		Code:    "FILE004",
	}},
	{"empty file", UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload a file with at least one object block",
		Code:    "FILE005",
	}},
	{"too many imports", UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP001",
	}},
	{"context canceled", UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "IMP002",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "Request timed out",
		Action:  "Try importing a smaller file",
		Code:    "IMP003",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Try again later or import a smaller file",
		Code:    "DB004",
	}},
	{"unknown object type", UserMessage{
		Message: "Unknown object type",
		Action:  "Check the object type name against the list of importable types",
		Code:    "IMP004",
	}},
	{"permission denied", UserMessage{
		Message: "You are not allowed to do this",
		Action:  "Ask an administrator for the required role",
		Code:    "AUTH001",
	}},
	{"invalid status", UserMessage{
		Message: "This status is not allowed for the record",
		Action:  "Pick one of the listed statuses",
		Code:    "VAL001",
	}},
	{"no recipient", UserMessage{
		Message: "The record has nobody to notify",
		Action:  "Set an assignee or contact on the record first",
		Code:    "NTF001",
	}},
	{"record not found", UserMessage{
		Message: "Record not found",
		Action:  "Check the object type and code",
		Code:    "VAL002",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user message. Errors matching no
// known pattern map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return ue.User
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the generic fallback.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logs, with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string { return e.User.Message }
func (e *UserError) Unwrap() error { return e.Technical }

// NewUserError maps err to a UserError. Returns nil for a nil err.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
