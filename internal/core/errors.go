package core

import (
	"errors"
	"fmt"
	"strings"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Code identifies the kind of problem a diagnostic reports.
type Code string

// Row-level codes.
const (
	CodeWrongValue         Code = "WRONG_VALUE_ERROR"
	CodeMissingValue       Code = "MISSING_VALUE_ERROR"
	CodeUnmodifiableColumn Code = "UNMODIFIABLE_COLUMN"
	CodeWrongRequiredValue Code = "WRONG_REQUIRED_VALUE"
	CodeMissingValueWarn   Code = "MISSING_VALUE_WARNING"
	CodeUnknownUserWarn    Code = "UNKNOWN_USER_WARNING"
	CodeUnknownUser        Code = "UNKNOWN_USER_ERROR"
	CodeUnknownObject      Code = "UNKNOWN_OBJECT"
	CodeDuplicateValue     Code = "DUPLICATE_VALUE_IN_CSV"
	CodeInvalidDates       Code = "INVALID_START_END_DATES"
	CodeWrongValueWarn     Code = "WRONG_VALUE"
	CodeCommitFailed       Code = "COMMIT_FAILED"
)

// Block and file codes.
const (
	CodeExportOnlyColumn Code = "EXPORT_ONLY_COLUMN"
	CodeWrongObjectType  Code = "WRONG_OBJECT_TYPE"
	CodeUnknownColumn    Code = "UNKNOWN_COLUMN"
	CodeDuplicateColumn  Code = "DUPLICATE_COLUMN"
	CodeMissingColumn    Code = "MISSING_COLUMN"
	CodeWrongFileType    Code = "WRONG_FILE_TYPE"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeBlockIgnored     Code = "BLOCK_IGNORED"
	CodeBlockFailed      Code = "BLOCK_COMMIT_FAILED"
	CodeNotImportable    Code = "NOT_IMPORTABLE"
	CodeIgnoredRow       Code = "IGNORED_ROW"
)

var messageTemplates = map[Code]string{
	CodeWrongValue:         "Line %d: Field '%s' contains invalid data. The line will be ignored.",
	CodeMissingValue:       "Line %d: Field '%s' is required. The line will be ignored.",
	CodeUnmodifiableColumn: "Line %d: Field '%s' can not be updated. The change will be ignored.",
	CodeWrongRequiredValue: "Line %d: Value '%s' for field '%s' is not valid. The default value will be used.",
	CodeMissingValueWarn:   "Line %d: Field '%s' is required. The default value will be used.",
	CodeUnknownUserWarn:    "Line %d: Specified user '%s' does not exist. That user will be ignored.",
	CodeUnknownUser:        "Line %d: Specified user '%s' does not exist. The line will be ignored.",
	CodeUnknownObject:      "Line %d: %s '%s' does not exist. The line will be ignored.",
	CodeDuplicateValue:     "Line %d: Field '%s' value '%s' is already used in line %d. The line will be ignored.",
	CodeInvalidDates:       "Line %d: Start date must not be later than end date. The line will be ignored.",
	CodeWrongValueWarn:     "Line %d: Field '%s' contains invalid data. The value will be ignored.",
	CodeCommitFailed:       "Line %d: The row could not be saved: %s",
	CodeExportOnlyColumn:   "Line %d: Field '%s' is read only. The column will be ignored.",
	CodeWrongObjectType:    "Line %d: Unknown object type '%s'. The block will be ignored.",
	CodeUnknownColumn:      "Line %d: Unknown column '%s'. The column will be ignored.",
	CodeDuplicateColumn:    "Line %d: Column '%s' is specified more than once. The block will be ignored.",
	CodeMissingColumn:      "Line %d: Mandatory column '%s' is missing. The block will be ignored.",
	CodeWrongFileType:      "Line %d: File '%s' is not a CSV or XLSX file.",
	CodePermissionDenied:   "Line %d: You are not allowed to import '%s'. The block will be ignored.",
	CodeBlockIgnored:       "Line %d: The block contains errors on lines %s. No rows were imported.",
	CodeBlockFailed:        "Line %d: Lines %s could not be saved: %s",
	CodeNotImportable:      "Line %d: Object type '%s' can only be exported. The block will be ignored.",
	CodeIgnoredRow:         "Line %d: The row is not part of an object block and will be ignored.",
}

// Diagnostic is one problem found while importing.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	Line     int      `json:"line,omitempty"`
	Column   string   `json:"column,omitempty"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s", d.Severity, d.Code, d.Message)
}

// IsError reports whether d rejects its row or block.
func (d Diagnostic) IsError() bool { return d.Severity == SeverityError }

func newDiagnostic(sev Severity, code Code, line int, column string, args ...any) Diagnostic {
	tmpl, ok := messageTemplates[code]
	if !ok {
		tmpl = string(code)
	}
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Line:     line,
		Column:   column,
		Message:  fmt.Sprintf(tmpl, append([]any{line}, args...)...),
	}
}

// Errorf builds an error diagnostic from the message template of code.
// args follow the line number in the template.
func Errorf(code Code, line int, column string, args ...any) Diagnostic {
	return newDiagnostic(SeverityError, code, line, column, args...)
}

// Warnf builds a warning diagnostic from the message template of code.
func Warnf(code Code, line int, column string, args ...any) Diagnostic {
	return newDiagnostic(SeverityWarning, code, line, column, args...)
}

func hasError(ds []Diagnostic) bool {
	for _, d := range ds {
		if d.IsError() {
			return true
		}
	}
	return false
}

func joinLines(lines []int) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = fmt.Sprint(l)
	}
	return strings.Join(parts, ", ")
}

// Sentinel errors returned by the pipeline and its readers.
var (
	ErrUnknownObjectType = errors.New("unknown object type")
	ErrEmptyFile         = errors.New("empty file")
	ErrUnsupportedFile   = errors.New("unsupported file type")
	ErrFileTooLarge      = errors.New("file too large")
	ErrPermissionDenied  = errors.New("permission denied")
)
