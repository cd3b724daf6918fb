package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"duplicate code", errors.New(`ERROR: duplicate key value violates unique constraint "workflows_slug_key"`), "DB001"},
		{"missing parent", errors.New("insert or update on table violates foreign key constraint"), "DB002"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), "DB003"},
		{"wrapped file too large", fmt.Errorf("read: %w", ErrFileTooLarge), "FILE001"},
		{"unsupported file", ErrUnsupportedFile, "FILE003"},
		{"busy", ErrTooManyImports, "IMP001"},
		{"deadline", errors.New("context deadline exceeded"), "IMP003"},
		{"permission", fmt.Errorf("%w: export Vendor", ErrPermissionDenied), "AUTH001"},
		{"case insensitive", errors.New("DUPLICATE KEY"), "DB001"},
		{"unknown", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(errors.New("duplicate key"))
	want := "A record with this code already exists (Code: DB001). Use a different code or leave it empty to generate one"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestUserError(t *testing.T) {
	tech := errors.New("violates foreign key constraint")
	ue := NewUserError(tech)

	if ue.Error() != "Referenced record does not exist" {
		t.Errorf("Error() = %q", ue.Error())
	}
	if !errors.Is(ue, tech) {
		t.Error("UserError should unwrap to the technical error")
	}
	if got := MapError(fmt.Errorf("commit: %w", ue)); got.Code != "DB002" {
		t.Errorf("wrapped UserError code = %q, want DB002", got.Code)
	}
	if NewUserError(nil) != nil {
		t.Error("NewUserError(nil) should be nil")
	}
}

func TestIsUserFacing(t *testing.T) {
	if !IsUserFacing(ErrEmptyFile) {
		t.Error("empty file should be user facing")
	}
	if IsUserFacing(errors.New("boom")) || IsUserFacing(nil) {
		t.Error("unknown and nil errors should not be user facing")
	}
}

func TestDiagnosticMessages(t *testing.T) {
	d := Errorf(CodeDuplicateValue, 7, "slug", "Code", "WF-1", 3)
	want := "Line 7: Field 'Code' value 'WF-1' is already used in line 3. The line will be ignored."
	if d.Message != want {
		t.Errorf("message = %q, want %q", d.Message, want)
	}
	if !d.IsError() || d.Line != 7 || d.Column != "slug" {
		t.Errorf("unexpected diagnostic %+v", d)
	}

	w := Warnf(CodeUnmodifiableColumn, 4, "unit", "Unit")
	if w.IsError() {
		t.Error("warning reported as error")
	}
	for code, tmpl := range messageTemplates {
		if tmpl == "" {
			t.Errorf("empty template for %s", code)
		}
	}
}
