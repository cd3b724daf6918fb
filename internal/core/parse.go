package core

// parse.go converts raw spreadsheet cells into typed values.
//
// Cells come from people and from Excel, so parsing is lenient:
//   - Several date layouts (ISO, US, dotted, long form)
//   - Several boolean spellings (yes/no, true/false, x, 1/0)
//   - Excel formula prefixes (="value") and stray quotes
//   - People lists separated by newlines, commas or semicolons

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the layout dates are rendered with on export.
const DateLayout = "2006-01-02"

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are
// moved to the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		DateLayout, "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006", "January 2, 2006",
		"20060102",
	}
)

var validate = validator.New()

// ClearMarkers are cell values that explicitly clear an optional field.
var ClearMarkers = []string{"-", "--", "---"}

// IsClearMarker reports whether s asks for the field to be emptied.
func IsClearMarker(s string) bool {
	s = strings.TrimSpace(s)
	for _, m := range ClearMarkers {
		if s == m {
			return true
		}
	}
	return false
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, an Excel formula prefix and surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// ParseDate parses s in any supported layout.
// Returns false if s is empty or not a date.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// FormatDate renders t with DateLayout, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseBool accepts true/false, yes/no, t/f, y/n, x and 1/0.
// The second result is false when s is not a recognised boolean.
func ParseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "x", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// FormatBool renders a checkbox value.
func FormatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// IsEmail reports whether s is a syntactically valid email address.
func IsEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

// IsURL reports whether s is an absolute URL.
func IsURL(s string) bool {
	return validate.Var(s, "required,url") == nil
}

// SplitList splits a multi-value cell on newlines, commas and semicolons,
// dropping empty entries.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ',' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
