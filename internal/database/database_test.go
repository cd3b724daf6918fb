package database

import (
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/models"
)

func TestSchema_CreatesTables(t *testing.T) {
	for _, table := range []string{
		"people", "workflows", "workflow_people", "task_groups", "task_group_tasks",
		"cycles", "cycle_tasks", "vendors", "notifications", "import_log",
	} {
		assert.Contains(t, Schema(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
	assert.Equal(t, strings.Count(Schema(), "CREATE UNIQUE INDEX IF NOT EXISTS"), 8)
}

func TestDates(t *testing.T) {
	assert.False(t, toDate(time.Time{}).Valid)
	assert.True(t, fromDate(toDate(time.Time{})).IsZero())

	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, d, fromDate(toDate(d)))
}

func TestContactFrom(t *testing.T) {
	assert.Nil(t, contactFrom(toInt8(0), toText(""), toText("")))

	p := contactFrom(toInt8(7), toText("a@example.com"), toText("A"))
	assert.Equal(t, &models.Person{ID: 7, Email: "a@example.com", Name: "A"}, p)
}

func TestCountDiagnostics(t *testing.T) {
	res := &core.ImportResult{
		Warnings: []core.Diagnostic{core.Warnf(core.CodeIgnoredRow, 1, "")},
		Blocks: []core.BlockResult{{
			BlockErrors: []core.Diagnostic{core.Errorf(core.CodeMissingColumn, 2, "", "Title")},
			Rows: []core.RowResult{{
				Diagnostics: []core.Diagnostic{
					core.Errorf(core.CodeWrongValue, 3, "unit", "Unit"),
					core.Warnf(core.CodeUnknownUserWarn, 3, "owner", "x@example.com"),
				},
			}},
		}},
	}

	errs, warnings := countDiagnostics(res)
	assert.Equal(t, 2, errs)
	assert.Equal(t, 2, warnings)
}

func toText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
