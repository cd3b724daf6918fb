package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/grc/internal/core"
	_ "github.com/JonMunkholm/grc/internal/core/objects"
	"github.com/JonMunkholm/grc/internal/models"
)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
	carol = "carol@example.com"
	dave  = "dave@example.com"
)

const workflowHeader = "Workflow|Code|Title*|Manager*|Member|Unit|Repeat Every"

// sheet builds file rows from pipe separated lines.
func sheet(lines ...string) [][]string {
	rows := make([][]string, len(lines))
	for i, l := range lines {
		rows[i] = strings.Split(l, "|")
	}
	return rows
}

func newStore(t *testing.T) *core.MemoryStore {
	t.Helper()
	s := core.NewMemoryStore()
	for _, e := range []string{alice, bob, carol, dave} {
		s.AddPerson(models.Person{Email: e, Name: strings.Split(e, "@")[0]})
	}
	return s
}

func run(t *testing.T, p *core.Pipeline, opts core.Options, lines ...string) *core.ImportResult {
	t.Helper()
	res, err := p.ImportRows(context.Background(), "test.csv", sheet(lines...), opts)
	require.NoError(t, err)
	return res
}

func find[T models.Object](t *testing.T, s *core.MemoryStore, typeName, slug string) T {
	t.Helper()
	o, err := s.Find(context.Background(), typeName, slug)
	require.NoError(t, err)
	return o.(T)
}

func codes(ds []core.Diagnostic) []core.Code {
	out := make([]core.Code, len(ds))
	for i, d := range ds {
		out[i] = d.Code
	}
	return out
}

func TestImport_CreatesWorkflow(t *testing.T) {
	store := newStore(t)
	p := core.NewPipeline(store)

	res := run(t, p, core.Options{},
		"Object type",
		workflowHeader,
		"|WF-1|Quarterly review|"+alice+"|"+bob+";"+alice+"|month|3",
	)

	require.Len(t, res.Blocks, 1)
	b := res.Blocks[0]
	assert.Equal(t, "Workflow", b.ObjectType)
	assert.Equal(t, 1, b.Created)
	require.Len(t, b.Rows, 1)
	assert.Equal(t, core.ActionCreated, b.Rows[0].Action)
	assert.Empty(t, b.Rows[0].Diagnostics)
	assert.Equal(t, 3, b.Rows[0].Line)

	wf := find[*models.Workflow](t, store, models.TypeWorkflow, "WF-1")
	assert.NotZero(t, wf.ID)
	assert.Equal(t, "Quarterly review", wf.Title)
	assert.Equal(t, []string{alice}, models.Emails(wf.Owners))
	assert.Equal(t, []string{bob}, models.Emails(wf.Members))
	assert.Equal(t, models.UnitMonth, wf.Unit)
	assert.Equal(t, 3, wf.RepeatEvery)
	assert.Equal(t, models.WorkflowDraft, wf.Status)
}

func TestImport_Unit(t *testing.T) {
	tests := []struct {
		unit     string
		action   core.Action
		wantCode []core.Code
	}{
		{"day", core.ActionCreated, []core.Code{}},
		{"Week", core.ActionCreated, []core.Code{}},
		{"fortnight", core.ActionIgnored, []core.Code{core.CodeWrongValue}},
	}

	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			store := newStore(t)
			res := run(t, core.NewPipeline(store), core.Options{},
				"Object type",
				workflowHeader,
				"|WF-1|Daily check|"+alice+"||"+tt.unit+"|1",
			)

			row := res.Blocks[0].Rows[0]
			assert.Equal(t, tt.action, row.Action)
			assert.Equal(t, tt.wantCode, codes(row.Diagnostics))
			if tt.action == core.ActionIgnored {
				assert.Zero(t, store.Len(models.TypeWorkflow))
			} else {
				wf := find[*models.Workflow](t, store, models.TypeWorkflow, "WF-1")
				assert.Equal(t, strings.ToLower(tt.unit), wf.Unit)
			}
		})
	}
}

func TestImport_RepeatEveryOutOfRange(t *testing.T) {
	for _, v := range []string{"0", "31", "often"} {
		store := newStore(t)
		res := run(t, core.NewPipeline(store), core.Options{},
			"Object type",
			workflowHeader,
			"|WF-1|Check|"+alice+"||week|"+v,
		)
		assert.Equal(t, []core.Code{core.CodeWrongValue}, codes(res.Blocks[0].Rows[0].Diagnostics), v)
		assert.Zero(t, store.Len(models.TypeWorkflow), v)
	}
}

func TestImport_ImmutableFieldsWarn(t *testing.T) {
	store := newStore(t)
	p := core.NewPipeline(store)

	run(t, p, core.Options{},
		"Object type",
		workflowHeader,
		"|WF-1|Weekly review|"+alice+"||week|2",
	)

	res := run(t, p, core.Options{},
		"Object type",
		workflowHeader,
		"|WF-1|Weekly review v2|||month|5",
	)

	row := res.Blocks[0].Rows[0]
	assert.Equal(t, core.ActionUpdated, row.Action)
	assert.Equal(t, []core.Code{core.CodeUnmodifiableColumn, core.CodeUnmodifiableColumn}, codes(row.Diagnostics))
	for _, d := range row.Diagnostics {
		assert.Equal(t, core.SeverityWarning, d.Severity)
	}

	wf := find[*models.Workflow](t, store, models.TypeWorkflow, "WF-1")
	assert.Equal(t, "week", wf.Unit)
	assert.Equal(t, 2, wf.RepeatEvery)
	assert.Equal(t, "Weekly review v2", wf.Title)

	require.Len(t, row.Changes, 1)
	assert.Equal(t, "Title", row.Changes[0].Column)
	assert.Equal(t, "Weekly review", row.Changes[0].Old)
	assert.Equal(t, "Weekly review v2", row.Changes[0].New)
	assert.Equal(t, "Weekly review{+ v2+}", row.Changes[0].Diff)
}

func TestImport_UnchangedImmutableValueIsQuiet(t *testing.T) {
	store := newStore(t)
	p := core.NewPipeline(store)
	lines := []string{
		"Object type",
		workflowHeader,
		"|WF-1|Weekly review|" + alice + "||week|2",
	}
	run(t, p, core.Options{}, lines...)

	res := run(t, p, core.Options{}, lines...)
	row := res.Blocks[0].Rows[0]
	assert.Equal(t, core.ActionUpdated, row.Action)
	assert.Empty(t, row.Diagnostics)
	assert.Empty(t, row.Changes)
}

func TestImport_WorkflowPeople(t *testing.T) {
	t.Run("new workflow without known manager is ignored", func(t *testing.T) {
		store := newStore(t)
		res := run(t, core.NewPipeline(store), core.Options{},
			"Object type",
			workflowHeader,
			"|WF-1|Review|ghost@example.com|||",
		)
		row := res.Blocks[0].Rows[0]
		assert.Equal(t, core.ActionIgnored, row.Action)
		assert.Equal(t, []core.Code{core.CodeUnknownUserWarn, core.CodeMissingValue}, codes(row.Diagnostics))
		assert.Zero(t, store.Len(models.TypeWorkflow))
	})

	t.Run("managers without member column leave members", func(t *testing.T) {
		store := newStore(t)
		p := core.NewPipeline(store)
		run(t, p, core.Options{},
			"Object type",
			workflowHeader,
			"|WF-1|Review|"+alice+"|"+bob+";"+carol+"||",
		)

		run(t, p, core.Options{},
			"Object type",
			"Workflow|Code|Title|Manager",
			"|WF-1|Review|"+bob,
		)

		wf := find[*models.Workflow](t, store, models.TypeWorkflow, "WF-1")
		assert.Equal(t, []string{bob}, models.Emails(wf.Owners))
		assert.Equal(t, []string{carol}, models.Emails(wf.Members))
	})

	t.Run("existing managers are not members", func(t *testing.T) {
		store := newStore(t)
		p := core.NewPipeline(store)
		run(t, p, core.Options{},
			"Object type",
			workflowHeader,
			"|WF-1|Review|"+alice+"|||",
		)

		res := run(t, p, core.Options{},
			"Object type",
			workflowHeader,
			"|WF-1|Review||"+alice+"\n"+bob+"||",
		)
		assert.Empty(t, res.Blocks[0].Rows[0].Diagnostics)

		wf := find[*models.Workflow](t, store, models.TypeWorkflow, "WF-1")
		assert.Equal(t, []string{alice}, models.Emails(wf.Owners))
		assert.Equal(t, []string{bob}, models.Emails(wf.Members))
	})

	t.Run("unknown member is warned and skipped", func(t *testing.T) {
		store := newStore(t)
		res := run(t, core.NewPipeline(store), core.Options{},
			"Object type",
			workflowHeader,
			"|WF-1|Review|"+alice+"|nobody@example.com,"+bob+"||",
		)
		row := res.Blocks[0].Rows[0]
		assert.Equal(t, core.ActionCreated, row.Action)
		assert.Equal(t, []core.Code{core.CodeUnknownUserWarn}, codes(row.Diagnostics))

		wf := find[*models.Workflow](t, store, models.TypeWorkflow, "WF-1")
		assert.Equal(t, []string{bob}, models.Emails(wf.Members))
	})
}

func TestImport_RowErrors(t *testing.T) {
	store := newStore(t)
	res := run(t, core.NewPipeline(store), core.Options{},
		"Object type",
		workflowHeader,
		"|WF-1|First|"+alice+"|||",
		"|WF-1|Second|"+alice+"|||",
		"|WF-2||"+alice+"|||",
	)

	rows := res.Blocks[0].Rows
	require.Len(t, rows, 3)
	assert.Equal(t, core.ActionCreated, rows[0].Action)
	assert.Equal(t, core.ActionIgnored, rows[1].Action)
	assert.Equal(t, []core.Code{core.CodeDuplicateValue}, codes(rows[1].Diagnostics))
	assert.Contains(t, rows[1].Diagnostics[0].Message, "line 3")
	assert.Equal(t, core.ActionIgnored, rows[2].Action)
	assert.Equal(t, []core.Code{core.CodeMissingValue}, codes(rows[2].Diagnostics))

	assert.Equal(t, 1, store.Len(models.TypeWorkflow))
	wf := find[*models.Workflow](t, store, models.TypeWorkflow, "WF-1")
	assert.Equal(t, "First", wf.Title)
	_, err := store.Find(context.Background(), models.TypeWorkflow, "WF-2")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, 1, res.Blocks[0].Created)
	assert.Equal(t, 2, res.Blocks[0].Ignored)
}

func TestImport_BlockDiagnostics(t *testing.T) {
	tests := []struct {
		name         string
		header       string
		row          string
		wantErrors   []core.Code
		wantWarnings []core.Code
		wantCreated  int
	}{
		{
			name:       "unknown object type",
			header:     "Gadget|Code|Title",
			row:        "|G-1|Thing",
			wantErrors: []core.Code{core.CodeWrongObjectType},
		},
		{
			name:       "duplicate column",
			header:     "Workflow|Code|Title|Title|Manager",
			row:        "|WF-1|A|B|" + alice,
			wantErrors: []core.Code{core.CodeDuplicateColumn},
		},
		{
			name:       "missing mandatory column",
			header:     "Workflow|Code|Title",
			row:        "|WF-1|A",
			wantErrors: []core.Code{core.CodeMissingColumn},
		},
		{
			name:       "export only type",
			header:     "Cycle|Code|Title",
			row:        "|C-1|Cycle",
			wantErrors: []core.Code{core.CodeNotImportable},
		},
		{
			name:         "unknown column is skipped",
			header:       "Vendor|Code|Title*|Colour",
			row:          "|V-1|Acme|blue",
			wantWarnings: []core.Code{core.CodeUnknownColumn},
			wantCreated:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			res := run(t, core.NewPipeline(store), core.Options{}, "Object type", tt.header, tt.row)

			require.Len(t, res.Blocks, 1)
			b := res.Blocks[0]
			assert.Equal(t, tt.wantErrors, nilIfEmpty(codes(b.BlockErrors)))
			assert.Equal(t, tt.wantWarnings, nilIfEmpty(codes(b.BlockWarnings)))
			assert.Equal(t, tt.wantCreated, b.Created)
			if tt.wantCreated == 0 {
				assert.Equal(t, 1, b.Ignored)
				assert.Zero(t, store.Commits())
			}
		})
	}
}

func nilIfEmpty(cs []core.Code) []core.Code {
	if len(cs) == 0 {
		return nil
	}
	return cs
}

func TestImport_GeneratesCode(t *testing.T) {
	store := newStore(t)
	res := run(t, core.NewPipeline(store), core.Options{},
		"Object type",
		"Vendor|Code|Title*|Vendor URL",
		"||Acme|https://acme.example.com",
	)

	row := res.Blocks[0].Rows[0]
	require.Equal(t, core.ActionCreated, row.Action)
	assert.Regexp(t, `^VENDOR-[0-9A-F]{8}$`, row.Slug)

	v := find[*models.Vendor](t, store, models.TypeVendor, row.Slug)
	assert.Equal(t, "https://acme.example.com", v.URL)
}

func TestImport_VendorValidation(t *testing.T) {
	store := newStore(t)
	res := run(t, core.NewPipeline(store), core.Options{},
		"Object type",
		"Vendor|Code|Title*|Vendor URL|Effective Date|Stop Date",
		"|V-1|Acme|not a url||",
		"|V-2|Globex||2024-05-01|2024-04-01",
		"|V-3|Initech||2024-04-01|2024-05-01",
	)

	rows := res.Blocks[0].Rows
	assert.Equal(t, []core.Code{core.CodeWrongValue}, codes(rows[0].Diagnostics))
	assert.Equal(t, []core.Code{core.CodeInvalidDates}, codes(rows[1].Diagnostics))
	assert.Equal(t, core.ActionCreated, rows[2].Action)
	assert.Equal(t, 1, store.Len(models.TypeVendor))
}

func TestImport_AssigneeJoinsWorkflow(t *testing.T) {
	store := newStore(t)
	res := run(t, core.NewPipeline(store), core.Options{},
		"Object type",
		workflowHeader,
		"|WF-1|Review|"+alice+"|||",
		"",
		"Object type",
		"Task Group|Code|Title*|Workflow*|Assignee*",
		"|TG-1|Access|WF-1|"+carol,
		"",
		"Object type",
		"Task Group Task|Code|Title*|Task Group*|Assignee*|Task Type",
		"|T-1|Review accounts|TG-1|"+dave+"|Rich Text",
		"|T-2|Sign off|TG-1|"+alice+"|Rich Text",
	)

	require.Len(t, res.Blocks, 3)
	for _, b := range res.Blocks {
		assert.Empty(t, b.BlockErrors, b.ObjectType)
		for _, r := range b.Rows {
			assert.Equal(t, core.ActionCreated, r.Action, "line %d: %v", r.Line, r.Diagnostics)
		}
	}

	wf := find[*models.Workflow](t, store, models.TypeWorkflow, "WF-1")
	assert.Equal(t, []string{alice}, models.Emails(wf.Owners))
	assert.Equal(t, []string{carol, dave}, models.Emails(wf.Members))

	tg := find[*models.TaskGroup](t, store, models.TypeTaskGroup, "TG-1")
	assert.Equal(t, wf.ID, tg.WorkflowID)
	assert.Equal(t, carol, tg.Contact.Email)

	task := find[*models.TaskGroupTask](t, store, models.TypeTaskGroupTask, "T-1")
	assert.Equal(t, tg.ID, task.TaskGroupID)
}

func TestImport_ParentReference(t *testing.T) {
	store := newStore(t)
	p := core.NewPipeline(store)
	run(t, p, core.Options{},
		"Object type",
		workflowHeader,
		"|WF-1|One|"+alice+"|||",
		"|WF-2|Two|"+alice+"|||",
		"",
		"Object type",
		"Task Group|Code|Title*|Workflow*|Assignee*",
		"|TG-1|Access|WF-1|"+alice,
	)

	res := run(t, p, core.Options{},
		"Object type",
		"Task Group|Code|Title*|Workflow*|Assignee*",
		"|TG-1|Access|WF-2|",
		"|TG-2|Orphan|WF-404|"+alice,
	)

	rows := res.Blocks[0].Rows
	assert.Equal(t, core.ActionUpdated, rows[0].Action)
	assert.Equal(t, []core.Code{core.CodeUnmodifiableColumn}, codes(rows[0].Diagnostics))
	assert.Equal(t, core.ActionIgnored, rows[1].Action)
	assert.Equal(t, []core.Code{core.CodeUnknownObject}, codes(rows[1].Diagnostics))

	tg := find[*models.TaskGroup](t, store, models.TypeTaskGroup, "TG-1")
	assert.Equal(t, "WF-1", tg.WorkflowSlug)
}

func TestImport_TaskTypes(t *testing.T) {
	store := newStore(t)
	owner := store.AddPerson(models.Person{Email: alice})
	store.Put(&models.Workflow{Base: models.Base{Slug: "WF-1", Title: "Review"}, Owners: []models.Person{owner}})
	store.Put(&models.TaskGroup{Base: models.Base{Slug: "TG-1", Title: "Access"}, WorkflowSlug: "WF-1"})

	res := run(t, core.NewPipeline(store), core.Options{},
		"Object type",
		"Task Group Task|Code|Title*|Task Group*|Task Type|Task Description|Assignee*",
		"|T-1|Pick|TG-1|Dropdown|Yes, No , Maybe|"+alice,
		"|T-2|Write|TG-1|fancy|Body text|"+alice,
		"|T-3|Note|TG-1||Plain|"+alice,
	)

	rows := res.Blocks[0].Rows
	assert.Empty(t, rows[0].Diagnostics)
	assert.Equal(t, []core.Code{core.CodeWrongRequiredValue}, codes(rows[1].Diagnostics))
	assert.Equal(t, []core.Code{core.CodeMissingValueWarn}, codes(rows[2].Diagnostics))

	t1 := find[*models.TaskGroupTask](t, store, models.TypeTaskGroupTask, "T-1")
	assert.Equal(t, models.TaskTypeMenu, t1.TaskType)
	assert.Equal(t, []string{"Yes", "No", "Maybe"}, t1.ResponseOptions)
	assert.Empty(t, t1.Description)

	t2 := find[*models.TaskGroupTask](t, store, models.TypeTaskGroupTask, "T-2")
	assert.Equal(t, models.TaskTypeText, t2.TaskType)
	assert.Equal(t, "Body text", t2.Description)

	t3 := find[*models.TaskGroupTask](t, store, models.TypeTaskGroupTask, "T-3")
	assert.Equal(t, models.TaskTypeText, t3.TaskType)
}

func TestImport_DryRun(t *testing.T) {
	store := newStore(t)
	res := run(t, core.NewPipeline(store), core.Options{DryRun: true},
		"Object type",
		workflowHeader,
		"|WF-1|Review|"+alice+"|||",
		"Object type",
		"Task Group|Code|Title*|Workflow*|Assignee*",
		"|TG-1|Access|WF-1|"+bob,
	)

	assert.True(t, res.DryRun)
	require.Len(t, res.Blocks, 2)
	assert.Equal(t, 1, res.Blocks[0].Created)
	assert.Equal(t, 1, res.Blocks[1].Created, "%v", res.Blocks[1].Rows)
	assert.Zero(t, store.Commits())
	assert.Zero(t, store.Len(models.TypeWorkflow))
	assert.Zero(t, store.Len(models.TypeTaskGroup))
}

func TestImport_AllOrNothing(t *testing.T) {
	store := newStore(t)
	res := run(t, core.NewPipeline(store), core.Options{AllOrNothing: true},
		"Object type",
		workflowHeader,
		"|WF-1|Good|"+alice+"|||",
		"|WF-2|Bad|"+alice+"||fortnight|",
	)

	b := res.Blocks[0]
	assert.Equal(t, []core.Code{core.CodeBlockIgnored}, codes(b.BlockErrors))
	assert.Contains(t, b.BlockErrors[0].Message, "4")
	assert.Equal(t, 2, b.Ignored)
	assert.Zero(t, b.Created)
	for _, r := range b.Rows {
		assert.Equal(t, core.ActionIgnored, r.Action)
	}
	assert.Zero(t, store.Len(models.TypeWorkflow))
	assert.Zero(t, store.Commits())
}

func TestImport_CommitFailure(t *testing.T) {
	store := newStore(t)
	store.FailCommit = errors.New("read tcp: connection reset by peer")

	res := run(t, core.NewPipeline(store), core.Options{},
		"Object type",
		workflowHeader,
		"|WF-1|One|"+alice+"|||",
		"|WF-2|Two|"+alice+"|||",
	)

	b := res.Blocks[0]
	assert.Equal(t, 2, b.Failed)
	assert.Equal(t, []int{3, 4}, b.FailedLines)
	assert.Equal(t, []core.Code{core.CodeBlockFailed}, codes(b.BlockErrors))
	assert.Contains(t, b.BlockErrors[0].Message, "3, 4")
	for _, r := range b.Rows {
		assert.Equal(t, core.ActionIgnored, r.Action)
		assert.Equal(t, []core.Code{core.CodeCommitFailed}, codes(r.Diagnostics))
		assert.Contains(t, r.Diagnostics[0].Message, "DB003")
	}
}

func TestImport_RowCommitFailure(t *testing.T) {
	store := newStore(t)
	store.FailRow = func(row core.StagedRow) error {
		if row.Objects[0].GetSlug() == "WF-1" {
			return errors.New(`duplicate key value violates unique constraint "workflows_title_key"`)
		}
		return nil
	}

	res := run(t, core.NewPipeline(store), core.Options{},
		"Object type",
		workflowHeader,
		"|WF-1|One|"+alice+"|||",
		"|WF-2|Two|"+alice+"|||",
		"Object type",
		"Task Group|Code|Title*|Workflow*|Assignee*",
		"|TG-1|Access|WF-1|"+alice,
	)

	wfBlock := res.Blocks[0]
	assert.Equal(t, 1, wfBlock.Created)
	assert.Equal(t, 1, wfBlock.Failed)
	assert.Equal(t, []int{3}, wfBlock.FailedLines)
	assert.Equal(t, 1, store.Len(models.TypeWorkflow))

	// The failed workflow is gone from the import cache too.
	tgRow := res.Blocks[1].Rows[0]
	assert.Equal(t, core.ActionIgnored, tgRow.Action)
	assert.Equal(t, []core.Code{core.CodeUnknownObject}, codes(tgRow.Diagnostics))
}

func TestImport_FailedRowDoesNotJoinWorkflow(t *testing.T) {
	store := newStore(t)
	store.FailRow = func(row core.StagedRow) error {
		if row.Objects[0].GetSlug() == "TG-1" {
			return errors.New(`duplicate key value violates unique constraint "task_groups_title_key"`)
		}
		return nil
	}

	res := run(t, core.NewPipeline(store), core.Options{},
		"Object type",
		workflowHeader,
		"|WF-1|Review|"+alice+"|||",
		"",
		"Object type",
		"Task Group|Code|Title*|Workflow*|Assignee*",
		"|TG-1|Access|WF-1|"+carol,
		"|TG-2|Change|WF-1|"+dave,
		"",
		"Object type",
		"Task Group Task|Code|Title*|Task Group*|Assignee*|Task Type",
		"|T-1|Sign off|TG-2|"+bob+"|Rich Text",
	)

	tgBlock := res.Blocks[1]
	assert.Equal(t, 1, tgBlock.Failed)
	assert.Equal(t, []int{7}, tgBlock.FailedLines)
	assert.Equal(t, 1, tgBlock.Created)

	wf := find[*models.Workflow](t, store, models.TypeWorkflow, "WF-1")
	assert.Equal(t, []string{alice}, models.Emails(wf.Owners))
	assert.Equal(t, []string{dave, bob}, models.Emails(wf.Members))
}

func TestImport_JoinRepeatedAfterFailedRow(t *testing.T) {
	store := newStore(t)
	store.FailRow = func(row core.StagedRow) error {
		if row.Objects[0].GetSlug() == "TG-1" {
			return errors.New("deadlock detected")
		}
		return nil
	}

	res := run(t, core.NewPipeline(store), core.Options{},
		"Object type",
		workflowHeader,
		"|WF-1|Review|"+alice+"|||",
		"",
		"Object type",
		"Task Group|Code|Title*|Workflow*|Assignee*",
		"|TG-1|Access|WF-1|"+carol,
		"|TG-2|Change|WF-1|"+carol,
	)

	assert.Equal(t, []int{7}, res.Blocks[1].FailedLines)
	wf := find[*models.Workflow](t, store, models.TypeWorkflow, "WF-1")
	assert.Equal(t, []string{carol}, models.Emails(wf.Members))
}

func TestMemoryStore_JoinMissingWorkflow(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	errs, err := store.CommitBlock(ctx, []core.StagedRow{{
		Line:    3,
		Objects: []models.Object{&models.Workflow{Base: models.Base{Slug: "WF-1"}}},
	}})
	require.NoError(t, err)
	require.Equal(t, []error{nil}, errs)

	carol := store.People()[2]
	errs, err = store.CommitBlock(ctx, []core.StagedRow{
		{
			Line:    7,
			Objects: []models.Object{&models.TaskGroup{Base: models.Base{Slug: "TG-1"}, WorkflowSlug: "WF-404"}},
			Joins:   []core.Membership{{Workflow: "WF-404", Person: carol}},
		},
		{
			Line:    8,
			Objects: []models.Object{&models.TaskGroup{Base: models.Base{Slug: "TG-2"}, WorkflowSlug: "WF-1"}},
			Joins:   []core.Membership{{Workflow: "wf-1", Person: carol}, {Workflow: "WF-1", Person: carol}},
		},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, errs[0], models.ErrNotFound)
	assert.NoError(t, errs[1])
	assert.Equal(t, 1, store.Len(models.TypeTaskGroup))

	wf := find[*models.Workflow](t, store, models.TypeWorkflow, "WF-1")
	assert.Equal(t, []string{carol.Email}, models.Emails(wf.Members))
}

// findErrStore fails lookups of one workflow.
type findErrStore struct {
	*core.MemoryStore
	slug string
	err  error
}

func (s findErrStore) Find(ctx context.Context, typeName, slug string) (models.Object, error) {
	if typeName == models.TypeWorkflow && strings.EqualFold(slug, s.slug) {
		return nil, s.err
	}
	return s.MemoryStore.Find(ctx, typeName, slug)
}

func TestImport_LookupErrorAborts(t *testing.T) {
	mem := newStore(t)
	lookupErr := errors.New("read tcp: connection reset by peer")
	store := findErrStore{MemoryStore: mem, slug: "WF-9", err: lookupErr}

	res, err := core.NewPipeline(store).ImportRows(context.Background(), "test.csv", sheet(
		"Object type",
		"Task Group|Code|Title*|Workflow*|Assignee*",
		"|TG-1|Access|WF-9|"+carol,
	), core.Options{})

	require.ErrorIs(t, err, lookupErr)
	require.NotNil(t, res)
	assert.Zero(t, mem.Len(models.TypeTaskGroup))
	assert.Zero(t, mem.Commits())
}

type authFunc func(subject, typeName, action string) (bool, error)

func (f authFunc) Allowed(subject, typeName, action string) (bool, error) {
	return f(subject, typeName, action)
}

func TestImport_PermissionDenied(t *testing.T) {
	store := newStore(t)
	auth := authFunc(func(subject, typeName, action string) (bool, error) {
		return subject == "Administrator" || typeName != models.TypeVendor, nil
	})
	p := core.NewPipeline(store, core.WithAuthorizer(auth))

	lines := []string{
		"Object type",
		"Vendor|Code|Title*",
		"|V-1|Acme",
	}
	res := run(t, p, core.Options{Subject: "Reader"}, lines...)
	assert.Equal(t, []core.Code{core.CodePermissionDenied}, codes(res.Blocks[0].BlockErrors))
	assert.Zero(t, store.Len(models.TypeVendor))

	res = run(t, p, core.Options{Subject: "Administrator"}, lines...)
	assert.Empty(t, res.Blocks[0].BlockErrors)
	assert.Equal(t, 1, store.Len(models.TypeVendor))

	_, err := p.ExportRows(context.Background(), []string{"Vendor"}, "Reader")
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
}

type recordingNotifier struct {
	calls [][]core.CommittedObject
	err   error
}

func (n *recordingNotifier) NotifyImported(_ context.Context, objs []core.CommittedObject) error {
	n.calls = append(n.calls, objs)
	return n.err
}

func TestImport_Notifier(t *testing.T) {
	store := newStore(t)
	n := &recordingNotifier{err: errors.New("mail queue full")}
	p := core.NewPipeline(store, core.WithNotifier(n))

	lines := []string{
		"Object type",
		workflowHeader,
		"|WF-1|Review|" + alice + "|||",
		"|WF-2|Broken|" + alice + "||fortnight|",
	}
	run(t, p, core.Options{DryRun: true}, lines...)
	assert.Empty(t, n.calls)

	res := run(t, p, core.Options{}, lines...)
	assert.Equal(t, 1, res.Blocks[0].Created, "notifier errors do not fail the import")
	require.Len(t, n.calls, 1)
	require.Len(t, n.calls[0], 1)
	assert.Equal(t, "WF-1", n.calls[0][0].Object.GetSlug())
	assert.Equal(t, core.ActionCreated, n.calls[0][0].Action)
}

func TestExport_RoundTripIsIdempotent(t *testing.T) {
	store := newStore(t)
	p := core.NewPipeline(store)

	first := run(t, p, core.Options{},
		"Object type",
		"Workflow|Code|Title*|Description|Manager*|Member|Unit|Repeat Every|Need Verification|Force Real-time Email Updates",
		"|WF-1|Quarterly review|Access reviews|"+alice+"|"+bob+"\n"+carol+"|month|3|yes|no",
		"|WF-2|Ad hoc||"+bob+"|||||",
		"Object type",
		"Task Group|Code|Title*|Workflow*|Assignee*",
		"|TG-1|Access|WF-1|"+dave,
		"Object type",
		"Task Group Task|Code|Title*|Task Group*|Task Type|Task Description|Assignee*|Start Date|End Date",
		"|T-1|Pick one|TG-1|Checkbox|A, B|"+alice+"|2024-01-01|2024-01-31",
		"|T-2|Write up|TG-1|Rich Text|Findings|"+dave+"||",
		"Object type",
		"Vendor|Code|Title*|Vendor URL|Effective Date",
		"|V-1|Acme|https://acme.example.com|03/01/2024",
	)
	for _, b := range first.Blocks {
		require.Empty(t, b.BlockErrors, b.ObjectType)
		for _, r := range b.Rows {
			require.Empty(t, r.Diagnostics, "%s line %d", b.ObjectType, r.Line)
		}
	}

	exported, err := p.ExportRows(context.Background(),
		[]string{"Workflow", "Task Group", "Task Group Task", "Vendor"}, "")
	require.NoError(t, err)

	second, err := p.ImportRows(context.Background(), "export.csv", exported, core.Options{})
	require.NoError(t, err)
	require.Len(t, second.Blocks, 4)
	for _, b := range second.Blocks {
		assert.Empty(t, b.BlockErrors, b.ObjectType)
		assert.Empty(t, b.BlockWarnings, b.ObjectType)
		for _, r := range b.Rows {
			assert.Equal(t, core.ActionUpdated, r.Action, "%s %s", b.ObjectType, r.Slug)
			assert.Empty(t, r.Diagnostics, "%s %s", b.ObjectType, r.Slug)
			assert.Empty(t, r.Changes, "%s %s", b.ObjectType, r.Slug)
		}
	}

	again, err := p.ExportRows(context.Background(),
		[]string{"Workflow", "Task Group", "Task Group Task", "Vendor"}, "")
	require.NoError(t, err)
	assert.Equal(t, exported, again)
}

func TestExport_Layout(t *testing.T) {
	store := newStore(t)
	store.Put(&models.Vendor{Base: models.Base{Slug: "V-1", Title: "Acme"}, URL: "https://acme.example.com"})
	p := core.NewPipeline(store)

	rows, err := p.ExportRows(context.Background(), []string{"vendor"}, "")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Object type", rows[0][0])
	assert.Equal(t, []string{"Vendor", "Code", "Title*", "Description", "Vendor URL", "Reference URL", "Effective Date", "Stop Date"}, rows[1])
	assert.Equal(t, []string{"", "V-1", "Acme", "", "https://acme.example.com", "", "", ""}, rows[2])

	_, err = p.ExportRows(context.Background(), []string{"Gadget"}, "")
	assert.ErrorIs(t, err, core.ErrUnknownObjectType)
}

func TestImport_File(t *testing.T) {
	store := newStore(t)
	p := core.NewPipeline(store)

	csv := "Object type,,,,\n" +
		"Workflow,Code,Title*,Manager*,Member\n" +
		",WF-1,Review," + alice + ",\"" + bob + "\n" + carol + "\"\n"
	res, err := p.Import(context.Background(), "people.csv", strings.NewReader(csv), core.Options{})
	require.NoError(t, err)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, 1, res.Blocks[0].Created)

	wf := find[*models.Workflow](t, store, models.TypeWorkflow, "WF-1")
	assert.Equal(t, []string{bob, carol}, models.Emails(wf.Members))

	res, err = p.Import(context.Background(), "logo.png",
		strings.NewReader("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), core.Options{})
	require.NoError(t, err)
	assert.Equal(t, []core.Code{core.CodeWrongFileType}, codes(res.Errors))
}

func TestImport_EmptyFile(t *testing.T) {
	_, err := core.NewPipeline(newStore(t)).ImportRows(context.Background(), "empty.csv", nil, core.Options{})
	assert.ErrorIs(t, err, core.ErrEmptyFile)
}
