package objects

import (
	"context"
	"strconv"
	"strings"

	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/models"
)

var workflowDefinition = core.ObjectDefinition{
	Name:       "Workflow",
	TypeName:   models.TypeWorkflow,
	SlugPrefix: "WORKFLOW",
	New: func() models.Object {
		return &models.Workflow{Status: models.WorkflowDraft}
	},
	Columns: []core.Column{
		codeColumn,
		titleColumn,
		descriptionColumn,
		{
			Key:         "workflow_owner",
			DisplayName: "Manager",
			Aliases:     []string{"Owner", "Workflow Owner", "Managers"},
			Mandatory:   true,
			Description: "Emails of workflow managers, one per line.",
		},
		{
			Key:         "workflow_member",
			DisplayName: "Member",
			Aliases:     []string{"Members", "Workflow Member"},
			Description: "Emails of workflow members, one per line. Managers are never members.",
		},
		{
			Key:         "unit",
			DisplayName: "Unit",
			Description: "Repeat unit: day, week or month. Fixed once the workflow exists.",
		},
		{
			Key:         "repeat_every",
			DisplayName: "Repeat Every",
			Description: "Repeat interval between 1 and 30. Fixed once the workflow exists.",
		},
		{
			Key:         "is_verification_needed",
			DisplayName: "Need Verification",
		},
		{
			Key:         "notify_on_change",
			DisplayName: "Force Real-time Email Updates",
		},
		{
			Key:         "status",
			DisplayName: "State",
			ExportOnly:  true,
		},
	},
}

func registerWorkflowHandlers() {
	core.RegisterHandlers(models.TypeWorkflow, map[string]core.HandlerFactory{
		"workflow_owner":  func(col core.Column) core.ColumnHandler { return ownerHandler{core.HandlerBase{Col: col}} },
		"workflow_member": func(col core.Column) core.ColumnHandler { return memberHandler{core.HandlerBase{Col: col}} },
		"unit":            func(col core.Column) core.ColumnHandler { return unitHandler{core.HandlerBase{Col: col}} },
		"repeat_every":    func(col core.Column) core.ColumnHandler { return repeatEveryHandler{core.HandlerBase{Col: col}} },
		"is_verification_needed": core.BoolField(
			func(o models.Object) bool { return o.(*models.Workflow).IsVerificationNeeded },
			func(o models.Object, v bool) { o.(*models.Workflow).IsVerificationNeeded = v },
		),
		"notify_on_change": core.BoolField(
			func(o models.Object) bool { return o.(*models.Workflow).NotifyOnChange },
			func(o models.Object, v bool) { o.(*models.Workflow).NotifyOnChange = v },
		),
		"status": core.ExportOnlyField(func(o models.Object) string { return o.(*models.Workflow).Status }),
	})
}

func asWorkflow(o models.Object) *models.Workflow { return o.(*models.Workflow) }

// ownerHandler replaces the workflow managers. A new workflow must end up
// with at least one known manager. Managers are removed from the members.
type ownerHandler struct{ core.HandlerBase }

func (h ownerHandler) Parse(ctx context.Context, rc *core.RowConverter, raw string) (any, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	users := h.ParseUsers(ctx, rc, raw)
	if len(users) == 0 {
		if rc.IsNew() && h.Col.Mandatory {
			h.Error(rc, core.CodeMissingValue)
		}
		return nil, false
	}
	return users, true
}

func (h ownerHandler) Apply(rc *core.RowConverter, value any) {
	wf := asWorkflow(rc.Object())
	wf.Owners = value.([]models.Person)
	wf.Members = models.WithoutPeople(wf.Members, wf.Owners)
}

func (h ownerHandler) Render(o models.Object) string {
	return core.RenderPeople(asWorkflow(o).Owners)
}

// memberHandler replaces the workflow members. Anyone who is also a manager
// in the same row, or already a manager, is dropped from the list.
type memberHandler struct{ core.HandlerBase }

func (memberHandler) DependsOn() []string { return []string{"workflow_owner"} }

func (h memberHandler) Parse(ctx context.Context, rc *core.RowConverter, raw string) (any, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	users := h.ParseUsers(ctx, rc, raw)

	owners := asWorkflow(rc.Object()).Owners
	if v, ok := rc.Value("workflow_owner"); ok {
		owners = v.([]models.Person)
	}
	members := models.WithoutPeople(users, owners)
	if len(members) == 0 {
		return nil, false
	}
	return members, true
}

func (h memberHandler) Apply(rc *core.RowConverter, value any) {
	wf := asWorkflow(rc.Object())
	wf.Members = models.WithoutPeople(value.([]models.Person), wf.Owners)
}

func (h memberHandler) Render(o models.Object) string {
	return core.RenderPeople(asWorkflow(o).Members)
}

// unitHandler parses the repeat unit. On an existing workflow any change is
// refused with a warning.
type unitHandler struct{ core.HandlerBase }

func (h unitHandler) Parse(_ context.Context, rc *core.RowConverter, raw string) (any, bool) {
	value := strings.ToLower(core.CleanCell(raw))
	clear := core.IsClearMarker(value)
	if clear {
		value = ""
	}

	if !rc.IsNew() {
		if strings.TrimSpace(raw) != "" && value != asWorkflow(rc.Object()).Unit {
			h.Warn(rc, core.CodeUnmodifiableColumn)
		}
		return nil, false
	}

	if value != "" && !models.IsValidUnit(value) {
		h.Error(rc, core.CodeWrongValue)
		return nil, false
	}
	if value == "" && !clear {
		return nil, false
	}
	return value, true
}

func (h unitHandler) Apply(rc *core.RowConverter, value any) {
	asWorkflow(rc.Object()).Unit = value.(string)
}

func (h unitHandler) Render(o models.Object) string { return asWorkflow(o).Unit }

// repeatEveryHandler parses the repeat interval, 1 to 30. Like the unit it
// cannot change once the workflow exists.
type repeatEveryHandler struct{ core.HandlerBase }

func (h repeatEveryHandler) Parse(_ context.Context, rc *core.RowConverter, raw string) (any, bool) {
	v := core.CleanCell(raw)
	value := 0
	switch {
	case core.IsClearMarker(v), v == "":
	default:
		n, err := strconv.Atoi(v)
		if err != nil || n < models.MinRepeatEvery || n > models.MaxRepeatEvery {
			h.Error(rc, core.CodeWrongValue)
			return nil, false
		}
		value = n
	}

	if !rc.IsNew() {
		if v != "" && value != asWorkflow(rc.Object()).RepeatEvery {
			h.Warn(rc, core.CodeUnmodifiableColumn)
		}
		return nil, false
	}

	if v == "" {
		return nil, false
	}
	return value, true
}

func (h repeatEveryHandler) Apply(rc *core.RowConverter, value any) {
	asWorkflow(rc.Object()).RepeatEvery = value.(int)
}

func (h repeatEveryHandler) Render(o models.Object) string {
	if n := asWorkflow(o).RepeatEvery; n > 0 {
		return strconv.Itoa(n)
	}
	return ""
}
