package objects

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/models"
)

var assigneeColumn = core.Column{
	Key:         "contact",
	DisplayName: "Assignee",
	Aliases:     []string{"Contact"},
	Mandatory:   true,
	Description: "Email of the assignee. Assignees become workflow members.",
}

var taskGroupDefinition = core.ObjectDefinition{
	Name:       "Task Group",
	TypeName:   models.TypeTaskGroup,
	Aliases:    []string{"TaskGroup"},
	SlugPrefix: "TASKGROUP",
	New:        func() models.Object { return &models.TaskGroup{} },
	Columns: []core.Column{
		codeColumn,
		titleColumn,
		descriptionColumn,
		{
			Key:         "workflow",
			DisplayName: "Workflow",
			Mandatory:   true,
			Description: "Code of the parent workflow. Fixed once the task group exists.",
		},
		assigneeColumn,
	},
}

var taskGroupTaskDefinition = core.ObjectDefinition{
	Name:       "Task Group Task",
	TypeName:   models.TypeTaskGroupTask,
	Aliases:    []string{"TaskGroupTask", "Task"},
	SlugPrefix: "TASK",
	New: func() models.Object {
		return &models.TaskGroupTask{TaskType: models.TaskTypeText}
	},
	Validate: validateDates,
	Columns: []core.Column{
		codeColumn,
		titleColumn,
		{
			Key:         "task_group",
			DisplayName: "Task Group",
			Mandatory:   true,
			Description: "Code of the parent task group. Fixed once the task exists.",
		},
		{
			Key:         "task_type",
			DisplayName: "Task Type",
			Description: "Rich Text, Dropdown or Checkbox. Defaults to Rich Text.",
		},
		{
			Key:         "task_description",
			DisplayName: "Task Description",
			Aliases:     []string{"Description"},
			Description: "Task body for rich text tasks; comma separated options otherwise.",
		},
		assigneeColumn,
		{Key: "start_date", DisplayName: "Start Date"},
		{Key: "end_date", DisplayName: "End Date"},
	},
}

func registerTaskGroupHandlers() {
	core.RegisterHandlers(models.TypeTaskGroup, map[string]core.HandlerFactory{
		"workflow": core.ParentField(models.TypeWorkflow,
			func(o models.Object) string { return o.(*models.TaskGroup).WorkflowSlug },
			func(child, parent models.Object) {
				g := child.(*models.TaskGroup)
				g.WorkflowID = parent.GetID()
				g.WorkflowSlug = parent.GetSlug()
			},
		),
		"contact": newAssigneeHandler(taskGroupWorkflow, "workflow"),
	})

	core.RegisterHandlers(models.TypeTaskGroupTask, map[string]core.HandlerFactory{
		"task_group": core.ParentField(models.TypeTaskGroup,
			func(o models.Object) string { return o.(*models.TaskGroupTask).TaskGroupSlug },
			func(child, parent models.Object) {
				t := child.(*models.TaskGroupTask)
				t.TaskGroupID = parent.GetID()
				t.TaskGroupSlug = parent.GetSlug()
			},
		),
		"task_type":        func(col core.Column) core.ColumnHandler { return taskTypeHandler{core.HandlerBase{Col: col}} },
		"task_description": func(col core.Column) core.ColumnHandler { return taskDescriptionHandler{core.HandlerBase{Col: col}} },
		"contact":          newAssigneeHandler(taskWorkflow, "task_group"),
	})
}

// workflowResolver finds the code of the workflow a row's record belongs to.
type workflowResolver func(ctx context.Context, rc *core.RowConverter) (string, error)

func taskGroupWorkflow(_ context.Context, rc *core.RowConverter) (string, error) {
	if v, ok := rc.Value("workflow"); ok {
		return v.(models.Object).GetSlug(), nil
	}
	return rc.Object().(*models.TaskGroup).WorkflowSlug, nil
}

func taskWorkflow(ctx context.Context, rc *core.RowConverter) (string, error) {
	if v, ok := rc.Value("task_group"); ok {
		return v.(*models.TaskGroup).WorkflowSlug, nil
	}
	slug := rc.Object().(*models.TaskGroupTask).TaskGroupSlug
	if slug == "" {
		return "", nil
	}
	tg, err := rc.Lookup(ctx, models.TypeTaskGroup, slug)
	if err != nil || tg == nil {
		return "", err
	}
	return tg.(*models.TaskGroup).WorkflowSlug, nil
}

// assigneeHandler sets the record's contact and makes sure the contact
// holds a role in the owning workflow, adding them as a member if needed.
type assigneeHandler struct {
	*core.UserHandler
	workflow workflowResolver
	parent   string
}

type assignment struct {
	person   models.Person
	workflow *models.Workflow
}

func newAssigneeHandler(resolve workflowResolver, parent string) core.HandlerFactory {
	return func(col core.Column) core.ColumnHandler {
		return assigneeHandler{
			UserHandler: core.NewUserHandler(col,
				func(o models.Object) *models.Person { return core.ContactOf(o) },
				func(o models.Object, p *models.Person) { o.(models.WithContact).SetContact(p) },
			),
			workflow: resolve,
			parent:   parent,
		}
	}
}

func (h assigneeHandler) DependsOn() []string { return []string{h.parent} }

func (h assigneeHandler) Parse(ctx context.Context, rc *core.RowConverter, raw string) (any, bool) {
	v, ok := h.UserHandler.Parse(ctx, rc, raw)
	if !ok {
		return nil, false
	}
	a := assignment{person: v.(models.Person)}

	slug, err := h.workflow(ctx, rc)
	if err != nil {
		rc.Fail(err)
		return nil, false
	}
	if slug != "" {
		wf, err := rc.Related(ctx, models.TypeWorkflow, slug)
		if err != nil {
			rc.Fail(err)
			return nil, false
		}
		if wf != nil {
			a.workflow = wf.(*models.Workflow)
		}
	}
	return a, true
}

func (h assigneeHandler) Apply(rc *core.RowConverter, value any) {
	a := value.(assignment)
	h.UserHandler.Apply(rc, a.person)
	if a.workflow != nil {
		rc.Join(a.workflow, a.person)
	}
}

// Task types as written in files.
var (
	taskTypeAliases = map[string]string{
		"rich text":  models.TaskTypeText,
		"text":       models.TaskTypeText,
		"dropdown":   models.TaskTypeMenu,
		"drop down":  models.TaskTypeMenu,
		"menu":       models.TaskTypeMenu,
		"checkboxes": models.TaskTypeCheckbox,
		"checkbox":   models.TaskTypeCheckbox,
	}
	taskTypeNames = map[string]string{
		models.TaskTypeText:     "rich text",
		models.TaskTypeMenu:     "dropdown",
		models.TaskTypeCheckbox: "checkbox",
	}
)

// taskTypeHandler maps task type names to task types. Invalid or missing
// values on a new task fall back to the default type with a warning.
type taskTypeHandler struct{ core.HandlerBase }

func (h taskTypeHandler) Parse(_ context.Context, rc *core.RowConverter, raw string) (any, bool) {
	v := strings.TrimSpace(raw)
	if tt, ok := taskTypeAliases[strings.ToLower(v)]; ok {
		return tt, true
	}
	if v == "" && !rc.IsNew() {
		return nil, false
	}

	def := rc.Object().(*models.TaskGroupTask).DefaultTaskType()
	if v != "" {
		h.Warn(rc, core.CodeWrongRequiredValue, v, h.Col.DisplayName)
	} else {
		h.Warn(rc, core.CodeMissingValueWarn)
	}
	return def, true
}

func (h taskTypeHandler) Apply(rc *core.RowConverter, value any) {
	rc.Object().(*models.TaskGroupTask).TaskType = value.(string)
}

func (h taskTypeHandler) Render(o models.Object) string {
	name, ok := taskTypeNames[o.(*models.TaskGroupTask).TaskType]
	if !ok {
		name = taskTypeNames[models.TaskTypeText]
	}
	// Casers hold state and must not be shared between goroutines.
	return cases.Title(language.English).String(name)
}

// taskDescriptionHandler stores the description of text tasks and the
// response options of menu and checkbox tasks.
type taskDescriptionHandler struct{ core.HandlerBase }

func (taskDescriptionHandler) DependsOn() []string { return []string{"task_type"} }

func (h taskDescriptionHandler) Parse(_ context.Context, _ *core.RowConverter, raw string) (any, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, false
	}
	return v, true
}

func (h taskDescriptionHandler) Apply(rc *core.RowConverter, value any) {
	t := rc.Object().(*models.TaskGroupTask)
	v := value.(string)
	if t.TaskType == models.TaskTypeText {
		t.Description = v
		return
	}
	var options []string
	for _, opt := range strings.Split(v, ",") {
		if opt = strings.TrimSpace(opt); opt != "" {
			options = append(options, opt)
		}
	}
	t.ResponseOptions = options
}

func (h taskDescriptionHandler) Render(o models.Object) string {
	t := o.(*models.TaskGroupTask)
	if t.TaskType == models.TaskTypeText {
		return t.Description
	}
	return strings.Join(t.ResponseOptions, ", ")
}
