package models

// Workflow repeat units.
const (
	UnitDay   = "day"
	UnitWeek  = "week"
	UnitMonth = "month"
)

// ValidUnits is the closed set of values accepted for Workflow.Unit.
var ValidUnits = []string{UnitDay, UnitWeek, UnitMonth}

// Repeat interval bounds (inclusive).
const (
	MinRepeatEvery = 1
	MaxRepeatEvery = 30
)

// Workflow roles.
const (
	RoleWorkflowOwner  = "WorkflowOwner"
	RoleWorkflowMember = "WorkflowMember"
)

// Workflow statuses.
const (
	WorkflowDraft    = "Draft"
	WorkflowActive   = "Active"
	WorkflowInactive = "Inactive"
)

// IsValidUnit reports whether u is one of ValidUnits.
func IsValidUnit(u string) bool {
	for _, v := range ValidUnits {
		if v == u {
			return true
		}
	}
	return false
}

// Workflow groups task groups and spawns cycles on a repeat schedule.
// Unit and RepeatEvery are fixed once the workflow exists.
type Workflow struct {
	Base
	Unit                 string
	RepeatEvery          int
	IsVerificationNeeded bool
	NotifyOnChange       bool
	Status               string
	Owners               []Person
	Members              []Person
}

func (w *Workflow) TypeName() string { return TypeWorkflow }

func (w *Workflow) Clone() Object {
	c := *w
	c.Owners = append([]Person(nil), w.Owners...)
	c.Members = append([]Person(nil), w.Members...)
	return &c
}

// HasPerson reports whether p is an owner or member of the workflow.
func (w *Workflow) HasPerson(p Person) bool {
	return containsPerson(w.Owners, p) || containsPerson(w.Members, p)
}

// AddMember adds p as a member unless p already holds a workflow role.
// Returns true if the workflow changed.
func (w *Workflow) AddMember(p Person) bool {
	if w.HasPerson(p) {
		return false
	}
	w.Members = append(w.Members, p)
	return true
}

// TaskGroup belongs to a workflow and is assigned to a contact.
type TaskGroup struct {
	Base
	Assignee
	WorkflowID   int64
	WorkflowSlug string
}

func (g *TaskGroup) TypeName() string { return TypeTaskGroup }

func (g *TaskGroup) Clone() Object {
	c := *g
	c.Assignee = g.Assignee.clone()
	return &c
}

// Task types.
const (
	TaskTypeText     = "text"
	TaskTypeMenu     = "menu"
	TaskTypeCheckbox = "checkbox"
)

// TaskGroupTask is a task template inside a task group.
// Description holds the task body for text tasks; menu and checkbox tasks
// use ResponseOptions instead.
type TaskGroupTask struct {
	Base
	Assignee
	Dates
	TaskType        string
	ResponseOptions []string
	TaskGroupID     int64
	TaskGroupSlug   string
}

func (t *TaskGroupTask) TypeName() string { return TypeTaskGroupTask }

func (t *TaskGroupTask) Clone() Object {
	c := *t
	c.Assignee = t.Assignee.clone()
	c.ResponseOptions = append([]string(nil), t.ResponseOptions...)
	return &c
}

// DefaultTaskType is used when an import leaves the task type blank or invalid.
func (t *TaskGroupTask) DefaultTaskType() string { return TaskTypeText }
