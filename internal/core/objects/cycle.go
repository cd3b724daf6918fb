package objects

import (
	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/models"
)

// Cycles and cycle tasks are generated from workflows and can only be
// exported.
var cycleDefinition = core.ObjectDefinition{
	Name:       "Cycle",
	TypeName:   models.TypeCycle,
	ExportOnly: true,
	Columns: []core.Column{
		codeColumn,
		titleColumn,
		descriptionColumn,
		{Key: "cycle_workflow", DisplayName: "Workflow", ExportOnly: true},
		{Key: "contact", DisplayName: "Assignee", ExportOnly: true},
		{Key: "status", DisplayName: "State", ExportOnly: true},
		{Key: "start_date", DisplayName: "Start Date"},
		{Key: "end_date", DisplayName: "End Date"},
		{Key: "next_due_date", DisplayName: "Next Due Date", ExportOnly: true},
	},
}

var cycleTaskDefinition = core.ObjectDefinition{
	Name:       "Cycle Task",
	TypeName:   models.TypeCycleTask,
	Aliases:    []string{"Cycle Task Group Object Task", "CycleTask"},
	ExportOnly: true,
	Columns: []core.Column{
		codeColumn,
		titleColumn,
		descriptionColumn,
		{Key: "cycle", DisplayName: "Cycle", ExportOnly: true},
		{Key: "cycle_workflow", DisplayName: "Workflow", ExportOnly: true},
		{Key: "contact", DisplayName: "Assignee", ExportOnly: true},
		{Key: "status", DisplayName: "State", ExportOnly: true},
		{Key: "start_date", DisplayName: "Start Date"},
		{Key: "end_date", DisplayName: "Due Date"},
		{Key: "finished_date", DisplayName: "Actual Finish Date", ExportOnly: true},
		{Key: "verified_date", DisplayName: "Actual Verified Date", ExportOnly: true},
	},
}

func registerCycleHandlers() {
	core.RegisterHandlers(models.TypeCycle, map[string]core.HandlerFactory{
		"cycle_workflow": core.ExportOnlyField(func(o models.Object) string { return o.(*models.Cycle).WorkflowSlug }),
		"status":         core.ExportOnlyField(func(o models.Object) string { return o.(*models.Cycle).Status }),
		"next_due_date": core.ExportOnlyField(func(o models.Object) string {
			return core.FormatDate(o.(*models.Cycle).NextDueDate)
		}),
	})

	core.RegisterHandlers(models.TypeCycleTask, map[string]core.HandlerFactory{
		"cycle":          core.ExportOnlyField(func(o models.Object) string { return o.(*models.CycleTask).CycleSlug }),
		"cycle_workflow": core.ExportOnlyField(func(o models.Object) string { return o.(*models.CycleTask).WorkflowSlug }),
		"status":         core.ExportOnlyField(func(o models.Object) string { return o.(*models.CycleTask).Status }),
		"finished_date": core.ExportOnlyField(func(o models.Object) string {
			return core.FormatDate(o.(*models.CycleTask).FinishedDate)
		}),
		"verified_date": core.ExportOnlyField(func(o models.Object) string {
			return core.FormatDate(o.(*models.CycleTask).VerifiedDate)
		}),
	})
}
