// Package objects registers the GRC workflow object types and their special
// column handlers with the core registry. Import it for side effects:
//
//	import _ "github.com/JonMunkholm/grc/internal/core/objects"
package objects

import (
	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/models"
)

func init() {
	registerWorkflowHandlers()
	registerTaskGroupHandlers()
	registerVendorHandlers()
	registerCycleHandlers()

	core.Register(workflowDefinition)
	core.Register(taskGroupDefinition)
	core.Register(taskGroupTaskDefinition)
	core.Register(vendorDefinition)
	core.Register(cycleDefinition)
	core.Register(cycleTaskDefinition)
}

// Columns shared by most object types.
var (
	codeColumn = core.Column{
		Key:         "slug",
		DisplayName: "Code",
		Aliases:     []string{"Slug"},
		Description: "Unique code. Leave empty to generate one.",
	}
	titleColumn = core.Column{
		Key:         "title",
		DisplayName: "Title",
		Aliases:     []string{"Summary"},
		Mandatory:   true,
	}
	descriptionColumn = core.Column{
		Key:         "description",
		DisplayName: "Description",
	}
)

// Register re-registers every definition after core.Clear.
// Handlers survive core.Clear and are not registered again.
func Register() {
	for _, def := range Definitions() {
		core.Register(def)
	}
}

// Definitions returns the object definitions this package provides.
func Definitions() []core.ObjectDefinition {
	return []core.ObjectDefinition{
		workflowDefinition,
		taskGroupDefinition,
		taskGroupTaskDefinition,
		vendorDefinition,
		cycleDefinition,
		cycleTaskDefinition,
	}
}

// validateDates rejects rows whose start date is after their end date.
func validateDates(rc *core.RowConverter) {
	t, ok := rc.Object().(models.Timeboxed)
	if !ok {
		return
	}
	start := rc.EffectiveDate("start_date", t.GetStartDate())
	end := rc.EffectiveDate("end_date", t.GetEndDate())
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		rc.Add(core.Errorf(core.CodeInvalidDates, rc.Line(), "start_date"))
	}
}
