package permissions

import "github.com/JonMunkholm/grc/internal/models"

// Role names.
const (
	RoleReader               = "Reader"
	RoleObjectEditor         = "ObjectEditor"
	RoleProgramCreator       = "ProgramCreator"
	RoleProgramOwner         = "ProgramOwner"
	RoleProgramEditor        = "ProgramEditor"
	RoleProgramReader        = "ProgramReader"
	RoleAuditor              = "Auditor"
	RoleAuditorReader        = "AuditorReader"
	RoleAuditorProgramReader = "AuditorProgramReader"
	RoleAdministrator        = "Administrator"
	RoleWorkflowOwner        = models.RoleWorkflowOwner
	RoleWorkflowMember       = models.RoleWorkflowMember
)

var (
	workflowTypes = []string{
		models.TypeWorkflow,
		models.TypeTaskGroup,
		models.TypeTaskGroupTask,
		models.TypeCycle,
		models.TypeCycleTask,
	}
	directoryTypes = []string{models.TypeVendor, models.TypePerson}
	allTypes       = append(append([]string(nil), workflowTypes...), directoryTypes...)
)

type basicRoles struct{}

func (basicRoles) Roles() map[string]Role {
	none := map[string][]string{}
	return map[string]Role{
		RoleReader: {
			Scope:       "System",
			Description: "Can read every object in the system.",
			Permissions: map[string][]string{ActionRead: directoryTypes},
		},
		RoleObjectEditor: {
			Scope:       "System",
			Description: "Can create and edit objects outside programs.",
			Permissions: map[string][]string{
				ActionRead:   directoryTypes,
				ActionCreate: {models.TypeVendor},
				ActionUpdate: {models.TypeVendor},
			},
		},
		RoleProgramCreator: {
			Scope:       "System",
			Description: "Can create programs and the objects they own.",
			Permissions: map[string][]string{
				ActionRead:   directoryTypes,
				ActionCreate: {models.TypeVendor},
			},
		},
		RoleProgramOwner:         {Scope: "Private Program", Description: "Owns a program.", Permissions: none},
		RoleProgramEditor:        {Scope: "Private Program", Description: "Edits a program.", Permissions: none},
		RoleProgramReader:        {Scope: "Private Program", Description: "Reads a program.", Permissions: none},
		RoleAuditor:              {Scope: "Audit", Description: "Performs an audit.", Permissions: none},
		RoleAuditorProgramReader: {Scope: "Audit Implied", Description: "Reads the program of an audit.", Permissions: none},
		RoleAuditorReader: {
			Scope:       "System Implied",
			Description: "Auditors get read access to the objects required to perform the audit.",
			Permissions: map[string][]string{ActionRead: {models.TypePerson}},
		},
		RoleAdministrator: {
			Scope:       "System",
			Description: "Can do anything.",
			Permissions: map[string][]string{
				ActionRead:   {Any},
				ActionCreate: {Any},
				ActionUpdate: {Any},
				ActionDelete: {Any},
			},
		},
	}
}

type workflowRoles struct{}

func (workflowRoles) Roles() map[string]Role {
	return map[string]Role{
		RoleWorkflowOwner: {
			Scope:       "Workflow",
			Description: "Manages a workflow and everything in it.",
			Permissions: map[string][]string{
				ActionRead:   workflowTypes,
				ActionCreate: workflowTypes,
				ActionUpdate: workflowTypes,
				ActionDelete: workflowTypes,
			},
		},
		RoleWorkflowMember: {
			Scope:       "Workflow",
			Description: "Works on the tasks of a workflow.",
			Permissions: map[string][]string{
				ActionRead:   workflowTypes,
				ActionUpdate: {models.TypeCycleTask},
			},
		},
	}
}

// workflowContributions extends the basic roles with workflow objects.
type workflowContributions struct{}

func (workflowContributions) ContributionsFor(role string) map[string][]string {
	switch role {
	case RoleReader:
		return map[string][]string{ActionRead: workflowTypes}
	case RoleObjectEditor, RoleProgramCreator:
		return map[string][]string{
			ActionRead:   workflowTypes,
			ActionCreate: {models.TypeWorkflow, models.TypeTaskGroup, models.TypeTaskGroupTask},
			ActionUpdate: {models.TypeWorkflow, models.TypeTaskGroup, models.TypeTaskGroupTask},
		}
	case RoleAuditorReader:
		return map[string][]string{ActionRead: allTypes}
	}
	return nil
}

// Default returns a registry with the built-in roles and workflow
// contributions.
func Default() *Registry {
	r := NewRegistry()
	r.Declare(basicRoles{})
	r.Declare(workflowRoles{})
	r.Contribute(workflowContributions{})
	return r
}
