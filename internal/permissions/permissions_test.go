package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/grc/internal/models"
)

type staticRoles map[string]Role

func (s staticRoles) Roles() map[string]Role { return s }

type staticContributions map[string]map[string][]string

func (s staticContributions) ContributionsFor(role string) map[string][]string { return s[role] }

func TestRegistry_MergesContributions(t *testing.T) {
	r := NewRegistry()
	r.Declare(staticRoles{
		"Reader": {Scope: "System", Permissions: map[string][]string{ActionRead: {"Vendor"}}},
	})
	r.Contribute(staticContributions{
		"Reader": {ActionRead: {"Workflow", "Vendor"}, ActionUpdate: {"CycleTask"}},
	})

	role, ok := r.Role("Reader")
	require.True(t, ok)
	assert.Equal(t, "Reader", role.Name)
	assert.Equal(t, []string{"Vendor", "Workflow"}, role.Permissions[ActionRead])
	assert.Equal(t, []string{"CycleTask"}, role.Permissions[ActionUpdate])

	_, ok = r.Role("Nobody")
	assert.False(t, ok)
}

func TestRegistry_ResolvesOnce(t *testing.T) {
	calls := 0
	r := NewRegistry()
	r.Declare(staticRoles{"Reader": {Permissions: map[string][]string{}}})
	r.Contribute(countingContributions{calls: &calls})

	_, _ = r.Role("Reader")
	_, _ = r.Role("Reader")
	assert.Equal(t, 1, calls)

	r.Contribute(staticContributions{})
	_, _ = r.Role("Reader")
	assert.Equal(t, 2, calls, "new contributions invalidate the cache")
}

type countingContributions struct{ calls *int }

func (c countingContributions) ContributionsFor(string) map[string][]string {
	*c.calls++
	return nil
}

func TestDefault_DeclaresBuiltinRoles(t *testing.T) {
	names := Default().Names()
	for _, want := range []string{
		RoleReader, RoleObjectEditor, RoleProgramCreator, RoleAuditorReader,
		RoleAdministrator, RoleWorkflowOwner, RoleWorkflowMember,
	} {
		assert.Contains(t, names, want)
	}
}

func TestEnforcer_Allowed(t *testing.T) {
	enf, err := NewEnforcer(Default())
	require.NoError(t, err)

	tests := []struct {
		subject  string
		typeName string
		action   string
		want     bool
	}{
		{RoleAdministrator, models.TypeVendor, "import", true},
		{RoleAdministrator, models.TypeCycleTask, "export", true},
		{RoleReader, models.TypeWorkflow, "export", true},
		{RoleReader, models.TypeWorkflow, "import", false},
		{RoleObjectEditor, models.TypeVendor, "import", true},
		{RoleObjectEditor, models.TypeWorkflow, "import", true},
		{RoleObjectEditor, models.TypeCycle, "import", false},
		{RoleProgramCreator, models.TypeVendor, "import", false},
		{RoleWorkflowMember, models.TypeCycleTask, ActionUpdate, true},
		{RoleWorkflowMember, models.TypeWorkflow, "import", false},
		{RoleWorkflowOwner, models.TypeTaskGroupTask, "import", true},
		{"Stranger", models.TypeVendor, "export", false},
	}

	for _, tt := range tests {
		got, err := enf.Allowed(tt.subject, tt.typeName, tt.action)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %s %s", tt.subject, tt.action, tt.typeName)
	}
}

func TestEnforcer_Assign(t *testing.T) {
	enf, err := NewEnforcer(Default())
	require.NoError(t, err)

	ok, err := enf.Allowed("ci-bot", models.TypeVendor, "import")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, enf.Assign("ci-bot", RoleObjectEditor))
	ok, err = enf.Allowed("ci-bot", models.TypeVendor, "import")
	require.NoError(t, err)
	assert.True(t, ok)
}
