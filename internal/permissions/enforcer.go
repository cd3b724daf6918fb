package permissions

import (
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && r.act == p.act
`

// requiredActions maps pipeline actions to the role actions they need.
var requiredActions = map[string][]string{
	"import": {ActionCreate, ActionUpdate},
	"export": {ActionRead},
}

// Enforcer answers permission checks for resolved roles.
type Enforcer struct {
	mu  sync.RWMutex
	enf *casbin.Enforcer
}

// NewEnforcer compiles every role of reg into a casbin enforcer.
func NewEnforcer(reg *Registry) (*Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("permissions: load model: %w", err)
	}
	enf, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("permissions: create enforcer: %w", err)
	}

	for _, name := range reg.Names() {
		role, _ := reg.Role(name)
		for action, types := range role.Permissions {
			for _, t := range types {
				if _, err := enf.AddPolicy(name, t, action); err != nil {
					return nil, fmt.Errorf("permissions: add policy %s %s %s: %w", name, t, action, err)
				}
			}
		}
	}
	return &Enforcer{enf: enf}, nil
}

// Assign grants role to subject, for example a user or API key name.
func (e *Enforcer) Assign(subject, role string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.enf.AddGroupingPolicy(subject, role); err != nil {
		return fmt.Errorf("permissions: assign %s to %s: %w", role, subject, err)
	}
	return nil
}

// Allowed reports whether subject may perform action on typeName. Action is
// either a role action (read, create, update, delete) or a pipeline action
// (import, export) which needs all of its mapped role actions.
func (e *Enforcer) Allowed(subject, typeName, action string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	actions, ok := requiredActions[action]
	if !ok {
		actions = []string{action}
	}
	for _, a := range actions {
		allowed, err := e.enf.Enforce(subject, typeName, a)
		if err != nil {
			return false, fmt.Errorf("permissions: enforce: %w", err)
		}
		if !allowed {
			return false, nil
		}
	}
	return true, nil
}
