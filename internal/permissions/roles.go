// Package permissions declares the built-in roles and decides which role may
// import or export which object types.
//
// Roles are declared by extensions (Declarations) and may be extended by
// other extensions (Contributions). A role is resolved once, merging every
// contribution into its declared permissions, and cached.
package permissions

import (
	"sort"
	"sync"
)

// Permission actions granted by roles.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Any matches every object type when used in a permission list.
const Any = "*"

// Role is a named set of permissions. Permissions maps an action to the
// object types it is granted on.
type Role struct {
	Name        string              `json:"name"`
	Scope       string              `json:"scope"`
	Description string              `json:"description"`
	Permissions map[string][]string `json:"permissions"`
}

// Declarations provides roles by name.
type Declarations interface {
	Roles() map[string]Role
}

// Contributions adds permissions to roles declared elsewhere.
type Contributions interface {
	ContributionsFor(role string) map[string][]string
}

// Registry holds role declarations and contributions.
type Registry struct {
	mu            sync.Mutex
	declarations  []Declarations
	contributions []Contributions
	declared      map[string]Role
	resolved      map[string]Role
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Declare adds role declarations. Later declarations of the same name win.
func (r *Registry) Declare(d Declarations) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.declarations = append(r.declarations, d)
	r.reset()
}

// Contribute adds permission contributions.
func (r *Registry) Contribute(c Contributions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contributions = append(r.contributions, c)
	r.reset()
}

func (r *Registry) reset() {
	r.declared = nil
	r.resolved = nil
}

func (r *Registry) lookupDeclarations() map[string]Role {
	if r.declared == nil {
		r.declared = make(map[string]Role)
		for _, d := range r.declarations {
			for name, role := range d.Roles() {
				role.Name = name
				r.declared[name] = role
			}
		}
	}
	return r.declared
}

// Role returns the named role with all contributions merged in.
func (r *Registry) Role(name string) (Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if role, ok := r.resolved[name]; ok {
		return role, true
	}
	declared, ok := r.lookupDeclarations()[name]
	if !ok {
		return Role{}, false
	}

	role := Role{
		Name:        name,
		Scope:       declared.Scope,
		Description: declared.Description,
		Permissions: make(map[string][]string, len(declared.Permissions)),
	}
	for action, types := range declared.Permissions {
		role.Permissions[action] = merge(nil, types)
	}
	for _, c := range r.contributions {
		for action, types := range c.ContributionsFor(name) {
			role.Permissions[action] = merge(role.Permissions[action], types)
		}
	}

	if r.resolved == nil {
		r.resolved = make(map[string]Role)
	}
	r.resolved[name] = role
	return role, true
}

// Names returns every declared role name, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.lookupDeclarations()))
	for name := range r.lookupDeclarations() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// merge appends the types in add missing from base.
func merge(base, add []string) []string {
	seen := make(map[string]bool, len(base))
	for _, t := range base {
		seen[t] = true
	}
	for _, t := range add {
		if !seen[t] {
			seen[t] = true
			base = append(base, t)
		}
	}
	return base
}
