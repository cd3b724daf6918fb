package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/grc/internal/models"
)

// DefaultScope holds handlers used by every object type unless the type
// registers its own handler for the same key.
const DefaultScope = "default"

var (
	registry      = make(map[string]ObjectDefinition)
	handlerScopes = make(map[string]map[string]HandlerFactory)
	registryMu    sync.RWMutex
)

// Column describes one column of an object definition.
type Column struct {
	Key         string   // Handler key: "workflow_owner"
	DisplayName string   // Header name: "Manager"
	Aliases     []string // Other accepted header names
	Mandatory   bool     // Must be present in the header and non-empty on new rows
	ExportOnly  bool     // Rendered on export, ignored on import
	Description string   // Shown in the column listing
}

// Names returns the display name followed by the aliases.
func (c Column) Names() []string {
	return append([]string{c.DisplayName}, c.Aliases...)
}

// ObjectDefinition describes an importable or exportable object type.
type ObjectDefinition struct {
	Name       string   // Block name used in files: "Task Group"
	TypeName   string   // models type name: "TaskGroup"
	Aliases    []string // Other accepted block names
	SlugPrefix string   // Prefix for generated codes: "TG"
	Columns    []Column // In export order; the first column is the code
	ExportOnly bool     // Blocks of this type are rejected on import
	New        func() models.Object

	// Validate runs after every column parsed and may add row diagnostics.
	Validate func(rc *RowConverter)
}

// Column returns the column with key.
func (d ObjectDefinition) Column(key string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

// MatchColumn resolves a header name to a column, case-insensitively.
func (d ObjectDefinition) MatchColumn(name string) (Column, bool) {
	name = normalizeHeader(name)
	for _, c := range d.Columns {
		for _, n := range c.Names() {
			if normalizeHeader(n) == name {
				return c, true
			}
		}
		if strings.EqualFold(c.Key, name) {
			return c, true
		}
	}
	return Column{}, false
}

// MandatoryColumns returns the columns that must appear in an import header.
func (d ObjectDefinition) MandatoryColumns() []Column {
	var out []Column
	for _, c := range d.Columns {
		if c.Mandatory && !c.ExportOnly {
			out = append(out, c)
		}
	}
	return out
}

// Register adds an object definition to the registry.
// Panics if a definition with the same name is already registered.
func Register(def ObjectDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	key := normalizeHeader(def.Name)
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("object type already registered: %s", def.Name))
	}
	if def.New == nil && !def.ExportOnly {
		panic(fmt.Sprintf("importable object type without constructor: %s", def.Name))
	}
	registry[key] = def
}

// Get returns a definition by block name, type name or alias.
func Get(name string) (ObjectDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	key := normalizeHeader(name)
	if def, ok := registry[key]; ok {
		return def, true
	}
	for _, def := range registry {
		if normalizeHeader(def.TypeName) == key {
			return def, true
		}
		for _, a := range def.Aliases {
			if normalizeHeader(a) == key {
				return def, true
			}
		}
	}
	return ObjectDefinition{}, false
}

// All returns all registered definitions sorted by name.
func All() []ObjectDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]ObjectDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Importable returns the definitions that accept import blocks.
func Importable() []ObjectDefinition {
	var out []ObjectDefinition
	for _, def := range All() {
		if !def.ExportOnly {
			out = append(out, def)
		}
	}
	return out
}

// Clear removes all registered definitions. Handlers are kept.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]ObjectDefinition)
}

// RegisterHandler registers a handler factory for a column key.
// scope is DefaultScope or a models type name; registering the same key
// twice in one scope panics.
func RegisterHandler(scope, key string, f HandlerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	m, ok := handlerScopes[scope]
	if !ok {
		m = make(map[string]HandlerFactory)
		handlerScopes[scope] = m
	}
	if _, exists := m[key]; exists {
		panic(fmt.Sprintf("column handler already registered: %s/%s", scope, key))
	}
	m[key] = f
}

// RegisterHandlers registers several factories in one scope.
func RegisterHandlers(scope string, fs map[string]HandlerFactory) {
	for k, f := range fs {
		RegisterHandler(scope, k, f)
	}
}

// HandlerFor builds the handler for col of the given object type.
// The type's own scope wins over DefaultScope.
func HandlerFor(typeName string, col Column) (ColumnHandler, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if f, ok := handlerScopes[typeName][col.Key]; ok {
		return f(col), true
	}
	if f, ok := handlerScopes[DefaultScope][col.Key]; ok {
		return f(col), true
	}
	return nil, false
}

func normalizeHeader(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "*")
	return strings.ToLower(strings.TrimSpace(s))
}
