package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/JonMunkholm/grc/internal/models"
)

// ColumnHandler converts one column between spreadsheet cells and records.
//
// Parse reads a raw cell for the row's record and reports problems on rc.
// It returns ok=false when the record should not change. Apply writes a
// value returned by Parse and is only called for rows without errors.
// Render is the inverse of Parse + Apply and is used by export and for
// computing changes.
type ColumnHandler interface {
	Column() Column
	Parse(ctx context.Context, rc *RowConverter, raw string) (value any, ok bool)
	Apply(rc *RowConverter, value any)
	Render(obj models.Object) string
}

// Dependent is implemented by handlers whose Parse reads the parsed value of
// other columns in the same row.
type Dependent interface {
	DependsOn() []string
}

// HandlerFactory builds a handler for a column.
type HandlerFactory func(col Column) ColumnHandler

// HandlerBase carries the column a handler serves and diagnostic helpers.
// Handlers embed it.
type HandlerBase struct {
	Col Column
}

func (h HandlerBase) Column() Column { return h.Col }

// Error adds an error for this column. Without args the template receives
// the column display name.
func (h HandlerBase) Error(rc *RowConverter, code Code, args ...any) {
	rc.Add(Errorf(code, rc.Line(), h.Col.Key, h.args(args)...))
}

// Warn adds a warning for this column.
func (h HandlerBase) Warn(rc *RowConverter, code Code, args ...any) {
	rc.Add(Warnf(code, rc.Line(), h.Col.Key, h.args(args)...))
}

func (h HandlerBase) args(args []any) []any {
	if len(args) == 0 {
		return []any{h.Col.DisplayName}
	}
	return args
}

// orderHandlers sorts handlers so every handler comes after the handlers it
// depends on. Dependencies on columns absent from hs are ignored. Ties keep
// the input order.
func orderHandlers(hs []ColumnHandler) ([]ColumnHandler, error) {
	index := make(map[string]int, len(hs))
	for i, h := range hs {
		index[h.Column().Key] = i
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(hs))
	out := make([]ColumnHandler, 0, len(hs))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("column dependency cycle at %q", hs[i].Column().Key)
		}
		state[i] = visiting
		if d, ok := hs[i].(Dependent); ok {
			deps := append([]string(nil), d.DependsOn()...)
			sort.SliceStable(deps, func(a, b int) bool { return index[deps[a]] < index[deps[b]] })
			for _, key := range deps {
				if j, ok := index[key]; ok {
					if err := visit(j); err != nil {
						return err
					}
				}
			}
		}
		state[i] = done
		out = append(out, hs[i])
		return nil
	}

	for i := range hs {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return out, nil
}
