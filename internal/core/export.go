package core

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/grc/internal/logging"
	"github.com/JonMunkholm/grc/internal/metrics"
)

// ExportRows renders every record of the named object types into the block
// layout the importer reads. Importing the result unchanged updates each
// record without changing it.
func (p *Pipeline) ExportRows(ctx context.Context, names []string, subject string) ([][]string, error) {
	var rows [][]string
	for i, name := range names {
		def, ok := Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownObjectType, name)
		}
		if p.auth != nil {
			allowed, err := p.auth.Allowed(subject, def.TypeName, PermExport)
			if err != nil {
				return nil, fmt.Errorf("authorize: %w", err)
			}
			if !allowed {
				return nil, fmt.Errorf("%w: export %s", ErrPermissionDenied, def.Name)
			}
		}

		block, err := p.exportBlock(ctx, def)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			rows = append(rows, []string{""})
		}
		rows = append(rows, block...)
	}
	return rows, nil
}

// Export writes the named object types to w in format (FormatCSV or
// FormatXLSX).
func (p *Pipeline) Export(ctx context.Context, w io.Writer, format string, names []string, subject string) error {
	rows, err := p.ExportRows(ctx, names, subject)
	if err != nil {
		return err
	}
	switch strings.ToLower(format) {
	case "", FormatCSV:
		return WriteCSV(w, rows)
	case FormatXLSX:
		return WriteXLSX(w, "Export", rows)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, format)
	}
}

func (p *Pipeline) exportBlock(ctx context.Context, def ObjectDefinition) ([][]string, error) {
	var hs []ColumnHandler
	header := []string{def.Name}
	for _, col := range def.Columns {
		h, ok := HandlerFor(def.TypeName, col)
		if !ok {
			continue
		}
		name := col.DisplayName
		if col.Mandatory && !col.ExportOnly {
			name += "*"
		}
		header = append(header, name)
		hs = append(hs, h)
	}

	objs, err := p.store.List(ctx, def.TypeName)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", def.Name, err)
	}

	marker := make([]string, len(header))
	marker[0] = blockMarker
	rows := [][]string{marker, header}
	for _, o := range objs {
		row := make([]string, 0, len(header))
		row = append(row, "")
		for _, h := range hs {
			row = append(row, h.Render(o))
		}
		rows = append(rows, row)
	}

	metrics.ObserveExport(def.TypeName, len(objs))
	logging.FromContext(ctx).Debug("exported block", "object_type", def.Name, "rows", len(objs))
	return rows, nil
}
