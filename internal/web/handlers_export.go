package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/web/middleware"
)

// handleExport streams every record of one object type in the import
// layout. ?format=csv (default) or xlsx.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "objectType")
	def, ok := core.Get(name)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %s", core.ErrUnknownObjectType, name), 0)
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = core.FormatCSV
	}
	contentType, ok := exportContentTypes[format]
	if !ok {
		s.respondError(w, r, badRequest("unsupported export format "+format), 0)
		return
	}

	// Buffer so a failure halfway can still be reported as an error.
	var buf bytes.Buffer
	if err := s.pipeline.Export(r.Context(), &buf, format, []string{def.Name}, middleware.Subject(r.Context())); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	filename := fmt.Sprintf("%s_%s.%s",
		strings.ReplaceAll(strings.ToLower(def.Name), " ", "_"),
		time.Now().Format("2006-01-02"),
		format,
	)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(buf.Bytes())
}

var exportContentTypes = map[string]string{
	core.FormatCSV:  "text/csv; charset=utf-8",
	core.FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

type columnInfo struct {
	Name        string   `json:"name"`
	Key         string   `json:"key"`
	Aliases     []string `json:"aliases,omitempty"`
	Mandatory   bool     `json:"mandatory"`
	ExportOnly  bool     `json:"exportOnly,omitempty"`
	Description string   `json:"description,omitempty"`
}

type objectInfo struct {
	Name       string       `json:"name"`
	TypeName   string       `json:"typeName"`
	Importable bool         `json:"importable"`
	Columns    []columnInfo `json:"columns"`
}

// handleListObjects lists every registered object type with its columns.
func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	defs := core.All()
	out := make([]objectInfo, 0, len(defs))
	for _, def := range defs {
		info := objectInfo{Name: def.Name, TypeName: def.TypeName, Importable: !def.ExportOnly}
		for _, c := range def.Columns {
			info.Columns = append(info.Columns, columnInfo{
				Name:        c.DisplayName,
				Key:         c.Key,
				Aliases:     c.Aliases,
				Mandatory:   c.Mandatory,
				ExportOnly:  c.ExportOnly,
				Description: c.Description,
			})
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}
