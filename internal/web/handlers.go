package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/web/middleware"
	"github.com/JonMunkholm/grc/internal/web/templates"
)

// authorize returns core.ErrPermissionDenied unless the caller's role may
// perform action on typeName. Without an authorizer everything is allowed.
func (s *Server) authorize(r *http.Request, typeName, action string) error {
	if s.auth == nil {
		return nil
	}
	subject := middleware.Subject(r.Context())
	ok, err := s.auth.Allowed(subject, typeName, action)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s %s", core.ErrPermissionDenied, action, typeName)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "uptime": time.Since(s.started).Round(time.Second).String()}
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			status["status"] = "unavailable"
			status["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	if s.limiter != nil {
		status["activeImports"] = s.limiter.Active()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	defs := core.All()
	types := make([]templates.ObjectType, len(defs))
	for i, def := range defs {
		types[i] = templates.ObjectType{
			TypeName:   def.TypeName,
			Name:       def.Name,
			Columns:    len(def.Columns),
			ExportOnly: def.ExportOnly,
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	params := templates.StatusParams{Started: s.started, Types: types}
	if err := templates.StatusPage(params).Render(r.Context(), w); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}
