package web

import (
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/permissions"
)

// objectRequest names one record. Type accepts a block name ("Cycle Task")
// or a type name ("CycleTaskGroupObjectTask").
type objectRequest struct {
	Type   string `json:"type"`
	Slug   string `json:"slug"`
	Status string `json:"status,omitempty"`
}

func (s *Server) decodeObject(r *http.Request, action string) (objectRequest, error) {
	var req objectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, badRequest("invalid JSON body")
	}
	if req.Type == "" || req.Slug == "" {
		return req, badRequest("type and slug are required")
	}
	if def, ok := core.Get(req.Type); ok {
		req.Type = def.TypeName
	}
	return req, s.authorize(r, req.Type, action)
}

func (s *Server) handleModifyStatus(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeObject(r, permissions.ActionUpdate)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if req.Status == "" {
		s.respondError(w, r, badRequest("status is required"), 0)
		return
	}
	obj, err := s.notify.ModifyStatus(r.Context(), req.Type, req.Slug, req.Status)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (s *Server) handlePrepareEmail(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeObject(r, permissions.ActionRead)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	msg, err := s.notify.PrepareEmail(r.Context(), req.Type, req.Slug)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handlePrepareDigest(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeObject(r, permissions.ActionRead)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	msg, err := s.notify.PrepareDigest(r.Context(), req.Type, req.Slug)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleNotifyEmail(w http.ResponseWriter, r *http.Request) {
	n, err := s.notify.NotifyEmail(r.Context())
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": n})
}

func (s *Server) handleNotifyDigest(w http.ResponseWriter, r *http.Request) {
	n, err := s.notify.NotifyDigest(r.Context())
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": n})
}
