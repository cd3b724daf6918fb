package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/grc/internal/core"
	"github.com/JonMunkholm/grc/internal/logging"
	"github.com/JonMunkholm/grc/internal/web/middleware"
)

// handleImport imports the multipart "file" field. Form fields dry_run and
// all_or_nothing override the defaults.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	s.importFile(w, r, false)
}

// handlePreview validates the file without writing anything.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.importFile(w, r, true)
}

func (s *Server) importFile(w http.ResponseWriter, r *http.Request, preview bool) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, core.ErrFileTooLarge, 0)
			return
		}
		s.respondError(w, r, badRequest("invalid multipart form"), 0)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, badRequest("no file provided"), 0)
		return
	}
	defer file.Close()

	opts := core.Options{
		DryRun:       preview,
		AllOrNothing: s.cfg.Import.AllOrNothing,
		Subject:      middleware.Subject(r.Context()),
	}
	if !preview {
		if opts.DryRun, err = formBool(r, "dry_run", false); err != nil {
			s.respondError(w, r, err, 0)
			return
		}
	}
	if opts.AllOrNothing, err = formBool(r, "all_or_nothing", opts.AllOrNothing); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	started := time.Now()
	result, err := s.pipeline.Import(ctx, header.Filename, file, opts)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if s.log != nil && !opts.DryRun {
		if err := s.log.LogImport(r.Context(), result, opts.Subject, started); err != nil {
			logging.FromContext(r.Context()).Warn("import log failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func formBool(r *http.Request, name string, def bool) (bool, error) {
	v := r.FormValue(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, badRequest("invalid " + name + " value " + strconv.Quote(v))
	}
	return b, nil
}
