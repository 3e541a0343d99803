package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kanbanhq/kanban/internal/service"
)

func (s *Server) triggerBackup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := decode(r, &body); err != nil {
			respondErr(w, r, err)
			return
		}
	}
	meta, err := s.svc.TriggerBackup(r.Context(), body.Name)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, meta)
}

func (s *Server) listBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := s.svc.ListBackups(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, backups)
}

func (s *Server) restoreBackup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Target string `json:"target,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := decode(r, &body); err != nil {
			respondErr(w, r, err)
			return
		}
	}
	target := time.Now()
	if body.Target != "" {
		t, err := time.Parse(time.RFC3339, body.Target)
		if err != nil {
			respondErr(w, r, service.Validationf("target must be RFC 3339"))
			return
		}
		target = t
	}
	meta, err := s.svc.RestoreBackup(r.Context(), target)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, meta)
}

func (s *Server) deleteBackup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		respondErr(w, r, service.Validationf("backup name is required"))
		return
	}
	if err := s.svc.DeleteBackup(r.Context(), name); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"deleted": name})
}
