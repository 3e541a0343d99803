package api

import (
	"net/http"

	"github.com/kanbanhq/kanban/internal/service"
)

func (s *Server) createTag(w http.ResponseWriter, r *http.Request) {
	var in service.CreateTagInput
	if err := decode(r, &in); err != nil {
		respondErr(w, r, err)
		return
	}
	tag, err := s.svc.CreateTag(r.Context(), in)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, tag)
}

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.svc.ListTags(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, tags)
}

func (s *Server) updateTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var in service.UpdateTagInput
	if err := decode(r, &in); err != nil {
		respondErr(w, r, err)
		return
	}
	tag, err := s.svc.UpdateTag(r.Context(), id, in)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, tag)
}

func (s *Server) deleteTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if err := s.svc.DeleteTag(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"deleted": id})
}
