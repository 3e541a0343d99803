package api

import (
	"net/http"

	"github.com/kanbanhq/kanban/internal/service"
	"github.com/kanbanhq/kanban/internal/types"
)

func (s *Server) createMapping(w http.ResponseWriter, r *http.Request) {
	var body types.RepoMapping
	if err := decode(r, &body); err != nil {
		respondErr(w, r, err)
		return
	}
	mapping, err := s.svc.CreateMapping(r.Context(), &body)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, mapping)
}

func (s *Server) listMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.svc.ListMappings(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappings)
}

func (s *Server) deleteMapping(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if err := s.svc.DeleteMapping(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) resolveBoard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := service.RepoRef{
		URL:        q.Get("url"),
		Name:       q.Get("name"),
		Branch:     q.Get("branch"),
		ConfigFile: q.Get("config_file"),
	}
	board, tags, err := s.svc.ResolveBoard(r.Context(), ref)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"board": board, "default_tags": tags})
}
