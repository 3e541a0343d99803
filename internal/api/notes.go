package api

import (
	"net/http"
	"strconv"

	"github.com/kanbanhq/kanban/internal/service"
	"github.com/kanbanhq/kanban/internal/types"
)

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var body struct {
		Content  string `json:"content"`
		Category string `json:"category,omitempty"`
		Pinned   bool   `json:"pinned,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		respondErr(w, r, err)
		return
	}
	note, err := s.svc.AddNote(r.Context(), service.AddNoteInput{
		TaskID:   taskID,
		Content:  body.Content,
		Category: types.NoteCategory(body.Category),
		Pinned:   body.Pinned,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, note)
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	notes, err := s.svc.ListNotes(r.Context(), taskID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, notes)
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var body struct {
		Content  *string `json:"content,omitempty"`
		Category *string `json:"category,omitempty"`
		Pinned   *bool   `json:"pinned,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		respondErr(w, r, err)
		return
	}
	in := service.UpdateNoteInput{Content: body.Content, Pinned: body.Pinned}
	if body.Category != nil {
		cat := types.NoteCategory(*body.Category)
		in.Category = &cat
	}
	note, err := s.svc.UpdateNote(r.Context(), id, in)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, note)
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if err := s.svc.DeleteNote(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) pinNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var body struct {
		Pinned bool `json:"pinned"`
	}
	if err := decode(r, &body); err != nil {
		respondErr(w, r, err)
		return
	}
	note, err := s.svc.PinNote(r.Context(), id, body.Pinned)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, note)
}

func (s *Server) searchNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var boardID *int64
	if raw := q.Get("board"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondErr(w, r, service.Validationf("invalid board filter"))
			return
		}
		boardID = &id
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			respondErr(w, r, service.Validationf("limit must be in [1,1000]"))
			return
		}
		limit = n
	}
	notes, err := s.svc.SearchNotes(r.Context(), q.Get("q"), boardID, limit)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, notes)
}
