package api

import (
	"net/http"
	"strconv"

	"github.com/kanbanhq/kanban/internal/service"
)

func (s *Server) createBoard(w http.ResponseWriter, r *http.Request) {
	var in service.CreateBoardInput
	if err := decode(r, &in); err != nil {
		respondErr(w, r, err)
		return
	}
	board, err := s.svc.CreateBoard(r.Context(), in)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, board)
}

func (s *Server) listBoards(w http.ResponseWriter, r *http.Request) {
	includeArchived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))
	boards, err := s.svc.ListBoards(r.Context(), includeArchived)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, boards)
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	board, columns, err := s.svc.GetBoard(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"board": board, "columns": columns})
}

func (s *Server) updateBoard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var in service.UpdateBoardInput
	if err := decode(r, &in); err != nil {
		respondErr(w, r, err)
		return
	}
	board, err := s.svc.UpdateBoard(r.Context(), id, in)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, board)
}

func (s *Server) deleteBoard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if err := s.svc.DeleteBoard(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) createColumn(w http.ResponseWriter, r *http.Request) {
	boardID, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var body struct {
		Name  string `json:"name"`
		Color string `json:"color,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		respondErr(w, r, err)
		return
	}
	col, err := s.svc.CreateColumn(r.Context(), service.CreateColumnInput{
		BoardID: boardID,
		Name:    body.Name,
		Color:   body.Color,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, col)
}

func (s *Server) updateColumn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var in service.UpdateColumnInput
	if err := decode(r, &in); err != nil {
		respondErr(w, r, err)
		return
	}
	col, err := s.svc.UpdateColumn(r.Context(), id, in)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, col)
}

func (s *Server) deleteColumn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if err := s.svc.DeleteColumn(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"deleted": id})
}
