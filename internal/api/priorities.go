package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kanbanhq/kanban/internal/service"
	"github.com/kanbanhq/kanban/internal/types"
)

func (s *Server) nextTask(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter types.NextTaskFilter
	if raw := q.Get("board"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondErr(w, r, service.Validationf("invalid board filter"))
			return
		}
		filter.BoardID = &id
	}
	if raw := q.Get("assignee"); raw != "" {
		filter.Assignee = &raw
	}
	if raw := q.Get("time_available"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes < 0 {
			respondErr(w, r, service.Validationf("time_available must be non-negative minutes"))
			return
		}
		filter.TimeAvailable = minutes
	}
	if raw := q.Get("skill_tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.SkillTags = append(filter.SkillTags, tag)
			}
		}
	}
	if raw := q.Get("exclude_blocked"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			respondErr(w, r, service.Validationf("invalid exclude_blocked"))
			return
		}
		filter.ExcludeBlocked = b
	}

	rec, err := s.svc.GetNextTask(r.Context(), filter)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, rec)
}

func (s *Server) calculatePriorities(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BoardID *int64 `json:"board_id,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := decode(r, &body); err != nil {
			respondErr(w, r, err)
			return
		}
	}
	var (
		n   int
		err error
	)
	if body.BoardID != nil {
		n, err = s.svc.RecalculateBoard(r.Context(), *body.BoardID)
	} else {
		n, err = s.svc.RecalculateAll(r.Context())
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"recalculated": n})
}

func (s *Server) boardContext(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("board")
	if raw == "" {
		respondErr(w, r, service.Validationf("board query parameter is required"))
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		respondErr(w, r, service.Validationf("invalid board filter"))
		return
	}
	ctx, err := s.svc.GetBoardContext(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, ctx)
}

func (s *Server) taskContext(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	detail, err := s.svc.GetTask(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, detail)
}

// contextSummary lists every board with its open task count.
func (s *Server) contextSummary(w http.ResponseWriter, r *http.Request) {
	boards, err := s.svc.ListBoards(r.Context(), false)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	type boardSummary struct {
		Board *types.Board `json:"board"`
		Tasks int          `json:"tasks"`
	}
	summaries := make([]boardSummary, 0, len(boards))
	for _, b := range boards {
		id := b.ID
		_, total, err := s.svc.SearchTasks(r.Context(), types.TaskFilter{BoardID: &id, Limit: 1})
		if err != nil {
			respondErr(w, r, err)
			return
		}
		summaries = append(summaries, boardSummary{Board: b, Tasks: total})
	}
	respond(w, r, http.StatusOK, summaries)
}
