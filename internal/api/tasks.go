package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kanbanhq/kanban/internal/service"
	"github.com/kanbanhq/kanban/internal/timeparsing"
	"github.com/kanbanhq/kanban/internal/types"
)

// taskBody is the wire shape for task creation and subtask creation.
// due_date accepts RFC 3339, YYYY-MM-DD, compact offsets (+3d), or
// natural language ("next friday").
type taskBody struct {
	BoardID        int64    `json:"board_id,omitempty"`
	ColumnID       int64    `json:"column_id,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	DueDate        string   `json:"due_date,omitempty"`
	Assignee       string   `json:"assignee,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

func parseDue(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	due, err := timeparsing.ParseDueDate(raw, time.Now())
	if err != nil {
		return nil, service.Validationf("unparseable due_date %q", raw)
	}
	return &due, nil
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var body taskBody
	if err := decode(r, &body); err != nil {
		respondErr(w, r, err)
		return
	}
	due, err := parseDue(body.DueDate)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	task, err := s.svc.CreateTask(r.Context(), service.CreateTaskInput{
		BoardID:        body.BoardID,
		ColumnID:       body.ColumnID,
		Title:          body.Title,
		Description:    body.Description,
		Priority:       types.Priority(body.Priority),
		DueDate:        due,
		Assignee:       body.Assignee,
		EstimatedHours: body.EstimatedHours,
		Tags:           body.Tags,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, task)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	filter, limit, offset, err := taskFilterFromQuery(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	tasks, total, err := s.svc.SearchTasks(r.Context(), filter)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondPage(w, r, tasks, limit, offset, total)
}

func taskFilterFromQuery(r *http.Request) (types.TaskFilter, int, int, error) {
	q := r.URL.Query()
	var f types.TaskFilter

	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			return f, 0, 0, service.Validationf("limit must be in [1,1000]")
		}
		limit = n
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, 0, 0, service.Validationf("offset must be non-negative")
		}
		offset = n
	}
	f.Limit, f.Offset = limit, offset

	if raw := q.Get("board"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return f, 0, 0, service.Validationf("invalid board filter")
		}
		f.BoardID = &id
	}
	if raw := q.Get("column"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return f, 0, 0, service.Validationf("invalid column filter")
		}
		f.ColumnID = &id
	}
	if raw := q.Get("status"); raw != "" {
		st := types.Status(raw)
		if !st.Valid() {
			return f, 0, 0, service.Validationf("unknown status %q", raw)
		}
		f.Status = &st
	}
	if raw := q.Get("assignee"); raw != "" {
		f.Assignee = &raw
	}
	if raw := q.Get("parent"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return f, 0, 0, service.Validationf("invalid parent filter")
		}
		f.ParentID = &id
	}
	if raw := q.Get("archived"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return f, 0, 0, service.Validationf("invalid archived filter")
		}
		f.Archived = &b
	}
	for param, dst := range map[string]**float64{"priority_min": &f.PriorityMin, "priority_max": &f.PriorityMax} {
		if raw := q.Get(param); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return f, 0, 0, service.Validationf("invalid %s", param)
			}
			*dst = &v
		}
	}
	if raw := q.Get("due_before"); raw != "" {
		t, err := timeparsing.ParseDueDate(raw, time.Now())
		if err != nil {
			return f, 0, 0, service.Validationf("unparseable due_before %q", raw)
		}
		f.DueBefore = &t
	}
	f.Tag = q.Get("tag")
	f.Search = q.Get("search")
	f.SortBy = q.Get("sort")
	f.SortOrder = q.Get("order")
	return f, limit, offset, nil
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
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

type taskPatch struct {
	Title          *string  `json:"title,omitempty"`
	Description    *string  `json:"description,omitempty"`
	Status         *string  `json:"status,omitempty"`
	Priority       *string  `json:"priority,omitempty"`
	DueDate        *string  `json:"due_date,omitempty"`
	Assignee       *string  `json:"assignee,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var body taskPatch
	if err := decode(r, &body); err != nil {
		respondErr(w, r, err)
		return
	}
	in := service.UpdateTaskInput{
		Title:          body.Title,
		Description:    body.Description,
		Assignee:       body.Assignee,
		EstimatedHours: body.EstimatedHours,
	}
	if body.Status != nil {
		st := types.Status(*body.Status)
		in.Status = &st
	}
	if body.Priority != nil {
		p := types.Priority(*body.Priority)
		in.Priority = &p
	}
	if body.DueDate != nil {
		if strings.TrimSpace(*body.DueDate) == "" {
			in.ClearDueDate = true
		} else {
			due, err := parseDue(*body.DueDate)
			if err != nil {
				respondErr(w, r, err)
				return
			}
			in.DueDate = due
		}
	}
	task, err := s.svc.UpdateTask(r.Context(), id, in)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if err := s.svc.DeleteTask(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) moveTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var body struct {
		ColumnID int64 `json:"column_id"`
		Position int   `json:"position"`
	}
	if err := decode(r, &body); err != nil {
		respondErr(w, r, err)
		return
	}
	task, err := s.svc.MoveTask(r.Context(), id, body.ColumnID, body.Position)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, task)
}

func (s *Server) archiveTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if err := s.svc.ArchiveTask(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"archived": id})
}

func (s *Server) createSubtask(w http.ResponseWriter, r *http.Request) {
	parentID, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var body taskBody
	if err := decode(r, &body); err != nil {
		respondErr(w, r, err)
		return
	}
	due, err := parseDue(body.DueDate)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	task, err := s.svc.CreateSubtask(r.Context(), service.CreateSubtaskInput{
		ParentID:       parentID,
		BoardID:        body.BoardID,
		Title:          body.Title,
		Description:    body.Description,
		Priority:       types.Priority(body.Priority),
		DueDate:        due,
		Assignee:       body.Assignee,
		EstimatedHours: body.EstimatedHours,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, task)
}

func (s *Server) listSubtasks(w http.ResponseWriter, r *http.Request) {
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
	respond(w, r, http.StatusOK, detail.Subtasks)
}

func (s *Server) addDependency(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	var body struct {
		DependsOnID int64  `json:"depends_on_id"`
		Type        string `json:"type,omitempty"`
	}
	if err := decode(r, &body); err != nil {
		respondErr(w, r, err)
		return
	}
	depType := types.DepType(body.Type)
	if body.Type == "" {
		depType = types.DepBlocks
	}
	if err := s.svc.AddDependency(r.Context(), id, body.DependsOnID, depType); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, map[string]any{
		"task_id": id, "depends_on_id": body.DependsOnID, "type": depType,
	})
}

func (s *Server) listDependencies(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	out, in, err := s.svc.ListDependencies(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"dependencies": out, "dependents": in})
}

func (s *Server) removeDependency(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	depID, err := pathID(r, "depID")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if err := s.svc.RemoveDependency(r.Context(), id, depID); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"task_id": id, "depends_on_id": depID})
}

func (s *Server) tagTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	tagID, err := pathID(r, "tagID")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if err := s.svc.TagTask(r.Context(), id, tagID); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"task_id": id, "tag_id": tagID})
}

func (s *Server) untagTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	tagID, err := pathID(r, "tagID")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if err := s.svc.UntagTask(r.Context(), id, tagID); err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"task_id": id, "tag_id": tagID})
}
