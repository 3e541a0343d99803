package service

import (
	"context"
	"strings"
	"time"

	"github.com/kanbanhq/kanban/internal/engine"
	"github.com/kanbanhq/kanban/internal/eventbus"
	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

// CreateTaskInput is the request shape for CreateTask.
type CreateTaskInput struct {
	BoardID        int64          `json:"board_id" validate:"required"`
	ColumnID       int64          `json:"column_id,omitempty"`
	Title          string         `json:"title" validate:"required,max=500"`
	Description    string         `json:"description,omitempty"`
	Priority       types.Priority `json:"priority,omitempty"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	Assignee       string         `json:"assignee,omitempty"`
	EstimatedHours *float64       `json:"estimated_hours,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
}

// CreateTask creates a task at the tail of its column and recomputes
// board scores. Emits task:created.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (*types.Task, error) {
	task := &types.Task{
		BoardID:        in.BoardID,
		ColumnID:       in.ColumnID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Status:         types.StatusTodo,
		Priority:       in.Priority,
		DueDate:        in.DueDate,
		Assignee:       in.Assignee,
		EstimatedHours: in.EstimatedHours,
	}
	if task.Priority == "" {
		task.Priority = types.PriorityMedium
	}
	if err := task.Validate(); err != nil {
		return nil, Validationf("%v", err)
	}

	err := s.write(ctx, "task", func(tx storage.Tx, ev *eventBuffer) error {
		if _, err := tx.GetBoard(ctx, in.BoardID); err != nil {
			return boardNotFound(err, in.BoardID)
		}
		col, err := resolveColumn(ctx, tx, in.BoardID, in.ColumnID)
		if err != nil {
			return err
		}
		task.ColumnID = col.ID

		n, err := tx.CountTasks(ctx, types.TaskFilter{ColumnID: &col.ID})
		if err != nil {
			return err
		}
		task.Position = n
		if err := tx.CreateTask(ctx, task); err != nil {
			return err
		}
		if err := attachTagsBySlug(ctx, tx, task.ID, in.Tags); err != nil {
			return err
		}
		if err := s.recomputeScores(ctx, tx, in.BoardID); err != nil {
			return err
		}
		ev.emit(eventbus.TaskCreated, in.BoardID, map[string]any{
			"task_id": task.ID, "column_id": task.ColumnID, "title": task.Title,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// CreateSubtaskInput is the request shape for CreateSubtask.
type CreateSubtaskInput struct {
	ParentID       int64          `json:"parent_id" validate:"required"`
	BoardID        int64          `json:"board_id,omitempty"`
	Title          string         `json:"title" validate:"required,max=500"`
	Description    string         `json:"description,omitempty"`
	Priority       types.Priority `json:"priority,omitempty"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	Assignee       string         `json:"assignee,omitempty"`
	EstimatedHours *float64       `json:"estimated_hours,omitempty"`
}

// CreateSubtask creates a child task under a parent. The child
// inherits the parent's board and column and is placed after its last
// sibling. Depth is capped; a parent at the maximum depth rejects new
// children.
func (s *Service) CreateSubtask(ctx context.Context, in CreateSubtaskInput) (*types.Task, error) {
	task := &types.Task{
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Status:         types.StatusTodo,
		Priority:       in.Priority,
		DueDate:        in.DueDate,
		Assignee:       in.Assignee,
		EstimatedHours: in.EstimatedHours,
	}
	if task.Priority == "" {
		task.Priority = types.PriorityMedium
	}
	if err := task.Validate(); err != nil {
		return nil, Validationf("%v", err)
	}

	err := s.write(ctx, "task", func(tx storage.Tx, ev *eventBuffer) error {
		parent, err := tx.GetTask(ctx, in.ParentID)
		if err != nil {
			return err
		}
		if in.BoardID != 0 && in.BoardID != parent.BoardID {
			return Conflict(CodeCrossBoard, "subtask must live on the parent's board", map[string]any{
				"parent_board_id": parent.BoardID, "board_id": in.BoardID,
			})
		}
		depth, err := tx.TaskDepth(ctx, in.ParentID)
		if err != nil {
			return err
		}
		if depth >= types.MaxSubtaskDepth {
			return Conflict(CodeDepthExceeded, "subtask depth limit reached", map[string]any{
				"parent_id": in.ParentID, "depth": depth, "max_depth": types.MaxSubtaskDepth,
			})
		}

		siblings, err := tx.ListSubtasks(ctx, in.ParentID)
		if err != nil {
			return err
		}
		parentID := in.ParentID
		task.BoardID = parent.BoardID
		task.ColumnID = parent.ColumnID
		task.ParentTaskID = &parentID
		task.Position = len(siblings)
		if err := tx.CreateTask(ctx, task); err != nil {
			return err
		}

		tasks, err := tx.ListBoardTasks(ctx, parent.BoardID, true)
		if err != nil {
			return err
		}
		if err := rollupProgress(ctx, tx, tasks, task.ID); err != nil {
			return err
		}
		if err := s.recomputeScores(ctx, tx, parent.BoardID); err != nil {
			return err
		}
		ev.emit(eventbus.TaskCreated, parent.BoardID, map[string]any{
			"task_id": task.ID, "parent_id": in.ParentID, "title": task.Title,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// TaskDetail is a task with its attached aggregates.
type TaskDetail struct {
	Task         *types.Task         `json:"task"`
	Tags         []*types.Tag        `json:"tags,omitempty"`
	Progress     *types.TaskProgress `json:"progress,omitempty"`
	Subtasks     []*types.Task       `json:"subtasks,omitempty"`
	Dependencies []*types.Dependency `json:"dependencies,omitempty"`
	Dependents   []*types.Dependency `json:"dependents,omitempty"`
}

// GetTask returns a task with tags, progress, subtasks, and edges.
func (s *Service) GetTask(ctx context.Context, id int64) (*TaskDetail, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, wrapStorage(err, "task")
	}
	d := &TaskDetail{Task: task}
	if d.Tags, err = s.store.ListTaskTags(ctx, id); err != nil {
		return nil, wrapStorage(err, "task")
	}
	if d.Progress, err = s.store.GetProgress(ctx, id); err != nil {
		return nil, wrapStorage(err, "task")
	}
	if d.Subtasks, err = s.store.ListSubtasks(ctx, id); err != nil {
		return nil, wrapStorage(err, "task")
	}
	if d.Dependencies, err = s.store.ListDependencies(ctx, id); err != nil {
		return nil, wrapStorage(err, "task")
	}
	if d.Dependents, err = s.store.ListDependents(ctx, id); err != nil {
		return nil, wrapStorage(err, "task")
	}
	return d, nil
}

// SearchTasks runs a filtered task query and returns the page plus the
// unpaginated total.
func (s *Service) SearchTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, int, error) {
	if filter.Limit < 0 {
		return nil, 0, Validationf("limit must be non-negative")
	}
	tasks, err := s.store.SearchTasks(ctx, filter)
	if err != nil {
		return nil, 0, wrapStorage(err, "task")
	}
	total, err := s.store.CountTasks(ctx, filter)
	if err != nil {
		return nil, 0, wrapStorage(err, "task")
	}
	return tasks, total, nil
}

// UpdateTaskInput is the request shape for UpdateTask. Nil fields are
// left unchanged.
type UpdateTaskInput struct {
	Title          *string         `json:"title,omitempty"`
	Description    *string         `json:"description,omitempty"`
	Status         *types.Status   `json:"status,omitempty"`
	Priority       *types.Priority `json:"priority,omitempty"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	ClearDueDate   bool            `json:"clear_due_date,omitempty"`
	Assignee       *string         `json:"assignee,omitempty"`
	EstimatedHours *float64        `json:"estimated_hours,omitempty"`
}

// UpdateTask applies a partial update. Status changes go through the
// same transition rules as UpdateTaskStatus. Emits task:updated.
func (s *Service) UpdateTask(ctx context.Context, id int64, in UpdateTaskInput) (*types.Task, error) {
	if in.Priority != nil && !in.Priority.Valid() {
		return nil, Validationf("invalid priority: %q", *in.Priority)
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, Validationf("task title is required")
	}
	if in.EstimatedHours != nil && *in.EstimatedHours < 0 {
		return nil, Validationf("estimated_hours must be non-negative")
	}

	var task *types.Task
	err := s.write(ctx, "task", func(tx storage.Tx, ev *eventBuffer) error {
		var err error
		task, err = tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		upd := types.TaskUpdate{
			Title:          in.Title,
			Description:    in.Description,
			Priority:       in.Priority,
			DueDate:        in.DueDate,
			ClearDueDate:   in.ClearDueDate,
			Assignee:       in.Assignee,
			EstimatedHours: in.EstimatedHours,
		}
		if !upd.Empty() {
			if err := tx.UpdateTask(ctx, id, upd); err != nil {
				return err
			}
		}
		if in.Status != nil && *in.Status != task.Status {
			if err := s.transitionStatus(ctx, tx, task, *in.Status, ev); err != nil {
				return err
			}
		} else if err := s.recomputeScores(ctx, tx, task.BoardID); err != nil {
			return err
		}
		ev.emit(eventbus.TaskUpdated, task.BoardID, map[string]any{"task_id": id})
		task, err = tx.GetTask(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTaskStatus transitions a task's lifecycle status. Completing a
// parent with open subtasks fails; completing a subtask rolls progress
// up the ancestor chain; completing a blocker re-evaluates dependents.
// Emits task:updated, plus subtask:completed and
// dependency:unblocked/blocked as the transition warrants.
func (s *Service) UpdateTaskStatus(ctx context.Context, id int64, status types.Status) (*types.Task, error) {
	if !status.Valid() {
		return nil, Validationf("invalid status: %q", status)
	}
	var task *types.Task
	err := s.write(ctx, "task", func(tx storage.Tx, ev *eventBuffer) error {
		var err error
		task, err = tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if task.Status == status {
			return nil
		}
		if err := s.transitionStatus(ctx, tx, task, status, ev); err != nil {
			return err
		}
		ev.emit(eventbus.TaskUpdated, task.BoardID, map[string]any{
			"task_id": id, "status": string(status),
		})
		task, err = tx.GetTask(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// transitionStatus applies one status change inside an open
// transaction: the open-children gate, the write itself, blocked
// re-derivation for dependents, and the progress rollup.
func (s *Service) transitionStatus(ctx context.Context, tx storage.Tx, task *types.Task, status types.Status, ev *eventBuffer) error {
	if status == types.StatusDone {
		tasks, err := tx.ListBoardTasks(ctx, task.BoardID, true)
		if err != nil {
			return err
		}
		h := engine.NewHierarchy(tasks)
		if open := h.OpenChildren(task.ID); len(open) > 0 {
			return Conflict(CodeHasOpenChildren, "task has incomplete subtasks", map[string]any{
				"task_id": task.ID, "open_children": open,
			})
		}
	}

	if err := tx.UpdateTask(ctx, task.ID, types.TaskUpdate{Status: &status}); err != nil {
		return err
	}

	g, tasks, err := boardGraph(ctx, tx, task.BoardID)
	if err != nil {
		return err
	}
	deps, err := tx.ListDependents(ctx, task.ID)
	if err != nil {
		return err
	}
	var dependents []int64
	for _, d := range deps {
		if d.Type == types.DepBlocks {
			dependents = append(dependents, d.TaskID)
		}
	}
	if err := syncBlockedStatus(ctx, tx, g, task.BoardID, dependents, ev); err != nil {
		return err
	}
	if err := rollupProgress(ctx, tx, tasks, task.ID); err != nil {
		return err
	}
	if status == types.StatusDone && task.ParentTaskID != nil {
		h := engine.NewHierarchy(tasks)
		p := h.Progress(*task.ParentTaskID)
		ev.emit(eventbus.SubtaskCompleted, task.BoardID, map[string]any{
			"task_id": task.ID, "parent_id": *task.ParentTaskID,
			"percent_complete": p.PercentComplete,
		})
	}
	return s.recomputeScores(ctx, tx, task.BoardID)
}

// MoveTask moves a task to a column at a position, rewriting sibling
// positions densely. The target column must belong to the task's
// board. Emits task:moved.
func (s *Service) MoveTask(ctx context.Context, id, columnID int64, position int) (*types.Task, error) {
	var task *types.Task
	err := s.write(ctx, "task", func(tx storage.Tx, ev *eventBuffer) error {
		var err error
		task, err = tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		col, err := tx.GetColumn(ctx, columnID)
		if err != nil {
			return err
		}
		if col.BoardID != task.BoardID {
			return Conflict(CodeColumnMismatch, "column belongs to another board", map[string]any{
				"task_board_id": task.BoardID, "column_board_id": col.BoardID,
			})
		}

		siblings, err := tx.SearchTasks(ctx, types.TaskFilter{
			ColumnID: &columnID, SortBy: "position", SortOrder: "asc", Limit: 10000,
		})
		if err != nil {
			return err
		}
		ordered := make([]*types.Task, 0, len(siblings)+1)
		for _, t := range siblings {
			if t.ID != id {
				ordered = append(ordered, t)
			}
		}
		if position < 0 {
			position = 0
		}
		if position > len(ordered) {
			position = len(ordered)
		}
		ordered = append(ordered[:position], append([]*types.Task{task}, ordered[position:]...)...)

		for i, t := range ordered {
			pos := i
			upd := types.TaskUpdate{Position: &pos}
			if t.ID == id {
				upd.ColumnID = &columnID
			} else if t.Position == i {
				continue
			}
			if err := tx.UpdateTask(ctx, t.ID, upd); err != nil {
				return err
			}
		}

		// The old column keeps dense positions too.
		if task.ColumnID != columnID {
			old, err := tx.SearchTasks(ctx, types.TaskFilter{
				ColumnID: &task.ColumnID, SortBy: "position", SortOrder: "asc", Limit: 10000,
			})
			if err != nil {
				return err
			}
			i := 0
			for _, t := range old {
				if t.ID == id {
					continue
				}
				if t.Position != i {
					pos := i
					if err := tx.UpdateTask(ctx, t.ID, types.TaskUpdate{Position: &pos}); err != nil {
						return err
					}
				}
				i++
			}
		}

		ev.emit(eventbus.TaskMoved, task.BoardID, map[string]any{
			"task_id": id, "column_id": columnID, "position": position,
		})
		task, err = tx.GetTask(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ArchiveTask archives a task. Archived tasks stop blocking their
// dependents and leave their parent's progress denominator.
func (s *Service) ArchiveTask(ctx context.Context, id int64) error {
	return s.write(ctx, "task", func(tx storage.Tx, ev *eventBuffer) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		archived := true
		if err := tx.UpdateTask(ctx, id, types.TaskUpdate{Archived: &archived}); err != nil {
			return err
		}
		if err := s.transitionStatus(ctx, tx, task, types.StatusArchived, ev); err != nil {
			return err
		}
		ev.emit(eventbus.TaskUpdated, task.BoardID, map[string]any{
			"task_id": id, "archived": true,
		})
		return nil
	})
}

// DeleteTask removes a task. Edges and notes cascade; dependents that
// lose their last live blocker unblock in the same transaction.
// Emits task:deleted.
func (s *Service) DeleteTask(ctx context.Context, id int64) error {
	return s.write(ctx, "task", func(tx storage.Tx, ev *eventBuffer) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		deps, err := tx.ListDependents(ctx, id)
		if err != nil {
			return err
		}
		var dependents []int64
		for _, d := range deps {
			if d.Type == types.DepBlocks {
				dependents = append(dependents, d.TaskID)
			}
		}
		if err := tx.DeleteTask(ctx, id); err != nil {
			return err
		}

		g, tasks, err := boardGraph(ctx, tx, task.BoardID)
		if err != nil {
			return err
		}
		if err := syncBlockedStatus(ctx, tx, g, task.BoardID, dependents, ev); err != nil {
			return err
		}
		if task.ParentTaskID != nil {
			if err := rollupProgress(ctx, tx, tasks, *task.ParentTaskID); err != nil {
				return err
			}
		}
		if err := s.recomputeScores(ctx, tx, task.BoardID); err != nil {
			return err
		}
		ev.emit(eventbus.TaskDeleted, task.BoardID, map[string]any{"task_id": id})
		return nil
	})
}

// resolveColumn picks the task's column: the named one, validated to
// belong to the board, or the board's first column when unspecified.
func resolveColumn(ctx context.Context, tx storage.Tx, boardID, columnID int64) (*types.Column, error) {
	if columnID == 0 {
		cols, err := tx.ListColumns(ctx, boardID)
		if err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			return nil, Validationf("board %d has no columns", boardID)
		}
		return cols[0], nil
	}
	col, err := tx.GetColumn(ctx, columnID)
	if err != nil {
		return nil, err
	}
	if col.BoardID != boardID {
		return nil, Conflict(CodeColumnMismatch, "column belongs to another board", map[string]any{
			"board_id": boardID, "column_board_id": col.BoardID,
		})
	}
	return col, nil
}
