package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kanbanhq/kanban/internal/service"
	"github.com/kanbanhq/kanban/internal/timeparsing"
	"github.com/kanbanhq/kanban/internal/types"
)

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

func (r *Registry) registerBoardTools() {
	r.register(&Tool{
		Name:        "create_board",
		Description: "Create a kanban board with an optional custom column set.",
		InputSchema: obj(map[string]any{
			"name":        str("Board name"),
			"description": str("Board description"),
			"columns":     strArray("Column names in order; defaults to To Do / In Progress / Done"),
		}, "name"),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in service.CreateBoardInput
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			return r.svc.CreateBoard(ctx, in)
		},
	})

	r.register(&Tool{
		Name:        "list_boards",
		Description: "List all boards.",
		InputSchema: obj(map[string]any{
			"include_archived": boolean("Include archived boards"),
		}),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				IncludeArchived bool `json:"include_archived"`
			}
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			return r.svc.ListBoards(ctx, in.IncludeArchived)
		},
	})

	r.register(&Tool{
		Name:        "board_context",
		Description: "Summarize a board: status counts, top priorities, blocked and overdue tasks, and the recommended next task.",
		InputSchema: obj(map[string]any{
			"board_id": integer("Board to summarize"),
		}, "board_id"),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				BoardID int64 `json:"board_id"`
			}
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			return r.svc.GetBoardContext(ctx, in.BoardID)
		},
	})

	r.register(&Tool{
		Name:        "resolve_board",
		Description: "Resolve a repository checkout to its mapped board.",
		InputSchema: obj(map[string]any{
			"url":         str("Repository remote URL"),
			"name":        str("Repository name"),
			"branch":      str("Checked-out branch"),
			"config_file": str("Project config file name"),
		}),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var ref service.RepoRef
			if err := parseArgs(args, &ref); err != nil {
				return nil, err
			}
			board, tags, err := r.svc.ResolveBoard(ctx, ref)
			if err != nil {
				return nil, err
			}
			return map[string]any{"board": board, "default_tags": tags}, nil
		},
	})
}

// taskArgs is the shared argument shape for task creation tools.
// due_date accepts RFC 3339, YYYY-MM-DD, compact offsets, or natural
// language.
type taskArgs struct {
	BoardID        int64    `json:"board_id,omitempty"`
	ColumnID       int64    `json:"column_id,omitempty"`
	ParentID       int64    `json:"parent_id,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	DueDate        string   `json:"due_date,omitempty"`
	Assignee       string   `json:"assignee,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

func (r *Registry) registerTaskTools() {
	taskSchema := map[string]any{
		"board_id":        integer("Board the task belongs to"),
		"column_id":       integer("Target column; defaults to the board's first column"),
		"title":           str("Task title"),
		"description":     str("Task description"),
		"priority":        str("low, medium, high, or critical"),
		"due_date":        str("Due date: RFC 3339, YYYY-MM-DD, +3d, or natural language"),
		"assignee":        str("Assignee"),
		"estimated_hours": number("Estimated effort in hours"),
		"tags":            strArray("Tag slugs to attach, created on demand"),
	}

	r.register(&Tool{
		Name:        "create_task",
		Description: "Create a task on a board.",
		InputSchema: obj(taskSchema, "board_id", "title"),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in taskArgs
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			due, err := parseDue(in.DueDate)
			if err != nil {
				return nil, err
			}
			return r.svc.CreateTask(ctx, service.CreateTaskInput{
				BoardID:        in.BoardID,
				ColumnID:       in.ColumnID,
				Title:          in.Title,
				Description:    in.Description,
				Priority:       types.Priority(in.Priority),
				DueDate:        due,
				Assignee:       in.Assignee,
				EstimatedHours: in.EstimatedHours,
				Tags:           in.Tags,
			})
		},
	})

	r.register(&Tool{
		Name:        "create_subtask",
		Description: "Create a subtask under a parent task. The child inherits the parent's board and column.",
		InputSchema: obj(map[string]any{
			"parent_id":       integer("Parent task"),
			"title":           str("Subtask title"),
			"description":     str("Subtask description"),
			"priority":        str("low, medium, high, or critical"),
			"due_date":        str("Due date"),
			"assignee":        str("Assignee"),
			"estimated_hours": number("Estimated effort in hours"),
		}, "parent_id", "title"),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in taskArgs
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			due, err := parseDue(in.DueDate)
			if err != nil {
				return nil, err
			}
			return r.svc.CreateSubtask(ctx, service.CreateSubtaskInput{
				ParentID:       in.ParentID,
				Title:          in.Title,
				Description:    in.Description,
				Priority:       types.Priority(in.Priority),
				DueDate:        due,
				Assignee:       in.Assignee,
				EstimatedHours: in.EstimatedHours,
			})
		},
	})

	r.register(&Tool{
		Name:        "get_task",
		Description: "Fetch a task with its tags, progress, subtasks, and dependency edges.",
		InputSchema: obj(map[string]any{
			"task_id": integer("Task to fetch"),
		}, "task_id"),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				TaskID int64 `json:"task_id"`
			}
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			return r.svc.GetTask(ctx, in.TaskID)
		},
	})

	r.register(&Tool{
		Name:        "update_task_status",
		Description: "Move a task to a new status. Completing a parent with open subtasks is rejected.",
		InputSchema: obj(map[string]any{
			"task_id": integer("Task to update"),
			"status":  str("todo, in_progress, done, blocked, or archived"),
		}, "task_id", "status"),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				TaskID int64  `json:"task_id"`
				Status string `json:"status"`
			}
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			return r.svc.UpdateTaskStatus(ctx, in.TaskID, types.Status(in.Status))
		},
	})

	r.register(&Tool{
		Name:        "move_task",
		Description: "Move a task to a column position within its board.",
		InputSchema: obj(map[string]any{
			"task_id":   integer("Task to move"),
			"column_id": integer("Destination column"),
			"position":  integer("Zero-based position in the destination column"),
		}, "task_id", "column_id"),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				TaskID   int64 `json:"task_id"`
				ColumnID int64 `json:"column_id"`
				Position int   `json:"position"`
			}
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			return r.svc.MoveTask(ctx, in.TaskID, in.ColumnID, in.Position)
		},
	})

	r.register(&Tool{
		Name:        "list_tasks",
		Description: "Search tasks with filters.",
		InputSchema: obj(map[string]any{
			"board_id": integer("Restrict to one board"),
			"status":   str("Filter by status"),
			"assignee": str("Filter by assignee"),
			"tag":      str("Filter by tag slug"),
			"search":   str("Full-text search over title and description"),
			"limit":    integer("Page size, up to 1000"),
			"offset":   integer("Page offset"),
		}),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				BoardID  *int64 `json:"board_id,omitempty"`
				Status   string `json:"status,omitempty"`
				Assignee string `json:"assignee,omitempty"`
				Tag      string `json:"tag,omitempty"`
				Search   string `json:"search,omitempty"`
				Limit    int    `json:"limit,omitempty"`
				Offset   int    `json:"offset,omitempty"`
			}
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			filter := types.TaskFilter{
				BoardID: in.BoardID,
				Tag:     in.Tag,
				Search:  in.Search,
				Limit:   in.Limit,
				Offset:  in.Offset,
			}
			if filter.Limit <= 0 {
				filter.Limit = 50
			}
			if in.Status != "" {
				st := types.Status(in.Status)
				filter.Status = &st
			}
			if in.Assignee != "" {
				filter.Assignee = &in.Assignee
			}
			tasks, total, err := r.svc.SearchTasks(ctx, filter)
			if err != nil {
				return nil, err
			}
			return map[string]any{"tasks": tasks, "total": total}, nil
		},
	})
}

func (r *Registry) registerDependencyTools() {
	r.register(&Tool{
		Name:        "add_dependency",
		Description: "Add a dependency edge between tasks. Blocking edges must stay on one board and may not form cycles.",
		InputSchema: obj(map[string]any{
			"task_id":       integer("Dependent task"),
			"depends_on_id": integer("Task it depends on"),
			"type":          str("blocks (default), related, or parent-child"),
		}, "task_id", "depends_on_id"),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				TaskID      int64  `json:"task_id"`
				DependsOnID int64  `json:"depends_on_id"`
				Type        string `json:"type,omitempty"`
			}
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			depType := types.DepType(in.Type)
			if in.Type == "" {
				depType = types.DepBlocks
			}
			if err := r.svc.AddDependency(ctx, in.TaskID, in.DependsOnID, depType); err != nil {
				return nil, err
			}
			return map[string]any{"task_id": in.TaskID, "depends_on_id": in.DependsOnID}, nil
		},
	})

	r.register(&Tool{
		Name:        "remove_dependency",
		Description: "Remove a dependency edge.",
		InputSchema: obj(map[string]any{
			"task_id":       integer("Dependent task"),
			"depends_on_id": integer("Task it depends on"),
		}, "task_id", "depends_on_id"),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				TaskID      int64 `json:"task_id"`
				DependsOnID int64 `json:"depends_on_id"`
			}
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			if err := r.svc.RemoveDependency(ctx, in.TaskID, in.DependsOnID); err != nil {
				return nil, err
			}
			return map[string]any{"task_id": in.TaskID, "depends_on_id": in.DependsOnID}, nil
		},
	})
}

func (r *Registry) registerPriorityTools() {
	r.register(&Tool{
		Name:        "next_task",
		Description: "Recommend the highest-value unblocked task, with scoring reasons.",
		InputSchema: obj(map[string]any{
			"board_id":       integer("Restrict to one board"),
			"assignee":       str("Restrict to one assignee"),
			"skill_tags":     strArray("Prefer tasks carrying any of these tag slugs"),
			"time_available": integer("Available minutes; excludes larger estimates"),
		}),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				BoardID       *int64   `json:"board_id,omitempty"`
				Assignee      string   `json:"assignee,omitempty"`
				SkillTags     []string `json:"skill_tags,omitempty"`
				TimeAvailable int      `json:"time_available,omitempty"`
			}
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			filter := types.NextTaskFilter{
				BoardID:       in.BoardID,
				SkillTags:     in.SkillTags,
				TimeAvailable: in.TimeAvailable,
			}
			if in.Assignee != "" {
				filter.Assignee = &in.Assignee
			}
			return r.svc.GetNextTask(ctx, filter)
		},
	})

	r.register(&Tool{
		Name:        "recalculate_priorities",
		Description: "Recompute priority scores for one board or all boards.",
		InputSchema: obj(map[string]any{
			"board_id": integer("Board to recompute; omit for all"),
		}),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				BoardID *int64 `json:"board_id,omitempty"`
			}
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			var (
				n   int
				err error
			)
			if in.BoardID != nil {
				n, err = r.svc.RecalculateBoard(ctx, *in.BoardID)
			} else {
				n, err = r.svc.RecalculateAll(ctx)
			}
			if err != nil {
				return nil, err
			}
			return map[string]any{"recalculated": n}, nil
		},
	})
}

func (r *Registry) registerNoteTools() {
	r.register(&Tool{
		Name:        "add_note",
		Description: "Attach a note to a task.",
		InputSchema: obj(map[string]any{
			"task_id":  integer("Task to annotate"),
			"content":  str("Note body"),
			"category": str("general, implementation, research, blocker, or idea"),
			"pinned":   boolean("Pin the note"),
		}, "task_id", "content"),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				TaskID   int64  `json:"task_id"`
				Content  string `json:"content"`
				Category string `json:"category,omitempty"`
				Pinned   bool   `json:"pinned,omitempty"`
			}
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			return r.svc.AddNote(ctx, service.AddNoteInput{
				TaskID:   in.TaskID,
				Content:  in.Content,
				Category: types.NoteCategory(in.Category),
				Pinned:   in.Pinned,
			})
		},
	})

	r.register(&Tool{
		Name:        "search_notes",
		Description: "Full-text search across notes.",
		InputSchema: obj(map[string]any{
			"query":    str("Search query"),
			"board_id": integer("Restrict to one board"),
			"limit":    integer("Maximum results"),
		}, "query"),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				Query   string `json:"query"`
				BoardID *int64 `json:"board_id,omitempty"`
				Limit   int    `json:"limit,omitempty"`
			}
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			return r.svc.SearchNotes(ctx, in.Query, in.BoardID, in.Limit)
		},
	})
}

func (r *Registry) registerAdminTools() {
	r.register(&Tool{
		Name:        "trigger_backup",
		Description: "Run an on-demand verified snapshot of the database.",
		InputSchema: obj(map[string]any{
			"name": str("Optional backup name"),
		}),
		handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				Name string `json:"name,omitempty"`
			}
			if err := parseArgs(args, &in); err != nil {
				return nil, err
			}
			return r.svc.TriggerBackup(ctx, in.Name)
		},
	})
}
