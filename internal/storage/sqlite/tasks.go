package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kanbanhq/kanban/internal/types"
)

const taskCols = "id, board_id, column_id, parent_task_id, title, description, " +
	"status, priority, priority_score, due_date, assignee, estimated_hours, " +
	"position, created_at, updated_at, archived"

// prefixedTaskCols qualifies every task column with a table alias for
// use in joins.
func prefixedTaskCols(alias string) string {
	cols := strings.Split(taskCols, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func scanTask(row rowScanner) (*types.Task, error) {
	var (
		t        types.Task
		parent   sql.NullInt64
		due      sql.NullTime
		estimate sql.NullFloat64
	)
	if err := row.Scan(&t.ID, &t.BoardID, &t.ColumnID, &parent, &t.Title,
		&t.Description, &t.Status, &t.Priority, &t.PriorityScore, &due,
		&t.Assignee, &estimate, &t.Position, &t.CreatedAt, &t.UpdatedAt,
		&t.Archived); err != nil {
		return nil, err
	}
	t.ParentTaskID = int64Ptr(parent)
	t.DueDate = timePtr(due)
	t.EstimatedHours = float64Ptr(estimate)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]*types.Task, error) {
	defer func() { _ = rows.Close() }()
	var tasks []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, wrapDBError("scan task", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CreateTask inserts a task and assigns its ID. Position defaults to
// the tail of the column when left at zero and the column has rows.
func (q queries) CreateTask(ctx context.Context, t *types.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = types.StatusTodo
	}
	if t.Priority == "" {
		t.Priority = types.PriorityMedium
	}

	res, err := q.dbtx.ExecContext(ctx, `
		INSERT INTO tasks (board_id, column_id, parent_task_id, title,
			description, status, priority, priority_score, due_date,
			assignee, estimated_hours, position, created_at, updated_at, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.BoardID, t.ColumnID, nullInt64(t.ParentTaskID), t.Title,
		t.Description, t.Status, t.Priority, t.PriorityScore, nullTime(t.DueDate),
		t.Assignee, nullFloat64(t.EstimatedHours), t.Position, t.CreatedAt,
		t.UpdatedAt, t.Archived)
	if err != nil {
		return wrapDBError("insert task", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDBError("insert task id", err)
	}
	t.ID = id
	return nil
}

// GetTask fetches a task by ID.
func (q queries) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	t, err := scanTask(q.dbtx.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		return nil, wrapDBError("get task", err)
	}
	return t, nil
}

// UpdateTask applies a partial update. Empty updates are a no-op.
func (q queries) UpdateTask(ctx context.Context, id int64, upd types.TaskUpdate) error {
	if upd.Empty() {
		return nil
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	appendSet := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}

	if upd.Title != nil {
		appendSet("title", *upd.Title)
	}
	if upd.Description != nil {
		appendSet("description", *upd.Description)
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return fmt.Errorf("invalid status: %q", *upd.Status)
		}
		appendSet("status", *upd.Status)
	}
	if upd.Priority != nil {
		if !upd.Priority.Valid() {
			return fmt.Errorf("invalid priority: %q", *upd.Priority)
		}
		appendSet("priority", *upd.Priority)
	}
	if upd.PriorityScore != nil {
		appendSet("priority_score", *upd.PriorityScore)
	}
	if upd.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	} else if upd.DueDate != nil {
		appendSet("due_date", *upd.DueDate)
	}
	if upd.Assignee != nil {
		appendSet("assignee", *upd.Assignee)
	}
	if upd.EstimatedHours != nil {
		appendSet("estimated_hours", *upd.EstimatedHours)
	}
	if upd.ColumnID != nil {
		appendSet("column_id", *upd.ColumnID)
	}
	if upd.Position != nil {
		appendSet("position", *upd.Position)
	}
	if upd.Archived != nil {
		appendSet("archived", *upd.Archived)
	}

	args = append(args, id)
	// #nosec G201 - column names come from the fixed set above
	res, err := q.dbtx.ExecContext(ctx,
		fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return wrapDBError("update task", err)
	}
	return requireRowAffected(res, "update task")
}

// DeleteTask removes a task; subtasks, edges, notes, and tags cascade.
func (q queries) DeleteTask(ctx context.Context, id int64) error {
	res, err := q.dbtx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete task", err)
	}
	return requireRowAffected(res, "delete task")
}

// searchQuery translates a TaskFilter into the typed query builder.
func searchQuery(filter types.TaskFilter) *query {
	q := tasksTable.selectCols(strings.Split(taskCols, ", ")...)

	if filter.BoardID != nil {
		q.where("board_id", "=", *filter.BoardID)
	}
	if filter.ColumnID != nil {
		q.where("column_id", "=", *filter.ColumnID)
	}
	if filter.Status != nil {
		q.where("status", "=", string(*filter.Status))
	}
	if filter.Assignee != nil {
		q.where("assignee", "=", *filter.Assignee)
	}
	if filter.PriorityMin != nil {
		q.where("priority_score", ">=", *filter.PriorityMin)
	}
	if filter.PriorityMax != nil {
		q.where("priority_score", "<=", *filter.PriorityMax)
	}
	if filter.DueBefore != nil {
		q.where("due_date", "<=", *filter.DueBefore)
	}
	if filter.ParentID != nil {
		q.where("parent_task_id", "=", *filter.ParentID)
	}
	if filter.Archived != nil {
		q.where("archived", "=", *filter.Archived)
	} else {
		q.where("archived", "=", false)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q.whereRaw("(title LIKE ? OR description LIKE ?)", pattern, pattern)
	}
	if filter.Tag != "" {
		q.whereRaw(`EXISTS (
			SELECT 1 FROM task_tags tt JOIN tags g ON tt.tag_id = g.id
			WHERE tt.task_id = tasks.id AND (g.slug = ? OR g.path = ?)
		)`, filter.Tag, filter.Tag)
	}
	return q
}

// sortableColumns restricts API-supplied sort keys.
var sortableColumns = map[string]bool{
	"created_at": true, "updated_at": true, "due_date": true,
	"priority_score": true, "position": true, "title": true, "status": true,
}

// SearchTasks lists tasks matching the filter. Results are ordered by
// the requested sort key (default priority_score desc) with ID as the
// deterministic final tie-break.
func (q queries) SearchTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error) {
	qb := searchQuery(filter)

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "priority_score"
	}
	if !sortableColumns[sortBy] {
		return nil, fmt.Errorf("search tasks: unsortable column %q", sortBy)
	}
	order := filter.SortOrder
	if order == "" {
		if sortBy == "priority_score" {
			order = "desc"
		} else {
			order = "asc"
		}
	}
	if sortBy == "due_date" {
		qb.orderNullsLast(sortBy, order)
	} else {
		qb.order(sortBy, order)
	}
	qb.order("id", "asc")

	if filter.Limit > 0 {
		qb.withLimit(filter.Limit, filter.Offset)
	}

	sqlText, args, err := qb.build()
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	rows, err := q.dbtx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, wrapDBError("search tasks", err)
	}
	return collectTasks(rows)
}

// CountTasks returns the total matching the filter, ignoring paging.
func (q queries) CountTasks(ctx context.Context, filter types.TaskFilter) (int, error) {
	qb := searchQuery(filter)
	qb.selects = []string{"COUNT(*)"}
	sqlText, args, err := qb.build()
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	var n int
	if err := q.dbtx.QueryRowContext(ctx, sqlText, args...).Scan(&n); err != nil {
		return 0, wrapDBError("count tasks", err)
	}
	return n, nil
}

// ListSubtasks returns direct children in position order.
func (q queries) ListSubtasks(ctx context.Context, parentID int64) ([]*types.Task, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE parent_task_id = ? ORDER BY position, id`, parentID)
	if err != nil {
		return nil, wrapDBError("list subtasks", err)
	}
	return collectTasks(rows)
}

// ListBoardTasks returns every task on a board. Done and archived
// tasks are excluded unless includeTerminal is set; callers that walk
// the dependency graph need them for reverse-edge counting.
func (q queries) ListBoardTasks(ctx context.Context, boardID int64, includeTerminal bool) ([]*types.Task, error) {
	sqlText := `SELECT ` + taskCols + ` FROM tasks WHERE board_id = ?`
	if !includeTerminal {
		sqlText += ` AND status NOT IN ('done', 'archived')`
	}
	sqlText += ` ORDER BY id`
	rows, err := q.dbtx.QueryContext(ctx, sqlText, boardID)
	if err != nil {
		return nil, wrapDBError("list board tasks", err)
	}
	return collectTasks(rows)
}

// ListOverdue returns active tasks whose due date has passed.
func (q queries) ListOverdue(ctx context.Context, now time.Time) ([]*types.Task, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks
		 WHERE due_date IS NOT NULL AND due_date < ?
		   AND status NOT IN ('done', 'archived') AND archived = 0
		 ORDER BY due_date, id`, now.UTC())
	if err != nil {
		return nil, wrapDBError("list overdue", err)
	}
	return collectTasks(rows)
}

// ListBlockedTasks returns tasks on a board with at least one
// non-terminal blocker, via the blocked_tasks view.
func (q queries) ListBlockedTasks(ctx context.Context, boardID int64) ([]*types.Task, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT `+taskCols+` FROM blocked_tasks WHERE board_id = ? ORDER BY id`, boardID)
	if err != nil {
		return nil, wrapDBError("list blocked tasks", err)
	}
	return collectTasks(rows)
}

// TaskDepth returns the hierarchy depth of a task: 0 for top level.
func (q queries) TaskDepth(ctx context.Context, id int64) (int, error) {
	var depth int
	err := q.dbtx.QueryRowContext(ctx, `
		WITH RECURSIVE chain(id, parent, depth) AS (
			SELECT id, parent_task_id, 0 FROM tasks WHERE id = ?
			UNION ALL
			SELECT t.id, t.parent_task_id, chain.depth + 1
			FROM tasks t JOIN chain ON t.id = chain.parent
			WHERE chain.depth < 16
		)
		SELECT MAX(depth) FROM chain`, id).Scan(&depth)
	if err != nil {
		return 0, wrapDBError("task depth", err)
	}
	return depth, nil
}

// GetProgress returns the rollup row for a task, or a zero row when no
// rollup has been recorded yet.
func (q queries) GetProgress(ctx context.Context, taskID int64) (*types.TaskProgress, error) {
	var p types.TaskProgress
	err := q.dbtx.QueryRowContext(ctx,
		`SELECT task_id, percent_complete, child_count, done_count
		 FROM task_progress WHERE task_id = ?`, taskID).
		Scan(&p.TaskID, &p.PercentComplete, &p.ChildCount, &p.DoneCount)
	if err == sql.ErrNoRows {
		return &types.TaskProgress{TaskID: taskID}, nil
	}
	if err != nil {
		return nil, wrapDBError("get progress", err)
	}
	return &p, nil
}

// UpsertProgress writes the rollup row for a task.
func (q queries) UpsertProgress(ctx context.Context, p types.TaskProgress) error {
	_, err := q.dbtx.ExecContext(ctx, `
		INSERT INTO task_progress (task_id, percent_complete, child_count, done_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			percent_complete = excluded.percent_complete,
			child_count = excluded.child_count,
			done_count = excluded.done_count`,
		p.TaskID, p.PercentComplete, p.ChildCount, p.DoneCount)
	return wrapDBError("upsert progress", err)
}

// SetPriorityScores bulk-writes recomputed scores without touching
// updated_at; score recalculation is not a user-visible edit.
func (q queries) SetPriorityScores(ctx context.Context, scores map[int64]float64) error {
	for id, score := range scores {
		if _, err := q.dbtx.ExecContext(ctx,
			`UPDATE tasks SET priority_score = ? WHERE id = ?`, score, id); err != nil {
			return wrapDBError("set priority score", err)
		}
	}
	return nil
}
