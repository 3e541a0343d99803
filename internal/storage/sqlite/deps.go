package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/kanbanhq/kanban/internal/types"
)

const depCols = "task_id, depends_on_id, type, created_at"

func scanDependency(row rowScanner) (*types.Dependency, error) {
	var d types.Dependency
	if err := row.Scan(&d.TaskID, &d.DependsOnTaskID, &d.Type, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}

func collectDependencies(rows *sql.Rows) ([]*types.Dependency, error) {
	defer func() { _ = rows.Close() }()
	var deps []*types.Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, wrapDBError("scan dependency", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// AddDependency inserts an edge. The primary key enforces uniqueness
// on (task_id, depends_on_id); the table CHECK rejects self-edges.
// Cycle detection belongs to the engine, not this layer.
func (q queries) AddDependency(ctx context.Context, d *types.Dependency) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := q.dbtx.ExecContext(ctx,
		`INSERT INTO dependencies (task_id, depends_on_id, type, created_at) VALUES (?, ?, ?, ?)`,
		d.TaskID, d.DependsOnTaskID, d.Type, d.CreatedAt)
	return wrapDBError("insert dependency", err)
}

// RemoveDependency deletes an edge.
func (q queries) RemoveDependency(ctx context.Context, taskID, dependsOnID int64) error {
	res, err := q.dbtx.ExecContext(ctx,
		`DELETE FROM dependencies WHERE task_id = ? AND depends_on_id = ?`,
		taskID, dependsOnID)
	if err != nil {
		return wrapDBError("delete dependency", err)
	}
	return requireRowAffected(res, "delete dependency")
}

// ListDependencies returns the outgoing edges of a task (what it
// depends on).
func (q queries) ListDependencies(ctx context.Context, taskID int64) ([]*types.Dependency, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT `+depCols+` FROM dependencies WHERE task_id = ? ORDER BY depends_on_id`, taskID)
	if err != nil {
		return nil, wrapDBError("list dependencies", err)
	}
	return collectDependencies(rows)
}

// ListDependents returns the incoming edges of a task (what depends on
// it).
func (q queries) ListDependents(ctx context.Context, taskID int64) ([]*types.Dependency, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT `+depCols+` FROM dependencies WHERE depends_on_id = ? ORDER BY task_id`, taskID)
	if err != nil {
		return nil, wrapDBError("list dependents", err)
	}
	return collectDependencies(rows)
}

// ListBoardDependencies returns every edge whose endpoints are on the
// board, for whole-board graph walks.
func (q queries) ListBoardDependencies(ctx context.Context, boardID int64) ([]*types.Dependency, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT d.task_id, d.depends_on_id, d.type, d.created_at
		 FROM dependencies d
		 JOIN tasks t ON d.task_id = t.id
		 WHERE t.board_id = ?
		 ORDER BY d.task_id, d.depends_on_id`, boardID)
	if err != nil {
		return nil, wrapDBError("list board dependencies", err)
	}
	return collectDependencies(rows)
}
