package sqlite

import (
	"context"
	"database/sql"

	"github.com/kanbanhq/kanban/internal/types"
)

const tagCols = "id, name, slug, color, parent_id, path, usage_count"

func scanTag(row rowScanner) (*types.Tag, error) {
	var (
		t      types.Tag
		parent sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Color, &parent, &t.Path,
		&t.UsageCount); err != nil {
		return nil, err
	}
	t.ParentID = int64Ptr(parent)
	return &t, nil
}

func collectTags(rows *sql.Rows) ([]*types.Tag, error) {
	defer func() { _ = rows.Close() }()
	var tags []*types.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, wrapDBError("scan tag", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// CreateTag inserts a tag. The caller (service layer) is responsible
// for computing Path from the parent chain.
func (q queries) CreateTag(ctx context.Context, t *types.Tag) error {
	if err := t.Validate(); err != nil {
		return err
	}
	res, err := q.dbtx.ExecContext(ctx,
		`INSERT INTO tags (name, slug, color, parent_id, path, usage_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Name, t.Slug, t.Color, nullInt64(t.ParentID), t.Path, t.UsageCount)
	if err != nil {
		return wrapDBError("insert tag", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDBError("insert tag id", err)
	}
	t.ID = id
	return nil
}

// GetTag fetches a tag by ID.
func (q queries) GetTag(ctx context.Context, id int64) (*types.Tag, error) {
	t, err := scanTag(q.dbtx.QueryRowContext(ctx,
		`SELECT `+tagCols+` FROM tags WHERE id = ?`, id))
	if err != nil {
		return nil, wrapDBError("get tag", err)
	}
	return t, nil
}

// GetTagBySlug fetches a tag by its unique slug.
func (q queries) GetTagBySlug(ctx context.Context, slug string) (*types.Tag, error) {
	t, err := scanTag(q.dbtx.QueryRowContext(ctx,
		`SELECT `+tagCols+` FROM tags WHERE slug = ?`, slug))
	if err != nil {
		return nil, wrapDBError("get tag by slug", err)
	}
	return t, nil
}

// ListTags returns all tags in path order, which groups subtrees.
func (q queries) ListTags(ctx context.Context) ([]*types.Tag, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT `+tagCols+` FROM tags ORDER BY path`)
	if err != nil {
		return nil, wrapDBError("list tags", err)
	}
	return collectTags(rows)
}

// ListTagsBelow returns the tag at path plus its entire subtree.
func (q queries) ListTagsBelow(ctx context.Context, path string) ([]*types.Tag, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT `+tagCols+` FROM tags WHERE path = ? OR path LIKE ? ORDER BY path`,
		path, path+"/%")
	if err != nil {
		return nil, wrapDBError("list tag subtree", err)
	}
	return collectTags(rows)
}

// UpdateTag rewrites mutable tag fields, including path and parent.
func (q queries) UpdateTag(ctx context.Context, t *types.Tag) error {
	if err := t.Validate(); err != nil {
		return err
	}
	res, err := q.dbtx.ExecContext(ctx,
		`UPDATE tags SET name = ?, slug = ?, color = ?, parent_id = ?, path = ?, usage_count = ?
		 WHERE id = ?`,
		t.Name, t.Slug, t.Color, nullInt64(t.ParentID), t.Path, t.UsageCount, t.ID)
	if err != nil {
		return wrapDBError("update tag", err)
	}
	return requireRowAffected(res, "update tag")
}

// DeleteTag removes a tag; children are detached by the FK's SET NULL.
func (q queries) DeleteTag(ctx context.Context, id int64) error {
	res, err := q.dbtx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete tag", err)
	}
	return requireRowAffected(res, "delete tag")
}

// AddTaskTag attaches a tag to a task and bumps the usage counter.
func (q queries) AddTaskTag(ctx context.Context, taskID, tagID int64) error {
	res, err := q.dbtx.ExecContext(ctx,
		`INSERT OR IGNORE INTO task_tags (task_id, tag_id) VALUES (?, ?)`, taskID, tagID)
	if err != nil {
		return wrapDBError("insert task tag", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		if _, err := q.dbtx.ExecContext(ctx,
			`UPDATE tags SET usage_count = usage_count + 1 WHERE id = ?`, tagID); err != nil {
			return wrapDBError("bump tag usage", err)
		}
	}
	return nil
}

// RemoveTaskTag detaches a tag from a task and decrements usage.
func (q queries) RemoveTaskTag(ctx context.Context, taskID, tagID int64) error {
	res, err := q.dbtx.ExecContext(ctx,
		`DELETE FROM task_tags WHERE task_id = ? AND tag_id = ?`, taskID, tagID)
	if err != nil {
		return wrapDBError("delete task tag", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		if _, err := q.dbtx.ExecContext(ctx,
			`UPDATE tags SET usage_count = MAX(usage_count - 1, 0) WHERE id = ?`, tagID); err != nil {
			return wrapDBError("drop tag usage", err)
		}
	}
	return nil
}

// ListTaskTags returns the tags attached to a task.
func (q queries) ListTaskTags(ctx context.Context, taskID int64) ([]*types.Tag, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT g.id, g.name, g.slug, g.color, g.parent_id, g.path, g.usage_count
		 FROM tags g JOIN task_tags tt ON g.id = tt.tag_id
		 WHERE tt.task_id = ? ORDER BY g.path`, taskID)
	if err != nil {
		return nil, wrapDBError("list task tags", err)
	}
	return collectTags(rows)
}

// ListTasksByTag returns the tasks carrying a tag.
func (q queries) ListTasksByTag(ctx context.Context, tagID int64) ([]*types.Task, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT `+prefixedTaskCols("t")+`
		 FROM tasks t JOIN task_tags tt ON t.id = tt.task_id
		 WHERE tt.tag_id = ? ORDER BY t.id`, tagID)
	if err != nil {
		return nil, wrapDBError("list tasks by tag", err)
	}
	return collectTasks(rows)
}
