package sqlite

import (
	"context"

	"github.com/kanbanhq/kanban/internal/types"
)

const columnCols = "id, board_id, name, position, color"

func scanColumn(row rowScanner) (*types.Column, error) {
	var c types.Column
	if err := row.Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.Color); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateColumn inserts a column at the tail of its board unless an
// explicit position was set.
func (q queries) CreateColumn(ctx context.Context, c *types.Column) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Position == 0 {
		var max int
		err := q.dbtx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM columns WHERE board_id = ?`, c.BoardID).
			Scan(&max)
		if err != nil {
			return wrapDBError("next column position", err)
		}
		c.Position = max
	}
	res, err := q.dbtx.ExecContext(ctx,
		`INSERT INTO columns (board_id, name, position, color) VALUES (?, ?, ?, ?)`,
		c.BoardID, c.Name, c.Position, c.Color)
	if err != nil {
		return wrapDBError("insert column", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDBError("insert column id", err)
	}
	c.ID = id
	return nil
}

// GetColumn fetches a column by ID.
func (q queries) GetColumn(ctx context.Context, id int64) (*types.Column, error) {
	c, err := scanColumn(q.dbtx.QueryRowContext(ctx,
		`SELECT `+columnCols+` FROM columns WHERE id = ?`, id))
	if err != nil {
		return nil, wrapDBError("get column", err)
	}
	return c, nil
}

// ListColumns returns a board's columns in position order.
func (q queries) ListColumns(ctx context.Context, boardID int64) ([]*types.Column, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT `+columnCols+` FROM columns WHERE board_id = ? ORDER BY position, id`, boardID)
	if err != nil {
		return nil, wrapDBError("list columns", err)
	}
	defer func() { _ = rows.Close() }()

	var cols []*types.Column
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, wrapDBError("scan column", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// UpdateColumn rewrites mutable column fields.
func (q queries) UpdateColumn(ctx context.Context, c *types.Column) error {
	if err := c.Validate(); err != nil {
		return err
	}
	res, err := q.dbtx.ExecContext(ctx,
		`UPDATE columns SET name = ?, position = ?, color = ? WHERE id = ?`,
		c.Name, c.Position, c.Color, c.ID)
	if err != nil {
		return wrapDBError("update column", err)
	}
	return requireRowAffected(res, "update column")
}

// DeleteColumn removes an empty column. Columns that still hold tasks
// are protected by the tasks.column_id foreign key.
func (q queries) DeleteColumn(ctx context.Context, id int64) error {
	res, err := q.dbtx.ExecContext(ctx, `DELETE FROM columns WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete column", err)
	}
	return requireRowAffected(res, "delete column")
}
