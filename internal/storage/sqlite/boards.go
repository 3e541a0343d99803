package sqlite

import (
	"context"
	"time"

	"github.com/kanbanhq/kanban/internal/types"
)

const boardCols = "id, name, description, created_at, archived"

func scanBoard(row rowScanner) (*types.Board, error) {
	var b types.Board
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.CreatedAt, &b.Archived); err != nil {
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

// CreateBoard inserts a board and assigns its ID.
func (q queries) CreateBoard(ctx context.Context, b *types.Board) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	res, err := q.dbtx.ExecContext(ctx,
		`INSERT INTO boards (name, description, created_at, archived) VALUES (?, ?, ?, ?)`,
		b.Name, b.Description, b.CreatedAt, b.Archived)
	if err != nil {
		return wrapDBError("insert board", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDBError("insert board id", err)
	}
	b.ID = id
	return nil
}

// GetBoard fetches a board by ID.
func (q queries) GetBoard(ctx context.Context, id int64) (*types.Board, error) {
	b, err := scanBoard(q.dbtx.QueryRowContext(ctx,
		`SELECT `+boardCols+` FROM boards WHERE id = ?`, id))
	if err != nil {
		return nil, wrapDBError("get board", err)
	}
	return b, nil
}

// GetBoardByName fetches a board by its unique name.
func (q queries) GetBoardByName(ctx context.Context, name string) (*types.Board, error) {
	b, err := scanBoard(q.dbtx.QueryRowContext(ctx,
		`SELECT `+boardCols+` FROM boards WHERE name = ?`, name))
	if err != nil {
		return nil, wrapDBError("get board by name", err)
	}
	return b, nil
}

// ListBoards returns boards ordered by name. Archived boards are
// excluded unless requested.
func (q queries) ListBoards(ctx context.Context, includeArchived bool) ([]*types.Board, error) {
	sqlText := `SELECT ` + boardCols + ` FROM boards`
	if !includeArchived {
		sqlText += ` WHERE archived = 0`
	}
	sqlText += ` ORDER BY name`

	rows, err := q.dbtx.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, wrapDBError("list boards", err)
	}
	defer func() { _ = rows.Close() }()

	var boards []*types.Board
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, wrapDBError("scan board", err)
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// UpdateBoard rewrites mutable board fields.
func (q queries) UpdateBoard(ctx context.Context, b *types.Board) error {
	if err := b.Validate(); err != nil {
		return err
	}
	res, err := q.dbtx.ExecContext(ctx,
		`UPDATE boards SET name = ?, description = ?, archived = ? WHERE id = ?`,
		b.Name, b.Description, b.Archived, b.ID)
	if err != nil {
		return wrapDBError("update board", err)
	}
	return requireRowAffected(res, "update board")
}

// DeleteBoard removes a board; columns, tasks, and notes cascade.
func (q queries) DeleteBoard(ctx context.Context, id int64) error {
	res, err := q.dbtx.ExecContext(ctx, `DELETE FROM boards WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete board", err)
	}
	return requireRowAffected(res, "delete board")
}
