package service

import (
	"context"
	"errors"
	"strings"

	"github.com/kanbanhq/kanban/internal/eventbus"
	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

// defaultColumns is the lane set a new board starts with when the
// caller does not name its own.
var defaultColumns = []string{"To Do", "In Progress", "Done"}

// CreateBoardInput is the request shape for CreateBoard.
type CreateBoardInput struct {
	Name        string   `json:"name" validate:"required,max=500"`
	Description string   `json:"description,omitempty"`
	Columns     []string `json:"columns,omitempty"`
}

// CreateBoard creates a board with its initial column set.
func (s *Service) CreateBoard(ctx context.Context, in CreateBoardInput) (*types.Board, error) {
	board := &types.Board{Name: strings.TrimSpace(in.Name), Description: in.Description}
	if err := board.Validate(); err != nil {
		return nil, Validationf("%v", err)
	}
	columns := in.Columns
	if len(columns) == 0 {
		columns = defaultColumns
	}
	for _, name := range columns {
		if strings.TrimSpace(name) == "" {
			return nil, Validationf("column names must be non-empty")
		}
	}

	err := s.write(ctx, "board", func(tx storage.Tx, ev *eventBuffer) error {
		if err := tx.CreateBoard(ctx, board); err != nil {
			return err
		}
		for i, name := range columns {
			col := &types.Column{BoardID: board.ID, Name: strings.TrimSpace(name), Position: i}
			if err := tx.CreateColumn(ctx, col); err != nil {
				return err
			}
		}
		ev.emit(eventbus.BoardCreated, board.ID, map[string]any{
			"board_id": board.ID, "name": board.Name,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return board, nil
}

// GetBoard returns one board with its columns.
func (s *Service) GetBoard(ctx context.Context, id int64) (*types.Board, []*types.Column, error) {
	board, err := s.store.GetBoard(ctx, id)
	if err != nil {
		return nil, nil, wrapStorage(err, "board")
	}
	cols, err := s.store.ListColumns(ctx, id)
	if err != nil {
		return nil, nil, wrapStorage(err, "board")
	}
	return board, cols, nil
}

// ListBoards returns all boards, optionally including archived ones.
func (s *Service) ListBoards(ctx context.Context, includeArchived bool) ([]*types.Board, error) {
	boards, err := s.store.ListBoards(ctx, includeArchived)
	if err != nil {
		return nil, wrapStorage(err, "board")
	}
	return boards, nil
}

// UpdateBoardInput is the request shape for UpdateBoard. Nil fields
// are left unchanged.
type UpdateBoardInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Archived    *bool   `json:"archived,omitempty"`
}

// UpdateBoard applies a partial update to a board.
func (s *Service) UpdateBoard(ctx context.Context, id int64, in UpdateBoardInput) (*types.Board, error) {
	var board *types.Board
	err := s.write(ctx, "board", func(tx storage.Tx, ev *eventBuffer) error {
		var err error
		board, err = tx.GetBoard(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			board.Name = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			board.Description = *in.Description
		}
		if in.Archived != nil {
			board.Archived = *in.Archived
		}
		if err := board.Validate(); err != nil {
			return Validationf("%v", err)
		}
		if err := tx.UpdateBoard(ctx, board); err != nil {
			return err
		}
		ev.emit(eventbus.BoardUpdated, id, map[string]any{"board_id": id})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return board, nil
}

// DeleteBoard removes a board and everything on it.
func (s *Service) DeleteBoard(ctx context.Context, id int64) error {
	return s.write(ctx, "board", func(tx storage.Tx, ev *eventBuffer) error {
		if _, err := tx.GetBoard(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteBoard(ctx, id); err != nil {
			return err
		}
		ev.emit(eventbus.BoardDeleted, id, map[string]any{"board_id": id})
		return nil
	})
}

// CreateColumnInput is the request shape for CreateColumn.
type CreateColumnInput struct {
	BoardID int64  `json:"board_id" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Color   string `json:"color,omitempty"`
}

// CreateColumn appends a column at the end of the board's lane order.
func (s *Service) CreateColumn(ctx context.Context, in CreateColumnInput) (*types.Column, error) {
	col := &types.Column{BoardID: in.BoardID, Name: strings.TrimSpace(in.Name), Color: in.Color}
	if err := col.Validate(); err != nil {
		return nil, Validationf("%v", err)
	}
	err := s.write(ctx, "column", func(tx storage.Tx, ev *eventBuffer) error {
		if _, err := tx.GetBoard(ctx, in.BoardID); err != nil {
			return boardNotFound(err, in.BoardID)
		}
		existing, err := tx.ListColumns(ctx, in.BoardID)
		if err != nil {
			return err
		}
		col.Position = len(existing)
		if err := tx.CreateColumn(ctx, col); err != nil {
			return err
		}
		ev.emit(eventbus.BoardUpdated, in.BoardID, map[string]any{
			"board_id": in.BoardID, "column_id": col.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return col, nil
}

// UpdateColumnInput is the request shape for UpdateColumn.
type UpdateColumnInput struct {
	Name     *string `json:"name,omitempty"`
	Color    *string `json:"color,omitempty"`
	Position *int    `json:"position,omitempty"`
}

// UpdateColumn renames, recolors, or reorders a column. Reordering
// rewrites sibling positions densely.
func (s *Service) UpdateColumn(ctx context.Context, id int64, in UpdateColumnInput) (*types.Column, error) {
	var col *types.Column
	err := s.write(ctx, "column", func(tx storage.Tx, ev *eventBuffer) error {
		var err error
		col, err = tx.GetColumn(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			col.Name = strings.TrimSpace(*in.Name)
		}
		if in.Color != nil {
			col.Color = *in.Color
		}
		if err := col.Validate(); err != nil {
			return Validationf("%v", err)
		}
		if in.Position != nil {
			if err := reorderColumns(ctx, tx, col, *in.Position); err != nil {
				return err
			}
		}
		if err := tx.UpdateColumn(ctx, col); err != nil {
			return err
		}
		ev.emit(eventbus.BoardUpdated, col.BoardID, map[string]any{
			"board_id": col.BoardID, "column_id": id,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return col, nil
}

// DeleteColumn removes an empty column and closes the position gap.
func (s *Service) DeleteColumn(ctx context.Context, id int64) error {
	return s.write(ctx, "column", func(tx storage.Tx, ev *eventBuffer) error {
		col, err := tx.GetColumn(ctx, id)
		if err != nil {
			return err
		}
		n, err := tx.CountTasks(ctx, types.TaskFilter{ColumnID: &id})
		if err != nil {
			return err
		}
		if n > 0 {
			return Conflict(CodeValidation, "column is not empty", map[string]any{
				"column_id": id, "tasks": n,
			})
		}
		if err := tx.DeleteColumn(ctx, id); err != nil {
			return err
		}
		cols, err := tx.ListColumns(ctx, col.BoardID)
		if err != nil {
			return err
		}
		for i, c := range cols {
			if c.Position != i {
				c.Position = i
				if err := tx.UpdateColumn(ctx, c); err != nil {
					return err
				}
			}
		}
		ev.emit(eventbus.BoardUpdated, col.BoardID, map[string]any{
			"board_id": col.BoardID, "column_id": id, "deleted": true,
		})
		return nil
	})
}

// reorderColumns moves col to the clamped target position and rewrites
// the board's column positions densely.
func reorderColumns(ctx context.Context, tx storage.Tx, col *types.Column, target int) error {
	cols, err := tx.ListColumns(ctx, col.BoardID)
	if err != nil {
		return err
	}
	ordered := make([]*types.Column, 0, len(cols))
	for _, c := range cols {
		if c.ID != col.ID {
			ordered = append(ordered, c)
		}
	}
	if target < 0 {
		target = 0
	}
	if target > len(ordered) {
		target = len(ordered)
	}
	ordered = append(ordered[:target], append([]*types.Column{col}, ordered[target:]...)...)
	for i, c := range ordered {
		if c.ID == col.ID {
			col.Position = i
			continue
		}
		if c.Position != i {
			c.Position = i
			if err := tx.UpdateColumn(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// boardNotFound rewrites a storage not-found as BOARD_NOT_FOUND so the
// caller can distinguish a missing board from a missing task.
func boardNotFound(err error, id int64) error {
	wrapped := wrapStorage(err, "board")
	var se *Error
	if errors.As(wrapped, &se) && se.Kind == KindNotFound {
		return &Error{Kind: KindNotFound, Code: CodeBoardNotFound,
			Message: "board not found", Details: map[string]any{"board_id": id}}
	}
	return wrapped
}
