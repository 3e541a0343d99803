package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/kanbanhq/kanban/internal/types"
)

const noteCols = "id, task_id, board_id, content, category, pinned, created_at, updated_at"

func scanNote(row rowScanner) (*types.Note, error) {
	var n types.Note
	if err := row.Scan(&n.ID, &n.TaskID, &n.BoardID, &n.Content, &n.Category,
		&n.Pinned, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return &n, nil
}

func collectNotes(rows *sql.Rows) ([]*types.Note, error) {
	defer func() { _ = rows.Close() }()
	var notes []*types.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, wrapDBError("scan note", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// CreateNote inserts a note; the FTS index is maintained by trigger.
func (q queries) CreateNote(ctx context.Context, n *types.Note) error {
	if err := n.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	if n.Category == "" {
		n.Category = types.NoteGeneral
	}
	res, err := q.dbtx.ExecContext(ctx,
		`INSERT INTO notes (task_id, board_id, content, category, pinned, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.TaskID, n.BoardID, n.Content, n.Category, n.Pinned, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return wrapDBError("insert note", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDBError("insert note id", err)
	}
	n.ID = id
	return nil
}

// GetNote fetches a note by ID.
func (q queries) GetNote(ctx context.Context, id int64) (*types.Note, error) {
	n, err := scanNote(q.dbtx.QueryRowContext(ctx,
		`SELECT `+noteCols+` FROM notes WHERE id = ?`, id))
	if err != nil {
		return nil, wrapDBError("get note", err)
	}
	return n, nil
}

// ListNotes returns a task's notes, pinned first, newest first within
// each group.
func (q queries) ListNotes(ctx context.Context, taskID int64) ([]*types.Note, error) {
	rows, err := q.dbtx.QueryContext(ctx,
		`SELECT `+noteCols+` FROM notes WHERE task_id = ?
		 ORDER BY pinned DESC, created_at DESC, id DESC`, taskID)
	if err != nil {
		return nil, wrapDBError("list notes", err)
	}
	return collectNotes(rows)
}

// SearchNotes runs a full-text query over note content via the FTS5
// index, optionally scoped to one board.
func (q queries) SearchNotes(ctx context.Context, queryText string, boardID *int64, limit int) ([]*types.Note, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	sqlText := `
		SELECT n.id, n.task_id, n.board_id, n.content, n.category, n.pinned,
		       n.created_at, n.updated_at
		FROM notes_fts f
		JOIN notes n ON n.id = f.rowid
		WHERE notes_fts MATCH ?`
	args := []any{ftsQuote(queryText)}
	if boardID != nil {
		sqlText += ` AND n.board_id = ?`
		args = append(args, *boardID)
	}
	sqlText += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := q.dbtx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, wrapDBError("search notes", err)
	}
	return collectNotes(rows)
}

// ftsQuote turns free text into a safe FTS5 phrase query.
func ftsQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// UpdateNote rewrites mutable note fields and bumps updated_at.
func (q queries) UpdateNote(ctx context.Context, n *types.Note) error {
	if err := n.Validate(); err != nil {
		return err
	}
	n.UpdatedAt = time.Now().UTC()
	res, err := q.dbtx.ExecContext(ctx,
		`UPDATE notes SET content = ?, category = ?, pinned = ?, updated_at = ? WHERE id = ?`,
		n.Content, n.Category, n.Pinned, n.UpdatedAt, n.ID)
	if err != nil {
		return wrapDBError("update note", err)
	}
	return requireRowAffected(res, "update note")
}

// DeleteNote removes a note and its links.
func (q queries) DeleteNote(ctx context.Context, id int64) error {
	res, err := q.dbtx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete note", err)
	}
	return requireRowAffected(res, "delete note")
}
