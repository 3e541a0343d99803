package service

import (
	"context"
	"strings"

	"github.com/kanbanhq/kanban/internal/eventbus"
	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

// AddNoteInput is the request shape for AddNote.
type AddNoteInput struct {
	TaskID   int64              `json:"task_id" validate:"required"`
	Content  string             `json:"content" validate:"required"`
	Category types.NoteCategory `json:"category,omitempty"`
	Pinned   bool               `json:"pinned,omitempty"`
}

// AddNote attaches a note to a task. Emits note:added.
func (s *Service) AddNote(ctx context.Context, in AddNoteInput) (*types.Note, error) {
	note := &types.Note{
		TaskID:   in.TaskID,
		Content:  strings.TrimSpace(in.Content),
		Category: in.Category,
		Pinned:   in.Pinned,
	}
	if note.Category == "" {
		note.Category = types.NoteGeneral
	}
	if err := note.Validate(); err != nil {
		return nil, Validationf("%v", err)
	}

	err := s.write(ctx, "note", func(tx storage.Tx, ev *eventBuffer) error {
		task, err := tx.GetTask(ctx, in.TaskID)
		if err != nil {
			return err
		}
		note.BoardID = task.BoardID
		if err := tx.CreateNote(ctx, note); err != nil {
			return err
		}
		ev.emit(eventbus.NoteAdded, task.BoardID, map[string]any{
			"note_id": note.ID, "task_id": in.TaskID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// UpdateNoteInput is the request shape for UpdateNote.
type UpdateNoteInput struct {
	Content  *string             `json:"content,omitempty"`
	Category *types.NoteCategory `json:"category,omitempty"`
	Pinned   *bool               `json:"pinned,omitempty"`
}

// UpdateNote applies a partial update to a note. Emits note:updated.
func (s *Service) UpdateNote(ctx context.Context, id int64, in UpdateNoteInput) (*types.Note, error) {
	var note *types.Note
	err := s.write(ctx, "note", func(tx storage.Tx, ev *eventBuffer) error {
		var err error
		note, err = tx.GetNote(ctx, id)
		if err != nil {
			return err
		}
		if in.Content != nil {
			note.Content = strings.TrimSpace(*in.Content)
		}
		if in.Category != nil {
			note.Category = *in.Category
		}
		if in.Pinned != nil {
			note.Pinned = *in.Pinned
		}
		if err := note.Validate(); err != nil {
			return Validationf("%v", err)
		}
		if err := tx.UpdateNote(ctx, note); err != nil {
			return err
		}
		ev.emit(eventbus.NoteUpdated, note.BoardID, map[string]any{"note_id": id})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// PinNote toggles a note's pinned flag.
func (s *Service) PinNote(ctx context.Context, id int64, pinned bool) (*types.Note, error) {
	return s.UpdateNote(ctx, id, UpdateNoteInput{Pinned: &pinned})
}

// DeleteNote removes a note. Emits note:deleted.
func (s *Service) DeleteNote(ctx context.Context, id int64) error {
	return s.write(ctx, "note", func(tx storage.Tx, ev *eventBuffer) error {
		note, err := tx.GetNote(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteNote(ctx, id); err != nil {
			return err
		}
		ev.emit(eventbus.NoteDeleted, note.BoardID, map[string]any{"note_id": id})
		return nil
	})
}

// ListNotes returns a task's notes, pinned first.
func (s *Service) ListNotes(ctx context.Context, taskID int64) ([]*types.Note, error) {
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return nil, wrapStorage(err, "task")
	}
	notes, err := s.store.ListNotes(ctx, taskID)
	if err != nil {
		return nil, wrapStorage(err, "note")
	}
	return notes, nil
}

// SearchNotes runs a full-text search over note content, optionally
// scoped to one board.
func (s *Service) SearchNotes(ctx context.Context, query string, boardID *int64, limit int) ([]*types.Note, error) {
	if strings.TrimSpace(query) == "" {
		return nil, Validationf("search query is required")
	}
	if limit <= 0 {
		limit = 50
	}
	notes, err := s.store.SearchNotes(ctx, query, boardID, limit)
	if err != nil {
		return nil, wrapStorage(err, "note")
	}
	return notes, nil
}
