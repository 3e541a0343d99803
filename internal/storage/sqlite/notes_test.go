package sqlite

import (
	"context"
	"testing"

	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

func TestNotesPinnedFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "noted", "Todo")
	task := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "annotated"})

	var pinned *types.Note
	mustWrite(t, store, func(tx storage.Tx) error {
		for _, content := range []string{"first", "second"} {
			if err := tx.CreateNote(ctx, &types.Note{
				TaskID: task.ID, BoardID: board.ID, Content: content,
			}); err != nil {
				return err
			}
		}
		pinned = &types.Note{TaskID: task.ID, BoardID: board.ID, Content: "important", Pinned: true}
		return tx.CreateNote(ctx, pinned)
	})

	notes, err := store.ListNotes(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListNotes failed: %v", err)
	}
	if len(notes) != 3 {
		t.Fatalf("ListNotes = %d notes, want 3", len(notes))
	}
	if notes[0].ID != pinned.ID {
		t.Errorf("pinned note not first: %v", notes[0])
	}
	if notes[0].Category != types.NoteGeneral {
		t.Errorf("default category = %q, want general", notes[0].Category)
	}
}

func TestSearchNotesFullText(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "fts", "Todo")
	otherBoard, otherCols := mustBoard(t, store, "fts2", "Todo")
	task := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "searchable"})
	otherTask := mustTask(t, store, &types.Task{BoardID: otherBoard.ID, ColumnID: otherCols[0], Title: "elsewhere"})

	mustWrite(t, store, func(tx storage.Tx) error {
		notes := []*types.Note{
			{TaskID: task.ID, BoardID: board.ID, Content: "deployment failed on staging cluster"},
			{TaskID: task.ID, BoardID: board.ID, Content: "retry with exponential backoff"},
			{TaskID: otherTask.ID, BoardID: otherBoard.ID, Content: "staging database credentials rotated"},
		}
		for _, n := range notes {
			if err := tx.CreateNote(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := store.SearchNotes(ctx, "staging", nil, 0)
	if err != nil {
		t.Fatalf("SearchNotes failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unscoped search = %d notes, want 2", len(got))
	}

	got, err = store.SearchNotes(ctx, "staging", &board.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TaskID != task.ID {
		t.Errorf("board-scoped search = %v", got)
	}

	// Quoting protects against FTS syntax in user input.
	if _, err := store.SearchNotes(ctx, `"unbalanced AND (`, nil, 0); err != nil {
		t.Errorf("quoted search errored: %v", err)
	}

	// Blank queries match nothing rather than everything.
	got, err = store.SearchNotes(ctx, "   ", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("blank search = %v, want none", got)
	}
}

func TestNoteUpdateReindexesSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "reindex", "Todo")
	task := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "task"})

	note := &types.Note{TaskID: task.ID, BoardID: board.ID, Content: "original wording"}
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.CreateNote(ctx, note)
	})

	note.Content = "revised phrasing"
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.UpdateNote(ctx, note)
	})

	if got, _ := store.SearchNotes(ctx, "original", nil, 0); len(got) != 0 {
		t.Errorf("stale index entry survived update: %v", got)
	}
	got, err := store.SearchNotes(ctx, "revised", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("updated content not searchable: %v", got)
	}

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.DeleteNote(ctx, note.ID)
	})
	if got, _ := store.SearchNotes(ctx, "revised", nil, 0); len(got) != 0 {
		t.Errorf("index entry survived delete: %v", got)
	}
}
