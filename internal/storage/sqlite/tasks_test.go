package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

func TestTaskCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "crud", "Todo", "Done")

	task := mustTask(t, store, &types.Task{
		BoardID:  board.ID,
		ColumnID: cols[0],
		Title:    "Write the thing",
		Assignee: "alice",
	})
	if task.ID == 0 {
		t.Fatal("CreateTask did not assign an ID")
	}
	if task.Status != types.StatusTodo {
		t.Errorf("default status = %q, want todo", task.Status)
	}
	if task.Priority != types.PriorityMedium {
		t.Errorf("default priority = %q, want medium", task.Priority)
	}

	got, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "Write the thing" || got.Assignee != "alice" {
		t.Errorf("round trip mismatch: %+v", got)
	}

	newTitle := "Write the other thing"
	status := types.StatusInProgress
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.UpdateTask(ctx, task.ID, types.TaskUpdate{
			Title:  &newTitle,
			Status: &status,
		})
	})
	got, err = store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask after update failed: %v", err)
	}
	if got.Title != newTitle || got.Status != types.StatusInProgress {
		t.Errorf("update not applied: %+v", got)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Error("updated_at fell behind created_at")
	}

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.DeleteTask(ctx, task.ID)
	})
	if _, err := store.GetTask(ctx, task.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestUpdateTaskClearDueDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "due", "Todo")

	due := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	task := mustTask(t, store, &types.Task{
		BoardID: board.ID, ColumnID: cols[0], Title: "dated", DueDate: &due,
	})

	got, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Fatalf("due date round trip: got %v, want %v", got.DueDate, due)
	}

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.UpdateTask(ctx, task.ID, types.TaskUpdate{ClearDueDate: true})
	})
	got, err = store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DueDate != nil {
		t.Errorf("due date not cleared: %v", got.DueDate)
	}
}

func TestUpdateTaskEmptyIsNoop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "noop", "Todo")
	task := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "still"})

	before, _ := store.GetTask(ctx, task.ID)
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.UpdateTask(ctx, task.ID, types.TaskUpdate{})
	})
	after, _ := store.GetTask(ctx, task.ID)
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("empty update touched updated_at")
	}
}

func TestUpdateMissingTaskReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	title := "ghost"
	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.UpdateTask(ctx, 9999, types.TaskUpdate{Title: &title})
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchTasksFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "search", "Todo", "Done")
	other, otherCols := mustBoard(t, store, "other", "Todo")

	mustTask(t, store, &types.Task{
		BoardID: board.ID, ColumnID: cols[0], Title: "Fix login bug",
		Assignee: "alice", Priority: types.PriorityHigh,
	})
	mustTask(t, store, &types.Task{
		BoardID: board.ID, ColumnID: cols[0], Title: "Write docs",
		Assignee: "bob", Status: types.StatusInProgress,
	})
	archived := mustTask(t, store, &types.Task{
		BoardID: board.ID, ColumnID: cols[1], Title: "Old chore", Archived: true,
	})
	mustTask(t, store, &types.Task{
		BoardID: other.ID, ColumnID: otherCols[0], Title: "Elsewhere",
	})

	// Board scope excludes archived by default.
	got, err := store.SearchTasks(ctx, types.TaskFilter{BoardID: &board.ID})
	if err != nil {
		t.Fatalf("SearchTasks failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("board search returned %d tasks, want 2", len(got))
	}

	// Explicit archived filter finds the chore.
	yes := true
	got, err = store.SearchTasks(ctx, types.TaskFilter{BoardID: &board.ID, Archived: &yes})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != archived.ID {
		t.Errorf("archived search = %v", got)
	}

	// Assignee filter.
	alice := "alice"
	got, err = store.SearchTasks(ctx, types.TaskFilter{Assignee: &alice})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "Fix login bug" {
		t.Errorf("assignee search = %v", got)
	}

	// Substring search over title and description.
	got, err = store.SearchTasks(ctx, types.TaskFilter{Search: "login"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "Fix login bug" {
		t.Errorf("text search = %v", got)
	}

	// Status filter.
	inProgress := types.StatusInProgress
	n, err := store.CountTasks(ctx, types.TaskFilter{Status: &inProgress})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("in_progress count = %d, want 1", n)
	}
}

func TestSearchTasksOrderingIsDeterministic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "order", "Todo")

	// Equal scores: ties must fall back to ID order.
	for _, title := range []string{"a", "b", "c"} {
		mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: title})
	}

	first, err := store.SearchTasks(ctx, types.TaskFilter{BoardID: &board.ID})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := store.SearchTasks(ctx, types.TaskFilter{BoardID: &board.ID})
		if err != nil {
			t.Fatal(err)
		}
		for j := range first {
			if again[j].ID != first[j].ID {
				t.Fatalf("ordering changed between runs: %v vs %v", first, again)
			}
		}
	}
}

func TestSearchTasksDueDateNullsLast(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "nulls", "Todo")

	mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "undated"})
	due := time.Now().UTC().Add(time.Hour)
	dated := mustTask(t, store, &types.Task{
		BoardID: board.ID, ColumnID: cols[0], Title: "dated", DueDate: &due,
	})

	got, err := store.SearchTasks(ctx, types.TaskFilter{BoardID: &board.ID, SortBy: "due_date"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != dated.ID {
		t.Errorf("dated task should sort before undated: %v", got)
	}
}

func TestSearchTasksRejectsUnknownSortColumn(t *testing.T) {
	store := newTestStore(t)
	_, err := store.SearchTasks(context.Background(), types.TaskFilter{SortBy: "key_hash; DROP TABLE tasks"})
	if err == nil {
		t.Fatal("expected error for unknown sort column")
	}
}

func TestListBlockedTasks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "blocked", "Todo")

	blocker := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "blocker"})
	blocked := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "blocked"})
	free := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "free"})

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.AddDependency(ctx, &types.Dependency{
			TaskID: blocked.ID, DependsOnTaskID: blocker.ID, Type: types.DepBlocks,
		})
	})

	got, err := store.ListBlockedTasks(ctx, board.ID)
	if err != nil {
		t.Fatalf("ListBlockedTasks failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != blocked.ID {
		t.Fatalf("blocked list = %v, want only task %d", got, blocked.ID)
	}
	_ = free

	// Completing the blocker unblocks the dependent.
	done := types.StatusDone
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.UpdateTask(ctx, blocker.ID, types.TaskUpdate{Status: &done})
	})
	got, err = store.ListBlockedTasks(ctx, board.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("blocked list after completion = %v, want empty", got)
	}
}

func TestTaskDepth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "depth", "Todo")

	root := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "root"})
	child := mustTask(t, store, &types.Task{
		BoardID: board.ID, ColumnID: cols[0], Title: "child", ParentTaskID: &root.ID,
	})
	grand := mustTask(t, store, &types.Task{
		BoardID: board.ID, ColumnID: cols[0], Title: "grand", ParentTaskID: &child.ID,
	})

	for _, tc := range []struct {
		id   int64
		want int
	}{
		{root.ID, 0}, {child.ID, 1}, {grand.ID, 2},
	} {
		depth, err := store.TaskDepth(ctx, tc.id)
		if err != nil {
			t.Fatalf("TaskDepth(%d) failed: %v", tc.id, err)
		}
		if depth != tc.want {
			t.Errorf("TaskDepth(%d) = %d, want %d", tc.id, depth, tc.want)
		}
	}

	subs, err := store.ListSubtasks(ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].ID != child.ID {
		t.Errorf("ListSubtasks = %v", subs)
	}
}

func TestProgressUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "progress", "Todo")
	task := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "parent"})

	// No rollup recorded yet: zero row, not an error.
	p, err := store.GetProgress(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetProgress on empty failed: %v", err)
	}
	if p.PercentComplete != 0 || p.ChildCount != 0 {
		t.Errorf("empty progress = %+v", p)
	}

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.UpsertProgress(ctx, types.TaskProgress{
			TaskID: task.ID, PercentComplete: 50, ChildCount: 2, DoneCount: 1,
		})
	})
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.UpsertProgress(ctx, types.TaskProgress{
			TaskID: task.ID, PercentComplete: 100, ChildCount: 2, DoneCount: 2,
		})
	})

	p, err = store.GetProgress(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.PercentComplete != 100 || p.DoneCount != 2 {
		t.Errorf("progress after upserts = %+v", p)
	}
}

func TestSetPriorityScoresDoesNotTouchUpdatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "scores", "Todo")
	task := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "scored"})

	before, _ := store.GetTask(ctx, task.ID)
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.SetPriorityScores(ctx, map[int64]float64{task.ID: 0.87})
	})
	after, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.PriorityScore != 0.87 {
		t.Errorf("priority score = %v, want 0.87", after.PriorityScore)
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("score recalculation touched updated_at")
	}
}

func TestListOverdue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "overdue", "Todo")

	past := time.Now().UTC().Add(-24 * time.Hour)
	future := time.Now().UTC().Add(24 * time.Hour)
	late := mustTask(t, store, &types.Task{
		BoardID: board.ID, ColumnID: cols[0], Title: "late", DueDate: &past,
	})
	mustTask(t, store, &types.Task{
		BoardID: board.ID, ColumnID: cols[0], Title: "on time", DueDate: &future,
	})
	mustTask(t, store, &types.Task{
		BoardID: board.ID, ColumnID: cols[0], Title: "done late",
		DueDate: &past, Status: types.StatusDone,
	})

	got, err := store.ListOverdue(ctx, time.Now())
	if err != nil {
		t.Fatalf("ListOverdue failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != late.ID {
		t.Errorf("overdue = %v, want only %d", got, late.ID)
	}
}

func TestDeleteBoardCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "cascade", "Todo")
	task := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "doomed"})
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.CreateNote(ctx, &types.Note{TaskID: task.ID, BoardID: board.ID, Content: "note"})
	})

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.DeleteBoard(ctx, board.ID)
	})

	if _, err := store.GetTask(ctx, task.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("task survived board delete: %v", err)
	}
	notes, err := store.ListNotes(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Errorf("notes survived board delete: %v", notes)
	}
}

func TestDuplicateBoardNameConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustBoard(t, store, "uniq", "Todo")

	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.CreateBoard(ctx, &types.Board{Name: "uniq"})
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}
