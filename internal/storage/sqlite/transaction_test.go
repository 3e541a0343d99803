package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

func TestTransactionRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("abort")
	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.CreateBoard(ctx, &types.Board{Name: "doomed"}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	if _, err := store.GetBoardByName(ctx, "doomed"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("board survived rollback: %v", err)
	}
}

func TestTransactionReadsSeeOwnWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustWrite(t, store, func(tx storage.Tx) error {
		board := &types.Board{Name: "visible"}
		if err := tx.CreateBoard(ctx, board); err != nil {
			return err
		}
		got, err := tx.GetBoard(ctx, board.ID)
		if err != nil {
			return fmt.Errorf("uncommitted write invisible to own transaction: %w", err)
		}
		if got.Name != "visible" {
			return fmt.Errorf("read back wrong board: %+v", got)
		}
		return nil
	})
}

func TestTransactionCommitIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustWrite(t, store, func(tx storage.Tx) error {
		board := &types.Board{Name: "atomic"}
		if err := tx.CreateBoard(ctx, board); err != nil {
			return err
		}
		for _, name := range []string{"Todo", "Doing", "Done"} {
			if err := tx.CreateColumn(ctx, &types.Column{BoardID: board.ID, Name: name}); err != nil {
				return err
			}
		}
		return nil
	})

	board, err := store.GetBoardByName(ctx, "atomic")
	if err != nil {
		t.Fatal(err)
	}
	cols, err := store.ListColumns(ctx, board.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 3 {
		t.Fatalf("columns = %d, want 3", len(cols))
	}
	// Tail placement assigned dense positions in creation order.
	for i, c := range cols {
		if c.Position != i {
			t.Errorf("column %q position = %d, want %d", c.Name, c.Position, i)
		}
	}
}

func TestConcurrentTransactionsSerialize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "contended", "Todo")

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.RunInTransaction(ctx, func(tx storage.Tx) error {
				return tx.CreateTask(ctx, &types.Task{
					BoardID:  board.ID,
					ColumnID: cols[0],
					Title:    fmt.Sprintf("task %d", i),
				})
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("writer %d failed: %v", i, err)
		}
	}
	n, err := store.CountTasks(ctx, types.TaskFilter{BoardID: &board.ID})
	if err != nil {
		t.Fatal(err)
	}
	if n != writers {
		t.Errorf("task count = %d, want %d", n, writers)
	}
}

func TestTransactionAfterCloseFails(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, t.TempDir()+"/closing.db")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	err = store.RunInTransaction(ctx, func(tx storage.Tx) error { return nil })
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable on closed store, got %v", err)
	}
}
