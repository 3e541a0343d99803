package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

func TestDependencyEdges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "edges", "Todo")

	a := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "a"})
	b := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "b"})
	c := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "c"})

	mustWrite(t, store, func(tx storage.Tx) error {
		if err := tx.AddDependency(ctx, &types.Dependency{
			TaskID: a.ID, DependsOnTaskID: b.ID, Type: types.DepBlocks,
		}); err != nil {
			return err
		}
		return tx.AddDependency(ctx, &types.Dependency{
			TaskID: a.ID, DependsOnTaskID: c.ID, Type: types.DepRelated,
		})
	})

	out, err := store.ListDependencies(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListDependencies failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("outgoing edges = %d, want 2", len(out))
	}

	in, err := store.ListDependents(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(in) != 1 || in[0].TaskID != a.ID || in[0].Type != types.DepBlocks {
		t.Errorf("incoming edges = %v", in)
	}

	all, err := store.ListBoardDependencies(ctx, board.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("board edges = %d, want 2", len(all))
	}
}

func TestDuplicateDependencyConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "dup", "Todo")
	a := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "a"})
	b := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "b"})

	edge := &types.Dependency{TaskID: a.ID, DependsOnTaskID: b.ID, Type: types.DepBlocks}
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.AddDependency(ctx, edge)
	})

	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.AddDependency(ctx, edge)
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate edge: expected ErrConflict, got %v", err)
	}
}

func TestSelfDependencyRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "self", "Todo")
	a := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "a"})

	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.AddDependency(ctx, &types.Dependency{
			TaskID: a.ID, DependsOnTaskID: a.ID, Type: types.DepBlocks,
		})
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("self edge: expected ErrConflict, got %v", err)
	}
}

func TestRemoveDependency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "rm", "Todo")
	a := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "a"})
	b := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "b"})

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.AddDependency(ctx, &types.Dependency{
			TaskID: a.ID, DependsOnTaskID: b.ID, Type: types.DepBlocks,
		})
	})
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.RemoveDependency(ctx, a.ID, b.ID)
	})

	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.RemoveDependency(ctx, a.ID, b.ID)
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("removing absent edge: expected ErrNotFound, got %v", err)
	}
}

func TestDependencyCascadeOnTaskDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	board, cols := mustBoard(t, store, "cascade-dep", "Todo")
	a := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "a"})
	b := mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "b"})

	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.AddDependency(ctx, &types.Dependency{
			TaskID: a.ID, DependsOnTaskID: b.ID, Type: types.DepBlocks,
		})
	})
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.DeleteTask(ctx, b.ID)
	})

	out, err := store.ListDependencies(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("edges survived endpoint delete: %v", out)
	}
}
