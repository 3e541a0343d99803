package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

func TestNewCreatesSchema(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	status := store.HealthCheck(ctx)
	if !status.Connected {
		t.Error("expected store to be connected")
	}
	if !status.Responsive {
		t.Error("expected store to be responsive")
	}
	if status.Stats["boards"] != 0 {
		t.Errorf("boards count = %v, want 0", status.Stats["boards"])
	}
}

func TestNewIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reopen.db")
	ctx := context.Background()

	store, err := New(ctx, path)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	board := &types.Board{Name: "persist"}
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.CreateBoard(ctx, board)
	})
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := New(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetBoard(ctx, board.ID)
	if err != nil {
		t.Fatalf("GetBoard after reopen failed: %v", err)
	}
	if got.Name != "persist" {
		t.Errorf("board name = %q, want %q", got.Name, "persist")
	}
}

func TestSnapshotProducesOpenableCopy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	board, _ := mustBoard(t, store, "snapshot-me", "Todo")
	dest := filepath.Join(t.TempDir(), "snap", "copy.db")

	if err := store.Snapshot(ctx, dest); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("snapshot file is empty")
	}

	snap, err := New(ctx, dest)
	if err != nil {
		t.Fatalf("failed to open snapshot: %v", err)
	}
	defer func() { _ = snap.Close() }()

	if _, err := snap.GetBoard(ctx, board.ID); err != nil {
		t.Errorf("board missing from snapshot: %v", err)
	}
	if err := snap.IntegrityCheck(ctx); err != nil {
		t.Errorf("snapshot integrity check failed: %v", err)
	}
}

func TestSnapshotOverwritesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dest := filepath.Join(t.TempDir(), "copy.db")
	if err := os.WriteFile(dest, []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := store.Snapshot(ctx, dest); err != nil {
		t.Fatalf("Snapshot over existing file failed: %v", err)
	}
}

func TestIntegrityCheck(t *testing.T) {
	store := newTestStore(t)
	if err := store.IntegrityCheck(context.Background()); err != nil {
		t.Errorf("IntegrityCheck on fresh database failed: %v", err)
	}
}

func TestDataVersionChangesOnWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	before, err := store.DataVersion(ctx)
	if err != nil {
		t.Fatalf("DataVersion failed: %v", err)
	}

	again, err := store.DataVersion(ctx)
	if err != nil {
		t.Fatalf("DataVersion failed: %v", err)
	}
	if again != before {
		t.Errorf("DataVersion changed without writes: %d -> %d", before, again)
	}

	board, cols := mustBoard(t, store, "versioned", "Todo")
	mustTask(t, store, &types.Task{BoardID: board.ID, ColumnID: cols[0], Title: "tick"})

	after, err := store.DataVersion(ctx)
	if err != nil {
		t.Fatalf("DataVersion failed: %v", err)
	}
	if after == before {
		t.Error("DataVersion did not change after write")
	}
}

func TestSetReadOnlyBlocksWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.SetReadOnly(true)
	err := store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.CreateBoard(ctx, &types.Board{Name: "nope"})
	})
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	store.SetReadOnly(false)
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.CreateBoard(ctx, &types.Board{Name: "yep"})
	})
}

func TestHealthCheckAfterClose(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, t.TempDir()+"/closed.db")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	status := store.HealthCheck(ctx)
	if status.Connected || status.Responsive {
		t.Errorf("closed store reported healthy: %+v", status)
	}
}
