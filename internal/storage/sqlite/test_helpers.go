package sqlite

import (
	"context"
	"testing"

	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

// newTestStore creates a file-backed store in a temp dir. File-based
// databases behave like production under the connection pool, unlike
// shared in-memory databases which leak state between tests.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	store, err := New(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Errorf("Failed to close test database: %v", cerr)
		}
	})
	return store
}

// mustWrite runs fn in a transaction and fails the test on error.
func mustWrite(t *testing.T, store *Store, fn func(tx storage.Tx) error) {
	t.Helper()
	if err := store.RunInTransaction(context.Background(), fn); err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
}

// mustBoard creates a board with the named columns and returns it plus
// the column IDs in order.
func mustBoard(t *testing.T, store *Store, name string, columns ...string) (*types.Board, []int64) {
	t.Helper()
	board := &types.Board{Name: name}
	colIDs := make([]int64, len(columns))
	mustWrite(t, store, func(tx storage.Tx) error {
		if err := tx.CreateBoard(context.Background(), board); err != nil {
			return err
		}
		for i, colName := range columns {
			col := &types.Column{BoardID: board.ID, Name: colName, Position: i}
			if err := tx.CreateColumn(context.Background(), col); err != nil {
				return err
			}
			colIDs[i] = col.ID
		}
		return nil
	})
	return board, colIDs
}

// mustTask creates a task and returns it with the assigned ID.
func mustTask(t *testing.T, store *Store, task *types.Task) *types.Task {
	t.Helper()
	mustWrite(t, store, func(tx storage.Tx) error {
		return tx.CreateTask(context.Background(), task)
	})
	return task
}
