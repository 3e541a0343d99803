package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kanbanhq/kanban/internal/storage"
)

// txHandle satisfies storage.Tx by reusing the per-aggregate repository
// methods over a transaction-scoped connection.
type txHandle struct {
	queries
}

var _ storage.Tx = (*txHandle)(nil)

// RunInTransaction executes fn atomically under BEGIN IMMEDIATE, which
// takes the write lock up front instead of deadlocking mid-transaction
// on lock upgrade. Busy errors on BEGIN are retried with exponential
// backoff; once the transaction is open, fn runs exactly once.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	if s.closed.Load() {
		return fmt.Errorf("run transaction: %w", storage.ErrUnavailable)
	}
	if s.readonly.Load() {
		return fmt.Errorf("store is read-only: %w", storage.ErrUnavailable)
	}

	// Dedicate one connection for the duration: BEGIN, every statement
	// in fn, and COMMIT must all see the same connection.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	policy := backoff.WithContext(newBusyBackoff(), ctx)
	err = backoff.Retry(func() error {
		_, beginErr := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if beginErr != nil && isBusy(beginErr) {
			return beginErr
		}
		return backoff.Permanent(beginErr)
	}, policy)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		}
	}()

	if err := fn(&txHandle{queries{dbtx: conn}}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// newBusyBackoff bounds lock-contention retries to a few seconds total.
// The connection-level busy_timeout already waits 30s inside SQLite;
// this covers the cases that surface as errors anyway.
func newBusyBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return b
}

// ReadTx runs fn with a read-only view bound to the shared pool. It is
// a convenience for multi-query reads that do not need isolation
// stronger than WAL snapshot-per-statement.
func (s *Store) ReadTx(ctx context.Context, fn func(r storage.Reader) error) error {
	if s.closed.Load() {
		return fmt.Errorf("read transaction: %w", storage.ErrUnavailable)
	}
	return fn(s.queries)
}
