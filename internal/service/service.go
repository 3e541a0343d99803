// Package service coordinates repositories, the task graph engine, and
// the event hub. Every mutation follows the same shape: validate,
// open a transaction, mutate, buffer events, commit, then flush the
// buffered events to the hub. A rollback discards the buffer, so
// subscribers never observe uncommitted state.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kanbanhq/kanban/internal/engine"
	"github.com/kanbanhq/kanban/internal/eventbus"
	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

// BackupRunner is the slice of the backup engine the service needs to
// trigger on-demand snapshots.
type BackupRunner interface {
	RunFull(ctx context.Context, name string) (*types.BackupMeta, error)
	Restore(ctx context.Context, target time.Time) (*types.BackupMeta, error)
	Delete(ctx context.Context, name string) error
}

// Service implements the application operations on top of the store.
type Service struct {
	store storage.Store
	hub   *eventbus.Hub
	log   zerolog.Logger
	now   func() time.Time

	weights        func() engine.Weights
	staleThreshold time.Duration
	backups        BackupRunner
}

// Option configures a Service.
type Option func(*Service)

// WithWeights supplies the priority-weight source. The function is
// called on every recompute, so a hot-reloaded config can feed new
// weights without restarting.
func WithWeights(fn func() engine.Weights) Option {
	return func(s *Service) { s.weights = fn }
}

// WithStaleThreshold overrides the age-factor saturation point.
func WithStaleThreshold(d time.Duration) Option {
	return func(s *Service) { s.staleThreshold = d }
}

// WithBackupRunner wires the backup engine for on-demand triggers.
func WithBackupRunner(r BackupRunner) Option {
	return func(s *Service) { s.backups = r }
}

// WithClock overrides the wall clock, for tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) { s.now = fn }
}

// New builds a Service over the given store and hub.
func New(store storage.Store, hub *eventbus.Hub, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:          store,
		hub:            hub,
		log:            logger.With().Str("component", "service").Logger(),
		now:            func() time.Time { return time.Now().UTC() },
		weights:        engine.DefaultWeights,
		staleThreshold: engine.DefaultStaleThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// eventBuffer collects events raised inside a transaction. They reach
// the hub only after the transaction commits.
type eventBuffer struct {
	events []eventbus.Event
}

func (b *eventBuffer) emit(t eventbus.EventType, boardID int64, payload map[string]any) {
	b.events = append(b.events, eventbus.Event{Type: t, BoardID: boardID, Payload: payload})
}

// write runs fn in a transaction and flushes its buffered events on
// commit. If the transaction retries, the buffer is reset so events
// are not duplicated.
func (s *Service) write(ctx context.Context, entity string, fn func(tx storage.Tx, ev *eventBuffer) error) error {
	var buf eventBuffer
	err := s.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		buf.events = buf.events[:0]
		return fn(tx, &buf)
	})
	if err != nil {
		return wrapStorage(err, entity)
	}
	for _, ev := range buf.events {
		s.hub.Publish(ev)
	}
	return nil
}

// scorer builds an engine scorer with the current weights and clock.
func (s *Service) scorer() *engine.Scorer {
	sc := engine.NewScorer(s.weights(), s.now())
	sc.StaleThreshold = s.staleThreshold
	return sc
}

// boardGraph loads one board's full task and blocking-edge snapshot.
func boardGraph(ctx context.Context, r storage.Reader, boardID int64) (*engine.Graph, []*types.Task, error) {
	tasks, err := r.ListBoardTasks(ctx, boardID, true)
	if err != nil {
		return nil, nil, err
	}
	deps, err := r.ListBoardDependencies(ctx, boardID)
	if err != nil {
		return nil, nil, err
	}
	return engine.NewGraph(tasks, deps), tasks, nil
}

// recomputeScores refreshes priority scores for a board inside the
// current transaction. Callers invoke it after any mutation touching
// status, priority, due dates, dependencies, or hierarchy.
func (s *Service) recomputeScores(ctx context.Context, tx storage.Tx, boardID int64) error {
	g, _, err := boardGraph(ctx, tx, boardID)
	if err != nil {
		return err
	}
	scores, _ := s.scorer().ScoreBoard(g)
	return tx.SetPriorityScores(ctx, scores)
}

// rollupProgress recomputes the progress rows for a task's ancestor
// chain, plus the task itself when it has children.
func rollupProgress(ctx context.Context, tx storage.Tx, tasks []*types.Task, taskID int64) error {
	h := engine.NewHierarchy(tasks)
	ids := append([]int64{taskID}, h.ParentChain(taskID)...)
	for _, id := range ids {
		p := h.Progress(id)
		if p.ChildCount == 0 && id == taskID {
			continue
		}
		if err := tx.UpsertProgress(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// syncBlockedStatus re-derives the blocked status for the given tasks
// within the current transaction. Tasks in todo with a live blocker
// become blocked; blocked tasks with no live blocker return to todo.
// Emits dependency:blocked / dependency:unblocked per transition.
func syncBlockedStatus(ctx context.Context, tx storage.Tx, g *engine.Graph, boardID int64, ids []int64, ev *eventBuffer) error {
	for _, id := range ids {
		t := g.Task(id)
		if t == nil || t.Archived || t.Status.Terminal() {
			continue
		}
		blocked := g.Blocked(id)
		switch {
		case blocked && t.Status == types.StatusTodo:
			st := types.StatusBlocked
			if err := tx.UpdateTask(ctx, id, types.TaskUpdate{Status: &st}); err != nil {
				return err
			}
			t.Status = st
			ev.emit(eventbus.DependencyBlocked, boardID, map[string]any{
				"task_id": id, "blockers": g.Blockers(id),
			})
		case !blocked && t.Status == types.StatusBlocked:
			st := types.StatusTodo
			if err := tx.UpdateTask(ctx, id, types.TaskUpdate{Status: &st}); err != nil {
				return err
			}
			t.Status = st
			ev.emit(eventbus.DependencyUnblocked, boardID, map[string]any{"task_id": id})
		}
	}
	return nil
}
