package service

import (
	"context"
	"errors"

	"github.com/kanbanhq/kanban/internal/eventbus"
	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/types"
)

// AddDependency records that taskID depends on dependsOnID. Blocking
// edges are checked for cycles against the board's existing blocking
// subgraph and must stay on one board. Emits dependency:added, plus
// dependency:blocked when the new edge blocks the task.
func (s *Service) AddDependency(ctx context.Context, taskID, dependsOnID int64, depType types.DepType) error {
	if taskID == dependsOnID {
		return Conflict(CodeSelfDependency, "a task cannot depend on itself", map[string]any{
			"task_id": taskID,
		})
	}
	dep := &types.Dependency{TaskID: taskID, DependsOnTaskID: dependsOnID, Type: depType}
	if err := dep.Validate(); err != nil {
		return Validationf("%v", err)
	}

	return s.write(ctx, "dependency", func(tx storage.Tx, ev *eventBuffer) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		target, err := tx.GetTask(ctx, dependsOnID)
		if err != nil {
			return err
		}
		if depType == types.DepBlocks && task.BoardID != target.BoardID {
			return Conflict(CodeCrossBoard, "blocking edges must stay on one board", map[string]any{
				"task_board_id": task.BoardID, "depends_on_board_id": target.BoardID,
			})
		}

		if depType == types.DepBlocks {
			g, _, err := boardGraph(ctx, tx, task.BoardID)
			if err != nil {
				return err
			}
			if g.WouldCreateCycle(taskID, dependsOnID) {
				return Conflict(CodeCycle, "dependency would create a cycle", map[string]any{
					"task_id": taskID, "depends_on_task_id": dependsOnID,
				})
			}
		}

		if err := tx.AddDependency(ctx, dep); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return Conflict(CodeDuplicate, "dependency already exists", map[string]any{
					"task_id": taskID, "depends_on_task_id": dependsOnID,
				})
			}
			return err
		}
		ev.emit(eventbus.DependencyAdded, task.BoardID, map[string]any{
			"task_id": taskID, "depends_on_task_id": dependsOnID, "type": string(depType),
		})

		if depType == types.DepBlocks {
			g, _, err := boardGraph(ctx, tx, task.BoardID)
			if err != nil {
				return err
			}
			if err := syncBlockedStatus(ctx, tx, g, task.BoardID, []int64{taskID}, ev); err != nil {
				return err
			}
			if err := s.recomputeScores(ctx, tx, task.BoardID); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveDependency deletes the edge (taskID, dependsOnID). Removing a
// task's last live blocker unblocks it in the same transaction.
// Emits dependency:removed.
func (s *Service) RemoveDependency(ctx context.Context, taskID, dependsOnID int64) error {
	return s.write(ctx, "dependency", func(tx storage.Tx, ev *eventBuffer) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if err := tx.RemoveDependency(ctx, taskID, dependsOnID); err != nil {
			return err
		}
		ev.emit(eventbus.DependencyRemoved, task.BoardID, map[string]any{
			"task_id": taskID, "depends_on_task_id": dependsOnID,
		})

		g, _, err := boardGraph(ctx, tx, task.BoardID)
		if err != nil {
			return err
		}
		if err := syncBlockedStatus(ctx, tx, g, task.BoardID, []int64{taskID}, ev); err != nil {
			return err
		}
		return s.recomputeScores(ctx, tx, task.BoardID)
	})
}

// ListDependencies returns a task's outgoing and incoming edges.
func (s *Service) ListDependencies(ctx context.Context, taskID int64) (out, in []*types.Dependency, err error) {
	if _, err = s.store.GetTask(ctx, taskID); err != nil {
		return nil, nil, wrapStorage(err, "task")
	}
	if out, err = s.store.ListDependencies(ctx, taskID); err != nil {
		return nil, nil, wrapStorage(err, "dependency")
	}
	if in, err = s.store.ListDependents(ctx, taskID); err != nil {
		return nil, nil, wrapStorage(err, "dependency")
	}
	return out, in, nil
}
