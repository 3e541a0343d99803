package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kanbanhq/kanban/internal/eventbus"
	"github.com/kanbanhq/kanban/internal/types"
)

// T2 depends on T1 and T3 on T2; closing the loop back to T3 fails.
func TestDependencyCycleRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	board := makeBoard(t, svc, "Cycle")
	t1 := makeTask(t, svc, board.ID, "T1")
	t2 := makeTask(t, svc, board.ID, "T2")
	t3 := makeTask(t, svc, board.ID, "T3")

	require.NoError(t, svc.AddDependency(ctx, t2.ID, t1.ID, types.DepBlocks))
	require.NoError(t, svc.AddDependency(ctx, t3.ID, t2.ID, types.DepBlocks))

	err := svc.AddDependency(ctx, t1.ID, t3.ID, types.DepBlocks)
	requireCode(t, err, CodeCycle)

	// Two-task cycle.
	err = svc.AddDependency(ctx, t1.ID, t2.ID, types.DepBlocks)
	requireCode(t, err, CodeCycle)
}

func TestSelfDependencyRejected(t *testing.T) {
	svc, _ := newTestService(t)
	board := makeBoard(t, svc, "Self")
	task := makeTask(t, svc, board.ID, "loner")

	err := svc.AddDependency(context.Background(), task.ID, task.ID, types.DepBlocks)
	requireCode(t, err, CodeSelfDependency)
}

func TestDuplicateDependencyRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	board := makeBoard(t, svc, "Dup")
	a := makeTask(t, svc, board.ID, "a")
	b := makeTask(t, svc, board.ID, "b")

	require.NoError(t, svc.AddDependency(ctx, a.ID, b.ID, types.DepBlocks))
	err := svc.AddDependency(ctx, a.ID, b.ID, types.DepBlocks)
	requireCode(t, err, CodeDuplicate)
}

func TestCrossBoardBlockingRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := makeBoard(t, svc, "A")
	b := makeBoard(t, svc, "B")
	ta := makeTask(t, svc, a.ID, "on a")
	tb := makeTask(t, svc, b.ID, "on b")

	err := svc.AddDependency(ctx, ta.ID, tb.ID, types.DepBlocks)
	requireCode(t, err, CodeCrossBoard)

	// Non-blocking edges may span boards.
	require.NoError(t, svc.AddDependency(ctx, ta.ID, tb.ID, types.DepRelated))
}

// Adding and removing an edge round-trips the dependency table and the
// dependent task's derived status.
func TestAddRemoveDependencyRoundTrip(t *testing.T) {
	svc, hub := newTestService(t)
	ctx := context.Background()
	board := makeBoard(t, svc, "RoundTrip")
	blocker := makeTask(t, svc, board.ID, "blocker")
	waiting := makeTask(t, svc, board.ID, "waiting")

	sub := hub.Subscribe(board.ID)
	require.NoError(t, svc.AddDependency(ctx, waiting.ID, blocker.ID, types.DepBlocks))

	d, err := svc.GetTask(ctx, waiting.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusBlocked, d.Task.Status)
	require.Len(t, d.Dependencies, 1)

	require.NoError(t, svc.RemoveDependency(ctx, waiting.ID, blocker.ID))
	d, err = svc.GetTask(ctx, waiting.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusTodo, d.Task.Status)
	require.Empty(t, d.Dependencies)

	got := drainEvents(t, sub, 4)
	wantTypes := []eventbus.EventType{
		eventbus.DependencyAdded, eventbus.DependencyBlocked,
		eventbus.DependencyRemoved, eventbus.DependencyUnblocked,
	}
	for i, want := range wantTypes {
		require.Equal(t, want, got[i].Type)
	}
}

func TestUnblockOnlyWhenLastBlockerCompletes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	board := makeBoard(t, svc, "TwoBlockers")
	b1 := makeTask(t, svc, board.ID, "b1")
	b2 := makeTask(t, svc, board.ID, "b2")
	waiting := makeTask(t, svc, board.ID, "waiting")

	require.NoError(t, svc.AddDependency(ctx, waiting.ID, b1.ID, types.DepBlocks))
	require.NoError(t, svc.AddDependency(ctx, waiting.ID, b2.ID, types.DepBlocks))

	_, err := svc.UpdateTaskStatus(ctx, b1.ID, types.StatusDone)
	require.NoError(t, err)
	d, err := svc.GetTask(ctx, waiting.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusBlocked, d.Task.Status, "one live blocker remains")

	_, err = svc.UpdateTaskStatus(ctx, b2.ID, types.StatusDone)
	require.NoError(t, err)
	d, err = svc.GetTask(ctx, waiting.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusTodo, d.Task.Status)
}

func TestReopeningBlockerReblocksDependents(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	board := makeBoard(t, svc, "Reopen")
	blocker := makeTask(t, svc, board.ID, "blocker")
	waiting := makeTask(t, svc, board.ID, "waiting")

	require.NoError(t, svc.AddDependency(ctx, waiting.ID, blocker.ID, types.DepBlocks))
	_, err := svc.UpdateTaskStatus(ctx, blocker.ID, types.StatusDone)
	require.NoError(t, err)

	_, err = svc.UpdateTaskStatus(ctx, blocker.ID, types.StatusInProgress)
	require.NoError(t, err)
	d, err := svc.GetTask(ctx, waiting.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusBlocked, d.Task.Status)
}
