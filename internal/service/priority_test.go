package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kanbanhq/kanban/internal/types"
)

// X and Y share a manual priority but X is due sooner; Z blocks four
// tasks yet scores below both. X is recommended first, then Y.
func TestNextTaskScenario(t *testing.T) {
	now := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	board := makeBoard(t, svc, "Sprint")

	today := now.Add(6 * time.Hour)
	tomorrow := now.Add(30 * time.Hour)
	x, err := svc.CreateTask(ctx, CreateTaskInput{
		BoardID: board.ID, Title: "X", Priority: types.PriorityCritical, DueDate: &today,
	})
	require.NoError(t, err)
	y, err := svc.CreateTask(ctx, CreateTaskInput{
		BoardID: board.ID, Title: "Y", Priority: types.PriorityCritical, DueDate: &tomorrow,
	})
	require.NoError(t, err)
	z, err := svc.CreateTask(ctx, CreateTaskInput{
		BoardID: board.ID, Title: "Z", Priority: types.PriorityLow,
	})
	require.NoError(t, err)
	for _, title := range []string{"w1", "w2", "w3", "w4"} {
		w := makeTask(t, svc, board.ID, title)
		require.NoError(t, svc.AddDependency(ctx, w.ID, z.ID, types.DepBlocks))
	}

	filter := types.NextTaskFilter{BoardID: &board.ID, ExcludeBlocked: true}
	rec, err := svc.GetNextTask(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, x.ID, rec.Task.ID)
	require.Len(t, rec.Reasoning, 3)

	// Deterministic across calls.
	for i := 0; i < 3; i++ {
		again, err := svc.GetNextTask(ctx, filter)
		require.NoError(t, err)
		require.Equal(t, x.ID, again.Task.ID)
	}

	require.NoError(t, svc.DeleteTask(ctx, x.ID))
	rec, err = svc.GetNextTask(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, y.ID, rec.Task.ID)
}

func TestNextTaskReportsUnblocks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	board := makeBoard(t, svc, "Unblocks")
	blocker, err := svc.CreateTask(ctx, CreateTaskInput{
		BoardID: board.ID, Title: "keystone", Priority: types.PriorityCritical,
	})
	require.NoError(t, err)
	waiting := makeTask(t, svc, board.ID, "waiting")
	require.NoError(t, svc.AddDependency(ctx, waiting.ID, blocker.ID, types.DepBlocks))

	rec, err := svc.GetNextTask(ctx, types.NextTaskFilter{BoardID: &board.ID, ExcludeBlocked: true})
	require.NoError(t, err)
	require.Equal(t, blocker.ID, rec.Task.ID)
	require.Equal(t, []int64{waiting.ID}, rec.Unblocks)
}

func TestNextTaskAcrossBoards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	quiet := makeBoard(t, svc, "Quiet")
	urgent := makeBoard(t, svc, "Urgent")
	makeTask(t, svc, quiet.ID, "someday")
	hot, err := svc.CreateTask(ctx, CreateTaskInput{
		BoardID: urgent.ID, Title: "hot", Priority: types.PriorityCritical,
	})
	require.NoError(t, err)

	rec, err := svc.GetNextTask(ctx, types.NextTaskFilter{ExcludeBlocked: true})
	require.NoError(t, err)
	require.Equal(t, hot.ID, rec.Task.ID)
}

func TestNextTaskEmptyBoard(t *testing.T) {
	svc, _ := newTestService(t)
	board := makeBoard(t, svc, "Empty")
	rec, err := svc.GetNextTask(context.Background(), types.NextTaskFilter{BoardID: &board.ID})
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestRecalculatePersistsScores(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	board := makeBoard(t, svc, "Recalc")
	hub := makeTask(t, svc, board.ID, "hub")
	for _, title := range []string{"d1", "d2"} {
		d := makeTask(t, svc, board.ID, title)
		require.NoError(t, svc.AddDependency(ctx, d.ID, hub.ID, types.DepBlocks))
	}

	n, err := svc.RecalculateBoard(ctx, board.ID)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	d, err := svc.GetTask(ctx, hub.ID)
	require.NoError(t, err)
	lone, err := svc.GetTask(ctx, ldID(t, svc, ctx, board.ID, "d1"))
	require.NoError(t, err)
	require.Greater(t, d.Task.PriorityScore, lone.Task.PriorityScore,
		"the blocker outranks what it blocks")
}

// ldID finds a task by title on a board.
func ldID(t *testing.T, svc *Service, ctx context.Context, boardID int64, title string) int64 {
	t.Helper()
	tasks, _, err := svc.SearchTasks(ctx, types.TaskFilter{BoardID: &boardID, Search: title})
	require.NoError(t, err)
	require.NotEmpty(t, tasks)
	return tasks[0].ID
}

func TestBoardContext(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	board := makeBoard(t, svc, "Context")
	blocker := makeTask(t, svc, board.ID, "blocker")
	waiting := makeTask(t, svc, board.ID, "waiting")
	require.NoError(t, svc.AddDependency(ctx, waiting.ID, blocker.ID, types.DepBlocks))

	bc, err := svc.GetBoardContext(ctx, board.ID)
	require.NoError(t, err)
	require.Equal(t, board.ID, bc.Board.ID)
	require.Len(t, bc.Columns, 3)
	require.Equal(t, 1, bc.StatusCounts[types.StatusTodo])
	require.Equal(t, 1, bc.StatusCounts[types.StatusBlocked])
	require.Len(t, bc.Blocked, 1)
	require.NotNil(t, bc.Recommended)
	require.Equal(t, blocker.ID, bc.Recommended.Task.ID)
}
