package engine

import (
	"testing"

	"github.com/kanbanhq/kanban/internal/types"
)

func task(id int64, status types.Status) *types.Task {
	return &types.Task{ID: id, BoardID: 1, ColumnID: 1, Title: "t", Status: status, Priority: types.PriorityMedium}
}

func blocks(taskID, dependsOn int64) *types.Dependency {
	return &types.Dependency{TaskID: taskID, DependsOnTaskID: dependsOn, Type: types.DepBlocks}
}

func TestWouldCreateCycle(t *testing.T) {
	// T2 depends on T1, T3 depends on T2.
	g := NewGraph(
		[]*types.Task{task(1, types.StatusTodo), task(2, types.StatusTodo), task(3, types.StatusTodo)},
		[]*types.Dependency{blocks(2, 1), blocks(3, 2)},
	)

	// Closing the loop at any length is a cycle.
	if !g.WouldCreateCycle(1, 3) {
		t.Error("three-cycle not detected")
	}
	if !g.WouldCreateCycle(1, 2) {
		t.Error("two-cycle not detected")
	}
	if !g.WouldCreateCycle(1, 1) {
		t.Error("self-cycle not detected")
	}
	// Adding an edge in the existing direction is fine.
	if g.WouldCreateCycle(3, 1) {
		t.Error("transitive shortcut flagged as cycle")
	}
}

func TestBlockedAndBlockers(t *testing.T) {
	g := NewGraph(
		[]*types.Task{task(1, types.StatusDone), task(2, types.StatusTodo), task(3, types.StatusTodo)},
		[]*types.Dependency{blocks(3, 1), blocks(3, 2)},
	)

	if !g.Blocked(3) {
		t.Error("task with a live predecessor not blocked")
	}
	if got := g.Blockers(3); len(got) != 1 || got[0] != 2 {
		t.Errorf("Blockers = %v, want [2]", got)
	}
	if g.Blocked(2) {
		t.Error("task with no predecessors reported blocked")
	}

	// Terminal predecessors do not block.
	g2 := NewGraph(
		[]*types.Task{task(1, types.StatusArchived), task(2, types.StatusTodo)},
		[]*types.Dependency{blocks(2, 1)},
	)
	if g2.Blocked(2) {
		t.Error("archived predecessor still blocks")
	}
}

func TestRelatedEdgesDoNotBlock(t *testing.T) {
	g := NewGraph(
		[]*types.Task{task(1, types.StatusTodo), task(2, types.StatusTodo)},
		[]*types.Dependency{{TaskID: 2, DependsOnTaskID: 1, Type: types.DepRelated}},
	)
	if g.Blocked(2) {
		t.Error("related edge treated as blocking")
	}
	if g.DirectBlocks(1) != 0 {
		t.Error("related edge counted in blocking fan-out")
	}
}

func TestTransitiveBlocksAndCriticalPath(t *testing.T) {
	// Chain 1 <- 2 <- 3 plus a diamond: 4 depends on 1, 5 on both 2 and 4.
	g := NewGraph(
		[]*types.Task{
			task(1, types.StatusTodo), task(2, types.StatusTodo), task(3, types.StatusTodo),
			task(4, types.StatusTodo), task(5, types.StatusTodo),
		},
		[]*types.Dependency{blocks(2, 1), blocks(3, 2), blocks(4, 1), blocks(5, 2), blocks(5, 4)},
	)

	if got := g.DirectBlocks(1); got != 2 {
		t.Errorf("DirectBlocks(1) = %d, want 2", got)
	}
	// Reachable from 1: 2, 3, 4, 5.
	if got := g.TransitiveBlocks(1); got != 4 {
		t.Errorf("TransitiveBlocks(1) = %d, want 4", got)
	}
	// Longest chain from 1: 1 -> 2 -> 3 (or 1 -> 2 -> 5), two edges.
	if got := g.CriticalPathLength(1); got != 2 {
		t.Errorf("CriticalPathLength(1) = %d, want 2", got)
	}
	if got := g.CriticalPathLength(3); got != 0 {
		t.Errorf("CriticalPathLength(3) = %d, want 0", got)
	}
}

func TestUnblocks(t *testing.T) {
	// 3 waits on 1 and 2; 4 waits on 1 only. 2 is already done.
	g := NewGraph(
		[]*types.Task{
			task(1, types.StatusInProgress), task(2, types.StatusDone),
			task(3, types.StatusTodo), task(4, types.StatusTodo),
		},
		[]*types.Dependency{blocks(3, 1), blocks(3, 2), blocks(4, 1)},
	)

	got := g.Unblocks(1)
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("Unblocks(1) = %v, want [3 4]", got)
	}

	// 2 is already terminal; nothing newly unblocks through it.
	g2 := NewGraph(
		[]*types.Task{
			task(1, types.StatusInProgress), task(2, types.StatusInProgress),
			task(3, types.StatusTodo),
		},
		[]*types.Dependency{blocks(3, 1), blocks(3, 2)},
	)
	if got := g2.Unblocks(1); len(got) != 0 {
		t.Errorf("Unblocks with second live blocker = %v, want none", got)
	}
}

func TestTopoOrderIsDeterministic(t *testing.T) {
	tasks := []*types.Task{
		task(5, types.StatusTodo), task(3, types.StatusTodo), task(1, types.StatusTodo),
		task(4, types.StatusTodo), task(2, types.StatusTodo),
	}
	deps := []*types.Dependency{blocks(3, 1), blocks(5, 3), blocks(4, 2)}

	g := NewGraph(tasks, deps)
	first := g.TopoOrder()

	pos := make(map[int64]int, len(first))
	for i, id := range first {
		pos[id] = i
	}
	for _, d := range deps {
		if pos[d.DependsOnTaskID] > pos[d.TaskID] {
			t.Errorf("edge (%d depends on %d) violated in order %v", d.TaskID, d.DependsOnTaskID, first)
		}
	}

	// Same input, same order, regardless of slice shuffling.
	shuffled := []*types.Task{tasks[2], tasks[0], tasks[4], tasks[1], tasks[3]}
	again := NewGraph(shuffled, []*types.Dependency{deps[2], deps[0], deps[1]}).TopoOrder()
	for i := range first {
		if first[i] != again[i] {
			t.Fatalf("orders differ: %v vs %v", first, again)
		}
	}
}
