package engine

import (
	"math"
	"testing"

	"github.com/kanbanhq/kanban/internal/types"
)

func child(id, parent int64, status types.Status) *types.Task {
	t := task(id, status)
	t.ParentTaskID = &parent
	return t
}

func TestProgressRollupThirds(t *testing.T) {
	parent := task(1, types.StatusInProgress)
	a := child(2, 1, types.StatusTodo)
	b := child(3, 1, types.StatusTodo)
	c := child(4, 1, types.StatusTodo)

	step := func(want float64) {
		t.Helper()
		h := NewHierarchy([]*types.Task{parent, a, b, c})
		got := h.Progress(1).PercentComplete
		if math.Abs(got-want) > 0.01 {
			t.Errorf("percent_complete = %.2f, want %.2f", got, want)
		}
	}

	step(0)
	a.Status = types.StatusDone
	step(33.33)
	b.Status = types.StatusDone
	step(66.67)
	c.Status = types.StatusDone
	step(100)

	h := NewHierarchy([]*types.Task{parent, a, b, c})
	p := h.Progress(1)
	if p.ChildCount != 3 || p.DoneCount != 3 {
		t.Errorf("counts = %d/%d, want 3/3", p.DoneCount, p.ChildCount)
	}
}

func TestOpenChildrenGateDone(t *testing.T) {
	parent := task(1, types.StatusInProgress)
	a := child(2, 1, types.StatusDone)
	b := child(3, 1, types.StatusInProgress)

	h := NewHierarchy([]*types.Task{parent, a, b})
	open := h.OpenChildren(1)
	if len(open) != 1 || open[0] != 3 {
		t.Errorf("OpenChildren = %v, want [3]", open)
	}

	b.Status = types.StatusDone
	h = NewHierarchy([]*types.Task{parent, a, b})
	if open := h.OpenChildren(1); len(open) != 0 {
		t.Errorf("OpenChildren after completion = %v, want none", open)
	}
}

func TestProgressNestedAveraging(t *testing.T) {
	// Root has two children; one is itself a parent of two leaves, one
	// done and one not. Root = mean(50, 100) = 75.
	root := task(1, types.StatusInProgress)
	mid := child(2, 1, types.StatusInProgress)
	done := child(3, 1, types.StatusDone)
	leafA := child(4, 2, types.StatusDone)
	leafB := child(5, 2, types.StatusTodo)

	h := NewHierarchy([]*types.Task{root, mid, done, leafA, leafB})
	got := h.Progress(1).PercentComplete
	if math.Abs(got-75) > 0.01 {
		t.Errorf("nested rollup = %.2f, want 75", got)
	}
}

func TestProgressExcludesArchivedChildren(t *testing.T) {
	parent := task(1, types.StatusInProgress)
	live := child(2, 1, types.StatusDone)
	dead := child(3, 1, types.StatusTodo)
	dead.Archived = true

	h := NewHierarchy([]*types.Task{parent, live, dead})
	p := h.Progress(1)
	if p.ChildCount != 1 {
		t.Errorf("child count = %d, want 1 (archived excluded)", p.ChildCount)
	}
	if math.Abs(p.PercentComplete-100) > 0.01 {
		t.Errorf("rollup = %.2f, want 100", p.PercentComplete)
	}
}

func TestParentChainAndDepth(t *testing.T) {
	root := task(1, types.StatusTodo)
	mid := child(2, 1, types.StatusTodo)
	leaf := child(3, 2, types.StatusTodo)

	h := NewHierarchy([]*types.Task{root, mid, leaf})
	chain := h.ParentChain(3)
	if len(chain) != 2 || chain[0] != 2 || chain[1] != 1 {
		t.Errorf("ParentChain = %v, want [2 1]", chain)
	}
	if h.Depth(1) != 0 || h.Depth(2) != 1 || h.Depth(3) != 2 {
		t.Errorf("depths = %d/%d/%d, want 0/1/2", h.Depth(1), h.Depth(2), h.Depth(3))
	}
}

func TestRollupAllCoversEveryParent(t *testing.T) {
	root := task(1, types.StatusInProgress)
	mid := child(2, 1, types.StatusInProgress)
	leaf := child(3, 2, types.StatusDone)

	h := NewHierarchy([]*types.Task{root, mid, leaf})
	all := h.RollupAll()
	if len(all) != 2 {
		t.Fatalf("RollupAll = %d rows, want 2", len(all))
	}
	byID := map[int64]types.TaskProgress{}
	for _, p := range all {
		byID[p.TaskID] = p
	}
	if math.Abs(byID[2].PercentComplete-100) > 0.01 {
		t.Errorf("mid rollup = %.2f, want 100", byID[2].PercentComplete)
	}
	if math.Abs(byID[1].PercentComplete-100) > 0.01 {
		t.Errorf("root rollup = %.2f, want 100", byID[1].PercentComplete)
	}
}
