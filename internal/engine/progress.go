package engine

import (
	"sort"

	"github.com/kanbanhq/kanban/internal/types"
)

// Hierarchy indexes the parent/child structure of a board snapshot.
type Hierarchy struct {
	tasks    map[int64]*types.Task
	children map[int64][]int64
}

// NewHierarchy builds the subtask tree. Archived tasks are indexed but
// excluded from their parent's progress denominator.
func NewHierarchy(tasks []*types.Task) *Hierarchy {
	h := &Hierarchy{
		tasks:    make(map[int64]*types.Task, len(tasks)),
		children: make(map[int64][]int64),
	}
	for _, t := range tasks {
		h.tasks[t.ID] = t
	}
	for _, t := range tasks {
		if t.ParentTaskID != nil {
			if _, ok := h.tasks[*t.ParentTaskID]; ok {
				h.children[*t.ParentTaskID] = append(h.children[*t.ParentTaskID], t.ID)
			}
		}
	}
	for id := range h.children {
		sort.Slice(h.children[id], func(i, j int) bool { return h.children[id][i] < h.children[id][j] })
	}
	return h
}

// Children returns the direct non-archived subtasks of a task.
func (h *Hierarchy) Children(id int64) []int64 {
	var out []int64
	for _, c := range h.children[id] {
		if t := h.tasks[c]; t != nil && !t.Archived && t.Status != types.StatusArchived {
			out = append(out, c)
		}
	}
	return out
}

// OpenChildren returns the direct subtasks that are not done. A parent
// with open children cannot transition to done.
func (h *Hierarchy) OpenChildren(id int64) []int64 {
	var out []int64
	for _, c := range h.Children(id) {
		if h.tasks[c].Status != types.StatusDone {
			out = append(out, c)
		}
	}
	return out
}

// ParentChain returns the ancestors of a task from direct parent to
// root. The walk stops after 16 hops so a corrupted parent cycle
// cannot loop forever.
func (h *Hierarchy) ParentChain(id int64) []int64 {
	var chain []int64
	cur := h.tasks[id]
	for cur != nil && cur.ParentTaskID != nil && len(chain) < 16 {
		parent := h.tasks[*cur.ParentTaskID]
		if parent == nil {
			break
		}
		chain = append(chain, parent.ID)
		cur = parent
	}
	return chain
}

// Depth returns the hierarchy depth of a task: 0 for top level.
func (h *Hierarchy) Depth(id int64) int {
	return len(h.ParentChain(id))
}

// Progress computes the rollup for one task: leaves are 0 or 100 by
// status, parents average their direct children.
func (h *Hierarchy) Progress(id int64) types.TaskProgress {
	memo := make(map[int64]float64)
	p := types.TaskProgress{TaskID: id}
	children := h.Children(id)
	if len(children) == 0 {
		p.PercentComplete = leafProgress(h.tasks[id])
		return p
	}
	p.ChildCount = len(children)
	var sum float64
	for _, c := range children {
		pct := h.percent(c, memo)
		sum += pct
		if h.tasks[c].Status == types.StatusDone {
			p.DoneCount++
		}
	}
	p.PercentComplete = sum / float64(len(children))
	return p
}

// RollupAll computes progress for every task that has children, in one
// pass over the snapshot.
func (h *Hierarchy) RollupAll() []types.TaskProgress {
	var out []types.TaskProgress
	ids := make([]int64, 0, len(h.children))
	for id := range h.children {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if len(h.Children(id)) == 0 {
			continue
		}
		out = append(out, h.Progress(id))
	}
	return out
}

func (h *Hierarchy) percent(id int64, memo map[int64]float64) float64 {
	if v, ok := memo[id]; ok {
		return v
	}
	var pct float64
	children := h.Children(id)
	if len(children) == 0 {
		pct = leafProgress(h.tasks[id])
	} else {
		var sum float64
		for _, c := range children {
			sum += h.percent(c, memo)
		}
		pct = sum / float64(len(children))
	}
	memo[id] = pct
	return pct
}

func leafProgress(t *types.Task) float64 {
	if t != nil && t.Status == types.StatusDone {
		return 100
	}
	return 0
}
