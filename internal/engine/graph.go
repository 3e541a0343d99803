// Package engine implements the task graph algorithms: hierarchy and
// dependency invariants, progress rollup, priority scoring, and
// next-task selection. It operates on in-memory board snapshots loaded
// by the service layer; nothing here touches the database.
package engine

import (
	"sort"

	"github.com/kanbanhq/kanban/internal/types"
)

// Graph is an in-memory view of one board's tasks and its blocking
// edges. Only edges of type "blocks" participate in graph algorithms;
// "related" and "parent-child" edges are annotations.
//
// Edge direction follows the storage model: an edge (task, dependsOn)
// means task cannot complete until dependsOn does. "Forward" traversal
// in the blocking sense goes the other way, from a task to the tasks
// it blocks.
type Graph struct {
	tasks      map[int64]*types.Task
	dependsOn  map[int64][]int64 // task -> its blocking predecessors
	dependents map[int64][]int64 // task -> tasks it blocks
}

// NewGraph builds the blocking graph from a board snapshot. The task
// set should include done and archived tasks: they no longer block
// anyone, but they still count when sizing what an active task blocks.
func NewGraph(tasks []*types.Task, deps []*types.Dependency) *Graph {
	g := &Graph{
		tasks:      make(map[int64]*types.Task, len(tasks)),
		dependsOn:  make(map[int64][]int64),
		dependents: make(map[int64][]int64),
	}
	for _, t := range tasks {
		g.tasks[t.ID] = t
	}
	for _, d := range deps {
		if d.Type != types.DepBlocks {
			continue
		}
		if _, ok := g.tasks[d.TaskID]; !ok {
			continue
		}
		if _, ok := g.tasks[d.DependsOnTaskID]; !ok {
			continue
		}
		g.dependsOn[d.TaskID] = append(g.dependsOn[d.TaskID], d.DependsOnTaskID)
		g.dependents[d.DependsOnTaskID] = append(g.dependents[d.DependsOnTaskID], d.TaskID)
	}
	// Deterministic traversal order regardless of input order.
	for _, adj := range []map[int64][]int64{g.dependsOn, g.dependents} {
		for id := range adj {
			sort.Slice(adj[id], func(i, j int) bool { return adj[id][i] < adj[id][j] })
		}
	}
	return g
}

// Task returns the task with the given ID, or nil.
func (g *Graph) Task(id int64) *types.Task {
	return g.tasks[id]
}

// Tasks returns all tasks in ascending ID order.
func (g *Graph) Tasks() []*types.Task {
	out := make([]*types.Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WouldCreateCycle reports whether adding the blocking edge
// (taskID depends on dependsOnID) would close a cycle: true iff taskID
// is already reachable from dependsOnID along existing depends-on
// edges. DFS with a visited set; the existing graph is acyclic so
// traversal terminates.
func (g *Graph) WouldCreateCycle(taskID, dependsOnID int64) bool {
	if taskID == dependsOnID {
		return true
	}
	visited := make(map[int64]bool)
	stack := []int64{dependsOnID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == taskID {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		stack = append(stack, g.dependsOn[cur]...)
	}
	return false
}

// Blocked reports whether the task has at least one non-terminal
// blocking predecessor.
func (g *Graph) Blocked(taskID int64) bool {
	for _, pred := range g.dependsOn[taskID] {
		if p, ok := g.tasks[pred]; ok && !p.Status.Terminal() {
			return true
		}
	}
	return false
}

// Blockers returns the non-terminal blocking predecessors of a task.
func (g *Graph) Blockers(taskID int64) []int64 {
	var out []int64
	for _, pred := range g.dependsOn[taskID] {
		if p, ok := g.tasks[pred]; ok && !p.Status.Terminal() {
			out = append(out, pred)
		}
	}
	return out
}

// DirectBlocks returns the number of tasks directly blocked by taskID.
func (g *Graph) DirectBlocks(taskID int64) int {
	return len(g.dependents[taskID])
}

// TransitiveBlocks returns the number of distinct tasks reachable from
// taskID along forward blocking edges.
func (g *Graph) TransitiveBlocks(taskID int64) int {
	visited := make(map[int64]bool)
	stack := append([]int64(nil), g.dependents[taskID]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		stack = append(stack, g.dependents[cur]...)
	}
	return len(visited)
}

// CriticalPathLength returns the length, by edge count, of the longest
// blocking chain starting at taskID. Memoized over the DAG.
func (g *Graph) CriticalPathLength(taskID int64) int {
	memo := make(map[int64]int)
	return g.longestChain(taskID, memo)
}

func (g *Graph) longestChain(id int64, memo map[int64]int) int {
	if v, ok := memo[id]; ok {
		return v
	}
	longest := 0
	for _, next := range g.dependents[id] {
		if chain := g.longestChain(next, memo) + 1; chain > longest {
			longest = chain
		}
	}
	memo[id] = longest
	return longest
}

// Unblocks returns the tasks that would lose their last non-terminal
// blocker if taskID completed: the set a completion event reports as
// newly unblocked.
func (g *Graph) Unblocks(taskID int64) []int64 {
	var out []int64
	for _, dep := range g.dependents[taskID] {
		sole := true
		for _, pred := range g.dependsOn[dep] {
			if pred == taskID {
				continue
			}
			if p, ok := g.tasks[pred]; ok && !p.Status.Terminal() {
				sole = false
				break
			}
		}
		if sole {
			out = append(out, dep)
		}
	}
	return out
}

// TopoOrder returns task IDs in dependency order: every task appears
// after all of its blocking predecessors. Kahn's algorithm with an
// ID-sorted frontier for determinism. Tasks on a cycle (which the
// service layer prevents) are appended at the end in ID order rather
// than dropped.
func (g *Graph) TopoOrder() []int64 {
	indegree := make(map[int64]int, len(g.tasks))
	for id := range g.tasks {
		indegree[id] = len(g.dependsOn[id])
	}

	frontier := make([]int64, 0, len(g.tasks))
	for id, n := range indegree {
		if n == 0 {
			frontier = append(frontier, id)
		}
	}
	sort.Slice(frontier, func(i, j int) bool { return frontier[i] < frontier[j] })

	order := make([]int64, 0, len(g.tasks))
	seen := make(map[int64]bool, len(g.tasks))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)
		seen[id] = true

		var released []int64
		for _, dep := range g.dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				released = append(released, dep)
			}
		}
		sort.Slice(released, func(i, j int) bool { return released[i] < released[j] })
		frontier = mergeSorted(frontier, released)
	}

	if len(order) < len(g.tasks) {
		var rest []int64
		for id := range g.tasks {
			if !seen[id] {
				rest = append(rest, id)
			}
		}
		sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
		order = append(order, rest...)
	}
	return order
}

func mergeSorted(a, b []int64) []int64 {
	if len(b) == 0 {
		return a
	}
	out := make([]int64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
