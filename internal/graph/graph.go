// Package graph implements the immutable DependencyGraph snapshot (spec
// §4.3, component F): forward/reverse adjacency over task dependency
// edges, plus the traversal, cycle-detection and metrics queries the
// scheduler and tracking overlay need. Grounded on the teacher's own
// cycle guard in internal/storage/sqlite's dependency insertion path
// (a DFS over the `dependencies` table before accepting an edge),
// generalized here into a standalone, testable in-memory type that
// doesn't require a database round trip per check.
package graph

import (
	"sort"

	"github.com/marktoda/astrotask/internal/types"
)

// Graph is an immutable snapshot of every dependency edge plus the
// status of every task it was built with status metadata for.
// Iteration over adjacency lists is insertion order, matching the
// determinism the spec requires.
type Graph struct {
	forward  map[string][]string // dependent -> its dependencies
	reverse  map[string][]string // dependency -> its dependents
	ids      []string            // every task id seen, insertion order
	idSet    map[string]struct{}
	statuses map[string]types.Status
}

// New builds a Graph from a list of dependency edges and an optional
// status lookup (nil is fine; TaskStatus then reports "" for every id,
// so IsBlocked over an edge to an unknown task is conservative and
// reports blocked).
func New(deps []*types.TaskDependency, statuses map[string]types.Status) *Graph {
	g := &Graph{
		forward:  make(map[string][]string),
		reverse:  make(map[string][]string),
		idSet:    make(map[string]struct{}),
		statuses: statuses,
	}
	if g.statuses == nil {
		g.statuses = map[string]types.Status{}
	}
	addID := func(id string) {
		if _, ok := g.idSet[id]; !ok {
			g.idSet[id] = struct{}{}
			g.ids = append(g.ids, id)
		}
	}
	for _, d := range deps {
		g.forward[d.DependentTaskID] = append(g.forward[d.DependentTaskID], d.DependencyTaskID)
		g.reverse[d.DependencyTaskID] = append(g.reverse[d.DependencyTaskID], d.DependentTaskID)
		addID(d.DependentTaskID)
		addID(d.DependencyTaskID)
	}
	return g
}

// TaskStatus returns the status this graph was built with for id, or ""
// if unknown.
func (g *Graph) TaskStatus(id string) types.Status {
	return g.statuses[id]
}

// GetDependencies returns the ids id directly depends on.
func (g *Graph) GetDependencies(id string) []string {
	return append([]string(nil), g.forward[id]...)
}

// GetDependents returns the ids that directly depend on id.
func (g *Graph) GetDependents(id string) []string {
	return append([]string(nil), g.reverse[id]...)
}

// TaskDependencyGraph is the per-task derived view (spec §4.3).
type TaskDependencyGraph struct {
	TaskID       string
	Dependencies []string
	Dependents   []string
	IsBlocked    bool
	BlockedBy    []string
}

// GetTaskDependencyGraph computes the derived view for id.
func (g *Graph) GetTaskDependencyGraph(id string) TaskDependencyGraph {
	var blockedBy []string
	for _, dep := range g.forward[id] {
		if g.statuses[dep] != types.StatusDone {
			blockedBy = append(blockedBy, dep)
		}
	}
	return TaskDependencyGraph{
		TaskID:       id,
		Dependencies: g.GetDependencies(id),
		Dependents:   g.GetDependents(id),
		IsBlocked:    len(blockedBy) > 0,
		BlockedBy:    blockedBy,
	}
}

// GetBlockedTasks returns every known task id with at least one
// not-done dependency.
func (g *Graph) GetBlockedTasks() []string {
	var out []string
	for _, id := range g.ids {
		if g.GetTaskDependencyGraph(id).IsBlocked {
			out = append(out, id)
		}
	}
	return out
}

// GetExecutableTasks returns every known task id that is pending (or
// has no recorded status, i.e. "unstarted") and not blocked.
func (g *Graph) GetExecutableTasks() []string {
	var out []string
	for _, id := range g.ids {
		status := g.statuses[id]
		if (status == types.StatusPending || status == "") && !g.GetTaskDependencyGraph(id).IsBlocked {
			out = append(out, id)
		}
	}
	return out
}

// FindCyclesResult is the return shape of FindCycles.
type FindCyclesResult struct {
	HasCycles bool
	Cycles    [][]string
}

// FindCycles runs a DFS with an explicit recursion stack over every
// known task, reporting each distinct cycle found as the path from
// re-entry back to itself.
func (g *Graph) FindCycles() FindCyclesResult {
	visited := map[string]bool{}
	onStack := map[string]bool{}
	var stack []string
	var cycles [][]string

	var dfs func(node string)
	dfs = func(node string) {
		visited[node] = true
		onStack[node] = true
		stack = append(stack, node)

		for _, next := range g.forward[node] {
			if onStack[next] {
				// Found a back-edge into the current stack: the cycle is
				// the stack slice from next's position through node.
				for i, s := range stack {
					if s == next {
						cycle := append([]string(nil), stack[i:]...)
						cycles = append(cycles, cycle)
						break
					}
				}
				continue
			}
			if !visited[next] {
				dfs(next)
			}
		}

		stack = stack[:len(stack)-1]
		onStack[node] = false
	}

	for _, id := range g.ids {
		if !visited[id] {
			dfs(id)
		}
	}

	return FindCyclesResult{HasCycles: len(cycles) > 0, Cycles: cycles}
}

// WouldCreateCycle reports, without mutating g, whether adding the edge
// dependent->dependsOn would close a cycle: true iff dependsOn can
// already reach dependent.
func (g *Graph) WouldCreateCycle(dependent, dependsOn string) bool {
	if dependent == dependsOn {
		return true
	}
	visited := map[string]bool{}
	var dfs func(node string) bool
	dfs = func(node string) bool {
		if node == dependent {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for _, next := range g.forward[node] {
			if dfs(next) {
				return true
			}
		}
		return false
	}
	return dfs(dependsOn)
}

// GetTopologicalOrder returns every known task id in dependency order
// (a dependency always precedes its dependents), via Kahn's algorithm.
// Returns (nil, false) if the graph has a cycle.
func (g *Graph) GetTopologicalOrder() ([]string, bool) {
	return g.GetTopologicalOrderForTasks(g.ids)
}

// GetTopologicalOrderForTasks is GetTopologicalOrder restricted to the
// sub-graph induced by ids.
func (g *Graph) GetTopologicalOrderForTasks(ids []string) ([]string, bool) {
	inSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		inSet[id] = struct{}{}
	}

	indegree := make(map[string]int, len(ids))
	for _, id := range ids {
		indegree[id] = 0
	}
	for _, id := range ids {
		for _, dep := range g.forward[id] {
			if _, ok := inSet[dep]; ok {
				indegree[id]++
			}
		}
	}

	var queue []string
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		var freed []string
		for _, dependent := range g.reverse[node] {
			if _, ok := inSet[dependent]; !ok {
				continue
			}
			indegree[dependent]--
			if indegree[dependent] == 0 {
				freed = append(freed, dependent)
			}
		}
		sort.Strings(freed)
		queue = append(queue, freed...)
	}

	if len(order) != len(ids) {
		return nil, false
	}
	// Nodes with indegree 0 (no dependencies) were queued first, so
	// order already lists each dependency ahead of its dependents.
	return order, true
}

// WalkDepthFirst visits every id reachable from startID via forward
// edges, pre-order, calling visitor on each. Stops early if visitor
// returns false.
func (g *Graph) WalkDepthFirst(startID string, visitor func(string) bool) {
	visited := map[string]bool{}
	var dfs func(id string) bool
	dfs = func(id string) bool {
		if visited[id] {
			return true
		}
		visited[id] = true
		if !visitor(id) {
			return false
		}
		for _, next := range g.forward[id] {
			if !dfs(next) {
				return false
			}
		}
		return true
	}
	dfs(startID)
}

// WalkBreadthFirst visits every id reachable from startID via forward
// edges, breadth-first.
func (g *Graph) WalkBreadthFirst(startID string, visitor func(string) bool) {
	visited := map[string]bool{startID: true}
	queue := []string{startID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if !visitor(id) {
			return
		}
		for _, next := range g.forward[id] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
}

// FindShortestPath returns the shortest forward-edge path from a to b
// (inclusive of both ends) via BFS, or (nil, false) if unreachable.
func (g *Graph) FindShortestPath(a, b string) ([]string, bool) {
	if a == b {
		return []string{a}, true
	}
	visited := map[string]bool{a: true}
	prev := map[string]string{}
	queue := []string{a}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range g.forward[node] {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = node
			if next == b {
				var path []string
				for n := b; ; {
					path = append([]string{n}, path...)
					if n == a {
						break
					}
					n = prev[n]
				}
				return path, true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

// Metrics is the global-view return shape of GetMetrics.
type Metrics struct {
	TotalTasks                 int
	TotalDependencies          int
	RootTasks                  int // no dependencies of their own
	LeafTasks                  int // nothing depends on them
	MaxDepth                   int
	AverageDependencies        float64
	HasCycles                  bool
	StronglyConnectedComponents int
}

// GetMetrics computes the global view (spec §4.3).
func (g *Graph) GetMetrics() Metrics {
	m := Metrics{TotalTasks: len(g.ids)}
	for _, id := range g.ids {
		m.TotalDependencies += len(g.forward[id])
		if len(g.forward[id]) == 0 {
			m.RootTasks++
		}
		if len(g.reverse[id]) == 0 {
			m.LeafTasks++
		}
	}
	if m.TotalTasks > 0 {
		m.AverageDependencies = float64(m.TotalDependencies) / float64(m.TotalTasks)
	}
	m.MaxDepth = g.maxDepth()
	cycles := g.FindCycles()
	m.HasCycles = cycles.HasCycles
	m.StronglyConnectedComponents = g.countSCCs()
	return m
}

// maxDepth returns the length of the longest forward-edge chain,
// measured in edges, or 0 for an empty/acyclic-free graph. A graph with
// cycles reports the longest simple prefix reachable before a
// back-edge is hit (cycle detection, not this helper, is the source of
// truth for "is this graph acyclic").
func (g *Graph) maxDepth() int {
	memo := map[string]int{}
	var depth func(id string, onStack map[string]bool) int
	depth = func(id string, onStack map[string]bool) int {
		if d, ok := memo[id]; ok {
			return d
		}
		if onStack[id] {
			return 0
		}
		onStack[id] = true
		best := 0
		for _, next := range g.forward[id] {
			if d := depth(next, onStack) + 1; d > best {
				best = d
			}
		}
		onStack[id] = false
		memo[id] = best
		return best
	}
	max := 0
	for _, id := range g.ids {
		if d := depth(id, map[string]bool{}); d > max {
			max = d
		}
	}
	return max
}

// countSCCs computes the number of strongly connected components via
// Tarjan's algorithm, an O(V+E) estimate used only by GetMetrics.
func (g *Graph) countSCCs() int {
	index := 0
	indices := map[string]int{}
	lowlink := map[string]int{}
	onStack := map[string]bool{}
	var stack []string
	count := 0

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.forward[v] {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			count++
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				if w == v {
					break
				}
			}
		}
	}

	for _, id := range g.ids {
		if _, seen := indices[id]; !seen {
			strongconnect(id)
		}
	}
	return count
}
