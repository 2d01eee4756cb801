// Package scheduler implements next-task selection and the completion
// workflow automation (spec §4.5, component I). It is pure over a tree
// snapshot, a graph snapshot, and a filter; every side effect is routed
// through a tracking overlay the caller owns and flushes, mirroring the
// teacher's internal/storage "ready work" queries (ready_test.go) which
// compute the next actionable issue from status plus dependency state
// without themselves mutating anything.
package scheduler

import (
	"fmt"
	"sort"

	"github.com/marktoda/astrotask/internal/apperrors"
	"github.com/marktoda/astrotask/internal/graph"
	"github.com/marktoda/astrotask/internal/tracking"
	"github.com/marktoda/astrotask/internal/tree"
	"github.com/marktoda/astrotask/internal/types"
)

// Filter selects candidate tasks. The zero value matches every task
// that is not blocked; blocked tasks need IncludeBlocked.
type Filter struct {
	Status              types.Status // "" means any
	MinPriorityScore    int          // 0 means no lower bound
	ParentID            string
	HasParentFilter     bool
	IncludeBlocked      bool
}

func matches(t types.Task, f Filter) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.MinPriorityScore != 0 && t.PriorityScore < f.MinPriorityScore {
		return false
	}
	if f.HasParentFilter && t.ParentID != f.ParentID {
		return false
	}
	return true
}

// GetAvailableTasks returns every node under root matching filter,
// excluding blocked tasks unless filter.IncludeBlocked, in the tree's
// deterministic child order (tree.Build already applies it per sibling
// group; this flattens a pre-order walk so cross-branch ordering still
// favors higher priority and older creation time).
func GetAvailableTasks(root *tree.Tree, g *graph.Graph, filter Filter) []*tree.Tree {
	var out []*tree.Tree
	root.WalkDepthFirst(func(n *tree.Tree) bool {
		if n == root {
			return true
		}
		if !matches(n.Task(), filter) {
			return true
		}
		if !filter.IncludeBlocked && n.IsBlocked(g) {
			return true
		}
		out = append(out, n)
		return true
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Task(), out[j].Task()
		aDone := a.Status == types.StatusDone
		bDone := b.Status == types.StatusDone
		if aDone != bDone {
			return !aDone
		}
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

// GetNextTask returns the first pending, unblocked candidate, or nil.
func GetNextTask(root *tree.Tree, g *graph.Graph, filter Filter) *tree.Tree {
	f := filter
	f.Status = types.StatusPending
	candidates := GetAvailableTasks(root, g, f)
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

// StartWork flips node's status to in-progress, refusing if node
// isBlocked unless force is set. Returns true if the guard was bypassed
// (a warning the caller should surface).
func StartWork(node *tracking.Tree, g *graph.Graph, force bool) (forcedPastBlock bool, err error) {
	blocked := node.IsBlocked(g)
	if blocked && !force {
		return false, &apperrors.ConflictError{Reason: fmt.Sprintf("task %s is blocked by an incomplete dependency", node.ID())}
	}
	if err := node.WithTask(map[string]interface{}{"status": string(types.StatusInProgress)}); err != nil {
		return false, err
	}
	return blocked && force, nil
}

// CompletionResult reports what CompleteTask did beyond marking the
// target done.
type CompletionResult struct {
	CascadedIDs        []string // descendants also marked done, if cascade was requested
	AutoStartedID      string   // "" if no task was auto-started
	UnblockedDependents []string
}

// CompleteTask marks target done and runs the workflow automation:
// optional cascade to descendants, auto-start of the next available
// child/sibling/root task, and computation of newly unblocked
// dependents. g must reflect the graph as it stood before target was
// marked done, so dependents-unblocking can be computed by comparing
// against it.
func CompleteTask(target *tracking.Tree, g *graph.Graph, cascade, autoStart bool) (CompletionResult, error) {
	var result CompletionResult

	if err := target.WithTask(map[string]interface{}{"status": string(types.StatusDone)}); err != nil {
		return result, err
	}

	if cascade {
		for _, desc := range target.GetAllDescendants() {
			if desc.Task().Status == types.StatusDone {
				continue
			}
			if err := desc.WithTask(map[string]interface{}{"status": string(types.StatusDone)}); err != nil {
				return result, err
			}
			result.CascadedIDs = append(result.CascadedIDs, desc.ID())
		}
	}

	if autoStart {
		if next := findAutoStartCandidate(target, g); next != nil {
			if err := next.WithTask(map[string]interface{}{"status": string(types.StatusInProgress)}); err != nil {
				return result, err
			}
			result.AutoStartedID = next.ID()
		}
	}

	result.UnblockedDependents = unblockedDependents(target.ID(), g)
	return result, nil
}

// findAutoStartCandidate implements the auto-start policy: first
// available child of target; else the parent's next available child;
// else the root's next available task.
func findAutoStartCandidate(target *tracking.Tree, g *graph.Graph) *tracking.Tree {
	for _, c := range target.GetAvailableChildren(g) {
		return c
	}
	if parent := target.GetParent(); parent != nil {
		if next := parent.GetNextAvailableTask(g); next != nil {
			return next
		}
	}
	root := target.GetRoot()
	return root.GetNextAvailableTask(g)
}

// unblockedDependents returns every dependent of completedID whose
// remaining blockers (per g, evaluated as of before completedID was
// marked done) were exactly {completedID}.
func unblockedDependents(completedID string, g *graph.Graph) []string {
	var out []string
	for _, dependent := range g.GetDependents(completedID) {
		blockedBy := g.GetTaskDependencyGraph(dependent).BlockedBy
		if len(blockedBy) == 1 && blockedBy[0] == completedID {
			out = append(out, dependent)
		}
	}
	return out
}
