// Package tree implements the immutable TaskTree snapshot (spec §4.2,
// component E): a task plus its ordered children, with copy-on-write
// mutation and the blocked/effective-status predicates that make it
// schedulable. Generalized from the teacher's epic-completion queries
// in internal/storage/sqlite/epics.go, which compute parent/child
// completion over a flat `dependencies` table of type 'parent-child' —
// astrotask instead keeps the hierarchy in a dedicated parent_id column
// and materializes it into this in-memory value type once per read.
package tree

import (
	"sort"

	"github.com/marktoda/astrotask/internal/graph"
	"github.com/marktoda/astrotask/internal/types"
)

// Tree is an immutable node: a task plus its ordered children. The zero
// value is not meaningful; build with Build or New.
type Tree struct {
	task     types.Task
	children []*Tree
	parent   *Tree // nil for the root; never serialized, rebuilt on Build
}

// New wraps a single task with no children.
func New(task types.Task) *Tree {
	return &Tree{task: task}
}

// Build assembles a Tree rooted at rootID from a flat task list (e.g.
// the result of Store.ListTasks with includeProjectRoot true), wiring
// parent/child pointers and sorting each sibling group per the
// deterministic child-ordering rule. Returns nil if rootID is absent
// from tasks.
func Build(rootID string, tasks []*types.Task) *Tree {
	byParent := make(map[string][]*types.Task)
	var root *types.Task
	for _, t := range tasks {
		if t.ID == rootID {
			root = t
			continue
		}
		byParent[t.ParentID] = append(byParent[t.ParentID], t)
	}
	if root == nil {
		return nil
	}
	return buildNode(*root, byParent, nil)
}

func buildNode(task types.Task, byParent map[string][]*types.Task, parent *Tree) *Tree {
	node := &Tree{task: task, parent: parent}
	kids := byParent[task.ID]
	sortSiblings(kids)
	for _, k := range kids {
		node.children = append(node.children, buildNode(*k, byParent, node))
	}
	return node
}

// sortSiblings applies the child-ordering rule: done last, then by
// priorityScore descending, then by createdAt ascending.
func sortSiblings(tasks []*types.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
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
}

// Task returns the node's own task value.
func (t *Tree) Task() types.Task { return t.task }

// GetChildren returns the node's immediate children, in order.
func (t *Tree) GetChildren() []*Tree {
	out := make([]*Tree, len(t.children))
	copy(out, t.children)
	return out
}

// GetParent returns the node's parent, or nil if t is the root.
func (t *Tree) GetParent() *Tree { return t.parent }

// GetRoot walks up to the tree's root.
func (t *Tree) GetRoot() *Tree {
	node := t
	for node.parent != nil {
		node = node.parent
	}
	return node
}

// GetPath returns the root-to-node path, inclusive of both ends.
func (t *Tree) GetPath() []*Tree {
	var path []*Tree
	for node := t; node != nil; node = node.parent {
		path = append([]*Tree{node}, path...)
	}
	return path
}

// WalkDepthFirst visits t and every descendant, pre-order, calling
// visitor on each. Traversal stops early if visitor returns false.
func (t *Tree) WalkDepthFirst(visitor func(*Tree) bool) {
	if !visitor(t) {
		return
	}
	for _, child := range t.children {
		child.WalkDepthFirst(visitor)
	}
}

// Find returns the first node (pre-order) for which predicate is true,
// or nil.
func (t *Tree) Find(predicate func(*Tree) bool) *Tree {
	var found *Tree
	t.WalkDepthFirst(func(n *Tree) bool {
		if found != nil {
			return false
		}
		if predicate(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// GetAllDescendants returns every node strictly below t, pre-order.
func (t *Tree) GetAllDescendants() []*Tree {
	var out []*Tree
	for _, child := range t.children {
		child.WalkDepthFirst(func(n *Tree) bool {
			out = append(out, n)
			return true
		})
	}
	return out
}

// WithChildren returns a copy of t with its children replaced by
// newChildren, re-parented to the copy. t itself is unmodified.
func (t *Tree) WithChildren(newChildren []*Tree) *Tree {
	clone := &Tree{task: t.task, parent: t.parent}
	for _, c := range newChildren {
		child := &Tree{task: c.task, children: c.children, parent: clone}
		clone.children = append(clone.children, child)
	}
	return clone
}

// PlainTask is the flattened shape ToPlainObject returns: useful for
// JSON encoding or handing to a template without exposing parent
// back-pointers.
type PlainTask struct {
	Task     types.Task
	Children []PlainTask
}

// ToPlainObject flattens t into a value with no back-pointers.
func (t *Tree) ToPlainObject() PlainTask {
	p := PlainTask{Task: t.task}
	for _, c := range t.children {
		p.Children = append(p.Children, c.ToPlainObject())
	}
	return p
}

// HasAncestorWithStatus reports whether any strict ancestor of t has
// status s.
func (t *Tree) HasAncestorWithStatus(s types.Status) bool {
	return t.GetAncestorWithStatus(s) != nil
}

// GetAncestorWithStatus returns the nearest strict ancestor with status
// s, or nil.
func (t *Tree) GetAncestorWithStatus(s types.Status) *Tree {
	for node := t.parent; node != nil; node = node.parent {
		if node.task.Status == s {
			return node
		}
	}
	return nil
}

// EffectiveStatus applies the inheritance rule (spec §4.3): an ancestor
// marked done, archived, or cancelled overrides the node's own status,
// in that priority order, ahead of the node's own value.
func (t *Tree) EffectiveStatus() types.Status {
	if t.HasAncestorWithStatus(types.StatusDone) {
		return types.StatusDone
	}
	if t.HasAncestorWithStatus(types.StatusArchived) {
		return types.StatusArchived
	}
	if t.HasAncestorWithStatus(types.StatusCancelled) {
		return types.StatusCancelled
	}
	return t.task.Status
}

// IsBlocked reports whether t has any dependency whose own status is
// not done.
func (t *Tree) IsBlocked(g *graph.Graph) bool {
	for _, depID := range g.GetDependencies(t.task.ID) {
		dep := g.TaskStatus(depID)
		if dep != types.StatusDone {
			return true
		}
	}
	return false
}

// CanStart reports whether t is pending and not blocked.
func (t *Tree) CanStart(g *graph.Graph) bool {
	return t.task.Status == types.StatusPending && !t.IsBlocked(g)
}

// GetNextAvailableTask returns the first descendant (pre-order,
// respecting child ordering) that CanStart, or nil.
func (t *Tree) GetNextAvailableTask(g *graph.Graph) *Tree {
	var found *Tree
	t.WalkDepthFirst(func(n *Tree) bool {
		if found != nil {
			return false
		}
		if n != t && n.CanStart(g) {
			found = n
			return false
		}
		return true
	})
	return found
}

// GetAvailableChildren returns t's immediate children that CanStart, in
// child order.
func (t *Tree) GetAvailableChildren(g *graph.Graph) []*Tree {
	var out []*Tree
	for _, c := range t.children {
		if c.CanStart(g) {
			out = append(out, c)
		}
	}
	return out
}
