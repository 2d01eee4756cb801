// Package tracking implements the mutable overlays that buffer edits
// against an immutable snapshot until flushed to the store (spec §4.4,
// components G and H). Grounded on the teacher's in-memory storage
// backend, internal/storage/memory, which holds a live mutable task set
// behind a mutex and only ever persists through the same CRUD surface
// as the SQL backend — tracking.Tree generalizes that "mutate in place,
// reconcile later" posture into an explicit pending-operation log
// instead of an immediately-applied in-memory write.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/marktoda/astrotask/internal/apperrors"
	"github.com/marktoda/astrotask/internal/graph"
	"github.com/marktoda/astrotask/internal/types"
)

// Storer is the subset of store.Store a tracking tree flushes against.
// Kept minimal and local (rather than importing internal/store, which
// would create an import cycle: store -> ... -> tracking is not needed,
// but tracking living above store keeps the dependency direction
// store-agnostic for tests).
type Storer interface {
	ExecuteReconciliationOperations(ctx context.Context, plan types.TreeReconciliationPlan) (types.IDMappings, error)
	ListTasks(ctx context.Context, filter types.ListTasksFilter) ([]*types.Task, error)
}

// Tree is a mutable, in-place overlay over a task hierarchy. Every
// structural or field mutation appends a timestamped pending operation
// to the root's buffer (spec: "operations bubble to the root"). The
// zero value is not usable; build with FromTaskTree, FromTask, or
// Empty.
type Tree struct {
	task     types.Task
	tempID   string // set instead of task.ID while unflushed, "" once persisted
	children []*Tree
	parent   *Tree

	// Only ever non-nil and non-empty on the root node; every mutation
	// anywhere in the tree appends here via root().
	pending     []types.TreePendingOp
	baseVersion int
}

// tempCounter is a process-local monotonic counter used to mint
// distinguishable temporary ids when a caller doesn't supply its own
// (see AddChild). It is not persisted and has no relation to the
// permanent id space.
var tempCounter int

func nextTempID() string {
	tempCounter++
	return fmt.Sprintf("%s%d", types.TempIDPrefix, tempCounter)
}

// FromTaskTree seeds a tracking tree from a flat task list rooted at
// rootID, the same shape tree.Build consumes.
func FromTaskTree(rootID string, tasks []*types.Task) *Tree {
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
	return buildFrom(*root, byParent, nil)
}

func buildFrom(task types.Task, byParent map[string][]*types.Task, parent *Tree) *Tree {
	node := &Tree{task: task, parent: parent}
	for _, k := range byParent[task.ID] {
		node.children = append(node.children, buildFrom(*k, byParent, node))
	}
	return node
}

// FromTask wraps a single task with no children.
func FromTask(t types.Task) *Tree {
	return &Tree{task: t}
}

// Empty creates a childless placeholder node carrying only a temporary
// id, for a generator assembling a tree entirely from scratch.
func Empty(rootTempID string) *Tree {
	return &Tree{tempID: rootTempID}
}

// root returns the node through which every pending operation in this
// tree is buffered.
func (t *Tree) root() *Tree {
	node := t
	for node.parent != nil {
		node = node.parent
	}
	return node
}

func (t *Tree) id() string {
	if t.tempID != "" {
		return t.tempID
	}
	return t.task.ID
}

// Task returns the node's own task value (zero value if this node is
// still an unpersisted placeholder).
func (t *Tree) Task() types.Task { return t.task }

// ID returns the node's current id: its temporary id if unflushed, else
// its permanent id.
func (t *Tree) ID() string { return t.id() }

// GetChildren returns the node's immediate children.
func (t *Tree) GetChildren() []*Tree {
	out := make([]*Tree, len(t.children))
	copy(out, t.children)
	return out
}

// HasPendingChanges reports whether the root's buffer holds any
// operation not yet flushed.
func (t *Tree) HasPendingChanges() bool {
	return len(t.root().pending) > 0
}

// AddChild appends a new child under t, carrying tempID as its
// placeholder id until flush, and returns the newly created node.
func (t *Tree) AddChild(draft types.TaskDraft) *Tree {
	tid := nextTempID()
	child := &Tree{tempID: tid, parent: t}
	t.children = append(t.children, child)

	root := t.root()
	root.pending = append(root.pending, types.TreePendingOp{
		Kind:      types.TreeOpChildAdd,
		Timestamp: now(),
		ParentID:  t.id(),
		ChildTree: &types.TaskNodeDraft{TempID: tid, Draft: draft},
	})
	return child
}

// RemoveChild detaches the child with the given id (temp or permanent)
// from t and records a child_remove op.
func (t *Tree) RemoveChild(id string) bool {
	for i, c := range t.children {
		if c.id() == id {
			t.children = append(t.children[:i], t.children[i+1:]...)
			root := t.root()
			root.pending = append(root.pending, types.TreePendingOp{
				Kind:      types.TreeOpChildRemove,
				Timestamp: now(),
				ParentID:  t.id(),
				ChildID:   id,
			})
			return true
		}
	}
	return false
}

// WithTask merges fieldUpdates into t's own task (in memory; the
// permanent effect happens at flush) and records a task_update op.
// Keys must be valid per types.IsAllowedUpdateField.
func (t *Tree) WithTask(fieldUpdates map[string]interface{}) error {
	for key, val := range fieldUpdates {
		if !types.IsAllowedUpdateField(key) {
			return fmt.Errorf("%w: field %q is not updatable", apperrors.ErrValidation, key)
		}
		applyFieldInPlace(&t.task, key, val)
	}
	root := t.root()
	root.pending = append(root.pending, types.TreePendingOp{
		Kind:         types.TreeOpTaskUpdate,
		Timestamp:    now(),
		TaskID:       t.id(),
		FieldUpdates: fieldUpdates,
	})
	return nil
}

func applyFieldInPlace(task *types.Task, key string, val interface{}) {
	switch key {
	case "title":
		if s, ok := val.(string); ok {
			task.Title = s
		}
	case "description":
		if s, ok := val.(string); ok {
			task.Description = s
		}
	case "status":
		if s, ok := val.(string); ok {
			task.Status = types.Status(s)
		}
	case "priorityScore":
		if n, ok := val.(int); ok {
			task.PriorityScore = n
		}
	case "prd":
		if s, ok := val.(string); ok {
			task.PRD = s
		}
	case "contextDigest":
		if s, ok := val.(string); ok {
			task.ContextDigest = s
		}
	case "parentId":
		if s, ok := val.(string); ok {
			task.ParentID = s
		}
	}
}

// CreateReconciliationPlan builds a TreeReconciliationPlan from the
// root's buffer: structural ops (child_add, child_remove) keep their
// original order, task_update ops are consolidated to the latest per
// taskId, and that consolidated update is emitted at the position of
// its last occurrence.
func (t *Tree) CreateReconciliationPlan() types.TreeReconciliationPlan {
	root := t.root()

	lastUpdateIndex := map[string]int{}
	for i, op := range root.pending {
		if op.Kind == types.TreeOpTaskUpdate {
			lastUpdateIndex[op.TaskID] = i
		}
	}

	merged := map[string]map[string]interface{}{}
	for _, op := range root.pending {
		if op.Kind != types.TreeOpTaskUpdate {
			continue
		}
		dst, ok := merged[op.TaskID]
		if !ok {
			dst = map[string]interface{}{}
			merged[op.TaskID] = dst
		}
		for k, v := range op.FieldUpdates {
			dst[k] = v
		}
	}

	var ops []types.TreePendingOp
	emittedUpdate := map[string]bool{}
	for i, op := range root.pending {
		if op.Kind == types.TreeOpTaskUpdate {
			if i != lastUpdateIndex[op.TaskID] || emittedUpdate[op.TaskID] {
				continue
			}
			emittedUpdate[op.TaskID] = true
			ops = append(ops, types.TreePendingOp{
				Kind:         types.TreeOpTaskUpdate,
				Timestamp:    op.Timestamp,
				TaskID:       op.TaskID,
				FieldUpdates: merged[op.TaskID],
			})
			continue
		}
		ops = append(ops, op)
	}

	return types.TreeReconciliationPlan{
		RootID:      root.id(),
		BaseVersion: root.baseVersion,
		Operations:  ops,
	}
}

// FlushResult is the return shape of Flush.
type FlushResult struct {
	IDMappings types.IDMappings
}

// Flush builds a reconciliation plan and applies it via store. On
// success it clears the pending buffer, advances baseVersion, and
// resolves every node's temporary id using the returned mapping. On
// failure the buffer is preserved untouched so the caller can retry,
// and the error is wrapped as apperrors.ErrReconciliation.
func (t *Tree) Flush(ctx context.Context, store Storer) (FlushResult, error) {
	root := t.root()
	if len(root.pending) == 0 {
		return FlushResult{IDMappings: types.IDMappings{}}, nil
	}

	plan := root.CreateReconciliationPlan()
	mappings, err := store.ExecuteReconciliationOperations(ctx, plan)
	if err != nil {
		return FlushResult{}, &apperrors.ReconciliationError{
			Reason:           "flushing tracking tree",
			UnappliedTreeOps: len(root.pending),
			Cause:            err,
		}
	}

	root.resolveIDs(mappings)
	root.pending = nil
	root.baseVersion++
	return FlushResult{IDMappings: mappings}, nil
}

func (t *Tree) resolveIDs(mappings types.IDMappings) {
	if t.tempID != "" {
		if real, ok := mappings[t.tempID]; ok {
			t.task.ID = real
			t.tempID = ""
		}
	}
	for _, c := range t.children {
		c.resolveIDs(mappings)
	}
}

func now() time.Time { return time.Now().UTC() }

// GetParent returns t's parent, or nil if t is the root.
func (t *Tree) GetParent() *Tree { return t.parent }

// GetRoot walks up to the tree's root.
func (t *Tree) GetRoot() *Tree { return t.root() }

// WalkDepthFirst visits t and every descendant, pre-order. Traversal
// stops early if visitor returns false.
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

// IsBlocked reports whether t has any dependency whose own status is
// not done.
func (t *Tree) IsBlocked(g *graph.Graph) bool {
	for _, depID := range g.GetDependencies(t.id()) {
		if g.TaskStatus(depID) != types.StatusDone {
			return true
		}
	}
	return false
}

// CanStart reports whether t is pending and not blocked.
func (t *Tree) CanStart(g *graph.Graph) bool {
	return t.task.Status == types.StatusPending && !t.IsBlocked(g)
}

// GetNextAvailableTask returns the first descendant (pre-order) that
// CanStart, or nil.
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

// GetAvailableChildren returns t's immediate children that CanStart.
func (t *Tree) GetAvailableChildren(g *graph.Graph) []*Tree {
	var out []*Tree
	for _, c := range t.children {
		if c.CanStart(g) {
			out = append(out, c)
		}
	}
	return out
}
