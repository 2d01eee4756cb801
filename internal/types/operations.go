package types

import "time"

// TempIDPrefix marks a placeholder id minted by a tracking overlay before
// persistence. The store rejects any permanent id matching this format
// (Design Notes, "Temporary ids").
const TempIDPrefix = "temp-"

// IsTempID reports whether id was minted by a tracking overlay and is
// awaiting resolution to a permanent id.
func IsTempID(id string) bool {
	return len(id) > len(TempIDPrefix) && id[:len(TempIDPrefix)] == TempIDPrefix
}

// TaskNodeDraft is the payload of a child_add pending operation: a new
// task (possibly bearing a temporary id) plus its own pending subtree,
// so a generator can stage a whole branch of the tree in one operation.
type TaskNodeDraft struct {
	TempID      string // the id this node was assigned inside the overlay
	Draft       TaskDraft
	Children    []TaskNodeDraft
}

// TreeOpKind tags the variant of a TreePendingOp.
type TreeOpKind string

const (
	TreeOpChildAdd    TreeOpKind = "child_add"
	TreeOpChildRemove TreeOpKind = "child_remove"
	TreeOpTaskUpdate  TreeOpKind = "task_update"
)

// TreePendingOp is one buffered mutation recorded by a tracking tree.
// Exactly one of the payload fields is populated, selected by Kind.
type TreePendingOp struct {
	Kind      TreeOpKind
	Timestamp time.Time

	// child_add
	ParentID  string
	ChildTree *TaskNodeDraft

	// child_remove
	ChildID string

	// task_update
	TaskID       string
	FieldUpdates map[string]interface{}
}

// GraphOpKind tags the variant of a GraphPendingOp.
type GraphOpKind string

const (
	GraphOpDepAdd    GraphOpKind = "dep_add"
	GraphOpDepRemove GraphOpKind = "dep_remove"
)

// GraphPendingOp is one buffered mutation recorded by a tracking graph.
type GraphPendingOp struct {
	Kind         GraphOpKind
	DependentID  string
	DependencyID string
	Timestamp    time.Time
}

// TreeReconciliationPlan is produced by a tracking tree and consumed by
// the store atomically.
type TreeReconciliationPlan struct {
	RootID      string
	BaseVersion int
	Operations  []TreePendingOp
}

// GraphReconciliationPlan is produced by a tracking graph and consumed
// by the store atomically.
type GraphReconciliationPlan struct {
	BaseVersion int
	Operations  []GraphPendingOp
}

// IDMappings maps a temporary id assigned inside an overlay to the
// permanent id the store allocated for it during flush.
type IDMappings map[string]string
