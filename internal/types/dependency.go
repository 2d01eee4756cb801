package types

import "time"

// TaskDependency is an ordered pair: DependentTaskID is blocked until
// DependencyTaskID's task reaches StatusDone. Independent of the
// parent-child tree.
type TaskDependency struct {
	DependentTaskID  string
	DependencyTaskID string
	CreatedAt        time.Time
}

// ContextSlice is a titled, described note attached to a task. Unbounded
// cardinality per task.
type ContextSlice struct {
	ID          string // standard 8-4-4-4-12 hex identifier
	TaskID      string
	Title       string
	Description string
	CreatedAt   time.Time
}

// ContextSliceDraft carries the fields a caller supplies to
// Store.AddContextSlice.
type ContextSliceDraft struct {
	TaskID      string
	Title       string
	Description string
}

// ListTasksFilter selects tasks for Store.ListTasks. An empty Statuses
// slice means "any status". Filters are conjunctive.
type ListTasksFilter struct {
	Statuses           []Status
	ParentID           string // applied only when HasParentFilter; empty then matches parentless rows
	HasParentFilter    bool
	IncludeProjectRoot bool
}
