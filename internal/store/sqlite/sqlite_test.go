package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/marktoda/astrotask/internal/store/sqlite"
	"github.com/marktoda/astrotask/internal/types"
)

func TestOpenSeedsProjectRoot(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:", 5*time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	root, err := sqlite.GetTask(ctx, db, types.ProjectRootID)
	if err != nil {
		t.Fatalf("GetTask(root): %v", err)
	}
	if root == nil {
		t.Fatal("Open should seed the synthetic project root")
	}
}

func TestInsertAndGetTask(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:", 5*time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	task := &types.Task{
		ID: "ABCD", ParentID: types.ProjectRootID, Title: "t",
		Status: types.StatusPending, PriorityScore: 50, CreatedAt: now, UpdatedAt: now,
	}
	if err := sqlite.InsertTask(ctx, db, task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	got, err := sqlite.GetTask(ctx, db, "ABCD")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got == nil || got.Title != "t" {
		t.Fatalf("GetTask = %+v, want a task titled t", got)
	}

	exists, err := sqlite.TaskExists(ctx, db, "ABCD")
	if err != nil || !exists {
		t.Errorf("TaskExists(ABCD) = %v, %v, want true, nil", exists, err)
	}
}

func TestListTasksFiltersByParent(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:", 5*time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	parent := &types.Task{ID: "PAR", ParentID: types.ProjectRootID, Title: "parent", Status: types.StatusPending, PriorityScore: 50, CreatedAt: now, UpdatedAt: now}
	child := &types.Task{ID: "PAR-CHI", ParentID: "PAR", Title: "child", Status: types.StatusPending, PriorityScore: 50, CreatedAt: now, UpdatedAt: now}
	if err := sqlite.InsertTask(ctx, db, parent); err != nil {
		t.Fatalf("InsertTask parent: %v", err)
	}
	if err := sqlite.InsertTask(ctx, db, child); err != nil {
		t.Fatalf("InsertTask child: %v", err)
	}

	children, err := sqlite.ListTasks(ctx, db, types.ListTasksFilter{HasParentFilter: true, ParentID: "PAR"})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(children) != 1 || children[0].ID != "PAR-CHI" {
		t.Errorf("ListTasks(parent=PAR) = %v, want [PAR-CHI]", children)
	}
}

func TestDeleteTaskRefusedWhileDependentExists(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:", 5*time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	a := &types.Task{ID: "AAAA", ParentID: types.ProjectRootID, Title: "a", Status: types.StatusPending, PriorityScore: 50, CreatedAt: now, UpdatedAt: now}
	b := &types.Task{ID: "BBBB", ParentID: types.ProjectRootID, Title: "b", Status: types.StatusPending, PriorityScore: 50, CreatedAt: now, UpdatedAt: now}
	if err := sqlite.InsertTask(ctx, db, a); err != nil {
		t.Fatalf("InsertTask a: %v", err)
	}
	if err := sqlite.InsertTask(ctx, db, b); err != nil {
		t.Fatalf("InsertTask b: %v", err)
	}
	if err := sqlite.InsertDependency(ctx, db, &types.TaskDependency{DependentTaskID: "BBBB", DependencyTaskID: "AAAA", CreatedAt: now}); err != nil {
		t.Fatalf("InsertDependency: %v", err)
	}

	// DeleteTask refuses while a dependent still references it.
	if ok, err := sqlite.DeleteTask(ctx, db, "AAAA"); err == nil || ok {
		t.Error("DeleteTask should refuse to remove a task with live dependents")
	}

	if ok, err := sqlite.DeleteDependency(ctx, db, "BBBB", "AAAA"); err != nil || !ok {
		t.Fatalf("DeleteDependency: ok=%v err=%v", ok, err)
	}
	if ok, err := sqlite.DeleteTask(ctx, db, "AAAA"); err != nil || !ok {
		t.Fatalf("DeleteTask after removing the dependency: ok=%v err=%v", ok, err)
	}
}

func TestExecuteReconciliationOperationsAtomicRollback(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:", 5*time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	plan := types.TreeReconciliationPlan{
		RootID: types.ProjectRootID,
		Operations: []types.TreePendingOp{
			{Kind: types.TreeOpTaskUpdate, TaskID: "DOES-NOT-EXIST", FieldUpdates: map[string]interface{}{"title": "x"}},
		},
	}
	if _, err := sqlite.ExecuteReconciliationOperations(ctx, db, plan); err == nil {
		t.Error("expected ExecuteReconciliationOperations to fail updating a nonexistent task")
	}
	// err is a *apperrors.ReconciliationError wrapping the underlying cause;
	// the only outward contract exercised here is rollback of the transaction.

	tasks, err := sqlite.ListTasks(ctx, db, types.ListTasksFilter{IncludeProjectRoot: true})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("a failed reconciliation must not leave partial state; got %d tasks, want 1 (just the root)", len(tasks))
	}
}
