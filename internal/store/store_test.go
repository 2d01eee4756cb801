package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marktoda/astrotask/internal/apperrors"
	"github.com/marktoda/astrotask/internal/store"
	"github.com/marktoda/astrotask/internal/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:", 5*time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddAndGetTask(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	task, err := s.AddTask(ctx, types.TaskDraft{Title: "write docs"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if task.Status != types.StatusPending {
		t.Errorf("Status = %q, want pending", task.Status)
	}
	if task.PriorityScore != types.DefaultPriorityScore {
		t.Errorf("PriorityScore = %d, want the default", task.PriorityScore)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "write docs" {
		t.Errorf("GetTask title = %q, want %q", got.Title, "write docs")
	}
}

func TestAddTaskRejectsBlankTitle(t *testing.T) {
	s := openTestStore(t)
	_, err := s.AddTask(context.Background(), types.TaskDraft{})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected ErrValidation for a blank title, got %v", err)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetTask(context.Background(), "NOPE")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAddTaskUnderParent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	parent, err := s.AddTask(ctx, types.TaskDraft{Title: "epic"})
	if err != nil {
		t.Fatalf("AddTask parent: %v", err)
	}
	child, err := s.AddTask(ctx, types.TaskDraft{Title: "subtask", ParentID: parent.ID})
	if err != nil {
		t.Fatalf("AddTask child: %v", err)
	}
	if child.ParentID != parent.ID {
		t.Errorf("ParentID = %q, want %q", child.ParentID, parent.ID)
	}
}

func TestAddTaskUnderMissingParentFails(t *testing.T) {
	s := openTestStore(t)
	_, err := s.AddTask(context.Background(), types.TaskDraft{Title: "orphan", ParentID: "NOPE"})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing parent, got %v", err)
	}
}

func TestUpdateTaskAndStatus(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	task, err := s.AddTask(ctx, types.TaskDraft{Title: "original"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	updated, err := s.UpdateTask(ctx, task.ID, map[string]interface{}{"title": "renamed"})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated.Title != "renamed" {
		t.Errorf("Title = %q, want renamed", updated.Title)
	}

	done, err := s.UpdateTaskStatus(ctx, task.ID, types.StatusDone)
	if err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	if done.Status != types.StatusDone {
		t.Errorf("Status = %q, want done", done.Status)
	}
}

func TestUpdateTaskRejectsUnknownField(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, _ := s.AddTask(ctx, types.TaskDraft{Title: "t"})
	_, err := s.UpdateTask(ctx, task.ID, map[string]interface{}{"notAField": 1})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected ErrValidation for an unknown field, got %v", err)
	}
}

func TestDeleteTaskRefusesWithChildren(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	parent, _ := s.AddTask(ctx, types.TaskDraft{Title: "parent"})
	_, _ = s.AddTask(ctx, types.TaskDraft{Title: "child", ParentID: parent.ID})

	if err := s.DeleteTask(ctx, parent.ID); err == nil {
		t.Error("expected DeleteTask to refuse a task with children")
	}
}

func TestDeleteTaskSucceedsOnLeaf(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, _ := s.AddTask(ctx, types.TaskDraft{Title: "leaf"})
	if err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := s.GetTask(ctx, task.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Error("deleted task should no longer be gettable")
	}
}

func TestAddTaskDependencyRejectsSelfAndCycles(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	a, _ := s.AddTask(ctx, types.TaskDraft{Title: "A"})
	b, _ := s.AddTask(ctx, types.TaskDraft{Title: "B"})

	if err := s.AddTaskDependency(ctx, a.ID, a.ID); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("self-dependency should be rejected with ErrConflict, got %v", err)
	}

	if err := s.AddTaskDependency(ctx, b.ID, a.ID); err != nil {
		t.Fatalf("AddTaskDependency B->A: %v", err)
	}
	if err := s.AddTaskDependency(ctx, a.ID, b.ID); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("A->B should be rejected as a cycle (B already depends on A), got %v", err)
	}
}

func TestListAllDependenciesAndRemove(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	a, _ := s.AddTask(ctx, types.TaskDraft{Title: "A"})
	b, _ := s.AddTask(ctx, types.TaskDraft{Title: "B"})
	if err := s.AddTaskDependency(ctx, b.ID, a.ID); err != nil {
		t.Fatalf("AddTaskDependency: %v", err)
	}

	deps, err := s.ListAllDependencies(ctx)
	if err != nil {
		t.Fatalf("ListAllDependencies: %v", err)
	}
	if len(deps) != 1 {
		t.Fatalf("ListAllDependencies = %d entries, want 1", len(deps))
	}

	if err := s.RemoveTaskDependency(ctx, b.ID, a.ID); err != nil {
		t.Fatalf("RemoveTaskDependency: %v", err)
	}
	deps, err = s.ListAllDependencies(ctx)
	if err != nil {
		t.Fatalf("ListAllDependencies: %v", err)
	}
	if len(deps) != 0 {
		t.Errorf("expected no dependencies left, got %d", len(deps))
	}
}

func TestContextSlices(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, _ := s.AddTask(ctx, types.TaskDraft{Title: "t"})

	cs, err := s.AddContextSlice(ctx, types.ContextSliceDraft{TaskID: task.ID, Title: "note", Description: "d"})
	if err != nil {
		t.Fatalf("AddContextSlice: %v", err)
	}
	if cs.ID == "" {
		t.Error("AddContextSlice should mint an id")
	}

	slices, err := s.ListContextSlices(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListContextSlices: %v", err)
	}
	if len(slices) != 1 || slices[0].Title != "note" {
		t.Errorf("ListContextSlices = %v, want one note", slices)
	}
}

func TestListTasksIncludeProjectRoot(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if _, err := s.AddTask(ctx, types.TaskDraft{Title: "t"}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	withoutRoot, err := s.ListTasks(ctx, types.ListTasksFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	for _, task := range withoutRoot {
		if task.ID == types.ProjectRootID {
			t.Error("the project root should be suppressed by default")
		}
	}

	withRoot, err := s.ListTasks(ctx, types.ListTasksFilter{IncludeProjectRoot: true})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(withRoot) != len(withoutRoot)+1 {
		t.Errorf("IncludeProjectRoot should add exactly one row, got %d vs %d", len(withRoot), len(withoutRoot))
	}
}

func TestExecuteReconciliationOperationsChildAdd(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	plan := types.TreeReconciliationPlan{
		RootID: types.ProjectRootID,
		Operations: []types.TreePendingOp{
			{
				Kind:     types.TreeOpChildAdd,
				ParentID: types.ProjectRootID,
				ChildTree: &types.TaskNodeDraft{
					TempID: "temp-1",
					Draft:  types.TaskDraft{Title: "generated task"},
				},
			},
		},
	}
	mappings, err := s.ExecuteReconciliationOperations(ctx, plan)
	if err != nil {
		t.Fatalf("ExecuteReconciliationOperations: %v", err)
	}
	realID, ok := mappings["temp-1"]
	if !ok {
		t.Fatal("expected a mapping for temp-1")
	}
	got, err := s.GetTask(ctx, realID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "generated task" {
		t.Errorf("Title = %q, want %q", got.Title, "generated task")
	}
}

func TestApplyReconciliationPlanGraphOps(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	a, _ := s.AddTask(ctx, types.TaskDraft{Title: "A"})
	b, _ := s.AddTask(ctx, types.TaskDraft{Title: "B"})

	plan := types.GraphReconciliationPlan{
		Operations: []types.GraphPendingOp{
			{Kind: types.GraphOpDepAdd, DependentID: b.ID, DependencyID: a.ID},
		},
	}
	if err := s.ApplyReconciliationPlan(ctx, plan); err != nil {
		t.Fatalf("ApplyReconciliationPlan: %v", err)
	}
	deps, err := s.ListAllDependencies(ctx)
	if err != nil {
		t.Fatalf("ListAllDependencies: %v", err)
	}
	if len(deps) != 1 {
		t.Fatalf("expected one dependency after reconciliation, got %d", len(deps))
	}
}

func TestConcurrentGetTaskReturnsIndependentCopies(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	task, err := s.AddTask(ctx, types.TaskDraft{Title: "shared"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	const n = 20
	results := make([]*types.Task, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.GetTask(ctx, task.ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("GetTask[%d]: %v", i, errs[i])
		}
		if results[i].Title != "shared" {
			t.Errorf("GetTask[%d].Title = %q, want shared", i, results[i].Title)
		}
	}
	// Each caller must own a distinct copy: mutating one must not leak
	// into another goroutine's result (the singleflight-collapsed read
	// path returns copies, not a shared pointer).
	results[0].Title = "mutated"
	if results[1].Title != "shared" {
		t.Error("GetTask results must not alias the same underlying Task")
	}
}

func TestForceUnlockInMemoryURIIsANoop(t *testing.T) {
	if err := store.ForceUnlock(":memory:"); err != nil {
		t.Errorf("ForceUnlock(:memory:) should be a no-op, got %v", err)
	}
}
