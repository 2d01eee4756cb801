package astrotask_test

import (
	"context"
	"testing"

	"github.com/marktoda/astrotask/internal/config"
	"github.com/marktoda/astrotask/internal/scheduler"
	"github.com/marktoda/astrotask/internal/tree"
	"github.com/marktoda/astrotask/internal/types"

	astrotask "github.com/marktoda/astrotask"
)

func openTestFacade(t *testing.T) *astrotask.Facade {
	t.Helper()
	cfg, err := config.Load(map[string]interface{}{"database_uri": ":memory:"})
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	f, err := astrotask.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFacadeAddAndGetTask(t *testing.T) {
	ctx := context.Background()
	f := openTestFacade(t)

	task, err := f.AddTask(ctx, astrotask.TaskDraft{Title: "write the launch doc"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if task.Status != astrotask.StatusPending {
		t.Errorf("new task status = %q, want %q", task.Status, astrotask.StatusPending)
	}

	got, err := f.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "write the launch doc" {
		t.Errorf("GetTask title = %q, want %q", got.Title, "write the launch doc")
	}
}

func TestFacadeTreeAndGraphSnapshots(t *testing.T) {
	ctx := context.Background()
	f := openTestFacade(t)

	parent, err := f.AddTask(ctx, astrotask.TaskDraft{Title: "epic"})
	if err != nil {
		t.Fatalf("AddTask parent: %v", err)
	}
	child, err := f.AddTask(ctx, astrotask.TaskDraft{Title: "subtask", ParentID: parent.ID})
	if err != nil {
		t.Fatalf("AddTask child: %v", err)
	}

	tr, err := f.Tree(ctx, types.ProjectRootID)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	node := tr.Find(func(n *tree.Tree) bool { return n.Task().ID == child.ID })
	if node == nil {
		t.Fatalf("expected to find child %s in tree snapshot", child.ID)
	}

	g, err := f.Graph(ctx)
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(g.GetDependencies(child.ID)) != 0 {
		t.Errorf("fresh child should have no dependencies")
	}
}

func TestFacadeDependencyAndScheduling(t *testing.T) {
	ctx := context.Background()
	f := openTestFacade(t)

	blocker, err := f.AddTask(ctx, astrotask.TaskDraft{Title: "design api"})
	if err != nil {
		t.Fatalf("AddTask blocker: %v", err)
	}
	dependent, err := f.AddTask(ctx, astrotask.TaskDraft{Title: "implement api"})
	if err != nil {
		t.Fatalf("AddTask dependent: %v", err)
	}
	if err := f.AddTaskDependency(ctx, dependent.ID, blocker.ID); err != nil {
		t.Fatalf("AddTaskDependency: %v", err)
	}

	next, err := f.GetNextTask(ctx, scheduler.Filter{})
	if err != nil {
		t.Fatalf("GetNextTask: %v", err)
	}
	if next == nil || next.Task().ID != blocker.ID {
		t.Fatalf("expected next task to be the unblocked blocker, got %+v", next)
	}

	if err := f.StartWork(ctx, dependent.ID, false); err == nil {
		t.Fatalf("expected StartWork on blocked task to fail")
	}

	if err := f.StartWork(ctx, blocker.ID, false); err != nil {
		t.Fatalf("StartWork on unblocked task: %v", err)
	}

	result, err := f.CompleteTask(ctx, blocker.ID, false, false)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if len(result.UnblockedDependents) != 1 || result.UnblockedDependents[0] != dependent.ID {
		t.Errorf("UnblockedDependents = %v, want [%s]", result.UnblockedDependents, dependent.ID)
	}

	if err := f.StartWork(ctx, dependent.ID, false); err != nil {
		t.Fatalf("StartWork on newly unblocked task: %v", err)
	}
}

func TestForceUnlockOnUnlockedPathIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	if err := astrotask.ForceUnlock(dir + "/never-opened.db"); err != nil {
		t.Errorf("ForceUnlock on a never-locked path: %v", err)
	}
}
