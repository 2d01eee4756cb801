// Package astrotask is the embedder-facing entry point: a Facade
// bundling the Store, Tree, Graph, and Scheduler components behind one
// object (spec §3, component K). Grounded on the teacher's root
// package, which similarly re-exports a single top-level type
// (Beads) wrapping a storage backend for library consumers — astrotask
// follows the same "one object, one owned Store" shape but composes
// the richer tree/graph/scheduler stack this spec adds.
package astrotask

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marktoda/astrotask/internal/config"
	"github.com/marktoda/astrotask/internal/generator"
	"github.com/marktoda/astrotask/internal/graph"
	"github.com/marktoda/astrotask/internal/logging"
	"github.com/marktoda/astrotask/internal/scheduler"
	"github.com/marktoda/astrotask/internal/store"
	"github.com/marktoda/astrotask/internal/tracking"
	"github.com/marktoda/astrotask/internal/tree"
	"github.com/marktoda/astrotask/internal/types"
)

// Re-exported so embedders never need to import internal/types
// themselves for the core vocabulary.
type (
	Task              = types.Task
	TaskDraft         = types.TaskDraft
	TaskDependency    = types.TaskDependency
	ContextSlice      = types.ContextSlice
	ContextSliceDraft = types.ContextSliceDraft
	ListTasksFilter   = types.ListTasksFilter
	Status            = types.Status
)

const (
	StatusPending    = types.StatusPending
	StatusInProgress = types.StatusInProgress
	StatusDone       = types.StatusDone
	StatusCancelled  = types.StatusCancelled
	StatusArchived   = types.StatusArchived
)

// Facade is the sole object an embedder constructs. It exclusively owns
// one Store; reads flow through the store directly or through pure
// in-memory tree/graph views built from it, writes flow through
// tracking overlays that are flushed back through the store.
type Facade struct {
	store  *store.Store
	logger *slog.Logger
}

// Open resolves cfg and opens a ready Facade. Pass config.Load(nil) for
// the documented defaults, or a pre-built Config for embedding.
func Open(ctx context.Context, cfg config.Config) (*Facade, error) {
	s, err := store.Open(ctx, cfg.DatabaseURI, cfg.LockTimeout)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Options{Verbose: cfg.Verbose})
	return &Facade{store: s, logger: logger}, nil
}

// Close releases the store's connection and, if held, its file lock.
func (f *Facade) Close() error {
	return f.store.Close()
}

// ForceUnlock removes uri's advisory lock file unconditionally, for
// operational recovery.
func ForceUnlock(uri string) error {
	return store.ForceUnlock(uri)
}

// --- Store pass-through (component D) ---

func (f *Facade) AddTask(ctx context.Context, draft TaskDraft) (*Task, error) {
	return f.store.AddTask(ctx, draft)
}

func (f *Facade) GetTask(ctx context.Context, id string) (*Task, error) {
	return f.store.GetTask(ctx, id)
}

func (f *Facade) UpdateTask(ctx context.Context, id string, updates map[string]interface{}) (*Task, error) {
	return f.store.UpdateTask(ctx, id, updates)
}

func (f *Facade) UpdateTaskStatus(ctx context.Context, id string, status Status) (*Task, error) {
	return f.store.UpdateTaskStatus(ctx, id, status)
}

func (f *Facade) DeleteTask(ctx context.Context, id string) error {
	return f.store.DeleteTask(ctx, id)
}

func (f *Facade) ListTasks(ctx context.Context, filter ListTasksFilter) ([]*Task, error) {
	return f.store.ListTasks(ctx, filter)
}

func (f *Facade) AddTaskDependency(ctx context.Context, dependentID, dependencyID string) error {
	return f.store.AddTaskDependency(ctx, dependentID, dependencyID)
}

func (f *Facade) RemoveTaskDependency(ctx context.Context, dependentID, dependencyID string) error {
	return f.store.RemoveTaskDependency(ctx, dependentID, dependencyID)
}

func (f *Facade) ListContextSlices(ctx context.Context, taskID string) ([]*ContextSlice, error) {
	return f.store.ListContextSlices(ctx, taskID)
}

func (f *Facade) AddContextSlice(ctx context.Context, draft ContextSliceDraft) (*ContextSlice, error) {
	return f.store.AddContextSlice(ctx, draft)
}

// --- Tree / graph snapshots (components E, F) ---

// Tree builds an immutable snapshot rooted at rootID from the store's
// current contents.
func (f *Facade) Tree(ctx context.Context, rootID string) (*tree.Tree, error) {
	tasks, err := f.store.ListTasks(ctx, types.ListTasksFilter{IncludeProjectRoot: true})
	if err != nil {
		return nil, err
	}
	t := tree.Build(rootID, tasks)
	if t == nil {
		return nil, fmt.Errorf("task %s not found while building tree", rootID)
	}
	return t, nil
}

// Graph builds an immutable dependency graph snapshot from the store's
// current contents.
func (f *Facade) Graph(ctx context.Context) (*graph.Graph, error) {
	deps, err := f.store.ListAllDependencies(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := f.store.ListTasks(ctx, types.ListTasksFilter{IncludeProjectRoot: true})
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]types.Status, len(tasks))
	for _, t := range tasks {
		statuses[t.ID] = t.Status
	}
	return graph.New(deps, statuses), nil
}

// --- Scheduler (component I) ---

// GetAvailableTasks returns every task under the project root matching
// filter, excluding blocked tasks unless filter.IncludeBlocked.
func (f *Facade) GetAvailableTasks(ctx context.Context, filter scheduler.Filter) ([]*tree.Tree, error) {
	root, err := f.Tree(ctx, types.ProjectRootID)
	if err != nil {
		return nil, err
	}
	g, err := f.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return scheduler.GetAvailableTasks(root, g, filter), nil
}

// GetNextTask returns the first pending, unblocked candidate, or nil.
func (f *Facade) GetNextTask(ctx context.Context, filter scheduler.Filter) (*tree.Tree, error) {
	root, err := f.Tree(ctx, types.ProjectRootID)
	if err != nil {
		return nil, err
	}
	g, err := f.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return scheduler.GetNextTask(root, g, filter), nil
}

// StartWork flips taskID to in-progress, refusing if it isBlocked
// unless force is set.
func (f *Facade) StartWork(ctx context.Context, taskID string, force bool) error {
	trackingRoot, node, err := f.trackingNode(ctx, taskID)
	if err != nil {
		return err
	}
	g, err := f.Graph(ctx)
	if err != nil {
		return err
	}
	if _, err := scheduler.StartWork(node, g, force); err != nil {
		return err
	}
	_, err = trackingRoot.Flush(ctx, f.store)
	return err
}

// CompleteTask marks taskID done and runs the completion workflow
// (optional cascade, auto-start, dependents-unblocking), flushing every
// resulting mutation in one reconciliation.
func (f *Facade) CompleteTask(ctx context.Context, taskID string, cascade, autoStart bool) (scheduler.CompletionResult, error) {
	trackingRoot, node, err := f.trackingNode(ctx, taskID)
	if err != nil {
		return scheduler.CompletionResult{}, err
	}
	g, err := f.Graph(ctx)
	if err != nil {
		return scheduler.CompletionResult{}, err
	}
	result, err := scheduler.CompleteTask(node, g, cascade, autoStart)
	if err != nil {
		return result, err
	}
	if _, err := trackingRoot.Flush(ctx, f.store); err != nil {
		return result, err
	}
	return result, nil
}

func (f *Facade) trackingNode(ctx context.Context, taskID string) (*tracking.Tree, *tracking.Tree, error) {
	tasks, err := f.store.ListTasks(ctx, types.ListTasksFilter{IncludeProjectRoot: true})
	if err != nil {
		return nil, nil, err
	}
	root := tracking.FromTaskTree(types.ProjectRootID, tasks)
	if root == nil {
		return nil, nil, fmt.Errorf("project root not found")
	}
	node := root.Find(func(n *tracking.Tree) bool { return n.ID() == taskID })
	if node == nil {
		return nil, nil, fmt.Errorf("task %s not found", taskID)
	}
	return root, node, nil
}

// --- Generator (component J) ---

// GenerateTasks runs gen over input, flushes the resulting tree first
// (minting real ids), applies the id mappings to the graph, and flushes
// the graph — the sequencing spec §4.7 requires so a generator can wire
// dependencies between not-yet-persisted tasks.
func (f *Facade) GenerateTasks(ctx context.Context, gen generator.TaskGenerator, input generator.Input) (types.IDMappings, error) {
	out, err := gen.Generate(ctx, input)
	if err != nil {
		return nil, err
	}
	flushResult, err := out.Tree.Flush(ctx, f.store)
	if err != nil {
		return nil, err
	}
	out.Graph.ApplyIDMappings(flushResult.IDMappings)
	if err := out.Graph.Flush(ctx, f.store); err != nil {
		return flushResult.IDMappings, err
	}
	return flushResult.IDMappings, nil
}
