// Package store is astrotask's persistence boundary (spec §4.1,
// component D): it parses a database URL, opens the backing SQLite
// file through internal/store/sqlite, guards it with the cross-process
// advisory lock in internal/lock, and serializes writes in-process with
// a semaphore so two goroutines never interleave a reconciliation.
// Grounded on the teacher's internal/storage.Storage, which performs
// the same URL dispatch and wraps a single *sql.DB behind a
// sync.Mutex; astrotask generalizes the mutex to golang.org/x/sync's
// weighted semaphore so a future read path can admit bounded
// concurrency without restructuring callers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/marktoda/astrotask/internal/apperrors"
	"github.com/marktoda/astrotask/internal/ids"
	"github.com/marktoda/astrotask/internal/lock"
	"github.com/marktoda/astrotask/internal/store/sqlite"
	"github.com/marktoda/astrotask/internal/types"
)

// processName identifies this binary in the lock's holder record.
const processName = "astrotask"

// Store is astrotask's sole persistence gateway. The zero value is not
// usable; construct with Open.
type Store struct {
	db   *sql.DB
	lock *lock.Lock
	// writeSem admits exactly one writer at a time; readers are not
	// gated by it (spec §5's "single-writer" rule, enforced in-process
	// in addition to SQLite's own SetMaxOpenConns(1)).
	writeSem *semaphore.Weighted
	path     string
	// reads collapses concurrent GetTask calls for the same id into one
	// query; purely a throughput optimization since Task values returned
	// to callers are immutable copies.
	reads singleflight.Group
}

// Open parses uri per the DB URL grammar (spec §6) and returns a ready
// Store, or apperrors.ErrUnsupportedBackend if uri names a backend this
// build does not implement, or an apperrors.BusyError if another live
// process already holds the file lock.
func Open(ctx context.Context, uri string, lockTimeout time.Duration) (*Store, error) {
	path, err := resolvePath(uri)
	if err != nil {
		return nil, err
	}

	if path == ":memory:" {
		// An in-memory database is never shared across processes, so it
		// is never lock-guarded.
		db, err := sqlite.Open(ctx, path, lockTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: opening in-memory database: %v", apperrors.ErrStorage, err)
		}
		return &Store{db: db, writeSem: semaphore.NewWeighted(1), path: path}, nil
	}

	l, err := lock.Acquire(path, processName)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(ctx, path, lockTimeout)
	if err != nil {
		_ = l.Release()
		return nil, fmt.Errorf("%w: opening database %s: %v", apperrors.ErrStorage, path, err)
	}

	return &Store{db: db, lock: l, writeSem: semaphore.NewWeighted(1), path: path}, nil
}

// resolvePath implements the DB URL grammar: "sqlite://PATH" and a bare
// filesystem path both resolve to PATH; "memory://<label>" (label
// optional) and the SQLite literal ":memory:" resolve to an in-memory
// database; every other
// recognised scheme (pglite-file://, idb://, opfs-ahp://, postgresql://)
// names a backend this build does not implement.
func resolvePath(uri string) (string, error) {
	switch {
	case uri == ":memory:" || strings.HasPrefix(uri, "memory://"):
		return ":memory:", nil
	case strings.HasPrefix(uri, "sqlite://"):
		return strings.TrimPrefix(uri, "sqlite://"), nil
	case strings.HasPrefix(uri, "pglite-file://"),
		strings.HasPrefix(uri, "idb://"),
		strings.HasPrefix(uri, "opfs-ahp://"),
		strings.HasPrefix(uri, "postgresql://"),
		strings.HasPrefix(uri, "postgres://"):
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnsupportedBackend, uri)
	case strings.Contains(uri, "://"):
		return "", fmt.Errorf("%w: unrecognised database URL scheme in %q", apperrors.ErrValidation, uri)
	default:
		return uri, nil
	}
}

// Close releases the database handle and, if held, the file lock.
func (s *Store) Close() error {
	var errs []error
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			errs = append(errs, fmt.Errorf("releasing lock: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ForceUnlock removes the advisory lock file for uri unconditionally,
// for operational recovery when an operator is certain no live process
// holds it (spec §4.1's "administrative recovery").
func ForceUnlock(uri string) error {
	path, err := resolvePath(uri)
	if err != nil {
		return err
	}
	return lock.ForceUnlock(path)
}

func (s *Store) withWriteLock(ctx context.Context, fn func() error) error {
	if err := s.writeSem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring write slot: %w", err)
	}
	defer s.writeSem.Release(1)
	return fn()
}

// AddTask validates and inserts draft, assigning it a fresh id (a root
// segment if draft.ParentID is empty or the project root, otherwise a
// child of draft.ParentID).
func (s *Store) AddTask(ctx context.Context, draft types.TaskDraft) (*types.Task, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	var task *types.Task
	err := s.withWriteLock(ctx, func() error {
		parentID := draft.ParentID
		if parentID == "" {
			parentID = types.ProjectRootID
		} else {
			exists, err := sqlite.TaskExists(ctx, s.db, parentID)
			if err != nil {
				return fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
			}
			if !exists {
				return fmt.Errorf("%w: parent task %s", apperrors.ErrNotFound, parentID)
			}
		}

		existsFn := func(id string) (bool, error) { return sqlite.TaskExists(ctx, s.db, id) }
		id, err := ids.GenerateChildID(parentID, existsFn)
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
		}

		now := nowUTC()
		status := draft.Status
		if status == "" {
			status = types.StatusPending
		}
		priority := draft.PriorityScore
		if priority <= 0 {
			priority = types.DefaultPriorityScore
		}
		t := &types.Task{
			ID:            id,
			ParentID:      parentID,
			Title:         draft.Title,
			Description:   draft.Description,
			Status:        status,
			PriorityScore: priority,
			PRD:           draft.PRD,
			ContextDigest: draft.ContextDigest,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := sqlite.InsertTask(ctx, s.db, t); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask returns the task named by id, or apperrors.ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	v, err, _ := s.reads.Do(id, func() (interface{}, error) {
		t, err := sqlite.GetTask(ctx, s.db, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
		}
		if t == nil {
			return nil, fmt.Errorf("%w: task %s", apperrors.ErrNotFound, id)
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	task := *v.(*types.Task)
	return &task, nil
}

// ListTasks returns every task matching filter.
func (s *Store) ListTasks(ctx context.Context, filter types.ListTasksFilter) ([]*types.Task, error) {
	tasks, err := sqlite.ListTasks(ctx, s.db, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
	}
	return tasks, nil
}

// UpdateTask merges updates into task id. Every key in updates must
// satisfy types.IsAllowedUpdateField.
func (s *Store) UpdateTask(ctx context.Context, id string, updates map[string]interface{}) (*types.Task, error) {
	for key := range updates {
		if !types.IsAllowedUpdateField(key) {
			return nil, fmt.Errorf("%w: field %q is not updatable", apperrors.ErrValidation, key)
		}
	}

	var task *types.Task
	err := s.withWriteLock(ctx, func() error {
		t, err := sqlite.UpdateTask(ctx, s.db, id, updates, nowUTC())
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
		}
		if t == nil {
			return fmt.Errorf("%w: task %s", apperrors.ErrNotFound, id)
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTaskStatus is a convenience wrapper around UpdateTask.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status types.Status) (*types.Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, status)
	}
	return s.UpdateTask(ctx, id, map[string]interface{}{"status": string(status)})
}

// DeleteTask removes task id. Fails with apperrors.ErrConflict if it
// still has children or dependents (spec §4.1: the store is not
// cascade-aware; cascading deletes are composed at the scheduler layer
// via a sequence of reconciliation operations).
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.withWriteLock(ctx, func() error {
		ok, err := sqlite.DeleteTask(ctx, s.db, id)
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrConflict, err)
		}
		if !ok {
			return fmt.Errorf("%w: task %s", apperrors.ErrNotFound, id)
		}
		return nil
	})
}

// AddTaskDependency records that dependentID depends on dependencyID,
// rejecting a self-edge or a cycle against the dependency graph as it
// currently stands (spec §4.1, §4.4).
func (s *Store) AddTaskDependency(ctx context.Context, dependentID, dependencyID string) error {
	if dependentID == dependencyID {
		return fmt.Errorf("%w: self-dependency on %s", apperrors.ErrConflict, dependentID)
	}
	return s.withWriteLock(ctx, func() error {
		deps, err := sqlite.ListAllDependencies(ctx, s.db)
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
		}
		forward := map[string][]string{}
		for _, d := range deps {
			forward[d.DependentTaskID] = append(forward[d.DependentTaskID], d.DependencyTaskID)
		}
		if cycle, found := findCyclePath(forward, dependencyID, dependentID); found {
			full := append([]string{dependentID}, cycle...)
			return &apperrors.ConflictError{Reason: "would create a dependency cycle", Cycle: full}
		}
		if err := sqlite.InsertDependency(ctx, s.db, &types.TaskDependency{
			DependentTaskID:  dependentID,
			DependencyTaskID: dependencyID,
			CreatedAt:        nowUTC(),
		}); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
		}
		return nil
	})
}

// RemoveTaskDependency deletes one edge.
func (s *Store) RemoveTaskDependency(ctx context.Context, dependentID, dependencyID string) error {
	return s.withWriteLock(ctx, func() error {
		ok, err := sqlite.DeleteDependency(ctx, s.db, dependentID, dependencyID)
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
		}
		if !ok {
			return fmt.Errorf("%w: dependency %s -> %s", apperrors.ErrNotFound, dependentID, dependencyID)
		}
		return nil
	})
}

// ListAllDependencies returns every edge, the raw material the
// in-memory dependency graph is built from.
func (s *Store) ListAllDependencies(ctx context.Context) ([]*types.TaskDependency, error) {
	deps, err := sqlite.ListAllDependencies(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
	}
	return deps, nil
}

// ListContextSlices returns every note attached to taskID.
func (s *Store) ListContextSlices(ctx context.Context, taskID string) ([]*types.ContextSlice, error) {
	slices, err := sqlite.ListContextSlices(ctx, s.db, taskID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
	}
	return slices, nil
}

// AddContextSlice attaches a note to draft.TaskID, assigning it a fresh
// UUID.
func (s *Store) AddContextSlice(ctx context.Context, draft types.ContextSliceDraft) (*types.ContextSlice, error) {
	var cs *types.ContextSlice
	err := s.withWriteLock(ctx, func() error {
		exists, err := sqlite.TaskExists(ctx, s.db, draft.TaskID)
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
		}
		if !exists {
			return fmt.Errorf("%w: task %s", apperrors.ErrNotFound, draft.TaskID)
		}
		c := &types.ContextSlice{
			ID:          ids.NewContextSliceID(),
			TaskID:      draft.TaskID,
			Title:       draft.Title,
			Description: draft.Description,
			CreatedAt:   nowUTC(),
		}
		if err := sqlite.InsertContextSlice(ctx, s.db, c); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
		}
		cs = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// ExecuteReconciliationOperations atomically applies a tree
// reconciliation plan under the write lock and returns the id
// mappings minted for any temp-id-bearing child_add payload.
func (s *Store) ExecuteReconciliationOperations(ctx context.Context, plan types.TreeReconciliationPlan) (types.IDMappings, error) {
	var mappings types.IDMappings
	err := s.withWriteLock(ctx, func() error {
		result, err := sqlite.ExecuteReconciliationOperations(ctx, s.db, plan)
		if err != nil {
			return err
		}
		mappings = result.IDMappings
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

// ApplyReconciliationPlan atomically applies a graph reconciliation
// plan under the write lock.
func (s *Store) ApplyReconciliationPlan(ctx context.Context, plan types.GraphReconciliationPlan) error {
	return s.withWriteLock(ctx, func() error {
		return sqlite.ApplyReconciliationPlan(ctx, s.db, plan)
	})
}

func validateDraft(draft types.TaskDraft) error {
	if draft.Title == "" {
		return fmt.Errorf("%w: title is required", apperrors.ErrValidation)
	}
	if len(draft.Title) > types.MaxTitleLen {
		return fmt.Errorf("%w: title exceeds %d characters", apperrors.ErrValidation, types.MaxTitleLen)
	}
	if len(draft.Description) > types.MaxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", apperrors.ErrValidation, types.MaxDescriptionLen)
	}
	if draft.Status != "" && !draft.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, draft.Status)
	}
	if draft.PriorityScore != 0 && (draft.PriorityScore < types.MinPriorityScore || draft.PriorityScore > types.MaxPriorityScore) {
		return fmt.Errorf("%w: priority score out of range [%d,%d]", apperrors.ErrValidation, types.MinPriorityScore, types.MaxPriorityScore)
	}
	return nil
}

// findCyclePath mirrors internal/store/sqlite's own cycle check so
// AddTaskDependency can reject a would-be cycle before ever opening a
// transaction.
func findCyclePath(forward map[string][]string, start, target string) ([]string, bool) {
	visited := map[string]bool{}
	var path []string
	var dfs func(node string) bool
	dfs = func(node string) bool {
		if node == target {
			path = append(path, node)
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for _, next := range forward[node] {
			if dfs(next) {
				path = append(path, node)
				return true
			}
		}
		return false
	}
	if dfs(start) {
		for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
			path[i], path[j] = path[j], path[i]
		}
		return path, true
	}
	return nil, false
}

func nowUTC() time.Time { return time.Now().UTC() }
