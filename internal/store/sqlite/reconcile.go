package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/marktoda/astrotask/internal/apperrors"
	"github.com/marktoda/astrotask/internal/ids"
	"github.com/marktoda/astrotask/internal/types"
)

// ReconcileResult is returned by ExecuteReconciliationOperations: the id
// the plan's root resolved to (a temp id in the plan resolves to its
// mapping; a pre-existing id passes through unchanged) plus every
// temp-id -> permanent-id mapping minted while applying the plan.
type ReconcileResult struct {
	RootID     string
	IDMappings types.IDMappings
}

// ExecuteReconciliationOperations applies a tree reconciliation plan
// atomically: either every operation commits, or none are visible to
// subsequent readers (spec §5, invariant 8). Allocates real ids for any
// child_add payload bearing a temporary id and returns the full mapping;
// a plan whose ops reference a temp id with no corresponding mapping is
// a bug in the caller, surfaced as apperrors.ErrReconciliation.
func ExecuteReconciliationOperations(ctx context.Context, db *sql.DB, plan types.TreeReconciliationPlan) (ReconcileResult, error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("beginning reconciliation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	mappings := types.IDMappings{}
	resolve := func(id string) string {
		if real, ok := mappings[id]; ok {
			return real
		}
		return id
	}

	for _, op := range plan.Operations {
		switch op.Kind {
		case types.TreeOpChildAdd:
			parentID := resolve(op.ParentID)
			if op.ChildTree == nil {
				return ReconcileResult{}, &apperrors.ReconciliationError{Reason: "child_add with nil payload"}
			}
			if _, err := insertNodeTree(ctx, tx, parentID, *op.ChildTree, mappings); err != nil {
				return ReconcileResult{}, &apperrors.ReconciliationError{Reason: "child_add failed", Cause: err}
			}

		case types.TreeOpChildRemove:
			childID := resolve(op.ChildID)
			exists, err := TaskExists(ctx, tx, childID)
			if err != nil {
				return ReconcileResult{}, &apperrors.ReconciliationError{Reason: "child_remove failed", Cause: err}
			}
			if !exists {
				return ReconcileResult{}, &apperrors.ReconciliationError{Reason: fmt.Sprintf("child_remove of unknown task %s", childID)}
			}
			if err := deleteSubtree(ctx, tx, childID); err != nil {
				return ReconcileResult{}, &apperrors.ReconciliationError{Reason: "child_remove failed", Cause: err}
			}

		case types.TreeOpTaskUpdate:
			taskID := resolve(op.TaskID)
			updated, err := UpdateTask(ctx, tx, taskID, op.FieldUpdates, op.Timestamp)
			if err != nil {
				return ReconcileResult{}, &apperrors.ReconciliationError{Reason: "task_update failed", Cause: err}
			}
			if updated == nil {
				return ReconcileResult{}, &apperrors.ReconciliationError{Reason: fmt.Sprintf("task_update on unknown task %s", taskID)}
			}

		default:
			return ReconcileResult{}, &apperrors.ReconciliationError{Reason: fmt.Sprintf("unknown tree op kind %q", op.Kind)}
		}
	}

	if err := tx.Commit(); err != nil {
		return ReconcileResult{}, fmt.Errorf("committing reconciliation: %w", err)
	}

	return ReconcileResult{RootID: resolve(plan.RootID), IDMappings: mappings}, nil
}

// insertNodeTree recursively inserts node under parentID, minting a
// fresh id via the ids package, recording node.TempID -> real id in
// mappings when TempID is set, then recursing into node.Children with
// the freshly minted id as their parent.
func insertNodeTree(ctx context.Context, tx *sql.Tx, parentID string, node types.TaskNodeDraft, mappings types.IDMappings) (string, error) {
	existsFn := func(id string) (bool, error) { return TaskExists(ctx, tx, id) }
	realID, err := ids.GenerateChildID(parentID, existsFn)
	if err != nil {
		return "", fmt.Errorf("allocating id under %s: %w", parentID, err)
	}

	now := nowUTC()
	status := node.Draft.Status
	if status == "" {
		status = types.StatusPending
	}
	priority := node.Draft.PriorityScore
	if priority <= 0 {
		priority = types.DefaultPriorityScore
	}
	task := &types.Task{
		ID:            realID,
		ParentID:      parentID,
		Title:         node.Draft.Title,
		Description:   node.Draft.Description,
		Status:        status,
		PriorityScore: priority,
		PRD:           node.Draft.PRD,
		ContextDigest: node.Draft.ContextDigest,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := InsertTask(ctx, tx, task); err != nil {
		return "", err
	}
	if node.TempID != "" {
		mappings[node.TempID] = realID
	}

	for _, child := range node.Children {
		if _, err := insertNodeTree(ctx, tx, realID, child, mappings); err != nil {
			return "", err
		}
	}
	return realID, nil
}

// deleteSubtree removes id and every descendant bottom-up (deepest
// first), so the non-cascading parent_id foreign key never rejects a
// parent row that still has children. Incident dependency edges cascade
// automatically via task_dependencies' ON DELETE CASCADE.
func deleteSubtree(ctx context.Context, tx *sql.Tx, id string) error {
	rows, err := tx.QueryContext(ctx, `
		WITH RECURSIVE descendants(id, depth) AS (
			SELECT id, 0 FROM tasks WHERE id = ?
			UNION ALL
			SELECT t.id, d.depth + 1 FROM tasks t
			JOIN descendants d ON t.parent_id = d.id
		)
		SELECT id FROM descendants ORDER BY depth DESC
	`, id)
	if err != nil {
		return fmt.Errorf("finding descendants of %s: %w", id, err)
	}
	var toDelete []string
	for rows.Next() {
		var tid string
		if err := rows.Scan(&tid); err != nil {
			rows.Close()
			return fmt.Errorf("scanning descendant id: %w", err)
		}
		toDelete = append(toDelete, tid)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, tid := range toDelete {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, tid); err != nil {
			return fmt.Errorf("deleting task %s: %w", tid, err)
		}
	}
	return nil
}

// ApplyReconciliationPlan applies a graph reconciliation plan
// atomically, re-validating cycle-freedom against the graph as it
// currently stands in the database (plus any mappings already applied
// by the caller) before each dep_add commits, per spec §9's open
// question: "make the cycle check exact in both paths".
func ApplyReconciliationPlan(ctx context.Context, db *sql.DB, plan types.GraphReconciliationPlan) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning graph reconciliation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := ListAllDependencies(ctx, tx)
	if err != nil {
		return fmt.Errorf("loading dependencies: %w", err)
	}
	forward := map[string][]string{}
	for _, d := range existing {
		forward[d.DependentTaskID] = append(forward[d.DependentTaskID], d.DependencyTaskID)
	}

	for _, op := range plan.Operations {
		switch op.Kind {
		case types.GraphOpDepAdd:
			if op.DependentID == op.DependencyID {
				return &apperrors.ConflictError{Reason: fmt.Sprintf("self-dependency on %s", op.DependentID)}
			}
			if cycle, found := findPath(forward, op.DependencyID, op.DependentID); found {
				full := append([]string{op.DependentID}, cycle...)
				return &apperrors.ConflictError{Reason: "adding this dependency would create a cycle", Cycle: full}
			}
			if err := InsertDependency(ctx, tx, &types.TaskDependency{
				DependentTaskID:  op.DependentID,
				DependencyTaskID: op.DependencyID,
				CreatedAt:        op.Timestamp,
			}); err != nil {
				return &apperrors.ReconciliationError{Reason: "dep_add failed", Cause: err}
			}
			forward[op.DependentID] = append(forward[op.DependentID], op.DependencyID)

		case types.GraphOpDepRemove:
			if _, err := DeleteDependency(ctx, tx, op.DependentID, op.DependencyID); err != nil {
				return &apperrors.ReconciliationError{Reason: "dep_remove failed", Cause: err}
			}
			forward[op.DependentID] = removeString(forward[op.DependentID], op.DependencyID)

		default:
			return &apperrors.ReconciliationError{Reason: fmt.Sprintf("unknown graph op kind %q", op.Kind)}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing graph reconciliation: %w", err)
	}
	return nil
}

// findPath returns a path from start to target following forward
// adjacency (dependent -> dependency), used to detect that adding
// dependent->dependency would close a cycle back through target.
func findPath(forward map[string][]string, start, target string) ([]string, bool) {
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
		neighbors := append([]string(nil), forward[node]...)
		sort.Strings(neighbors)
		for _, next := range neighbors {
			if dfs(next) {
				path = append(path, node)
				return true
			}
		}
		return false
	}
	if dfs(start) {
		// path was built target-first by the recursive unwind; reverse
		// it to read start -> ... -> target.
		for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
			path[i], path[j] = path[j], path[i]
		}
		return path, true
	}
	return nil, false
}

func removeString(s []string, target string) []string {
	out := s[:0]
	for _, v := range s {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
