package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/marktoda/astrotask/internal/types"
)

// InsertDependency inserts one edge. The self-edge and uniqueness
// invariants are enforced by the schema's CHECK and UNIQUE constraints;
// cycle-freedom is the caller's responsibility (graph.WouldCreateCycle
// must be checked before calling this, per spec §4.1's "checked against
// a freshly computed graph").
func InsertDependency(ctx context.Context, q querier, dep *types.TaskDependency) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO task_dependencies (dependent_task_id, dependency_task_id, created_at)
		VALUES (?, ?, ?)
	`, dep.DependentTaskID, dep.DependencyTaskID, dep.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting dependency %s -> %s: %w", dep.DependentTaskID, dep.DependencyTaskID, err)
	}
	return nil
}

// DeleteDependency removes one edge, returning false if it did not
// exist.
func DeleteDependency(ctx context.Context, q querier, dependentID, dependencyID string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM task_dependencies WHERE dependent_task_id = ? AND dependency_task_id = ?
	`, dependentID, dependencyID)
	if err != nil {
		return false, fmt.Errorf("deleting dependency %s -> %s: %w", dependentID, dependencyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListAllDependencies returns every edge currently stored, the raw
// material the in-memory graph.Graph is built from.
func ListAllDependencies(ctx context.Context, q querier) ([]*types.TaskDependency, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT dependent_task_id, dependency_task_id, created_at FROM task_dependencies ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing dependencies: %w", err)
	}
	defer rows.Close()

	var deps []*types.TaskDependency
	for rows.Next() {
		var d types.TaskDependency
		if err := rows.Scan(&d.DependentTaskID, &d.DependencyTaskID, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning dependency row: %w", err)
		}
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}

// DependencyExists reports whether an edge already exists. Store's
// AddTaskDependency does not call it; a duplicate edge there is rejected
// by the UNIQUE constraint.
func DependencyExists(ctx context.Context, q querier, dependentID, dependencyID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM task_dependencies WHERE dependent_task_id = ? AND dependency_task_id = ?
	`, dependentID, dependencyID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking dependency existence: %w", err)
	}
	return count > 0, nil
}

// nowUTC is a tiny seam for the current UTC time; reconciliation code
// calls it once per inserted node.
func nowUTC() time.Time { return time.Now().UTC() }
