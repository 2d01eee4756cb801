package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/marktoda/astrotask/internal/types"
)

// InsertTask inserts a fully-formed task, failing on a duplicate id.
// Grounded on the teacher's insertIssueStrict (plain INSERT, not INSERT
// OR IGNORE, so a duplicate id surfaces as a bug rather than being
// silently swallowed — astrotask never imports tasks from an external
// format the way the teacher's JSONL sync does, so there is no case
// where a duplicate is expected).
func InsertTask(ctx context.Context, q querier, t *types.Task) error {
	var parentID interface{}
	if t.ParentID != "" {
		parentID = t.ParentID
	}
	var desc, prd, digest interface{}
	if t.Description != "" {
		desc = t.Description
	}
	if t.PRD != "" {
		prd = t.PRD
	}
	if t.ContextDigest != "" {
		digest = t.ContextDigest
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO tasks (id, parent_id, title, description, status, priority_score, prd, context_digest, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, parentID, t.Title, desc, string(t.Status), t.PriorityScore, prd, digest, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask fetches a task by id, returning (nil, nil) if absent.
func GetTask(ctx context.Context, q querier, id string) (*types.Task, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, parent_id, title, description, status, priority_score, prd, context_digest, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	return t, nil
}

// TaskExists reports whether id names a task, for use by the id
// generator's collision-check callback.
func TaskExists(ctx context.Context, q querier, id string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking task existence %s: %w", id, err)
	}
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*types.Task, error) {
	var (
		t                   types.Task
		parentID, desc      sql.NullString
		prd, digest         sql.NullString
		status              string
	)
	if err := row.Scan(&t.ID, &parentID, &t.Title, &desc, &status, &t.PriorityScore, &prd, &digest, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.ParentID = parentID.String
	t.Description = desc.String
	t.Status = types.Status(status)
	t.PRD = prd.String
	t.ContextDigest = digest.String
	return &t, nil
}

// updatableColumns maps the allowed UpdateTask field keys (spec §9
// "Dynamic update payloads") to their SQL column name.
var updatableColumns = map[string]string{
	"title":         "title",
	"description":   "description",
	"status":        "status",
	"priorityScore": "priority_score",
	"prd":           "prd",
	"contextDigest": "context_digest",
	"parentId":      "parent_id",
}

// UpdateTask merges the allowed fields in updates into task id, bumps
// updated_at, and returns the merged task. Returns (nil, nil) if id is
// missing. Callers must have already validated updates' keys against
// types.IsAllowedUpdateField; UpdateTask itself only maps known keys and
// silently ignores the rest as a second line of defense.
func UpdateTask(ctx context.Context, q querier, id string, updates map[string]interface{}, now time.Time) (*types.Task, error) {
	existing, err := GetTask(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if len(updates) == 0 {
		return existing, nil
	}

	var sets []string
	var args []interface{}
	for key, val := range updates {
		col, ok := updatableColumns[key]
		if !ok {
			continue
		}
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now)
	args = append(args, id)

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("updating task %s: %w", id, err)
	}
	return GetTask(ctx, q, id)
}

// UpdateTaskStatus is a convenience wrapper around UpdateTask.
func UpdateTaskStatus(ctx context.Context, q querier, id string, status types.Status, now time.Time) (*types.Task, error) {
	return UpdateTask(ctx, q, id, map[string]interface{}{"status": string(status)}, now)
}

// DeleteTask removes task id. Returns false if absent. The SQL adapter
// is not cascade-aware (spec §4.1): it refuses when children or
// dependents still reference id, leaving cascade composition to the
// store/scheduler layer (§4.6).
func DeleteTask(ctx context.Context, q querier, id string) (bool, error) {
	var childCount, depCount int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE parent_id = ?`, id).Scan(&childCount); err != nil {
		return false, fmt.Errorf("counting children of %s: %w", id, err)
	}
	if childCount > 0 {
		return false, fmt.Errorf("task %s has children", id)
	}
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_dependencies WHERE dependency_task_id = ?`, id).Scan(&depCount); err != nil {
		return false, fmt.Errorf("counting dependents of %s: %w", id, err)
	}
	if depCount > 0 {
		return false, fmt.Errorf("task %s has dependents", id)
	}

	res, err := q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking delete result for %s: %w", id, err)
	}
	return n > 0, nil
}

// ListTasks returns tasks matching filter. Filters are conjunctive; an
// empty Statuses means "any status". The synthetic project root is
// suppressed unless filter.IncludeProjectRoot is set. Ordering is by
// created_at ascending only — callers that need the tree's deterministic
// child order (done-last, priority desc, created-at asc) build a tree.Tree on
// top of this result (spec §4.2).
func ListTasks(ctx context.Context, q querier, filter types.ListTasksFilter) ([]*types.Task, error) {
	var where []string
	var args []interface{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.HasParentFilter {
		if filter.ParentID == "" {
			where = append(where, "parent_id IS NULL")
		} else {
			where = append(where, "parent_id = ?")
			args = append(args, filter.ParentID)
		}
	}
	if !filter.IncludeProjectRoot {
		where = append(where, "id != ?")
		args = append(args, types.ProjectRootID)
	}

	query := `SELECT id, parent_id, title, description, status, priority_score, prd, context_digest, created_at, updated_at FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
