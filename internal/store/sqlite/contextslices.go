package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/marktoda/astrotask/internal/types"
)

// InsertContextSlice inserts one note attached to a task.
func InsertContextSlice(ctx context.Context, q querier, cs *types.ContextSlice) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO context_slices (id, task_id, title, description, context_type, created_at)
		VALUES (?, ?, ?, ?, 'note', ?)
	`, cs.ID, cs.TaskID, cs.Title, cs.Description, cs.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting context slice %s: %w", cs.ID, err)
	}
	return nil
}

// ListContextSlices returns every note attached to taskID, oldest first.
func ListContextSlices(ctx context.Context, q querier, taskID string) ([]*types.ContextSlice, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, task_id, title, description, created_at
		FROM context_slices WHERE task_id = ? ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("listing context slices for %s: %w", taskID, err)
	}
	defer rows.Close()

	var slices []*types.ContextSlice
	for rows.Next() {
		var cs types.ContextSlice
		var desc sql.NullString
		if err := rows.Scan(&cs.ID, &cs.TaskID, &cs.Title, &desc, &cs.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning context slice row: %w", err)
		}
		cs.Description = desc.String
		slices = append(slices, &cs)
	}
	return slices, rows.Err()
}
