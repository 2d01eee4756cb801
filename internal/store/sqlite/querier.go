package sqlite

import (
	"context"
	"database/sql"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting every CRUD
// helper in this package run either standalone or inside the
// transaction executeReconciliationOperations / applyReconciliationPlan
// open, mirroring the teacher's *sql.Conn-parameterized helpers in
// internal/storage/sqlite/issues.go.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
