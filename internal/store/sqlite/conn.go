package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the "sqlite3" driver: a pure-Go, WASM-based SQLite
	// engine (no cgo). Grounded on the teacher's cmd/bd/doctor/*.go,
	// which imports exactly these two sub-packages for the same effect.
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/marktoda/astrotask/internal/types"
)

// connString builds the driver connection string for path. Grounded on
// the teacher's cmd/bd/repair.go connection-string construction:
// busy_timeout so concurrent readers don't spuriously fail while a
// writer briefly holds the SQLite-level lock, and foreign_keys on so
// cascade deletes and the dependency FKs are enforced by the engine.
func connString(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)&_time_format=sqlite",
		path, busyTimeout.Milliseconds())
}

// Open opens (creating if necessary) the SQLite database at path,
// applies the base schema and every pending migration, and seeds the
// synthetic project root task if absent. path must already be a bare
// filesystem path or ":memory:" — URL-scheme stripping happens one
// layer up, in store.Open.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", connString(path, busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	// The WASM driver multiplexes all use over one OS thread-safe
	// connection; a single shared connection also sidesteps SQLite's
	// "database is locked" surprises under concurrent writers from one
	// process, matching the teacher's own single-connection posture in
	// internal/storage/sqlite/multirepo.go ("Get exclusive connection to
	// ensure PRAGMA applies").
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	if err := seedProjectRoot(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seeding project root: %w", err)
	}
	return db, nil
}

func seedProjectRoot(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO tasks (id, parent_id, title, description, status, priority_score, created_at, updated_at)
		VALUES (?, NULL, 'Project Root', '', 'pending', 50, ?, ?)
	`, types.ProjectRootID, now, now)
	return err
}
