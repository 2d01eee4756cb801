package sqlite

import (
	"database/sql"
	"fmt"
)

// migration is a single named, idempotent schema change, applied in
// order after schema creation. Grounded on the teacher's
// internal/storage/sqlite/migrations.go Migration/migrationsList shape.
type migration struct {
	name string
	fn   func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations applied after
// the base schema. Astrotask is young enough that this list is short,
// but the mechanism is the one a long-lived database needs: each entry
// runs at most once, tracked in schema_migrations.
var migrationsList = []migration{
	{"context_slices_context_type_default", migrateContextSliceTypeDefault},
}

// applyMigrations runs every migration in migrationsList that has not
// already been recorded in schema_migrations. No transaction is used; a
// migration is recorded only after it returns without error, so a
// failing one is not marked applied.
func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY, applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("ensuring schema_migrations table: %w", err)
	}

	for _, m := range migrationsList {
		applied, err := isMigrationApplied(db, m.name)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", m.name, err)
		}
		if applied {
			continue
		}
		if err := m.fn(db); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.name, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (name) VALUES (?)`, m.name); err != nil {
			return fmt.Errorf("recording migration %s: %w", m.name, err)
		}
	}
	return nil
}

func isMigrationApplied(db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// migrateContextSliceTypeDefault backfills context_type for rows
// written before the column existed. It is a realistic example of the
// additive-column style the teacher's migrations use throughout
// internal/storage/sqlite/migrations/*.go.
func migrateContextSliceTypeDefault(db *sql.DB) error {
	_, err := db.Exec(`UPDATE context_slices SET context_type = 'note' WHERE context_type IS NULL OR context_type = ''`)
	return err
}
