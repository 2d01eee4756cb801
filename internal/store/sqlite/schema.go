// Package sqlite is astrotask's SQL adapter (spec §4.1 component B):
// typed CRUD over the embedded SQL backend plus migration application.
// It is grounded on the teacher's internal/storage/sqlite package —
// same embedded-string schema constant, same additive migration list,
// same strict-vs-ignore insert split — generalized from the teacher's
// issue-tracker schema to astrotask's task/dependency/context-slice
// schema (spec §6 "Persisted schema").
package sqlite

// schema is applied once, at database initialization, before the
// migrations list runs. Subsequent schema changes are expressed as
// migrations, never by editing this constant, so that a database created
// under an older binary version still migrates cleanly.
const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id             TEXT PRIMARY KEY,
    parent_id      TEXT REFERENCES tasks(id),
    title          TEXT NOT NULL CHECK(length(title) >= 1 AND length(title) <= 200),
    description    TEXT,
    status         TEXT NOT NULL DEFAULT 'pending',
    priority_score INTEGER NOT NULL DEFAULT 50 CHECK(priority_score >= 0 AND priority_score <= 100),
    prd            TEXT,
    context_digest TEXT,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (id = '__PROJECT_ROOT__' OR parent_id IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_tasks_parent_id ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_priority_score ON tasks(priority_score);

CREATE TABLE IF NOT EXISTS task_dependencies (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    dependent_task_id   TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    dependency_task_id  TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (dependent_task_id, dependency_task_id),
    CHECK (dependent_task_id != dependency_task_id)
);

CREATE INDEX IF NOT EXISTS idx_task_dependencies_dependent ON task_dependencies(dependent_task_id);
CREATE INDEX IF NOT EXISTS idx_task_dependencies_dependency ON task_dependencies(dependency_task_id);

CREATE TABLE IF NOT EXISTS context_slices (
    id           TEXT PRIMARY KEY,
    task_id      TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    title        TEXT NOT NULL,
    description  TEXT,
    context_type TEXT NOT NULL DEFAULT 'note',
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_context_slices_task_id ON context_slices(task_id);

CREATE TABLE IF NOT EXISTS schema_migrations (
    name        TEXT PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// projectRootID duplicates types.ProjectRootID as a literal, the same
// literal the schema constant above spells out in its CHECK constraint;
// no test compares the two.
const projectRootID = "__PROJECT_ROOT__"
