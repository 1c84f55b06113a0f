package store

import (
	"context"
	"database/sql"
	"fmt"
)

// projectSchema creates every table described in spec §3 for a single
// project DB. Columns/constraints mirror the invariants stated with each
// table in the spec.
const projectSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	input_path TEXT NOT NULL DEFAULT '',
	llm_provider TEXT NOT NULL DEFAULT '',
	llm_model TEXT NOT NULL DEFAULT '',
	llm_base_url TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_name TEXT NOT NULL UNIQUE,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS terms_extracted (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	term_text TEXT NOT NULL UNIQUE,
	category TEXT,
	user_notes TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS terms_excluded (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	term_text TEXT NOT NULL UNIQUE,
	source TEXT NOT NULL DEFAULT 'auto',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS terms_required (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	term_text TEXT NOT NULL UNIQUE,
	source TEXT NOT NULL DEFAULT 'manual',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS glossary_provisional (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	term_name TEXT NOT NULL UNIQUE,
	definition TEXT NOT NULL,
	confidence REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	occurrences TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS glossary_refined (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	term_name TEXT NOT NULL UNIQUE,
	definition TEXT NOT NULL,
	confidence REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	occurrences TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS glossary_issues (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	term_name TEXT NOT NULL,
	issue_type TEXT NOT NULL CHECK (issue_type IN ('unclear', 'contradiction', 'missing_relation', 'unnecessary')),
	description TEXT NOT NULL,
	should_exclude INTEGER NOT NULL DEFAULT 0,
	exclusion_reason TEXT
);

CREATE TABLE IF NOT EXISTS term_synonym_groups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	primary_term_text TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS term_synonym_members (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id INTEGER NOT NULL REFERENCES term_synonym_groups(id) ON DELETE CASCADE,
	term_text TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scope TEXT NOT NULL CHECK (scope IN ('full', 'extract', 'generate', 'review', 'refine')),
	status TEXT NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
	started_at TEXT,
	finished_at TEXT,
	triggered_by TEXT NOT NULL DEFAULT '',
	error_message TEXT,
	progress_current INTEGER NOT NULL DEFAULT 0,
	progress_total INTEGER NOT NULL DEFAULT 0,
	current_step TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_terms_extracted_text ON terms_extracted(term_text);
`

const projectSchemaVersion = 1

// BootstrapProject creates the project schema if absent and forward
// migrates older files (e.g. adding a column introduced by a later
// version) idempotently, per spec §4.1.
func BootstrapProject(ctx context.Context, conn *Connection) error {
	if _, err := conn.DB.ExecContext(ctx, projectSchema); err != nil {
		return fmt.Errorf("bootstrapping project schema: %w", err)
	}
	if err := addColumnIfMissing(ctx, conn.DB, "documents", "content_hash", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	return advanceSchemaVersion(ctx, conn, projectSchemaVersion)
}

// addColumnIfMissing mirrors the teacher's forward-migration idiom
// (internal/storage/sqlite/migrations/*.go): check PRAGMA table_info
// before ALTER TABLE so re-running bootstrap against an already-migrated
// file is a no-op.
func addColumnIfMissing(ctx context.Context, db *sql.DB, table, column, def string) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return fmt.Errorf("scanning table_info(%s): %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, def)); err != nil {
		return fmt.Errorf("adding column %s.%s: %w", table, column, err)
	}
	return nil
}
