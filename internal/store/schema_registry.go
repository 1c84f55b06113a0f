package store

import (
	"context"
	"fmt"
)

// registrySchema creates the Registry DB tables, following the
// CREATE-TABLE-IF-NOT-EXISTS idiom in the teacher's schema.go — bootstrap
// is always safe to re-run against an existing file.
const registrySchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	doc_root TEXT NOT NULL DEFAULT '',
	db_path TEXT NOT NULL UNIQUE,
	llm_provider TEXT NOT NULL DEFAULT '',
	llm_model TEXT NOT NULL DEFAULT '',
	llm_base_url TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'created',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	last_run_at TEXT
);
`

const registrySchemaVersion = 1

// BootstrapRegistry creates the Registry DB schema if absent and advances
// schema_version forward-compatibly (spec §3, §6).
func BootstrapRegistry(ctx context.Context, conn *Connection) error {
	if _, err := conn.DB.ExecContext(ctx, registrySchema); err != nil {
		return fmt.Errorf("bootstrapping registry schema: %w", err)
	}
	return advanceSchemaVersion(ctx, conn, registrySchemaVersion)
}

func advanceSchemaVersion(ctx context.Context, conn *Connection, target int) error {
	var current int
	row := conn.DB.QueryRowContext(ctx, "SELECT version FROM schema_version WHERE id = 1")
	if err := row.Scan(&current); err != nil {
		if _, insErr := conn.DB.ExecContext(ctx, "INSERT INTO schema_version (id, version) VALUES (1, ?)", target); insErr != nil {
			return fmt.Errorf("seeding schema_version: %w", insErr)
		}
		return nil
	}
	if current < target {
		if _, err := conn.DB.ExecContext(ctx, "UPDATE schema_version SET version = ? WHERE id = 1", target); err != nil {
			return fmt.Errorf("advancing schema_version: %w", err)
		}
	}
	return nil
}
