// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation for the action log and sync state
package db

import (
	"database/sql"
)

// Acknowledged actions are purged rather than stored, so the state CHECK lists
// only the three states that can survive in the log.
const schema = `
CREATE TABLE IF NOT EXISTS actions (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL CHECK(kind IN ('create', 'update', 'delete')),
	entity_type TEXT NOT NULL,
	entity_id TEXT,
	payload TEXT,
	created_at DATETIME NOT NULL,
	attempt INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	state TEXT NOT NULL DEFAULT 'pending' CHECK(state IN ('pending', 'in_flight', 'failed'))
);

CREATE INDEX IF NOT EXISTS idx_actions_state ON actions(state);
CREATE INDEX IF NOT EXISTS idx_actions_created_at ON actions(created_at);
CREATE INDEX IF NOT EXISTS idx_actions_entity ON actions(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS sync_state (
	service TEXT PRIMARY KEY,
	last_sync_time DATETIME,
	last_sync_token TEXT,
	status TEXT CHECK(status IN ('idle', 'syncing', 'error')),
	error_message TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
