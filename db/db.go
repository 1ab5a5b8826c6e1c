// ABOUTME: Database connection management and initialization
// ABOUTME: Handles opening SQLite database with WAL mode at per-user XDG path
package db

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	_ "github.com/mattn/go-sqlite3"
)

// DatabasePath returns the action log path for an authenticated user. Each user
// gets their own directory so account switches never merge or leak queues.
func DatabasePath(userID string) string {
	return filepath.Join(xdg.DataHome, "relay", userID, "relay.db")
}

// SnapshotDir returns the snapshot store directory for an authenticated user.
func SnapshotDir(userID string) string {
	return filepath.Join(xdg.DataHome, "relay", userID, "snapshots")
}

func OpenDatabase(path string) (*sql.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	// Open database with WAL mode
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	// Configure connection pool for SQLite (avoid database locked errors)
	db.SetMaxOpenConns(1)

	// Initialize schema
	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	// Actions left in_flight by a crash are resubmitted with the same
	// idempotency key next pass, so reset them to pending at open.
	if err := ResetInFlightActions(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
