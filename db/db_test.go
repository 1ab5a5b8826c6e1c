// ABOUTME: Tests for database connection management
// ABOUTME: Covers schema initialization, WAL mode, and per-user path layout
package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	defer db.Close()

	// Verify database file exists
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	// Verify schema was initialized
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('actions', 'sync_state')").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query tables: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected actions and sync_state tables, got %d", count)
	}

	// Verify WAL mode
	var mode string
	err = db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	if err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("Expected WAL mode, got %s", mode)
	}
}

func TestOpenDatabaseInvalidPath(t *testing.T) {
	dbPath := "/invalid/nonexistent/path/that/cannot/be/created/test.db"

	_, err := OpenDatabase(dbPath)
	if err == nil {
		t.Errorf("Expected error for invalid path, but OpenDatabase succeeded")
	}
}

func TestOpenDatabaseReinitialize(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("Initial OpenDatabase failed: %v", err)
	}
	db.Close()

	// Reopening must handle existing tables gracefully
	db, err = OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenDatabase should handle re-initialization gracefully, got: %v", err)
	}
	defer db.Close()
}

func TestDatabasePathIsPerUser(t *testing.T) {
	a := DatabasePath("user-a")
	b := DatabasePath("user-b")

	if a == b {
		t.Error("Database paths for different users must differ")
	}
	if !strings.Contains(a, "user-a") {
		t.Errorf("Expected user ID in path, got %s", a)
	}
	if filepath.Dir(SnapshotDir("user-a")) != filepath.Dir(a) {
		t.Errorf("Snapshot dir should share the user directory: %s vs %s", SnapshotDir("user-a"), a)
	}
}
