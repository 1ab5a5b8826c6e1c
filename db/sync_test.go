// ABOUTME: Tests for sync_state persistence
// ABOUTME: Covers watermark round-tripping and status updates
package db

import (
	"testing"
	"time"
)

func TestSyncStateLifecycle(t *testing.T) {
	db := openTestDB(t)

	// Never-synced service has no state
	state, err := GetSyncState(db, ServiceBackend)
	if err != nil {
		t.Fatalf("GetSyncState failed: %v", err)
	}
	if state != nil {
		t.Fatal("Expected nil state before first sync")
	}

	// Mark syncing, then error
	if err := UpdateSyncStatus(db, ServiceBackend, SyncStatusSyncing, nil); err != nil {
		t.Fatalf("UpdateSyncStatus failed: %v", err)
	}
	msg := "connection refused"
	if err := UpdateSyncStatus(db, ServiceBackend, SyncStatusError, &msg); err != nil {
		t.Fatalf("UpdateSyncStatus failed: %v", err)
	}
	state, err = GetSyncState(db, ServiceBackend)
	if err != nil {
		t.Fatalf("GetSyncState failed: %v", err)
	}
	if state.Status != SyncStatusError || state.ErrorMessage == nil || *state.ErrorMessage != msg {
		t.Errorf("Expected error status with message, got %+v", state)
	}

	// Completed sync records watermark and clears the error
	watermark := time.Date(2025, 6, 1, 12, 30, 0, 123456000, time.UTC)
	if err := UpdateSyncWatermark(db, ServiceBackend, watermark); err != nil {
		t.Fatalf("UpdateSyncWatermark failed: %v", err)
	}
	state, err = GetSyncState(db, ServiceBackend)
	if err != nil {
		t.Fatalf("GetSyncState failed: %v", err)
	}
	if state.Status != SyncStatusIdle {
		t.Errorf("Expected idle status, got %s", state.Status)
	}
	if state.ErrorMessage != nil {
		t.Errorf("Expected error cleared, got %v", *state.ErrorMessage)
	}
	if state.Watermark == nil || !state.Watermark.Equal(watermark) {
		t.Errorf("Expected watermark %v, got %v", watermark, state.Watermark)
	}
	if state.LastSyncTime == nil {
		t.Error("Expected last sync time set")
	}
}
