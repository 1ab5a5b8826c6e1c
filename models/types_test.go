// ABOUTME: Tests for sync engine data models
// ABOUTME: Covers group keys, kind validation, and JSON round-tripping
package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestGroupKey(t *testing.T) {
	withID := OfflineAction{ID: "01ABC", Kind: KindUpdate, EntityType: "note", EntityID: "n-1"}
	if got := withID.GroupKey(); got != "note/n-1" {
		t.Errorf("expected note/n-1, got %s", got)
	}

	// A create has no server-assigned entity ID yet; it groups by action ID so
	// it never collides with another entity's group.
	create := OfflineAction{ID: "01DEF", Kind: KindCreate, EntityType: "note"}
	if got := create.GroupKey(); got != "note/01DEF" {
		t.Errorf("expected note/01DEF, got %s", got)
	}
}

func TestValidKind(t *testing.T) {
	for _, kind := range []string{KindCreate, KindUpdate, KindDelete} {
		if !ValidKind(kind) {
			t.Errorf("expected %s to be valid", kind)
		}
	}
	for _, kind := range []string{"", "upsert", "CREATE"} {
		if ValidKind(kind) {
			t.Errorf("expected %s to be invalid", kind)
		}
	}
}

func TestOfflineActionJSON(t *testing.T) {
	action := OfflineAction{
		ID:         "01HXYZ",
		Kind:       KindCreate,
		EntityType: "note",
		Payload:    json.RawMessage(`{"title":"hello"}`),
		CreatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		State:      StatePending,
	}

	data, err := json.Marshal(&action)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded OfflineAction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.ID != action.ID || decoded.Kind != action.Kind || decoded.State != action.State {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
	if string(decoded.Payload) != `{"title":"hello"}` {
		t.Errorf("payload mismatch: %s", decoded.Payload)
	}
}
