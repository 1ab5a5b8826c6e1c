// ABOUTME: Data models for the offline sync engine
// ABOUTME: Defines OfflineAction, ServerEntity, and SyncStatus structs
package models

import (
	"encoding/json"
	"time"
)

// ActionKind constants. An offline action records one of three mutation intents.
const (
	KindCreate = "create"
	KindUpdate = "update"
	KindDelete = "delete"
)

// ActionState constants.
const (
	StatePending      = "pending"
	StateInFlight     = "in_flight"
	StateAcknowledged = "acknowledged"
	StateFailed       = "failed"
)

// OfflineAction is a locally originated mutation intent not yet confirmed by the
// backend. ID is the idempotency key: it is assigned once at enqueue time and is
// never regenerated, so a retried submission is recognized as a duplicate by the
// server rather than reapplied.
type OfflineAction struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Attempt    int             `json:"attempt"`
	LastError  string          `json:"last_error,omitempty"`
	State      string          `json:"state"`
}

// GroupKey returns the per-entity ordering key. Actions sharing a key must reach
// the server in CreatedAt order; actions with different keys carry no ordering
// requirement. Creates with no server-assigned ID yet group by their action ID.
func (a *OfflineAction) GroupKey() string {
	if a.EntityID != "" {
		return a.EntityType + "/" + a.EntityID
	}
	return a.EntityType + "/" + a.ID
}

// ValidKind reports whether kind is one of the three mutation kinds.
func ValidKind(kind string) bool {
	return kind == KindCreate || kind == KindUpdate || kind == KindDelete
}

// ServerEntity is the backend's authoritative representation of a domain entity,
// returned by the mutation endpoint and by incremental pulls.
type ServerEntity struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entity_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Deleted    bool            `json:"deleted,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SyncStatus is a derived projection of engine state for the UI. It is computed
// from the action log and monitor on demand, never independently mutated.
type SyncStatus struct {
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	PendingCount int        `json:"pending_count"`
	FailedCount  int        `json:"failed_count"`
	IsOnline     bool       `json:"is_online"`
	IsSyncing    bool       `json:"is_syncing"`
	Degraded     bool       `json:"degraded"`
}
