// ABOUTME: Tests for the optimistic cache projection
// ABOUTME: Covers overlays, ordering, merges, deletes, and purity
package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/relay/models"
)

var projBase = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func serverNote(id, payload string) models.ServerEntity {
	return models.ServerEntity{
		ID:         id,
		EntityType: "note",
		Payload:    json.RawMessage(payload),
		UpdatedAt:  projBase,
	}
}

func pendingAction(id, kind, entityID, payload string, offset time.Duration) models.OfflineAction {
	return models.OfflineAction{
		ID:         id,
		Kind:       kind,
		EntityType: "note",
		EntityID:   entityID,
		Payload:    json.RawMessage(payload),
		CreatedAt:  projBase.Add(offset),
		State:      models.StatePending,
	}
}

func TestProjectNoPendingPassesThrough(t *testing.T) {
	result := Project([]models.ServerEntity{serverNote("n-1", `{"title":"a"}`)}, nil)
	require.Len(t, result, 1)
	assert.Equal(t, "n-1", result[0].ID)
	assert.JSONEq(t, `{"title":"a"}`, string(result[0].Payload))
}

func TestProjectCreateIntroducesProvisionalEntity(t *testing.T) {
	result := Project(nil, []models.OfflineAction{
		pendingAction("a1", models.KindCreate, "", `{"title":"offline"}`, 0),
	})
	require.Len(t, result, 1)
	assert.Equal(t, "a1", result[0].ID, "create without server ID keys by action ID")
	assert.JSONEq(t, `{"title":"offline"}`, string(result[0].Payload))
}

func TestProjectUpdateMergesOverSnapshot(t *testing.T) {
	base := []models.ServerEntity{serverNote("n-1", `{"title":"a","body":"x"}`)}
	result := Project(base, []models.OfflineAction{
		pendingAction("a1", models.KindUpdate, "n-1", `{"title":"local"}`, 0),
	})
	require.Len(t, result, 1)
	assert.JSONEq(t, `{"title":"local","body":"x"}`, string(result[0].Payload),
		"local intent wins per key, untouched keys survive")
}

func TestProjectAppliesInCreatedAtOrder(t *testing.T) {
	base := []models.ServerEntity{serverNote("n-1", `{"v":"server"}`)}
	// Pass actions newest-first; projection must still apply oldest-first.
	result := Project(base, []models.OfflineAction{
		pendingAction("a2", models.KindUpdate, "n-1", `{"v":"second"}`, 2*time.Second),
		pendingAction("a1", models.KindUpdate, "n-1", `{"v":"first"}`, time.Second),
	})
	require.Len(t, result, 1)
	assert.JSONEq(t, `{"v":"second"}`, string(result[0].Payload))
}

func TestProjectDeleteRemovesEntity(t *testing.T) {
	base := []models.ServerEntity{serverNote("n-1", `{}`), serverNote("n-2", `{}`)}
	result := Project(base, []models.OfflineAction{
		pendingAction("a1", models.KindDelete, "n-1", ``, 0),
	})
	require.Len(t, result, 1)
	assert.Equal(t, "n-2", result[0].ID)
}

func TestProjectCreateThenUpdateThenDelete(t *testing.T) {
	actions := []models.OfflineAction{
		pendingAction("a1", models.KindCreate, "", `{"title":"a"}`, 0),
		pendingAction("a2", models.KindUpdate, "a1", `{"title":"b"}`, time.Second),
		pendingAction("a3", models.KindDelete, "a1", ``, 2*time.Second),
	}
	result := Project(nil, actions)
	assert.Empty(t, result, "create+delete while offline nets out to nothing visible")
}

func TestProjectSkipsServerTombstones(t *testing.T) {
	tombstone := serverNote("n-1", `{}`)
	tombstone.Deleted = true
	result := Project([]models.ServerEntity{tombstone}, nil)
	assert.Empty(t, result)
}

func TestProjectDoesNotMutateInputs(t *testing.T) {
	base := []models.ServerEntity{serverNote("n-1", `{"title":"a"}`)}
	pending := []models.OfflineAction{
		pendingAction("a2", models.KindUpdate, "n-1", `{"title":"z"}`, 2*time.Second),
		pendingAction("a1", models.KindUpdate, "n-1", `{"title":"y"}`, time.Second),
	}

	_ = Project(base, pending)

	assert.JSONEq(t, `{"title":"a"}`, string(base[0].Payload), "base snapshot must not change")
	assert.Equal(t, "a2", pending[0].ID, "pending slice order must not change")
}
