// ABOUTME: Optimistic local cache projection
// ABOUTME: Pure overlay of pending actions atop the last server snapshot, no I/O
package cache

import (
	"encoding/json"
	"sort"

	"github.com/harperreed/relay/models"
)

// Project overlays pending and in-flight actions on the last known server
// snapshot and returns the effective entities the UI should display. It is a
// pure function: no I/O, inputs are not mutated.
//
// Per entity, actions apply in CreatedAt order. A create introduces a
// provisional entity (keyed by the action ID until the server assigns one), an
// update shallow-merges its payload over the current state, and a delete
// removes the entity. Entities with no pending action pass through as the
// server reported them.
func Project(base []models.ServerEntity, pending []models.OfflineAction) []models.ServerEntity {
	effective := make(map[string]models.ServerEntity, len(base))
	for _, entity := range base {
		if entity.Deleted {
			continue
		}
		effective[entity.EntityType+"/"+entity.ID] = entity
	}

	actions := make([]models.OfflineAction, len(pending))
	copy(actions, pending)
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].CreatedAt.Equal(actions[j].CreatedAt) {
			return actions[i].ID < actions[j].ID
		}
		return actions[i].CreatedAt.Before(actions[j].CreatedAt)
	})

	for _, action := range actions {
		id := action.EntityID
		if id == "" {
			// Provisional identity until the server assigns one.
			id = action.ID
		}
		key := action.EntityType + "/" + id

		switch action.Kind {
		case models.KindCreate:
			effective[key] = models.ServerEntity{
				ID:         id,
				EntityType: action.EntityType,
				Payload:    action.Payload,
				UpdatedAt:  action.CreatedAt,
			}
		case models.KindUpdate:
			current, ok := effective[key]
			if !ok {
				// Update for an entity we have no snapshot of yet; treat the
				// payload as the full local intent.
				current = models.ServerEntity{ID: id, EntityType: action.EntityType}
			}
			current.Payload = mergePayload(current.Payload, action.Payload)
			current.UpdatedAt = action.CreatedAt
			effective[key] = current
		case models.KindDelete:
			delete(effective, key)
		}
	}

	result := make([]models.ServerEntity, 0, len(effective))
	for _, entity := range effective {
		result = append(result, entity)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].EntityType == result[j].EntityType {
			return result[i].ID < result[j].ID
		}
		return result[i].EntityType < result[j].EntityType
	})

	return result
}

// mergePayload shallow-merges the top-level keys of patch over base. If either
// side is not a JSON object the patch wins outright.
func mergePayload(base, patch json.RawMessage) json.RawMessage {
	if len(base) == 0 {
		return patch
	}
	if len(patch) == 0 {
		return base
	}

	var baseMap, patchMap map[string]json.RawMessage
	if err := json.Unmarshal(base, &baseMap); err != nil {
		return patch
	}
	if err := json.Unmarshal(patch, &patchMap); err != nil {
		return patch
	}

	for key, value := range patchMap {
		baseMap[key] = value
	}

	merged, err := json.Marshal(baseMap)
	if err != nil {
		return patch
	}
	return merged
}
