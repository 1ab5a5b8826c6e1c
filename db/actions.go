// ABOUTME: Durable action log operations over SQLite
// ABOUTME: Append, list, and atomic per-action state transitions for offline mutations
package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/harperreed/relay/models"
)

// DefaultMaxPending bounds the action log; AppendAction rejects past it.
const DefaultMaxPending = 1000

var (
	// ErrCapacityExceeded is returned by AppendAction when the pending count is
	// at the configured maximum. The enqueue is rejected, never silently dropped.
	ErrCapacityExceeded = errors.New("action log capacity exceeded")

	// ErrNotFound is returned by MarkActionState when the action has already
	// been removed. Callers treat it as a non-fatal no-op.
	ErrNotFound = errors.New("action not found")
)

// AppendAction durably persists a new action before returning. maxPending <= 0
// means DefaultMaxPending.
func AppendAction(db *sql.DB, action *models.OfflineAction, maxPending int) error {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM actions WHERE state IN ('pending', 'in_flight')
	`).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count pending actions: %w", err)
	}
	if count >= maxPending {
		return ErrCapacityExceeded
	}

	var entityID sql.NullString
	if action.EntityID != "" {
		entityID = sql.NullString{String: action.EntityID, Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO actions (id, kind, entity_type, entity_id, payload, created_at, attempt, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, action.ID, action.Kind, action.EntityType, entityID, string(action.Payload),
		action.CreatedAt, action.Attempt, action.State)
	if err != nil {
		return fmt.Errorf("failed to append action: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit append: %w", err)
	}

	return nil
}

// ListPendingActions returns all pending and in-flight actions, globally
// oldest-first. Failed actions are excluded; they wait for explicit review.
func ListPendingActions(db *sql.DB) ([]models.OfflineAction, error) {
	return listActions(db, `state IN ('pending', 'in_flight')`)
}

// ListFailedActions returns actions rejected by the server and retained for
// review, oldest-first.
func ListFailedActions(db *sql.DB) ([]models.OfflineAction, error) {
	return listActions(db, `state = 'failed'`)
}

func listActions(db *sql.DB, where string) ([]models.OfflineAction, error) {
	rows, err := db.Query(`
		SELECT id, kind, entity_type, entity_id, payload, created_at, attempt, last_error, state
		FROM actions
		WHERE ` + where + `
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var actions []models.OfflineAction
	for rows.Next() {
		var action models.OfflineAction
		var entityID sql.NullString
		var payload sql.NullString
		var lastError sql.NullString

		err := rows.Scan(
			&action.ID,
			&action.Kind,
			&action.EntityType,
			&entityID,
			&payload,
			&action.CreatedAt,
			&action.Attempt,
			&lastError,
			&action.State,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		if entityID.Valid {
			action.EntityID = entityID.String
		}
		if payload.Valid {
			action.Payload = []byte(payload.String)
		}
		if lastError.Valid {
			action.LastError = lastError.String
		}

		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}

// MarkActionState atomically transitions one action. A transition to
// acknowledged purges the row. Returns ErrNotFound if the action has already
// been removed.
func MarkActionState(db *sql.DB, id, state string, errMsg string) error {
	var result sql.Result
	var err error

	switch state {
	case models.StateAcknowledged:
		result, err = db.Exec(`DELETE FROM actions WHERE id = ?`, id)
	case models.StatePending:
		// Back to pending counts as a new attempt.
		var lastError sql.NullString
		if errMsg != "" {
			lastError = sql.NullString{String: errMsg, Valid: true}
		}
		result, err = db.Exec(`
			UPDATE actions SET state = ?, attempt = attempt + 1, last_error = ?
			WHERE id = ?
		`, state, lastError, id)
	default:
		var lastError sql.NullString
		if errMsg != "" {
			lastError = sql.NullString{String: errMsg, Valid: true}
		}
		result, err = db.Exec(`
			UPDATE actions SET state = ?, last_error = ?
			WHERE id = ?
		`, state, lastError, id)
	}

	if err != nil {
		return fmt.Errorf("failed to mark action %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check mark result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// ResetInFlightActions moves in-flight actions back to pending. Called at open
// so a crash mid-drain leaves nothing stranded.
func ResetInFlightActions(db *sql.DB) error {
	_, err := db.Exec(`UPDATE actions SET state = 'pending' WHERE state = 'in_flight'`)
	if err != nil {
		return fmt.Errorf("failed to reset in-flight actions: %w", err)
	}
	return nil
}

// RetryFailedAction moves a failed action back to pending for another drain.
func RetryFailedAction(db *sql.DB, id string) error {
	result, err := db.Exec(`
		UPDATE actions SET state = 'pending', last_error = NULL
		WHERE id = ? AND state = 'failed'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to retry action %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check retry result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// DiscardFailedAction removes a failed action. This is the only path that
// discards an action without server acknowledgment.
func DiscardFailedAction(db *sql.DB, id string) error {
	result, err := db.Exec(`DELETE FROM actions WHERE id = ? AND state = 'failed'`, id)
	if err != nil {
		return fmt.Errorf("failed to discard action %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check discard result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// CountPendingActions returns the authoritative pending count (pending plus
// in-flight) used for status display.
func CountPendingActions(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM actions WHERE state IN ('pending', 'in_flight')
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending actions: %w", err)
	}
	return count, nil
}

// CountFailedActions returns the number of actions awaiting review.
func CountFailedActions(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM actions WHERE state = 'failed'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed actions: %w", err)
	}
	return count, nil
}
