// ABOUTME: Sync error taxonomy for gateway failures
// ABOUTME: Classifies outcomes into network, conflict, validation, and unauthorized
package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a gateway failure for the orchestrator.
type ErrorKind string

const (
	// ErrorNetwork covers transport failures, timeouts, and server-side
	// errors. Retriable with backoff.
	ErrorNetwork ErrorKind = "network"

	// ErrorConflict means the entity changed incompatibly on the server. Not
	// retriable without intervention.
	ErrorConflict ErrorKind = "conflict"

	// ErrorValidation means the server rejected the payload. Not retriable.
	ErrorValidation ErrorKind = "validation"

	// ErrorUnauthorized means the credential expired. Retriable once after a
	// refresh.
	ErrorUnauthorized ErrorKind = "unauthorized"
)

// SyncError is a classified gateway failure.
type SyncError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SyncError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the orchestrator may retry the action
// automatically with backoff.
func (e *SyncError) Retriable() bool {
	return e.Kind == ErrorNetwork
}

// KindOf extracts the classification from an error chain. Unclassified errors
// count as network failures so nothing is dropped on an unexpected error.
func KindOf(err error) ErrorKind {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}
	return ErrorNetwork
}
