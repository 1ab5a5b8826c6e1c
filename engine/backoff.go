// ABOUTME: Exponential backoff with full jitter for entity-group retries
// ABOUTME: Tracks per-group retry attempts and next-due times
package engine

import (
	"math/rand"
	"time"
)

// backoffDelay returns a full-jitter delay for the given attempt: uniform in
// [0, min(cap, base*2^(attempt-1))]. Attempt 1 is the first retry.
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	ceiling := base
	for i := 1; i < attempt; i++ {
		ceiling *= 2
		if ceiling >= cap {
			ceiling = cap
			break
		}
	}
	if ceiling > cap {
		ceiling = cap
	}

	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

// groupBackoff tracks retry scheduling for one entity group.
type groupBackoff struct {
	attempt int
	dueAt   time.Time
}

// backoffTracker holds per-group backoff state. Not safe for concurrent use;
// the engine guards it with its own mutex.
type backoffTracker struct {
	base   time.Duration
	cap    time.Duration
	groups map[string]*groupBackoff
}

func newBackoffTracker(base, cap time.Duration) *backoffTracker {
	return &backoffTracker{
		base:   base,
		cap:    cap,
		groups: make(map[string]*groupBackoff),
	}
}

// failure records a retriable failure for a group and schedules its next
// attempt.
func (t *backoffTracker) failure(group string, now time.Time) {
	state := t.groups[group]
	if state == nil {
		state = &groupBackoff{}
		t.groups[group] = state
	}
	state.attempt++
	state.dueAt = now.Add(backoffDelay(state.attempt, t.base, t.cap))
}

// success clears backoff state for a group.
func (t *backoffTracker) success(group string) {
	delete(t.groups, group)
}

// due reports whether a group may be drained now.
func (t *backoffTracker) due(group string, now time.Time) bool {
	state := t.groups[group]
	return state == nil || !now.Before(state.dueAt)
}

// nextDue returns the earliest time any group becomes due, or zero when no
// group is waiting.
func (t *backoffTracker) nextDue() time.Time {
	var next time.Time
	for _, state := range t.groups {
		if next.IsZero() || state.dueAt.Before(next) {
			next = state.dueAt
		}
	}
	return next
}

// reset makes every waiting group immediately due (manual refresh or an
// online transition cuts backoff short) without losing attempt counts.
func (t *backoffTracker) reset() {
	for _, state := range t.groups {
		state.dueAt = time.Time{}
	}
}
