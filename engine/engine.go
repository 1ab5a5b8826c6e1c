// ABOUTME: Sync orchestrator state machine coordinating drains, retries, and reconciliation
// ABOUTME: Owns the action log and exposes Enqueue plus derived SyncStatus to the UI layer
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harperreed/relay/cache"
	"github.com/harperreed/relay/db"
	"github.com/harperreed/relay/gateway"
	"github.com/harperreed/relay/models"
	"github.com/harperreed/relay/netmon"
	"github.com/harperreed/relay/snapshot"
)

// State names for the orchestrator.
const (
	StateIdle     = "idle"
	StateDraining = "draining"
	StateBackoff  = "backoff"
)

// Monitor is the connectivity surface the engine depends on; *netmon.Monitor
// satisfies it.
type Monitor interface {
	IsOnline() bool
	Subscribe() <-chan netmon.Event
}

// Engine coordinates draining the action log against the gateway. It is the
// sole owner of the log: the UI layer only calls Enqueue and reads Status.
type Engine struct {
	cfg     Config
	db      *sql.DB
	snaps   *snapshot.Store
	gw      gateway.Gateway
	creds   gateway.CredentialSource
	monitor Monitor

	// drainMu guarantees exactly one draining pass at a time. It is never
	// held across anything but the pass itself.
	drainMu sync.Mutex

	mu          sync.Mutex
	state       string
	netFailures int
	backoff     *backoffTracker

	trigger chan struct{}
}

// New creates an engine over an opened action log, snapshot store, gateway,
// credential source, and connectivity monitor.
func New(database *sql.DB, snaps *snapshot.Store, gw gateway.Gateway, creds gateway.CredentialSource, monitor Monitor, cfg Config) *Engine {
	return &Engine{
		cfg:     cfg,
		db:      database,
		snaps:   snaps,
		gw:      gw,
		creds:   creds,
		monitor: monitor,
		state:   StateIdle,
		backoff: newBackoffTracker(cfg.backoffBase(), cfg.backoffCap()),
		trigger: make(chan struct{}, 1),
	}
}

// Start launches the orchestrator loop. The loop exits when ctx is canceled
// or the monitor's event channel closes.
func (e *Engine) Start(ctx context.Context) {
	events := e.monitor.Subscribe()
	go e.run(ctx, events)
}

func (e *Engine) run(ctx context.Context, events <-chan netmon.Event) {
	for {
		// Arm a wake-up for the earliest backed-off group, if any.
		var timer *time.Timer
		var timerC <-chan time.Time
		e.mu.Lock()
		next := e.backoff.nextDue()
		e.mu.Unlock()
		if !next.IsZero() {
			wait := time.Until(next)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-events:
			if timer != nil {
				timer.Stop()
			}
			if !ok {
				return
			}
			if event.Online {
				// Reconnect cuts any backoff short.
				e.mu.Lock()
				e.backoff.reset()
				e.mu.Unlock()
				e.DrainOnce(ctx)
			} else {
				e.setState(StateIdle)
			}
		case <-e.trigger:
			if timer != nil {
				timer.Stop()
			}
			e.DrainOnce(ctx)
		case <-timerC:
			e.DrainOnce(ctx)
		}
	}
}

// Enqueue records a local mutation intent. It is the sole creation path for
// offline actions and never blocks a running drain; a new action simply
// extends the next pass's input.
func (e *Engine) Enqueue(ctx context.Context, kind, entityType, entityID string, payload json.RawMessage) (*models.OfflineAction, error) {
	if !models.ValidKind(kind) {
		return nil, fmt.Errorf("invalid action kind %q", kind)
	}
	if entityType == "" {
		return nil, fmt.Errorf("entity type is required")
	}
	if kind != models.KindCreate && entityID == "" {
		return nil, fmt.Errorf("%s requires an entity ID", kind)
	}

	action := &models.OfflineAction{
		ID:         ulid.Make().String(),
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
		State:      models.StatePending,
	}

	if err := db.AppendAction(e.db, action, e.cfg.MaxPending); err != nil {
		return nil, err
	}

	if e.monitor.IsOnline() {
		e.nudge()
	}

	return action, nil
}

// Refresh manually requests a drain, cutting any backoff short.
func (e *Engine) Refresh() {
	e.mu.Lock()
	e.backoff.reset()
	e.mu.Unlock()
	e.nudge()
}

func (e *Engine) nudge() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Status returns the derived sync status. It is computed from authoritative
// log state, never from counters kept on the side.
func (e *Engine) Status() (models.SyncStatus, error) {
	pending, err := db.CountPendingActions(e.db)
	if err != nil {
		return models.SyncStatus{}, err
	}
	failed, err := db.CountFailedActions(e.db)
	if err != nil {
		return models.SyncStatus{}, err
	}
	syncState, err := db.GetSyncState(e.db, db.ServiceBackend)
	if err != nil {
		return models.SyncStatus{}, err
	}

	e.mu.Lock()
	state := e.state
	degraded := e.netFailures >= e.cfg.degradedThreshold()
	e.mu.Unlock()

	status := models.SyncStatus{
		PendingCount: pending,
		FailedCount:  failed,
		IsOnline:     e.monitor.IsOnline(),
		IsSyncing:    state == StateDraining,
		Degraded:     degraded,
	}
	if syncState != nil {
		status.LastSyncAt = syncState.LastSyncTime
	}

	return status, nil
}

// State returns the orchestrator state name.
func (e *Engine) State() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Entities returns the effective entities of one type: the last server
// snapshot with pending local actions overlaid.
func (e *Engine) Entities(entityType string) ([]models.ServerEntity, error) {
	base, err := e.snaps.List(entityType)
	if err != nil {
		return nil, err
	}
	pending, err := db.ListPendingActions(e.db)
	if err != nil {
		return nil, err
	}

	var scoped []models.OfflineAction
	for _, action := range pending {
		if action.EntityType == entityType {
			scoped = append(scoped, action)
		}
	}

	return cache.Project(base, scoped), nil
}

// FailedActions returns actions rejected by the server, retained for review.
func (e *Engine) FailedActions() ([]models.OfflineAction, error) {
	return db.ListFailedActions(e.db)
}

// RetryAction moves a failed action back into the pending set.
func (e *Engine) RetryAction(id string) error {
	if err := db.RetryFailedAction(e.db, id); err != nil {
		return err
	}
	if e.monitor.IsOnline() {
		e.nudge()
	}
	return nil
}

// DiscardAction drops a failed action. This is the only way an action leaves
// the log without server acknowledgment.
func (e *Engine) DiscardAction(id string) error {
	return db.DiscardFailedAction(e.db, id)
}

func (e *Engine) setState(state string) {
	e.mu.Lock()
	if e.state != state {
		log.Printf("sync: %s -> %s", e.state, state)
		e.state = state
	}
	e.mu.Unlock()
}

// drainResult accumulates pass-wide outcomes across group goroutines.
type drainResult struct {
	refreshOnce   sync.Once
	refreshFailed atomic.Bool
	retriable     atomic.Bool
	sawNetwork    atomic.Bool
}

// DrainOnce runs one draining pass synchronously. Exactly one pass runs at a
// time; concurrent callers queue on the mutex and then drain whatever is
// pending when their turn comes.
func (e *Engine) DrainOnce(ctx context.Context) {
	if !e.monitor.IsOnline() || ctx.Err() != nil {
		e.setState(StateIdle)
		return
	}

	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	actions, err := db.ListPendingActions(e.db)
	if err != nil {
		log.Printf("sync: failed to list pending actions: %v", err)
		return
	}

	e.setState(StateDraining)
	_ = db.UpdateSyncStatus(e.db, db.ServiceBackend, db.SyncStatusSyncing, nil)

	// A group whose earlier action failed waits for explicit review; later
	// actions assumed the earlier one succeeded.
	blocked := make(map[string]bool)
	failed, err := db.ListFailedActions(e.db)
	if err != nil {
		log.Printf("sync: failed to list failed actions: %v", err)
		return
	}
	for _, action := range failed {
		blocked[action.GroupKey()] = true
	}

	// Group pending actions per entity, oldest-first within each group, and
	// skip groups still backing off.
	groups := make(map[string][]models.OfflineAction)
	var order []string
	now := time.Now()
	e.mu.Lock()
	for _, action := range actions {
		key := action.GroupKey()
		if blocked[key] || !e.backoff.due(key, now) {
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], action)
	}
	e.mu.Unlock()

	// Distinct entity groups drain with bounded parallelism; within a group
	// submission is strictly sequential.
	result := &drainResult{}
	sem := make(chan struct{}, e.cfg.parallelism())
	var wg sync.WaitGroup
	for _, key := range order {
		wg.Add(1)
		sem <- struct{}{}
		go func(key string, group []models.OfflineAction) {
			defer wg.Done()
			defer func() { <-sem }()
			e.submitGroup(ctx, key, group, result)
		}(key, groups[key])
	}
	wg.Wait()

	e.mu.Lock()
	if result.sawNetwork.Load() {
		e.netFailures++
	} else {
		e.netFailures = 0
	}
	e.mu.Unlock()

	if !e.monitor.IsOnline() || ctx.Err() != nil {
		// Offline transition cancels further scheduling; whatever is left
		// stays pending for the next pass.
		e.setState(StateIdle)
		_ = db.UpdateSyncStatus(e.db, db.ServiceBackend, db.SyncStatusIdle, nil)
		return
	}

	if result.retriable.Load() {
		e.setState(StateBackoff)
		msg := "retriable failures remain"
		_ = db.UpdateSyncStatus(e.db, db.ServiceBackend, db.SyncStatusError, &msg)
		return
	}

	// All groups settled with no retriable failures: incorporate server-side
	// changes and advance the watermark.
	e.reconcile(ctx)
	e.setState(StateIdle)
}

// submitGroup replays one entity group in createdAt order.
func (e *Engine) submitGroup(ctx context.Context, key string, group []models.OfflineAction, result *drainResult) {
	for _, action := range group {
		if ctx.Err() != nil || !e.monitor.IsOnline() {
			return
		}

		if err := db.MarkActionState(e.db, action.ID, models.StateInFlight, ""); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				continue
			}
			log.Printf("sync: failed to mark %s in flight: %v", action.ID, err)
			return
		}

		entity, err := e.applyWithRefresh(ctx, action, result)
		if err == nil {
			if markErr := db.MarkActionState(e.db, action.ID, models.StateAcknowledged, ""); markErr != nil && !errors.Is(markErr, db.ErrNotFound) {
				log.Printf("sync: failed to acknowledge %s: %v", action.ID, markErr)
			}
			if entity != nil {
				if snapErr := e.snaps.Put(*entity); snapErr != nil {
					log.Printf("sync: failed to refresh snapshot for %s: %v", entity.ID, snapErr)
				}
			}
			e.mu.Lock()
			e.backoff.success(key)
			e.mu.Unlock()
			continue
		}

		switch gateway.KindOf(err) {
		case gateway.ErrorConflict, gateway.ErrorValidation:
			// Not retriable without intervention. Later actions in the group
			// halt; they assumed this one succeeded.
			if markErr := db.MarkActionState(e.db, action.ID, models.StateFailed, err.Error()); markErr != nil && !errors.Is(markErr, db.ErrNotFound) {
				log.Printf("sync: failed to mark %s failed: %v", action.ID, markErr)
			}
			log.Printf("sync: action %s rejected: %v", action.ID, err)
			return
		default:
			// Network, or unauthorized after the refresh attempt: the action
			// stays pending and the group retries with backoff.
			if markErr := db.MarkActionState(e.db, action.ID, models.StatePending, err.Error()); markErr != nil && !errors.Is(markErr, db.ErrNotFound) {
				log.Printf("sync: failed to mark %s pending: %v", action.ID, markErr)
			}
			e.mu.Lock()
			e.backoff.failure(key, time.Now())
			e.mu.Unlock()
			result.retriable.Store(true)
			if gateway.KindOf(err) == gateway.ErrorNetwork {
				result.sawNetwork.Store(true)
			}
			return
		}
	}
}

// applyWithRefresh submits one action. On an unauthorized rejection the
// credential is refreshed at most once per pass and the action resubmitted
// under the same idempotency key.
func (e *Engine) applyWithRefresh(ctx context.Context, action models.OfflineAction, result *drainResult) (*models.ServerEntity, error) {
	entity, err := e.gw.Apply(ctx, action)
	if err == nil || gateway.KindOf(err) != gateway.ErrorUnauthorized {
		return entity, err
	}

	result.refreshOnce.Do(func() {
		log.Printf("sync: credential rejected, requesting refresh")
		if refreshErr := e.creds.Refresh(ctx); refreshErr != nil {
			log.Printf("sync: credential refresh failed: %v", refreshErr)
			result.refreshFailed.Store(true)
		}
	})
	if result.refreshFailed.Load() {
		return nil, err
	}

	return e.gw.Apply(ctx, action)
}

// reconcile pulls server-side changes since the watermark and folds them into
// the snapshot store. Entities with a pending local action are left alone:
// local intent wins until the action settles.
func (e *Engine) reconcile(ctx context.Context) {
	state, err := db.GetSyncState(e.db, db.ServiceBackend)
	if err != nil {
		log.Printf("sync: failed to read sync state: %v", err)
		return
	}
	var since time.Time
	if state != nil && state.Watermark != nil {
		since = *state.Watermark
	}

	changes, err := e.gw.Pull(ctx, since)
	if err != nil {
		// Drain already succeeded; the pull retries next pass.
		log.Printf("sync: pull failed: %v", err)
		msg := err.Error()
		_ = db.UpdateSyncStatus(e.db, db.ServiceBackend, db.SyncStatusError, &msg)
		return
	}

	pending, err := db.ListPendingActions(e.db)
	if err != nil {
		log.Printf("sync: failed to list pending actions: %v", err)
		return
	}
	localIntent := make(map[string]bool)
	for _, action := range pending {
		if action.EntityID != "" {
			localIntent[action.EntityType+"/"+action.EntityID] = true
		}
	}

	watermark := since
	for _, entity := range changes {
		if entity.UpdatedAt.After(watermark) {
			watermark = entity.UpdatedAt
		}
		if localIntent[entity.EntityType+"/"+entity.ID] {
			continue
		}
		// A change older than what we already hold (e.g. our own mutation
		// acknowledged moments ago) must not roll the snapshot back.
		existing, err := e.snaps.Get(entity.EntityType, entity.ID)
		if err != nil {
			log.Printf("sync: failed to read snapshot for %s: %v", entity.ID, err)
			continue
		}
		if existing != nil && !entity.UpdatedAt.After(existing.UpdatedAt) {
			continue
		}
		if err := e.snaps.Put(entity); err != nil {
			log.Printf("sync: failed to store snapshot for %s: %v", entity.ID, err)
		}
	}

	if watermark.IsZero() {
		watermark = time.Now().UTC()
	}
	if err := db.UpdateSyncWatermark(e.db, db.ServiceBackend, watermark); err != nil {
		log.Printf("sync: failed to advance watermark: %v", err)
	}
}
