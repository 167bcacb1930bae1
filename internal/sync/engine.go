package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/remote"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rohanthewiz/logger"
)

// LocalStore is the subset of *canvass.Store the engine reads and writes.
type LocalStore interface {
	ListLeads(filter canvass.LeadFilter) ([]canvass.Lead, error)
	ListAllCheckIns() ([]canvass.FollowUpCheckIn, error)
	ListAppointments(filter canvass.AppointmentFilter) ([]canvass.Appointment, error)
	UpsertAppointments(appts []canvass.Appointment) error
	ClearAppointments() error
	GetBoolPreference(key string) (bool, error)
	SetPreference(key, value string) error
	QueuePendingDelete(collection, id string) error
	PendingDeletes() ([]canvass.PendingDelete, error)
	ClearPendingDelete(collection, id string) error
}

// Status is the engine's batched-sync state.
type Status int

const (
	StatusIdle Status = iota
	StatusSyncing
	StatusCompleted
	StatusFailed
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSyncing:
		return "syncing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Options configures an Engine.
type Options struct {
	// Interval between automatic batched syncs. Zero disables the timer.
	Interval time.Duration
	// Registerer receives the engine's metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	Debug      *canvass.DebugLogger
}

// SyncOptions narrows one batched sync.
type SyncOptions struct {
	// ExcludeAppointments skips pushing appointments. Sign-out uses it because
	// local appointments are cleared before the final sync.
	ExcludeAppointments bool
}

// StatusSnapshot is a point-in-time view of engine state.
type StatusSnapshot struct {
	Status    Status        `json:"-"`
	State     string        `json:"status"`
	Paused    bool          `json:"paused"`
	Listener  string        `json:"listener"`
	LastSync  time.Time     `json:"last_sync,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	LastRun   *PushReport   `json:"last_run,omitempty"`
	Pending   int           `json:"pending_deletes"`
	Interval  time.Duration `json:"interval"`
}

// Engine owns batched push windows and the appointment listener.
type Engine struct {
	store    LocalStore
	remote   remote.DocumentStore
	session  SessionFunc
	pusher   *Pusher
	listener *Listener
	events   *Bus
	metrics  *Metrics
	debug    *canvass.DebugLogger
	interval time.Duration

	// runMu admits one batched sync at a time.
	runMu gosync.Mutex
	// applyMu serializes writes to the local appointment set.
	applyMu gosync.Mutex

	mu        gosync.RWMutex
	status    Status
	paused    bool
	lastSync  time.Time
	lastError string
	lastRun   *PushReport

	stop chan struct{}
	wg   gosync.WaitGroup
	once gosync.Once
}

// NewEngine wires an engine. session is consulted on every operation.
func NewEngine(store LocalStore, rs remote.DocumentStore, session SessionFunc, opts Options) *Engine {
	e := &Engine{
		store:    store,
		remote:   rs,
		session:  session,
		events:   NewBus(),
		metrics:  NewMetrics(opts.Registerer),
		debug:    opts.Debug,
		interval: opts.Interval,
		stop:     make(chan struct{}),
	}
	e.pusher = NewPusher(rs, session, e.metrics, opts.Debug, e.recordError)
	e.listener = NewListener(rs, canvass.CollectionAppointments, e.applyAppointments)
	e.listener.OnStateChange(func(s ListenerState) {
		e.metrics.listenerState.Set(float64(s))
		e.events.Publish(Event{Kind: EventListener, Collection: canvass.CollectionAppointments, Message: s.String()})
	})
	return e
}

// Events returns the engine's event bus.
func (e *Engine) Events() *Bus {
	return e.events
}

// Pusher exposes the push path for single-entity mirroring.
func (e *Engine) Pusher() *Pusher {
	return e.pusher
}

// Start runs the periodic sync timer until Close.
func (e *Engine) Start(ctx context.Context) {
	if e.interval <= 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if e.session() == "" || e.IsPaused() {
					continue
				}
				if _, err := e.SyncAll(ctx, SyncOptions{}); err != nil && !errors.Is(err, canvass.ErrSyncInProgress) {
					logger.LogErr(err, "scheduled sync failed")
				}
			}
		}
	}()
}

// Close stops the timer, waits for background syncs and detaches the listener.
func (e *Engine) Close() {
	e.once.Do(func() {
		close(e.stop)
	})
	e.wg.Wait()
	e.listener.Stop()
}

// SyncAll flushes queued deletions and pushes every local entity. The
// listener is suspended for the duration so the push does not echo back as
// snapshots. With no session it returns an empty report.
func (e *Engine) SyncAll(ctx context.Context, opts SyncOptions) (*PushReport, error) {
	if e.IsPaused() {
		return nil, canvass.ErrSyncPaused
	}
	uid := e.session()
	if uid == "" {
		return &PushReport{NoSession: true}, nil
	}
	if !e.runMu.TryLock() {
		return nil, canvass.ErrSyncInProgress
	}
	defer e.runMu.Unlock()

	runID := ulid.Make().String()
	start := time.Now()
	e.setStatus(StatusSyncing)
	e.events.Publish(Event{ID: runID, Kind: EventSyncStarted})
	e.debug.LogSync("start", runID)

	e.listener.Suspend()
	defer func() {
		if err := e.listener.Resume(context.WithoutCancel(ctx)); err != nil {
			logger.LogErr(err, "listener resume failed")
		}
	}()

	report, err := e.run(ctx, opts)
	report.RunID = runID

	e.metrics.runDuration.Observe(time.Since(start).Seconds())
	e.metrics.runs.WithLabelValues(resultLabel(err)).Inc()

	e.mu.Lock()
	e.lastRun = report
	if err != nil {
		e.status = StatusFailed
		e.lastError = canvass.UserMessage(err)
	} else {
		e.status = StatusCompleted
		e.lastError = ""
		e.lastSync = time.Now().UTC()
	}
	if e.paused {
		e.status = StatusPaused
	}
	lastSync := e.lastSync
	e.mu.Unlock()

	if err != nil {
		e.events.Publish(Event{ID: ulid.Make().String(), Kind: EventSyncFailed, Count: report.Pushed, Message: err.Error()})
		return report, err
	}
	if serr := e.store.SetPreference(canvass.PrefLastSync, lastSync.Format(time.RFC3339)); serr != nil {
		logger.LogErr(serr, "record last sync failed")
	}
	e.events.Publish(Event{ID: ulid.Make().String(), Kind: EventSyncCompleted, Count: report.Pushed})
	e.debug.LogSync("done", fmt.Sprintf("%s: pushed=%d deleted=%d", runID, report.Pushed, report.Deleted))
	return report, nil
}

func (e *Engine) run(ctx context.Context, opts SyncOptions) (*PushReport, error) {
	var errs []error

	deleted, err := e.flushPendingDeletes(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	entities, err := e.collect(opts)
	if err != nil {
		return &PushReport{Deleted: deleted}, errors.Join(append(errs, err)...)
	}

	report, err := e.pusher.PushAll(ctx, entities)
	report.Deleted = deleted
	if err != nil {
		errs = append(errs, err)
	}
	return report, errors.Join(errs...)
}

func (e *Engine) collect(opts SyncOptions) ([]Entity, error) {
	leads, err := e.store.ListLeads(canvass.LeadFilter{})
	if err != nil {
		return nil, canvass.E(canvass.KindData, "collect leads", err)
	}
	checkIns, err := e.store.ListAllCheckIns()
	if err != nil {
		return nil, canvass.E(canvass.KindData, "collect check-ins", err)
	}

	entities := make([]Entity, 0, len(leads)+len(checkIns))
	for _, l := range leads {
		entities = append(entities, LeadEntity(l))
	}
	for _, c := range checkIns {
		entities = append(entities, CheckInEntity(c))
	}

	if !opts.ExcludeAppointments {
		appts, err := e.store.ListAppointments(canvass.AppointmentFilter{})
		if err != nil {
			return nil, canvass.E(canvass.KindData, "collect appointments", err)
		}
		for _, a := range appts {
			entities = append(entities, AppointmentEntity(a))
		}
	}
	return entities, nil
}

func (e *Engine) flushPendingDeletes(ctx context.Context) (int, error) {
	pending, err := e.store.PendingDeletes()
	if err != nil {
		return 0, canvass.E(canvass.KindData, "pending deletes", err)
	}
	var (
		n    int
		errs []error
	)
	for _, pd := range pending {
		if err := e.pusher.Delete(ctx, pd.Collection, pd.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := e.store.ClearPendingDelete(pd.Collection, pd.ID); err != nil {
			errs = append(errs, canvass.E(canvass.KindData, "clear pending delete", err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// TriggerSync starts a batched sync in the background. Errors are logged.
func (e *Engine) TriggerSync(ctx context.Context, opts SyncOptions) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_, err := e.SyncAll(context.WithoutCancel(ctx), opts)
		switch {
		case err == nil:
		case errors.Is(err, canvass.ErrSyncInProgress), errors.Is(err, canvass.ErrSyncPaused):
			logger.Debug("triggered sync skipped", "reason", err.Error())
		default:
			logger.LogErr(err, "triggered sync failed")
		}
	}()
}

// IsSyncing reports whether a batched sync is in flight.
func (e *Engine) IsSyncing() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status == StatusSyncing
}

// Pause blocks future batched syncs. An in-flight sync is not cancelled.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	if e.status != StatusSyncing {
		e.status = StatusPaused
	}
	e.mu.Unlock()
	e.events.Publish(Event{Kind: EventSyncPaused})
}

// Unpause allows batched syncs again.
func (e *Engine) Unpause() {
	e.mu.Lock()
	e.paused = false
	if e.status == StatusPaused {
		e.status = StatusIdle
	}
	e.mu.Unlock()
}

// IsPaused reports whether syncs are paused.
func (e *Engine) IsPaused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// Reset returns the engine to idle and forgets the last run. Used at sign-out.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.status = StatusIdle
	e.paused = false
	e.lastError = ""
	e.lastRun = nil
	e.mu.Unlock()
}

// Snapshot returns the current engine state.
func (e *Engine) Snapshot() StatusSnapshot {
	pending := 0
	if pds, err := e.store.PendingDeletes(); err == nil {
		pending = len(pds)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return StatusSnapshot{
		Status:    e.status,
		State:     e.status.String(),
		Paused:    e.paused,
		Listener:  e.listener.State().String(),
		LastSync:  e.lastSync,
		LastError: e.lastError,
		LastRun:   e.lastRun,
		Pending:   pending,
		Interval:  e.interval,
	}
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Engine) recordError(err error) {
	e.mu.Lock()
	e.lastError = canvass.UserMessage(err)
	e.mu.Unlock()
}

// StartListening attaches the appointment listener for the current session.
// With no session it does nothing.
func (e *Engine) StartListening(ctx context.Context) error {
	uid := e.session()
	if uid == "" {
		return nil
	}
	return e.listener.Start(ctx, uid)
}

// StopListening detaches the listener.
func (e *Engine) StopListening() {
	e.listener.Stop()
}

// SuspendListening pauses the listener if it is listening.
func (e *Engine) SuspendListening() {
	e.listener.Suspend()
}

// ResumeListening reattaches a suspended listener.
func (e *Engine) ResumeListening(ctx context.Context) error {
	return e.listener.Resume(ctx)
}

// ListenerState returns the appointment listener state.
func (e *Engine) ListenerState() ListenerState {
	return e.listener.State()
}

// ClearLocalAppointments empties the local appointment set. It waits for any
// snapshot being applied.
func (e *Engine) ClearLocalAppointments() error {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	return e.store.ClearAppointments()
}

// applyAppointments merges a snapshot into the local appointment set.
func (e *Engine) applyAppointments(snap remote.Snapshot) {
	if cleared, err := e.store.GetBoolPreference(canvass.PrefCleared); err == nil && cleared {
		logger.Debug("snapshot ignored after local clear", "collection", snap.Collection)
		return
	}

	skip := e.pendingDeleteIDs(canvass.CollectionAppointments)
	incoming := make([]canvass.Appointment, 0, len(snap.Documents))
	for id, doc := range snap.Documents {
		a, err := DecodeAppointment(id, doc)
		if err != nil {
			logger.LogErr(err, "skipping undecodable appointment", "id", id)
			e.metrics.merges.WithLabelValues(canvass.CollectionAppointments, "decode_error").Inc()
			continue
		}
		if skip[a.ID.String()] {
			continue
		}
		incoming = append(incoming, a)
	}
	if len(incoming) == 0 {
		e.metrics.merges.WithLabelValues(canvass.CollectionAppointments, "empty").Inc()
		return
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	local, err := e.store.ListAppointments(canvass.AppointmentFilter{})
	if err != nil {
		logger.LogErr(err, "merge: list local appointments failed")
		return
	}
	res := Merge(local, incoming,
		func(a canvass.Appointment) uuid.UUID { return a.ID },
		func(a, b canvass.Appointment) bool { return a.Equal(b) },
	)
	// Only added and updated rows are written; rows saved locally since the
	// list above stay as they are.
	if res.Changed() {
		if err := e.store.UpsertAppointments(res.Changes); err != nil {
			logger.LogErr(err, "merge: persist appointments failed")
			e.recordError(canvass.E(canvass.KindData, "merge", err))
			return
		}
	}

	outcome := "unchanged"
	if res.Changed() {
		outcome = "applied"
	}
	e.metrics.merges.WithLabelValues(canvass.CollectionAppointments, outcome).Inc()
	e.events.Publish(Event{
		Kind:       EventMergeCompleted,
		Collection: canvass.CollectionAppointments,
		Count:      len(res.Items),
		Added:      res.Added,
		Updated:    res.Updated,
	})
}

func (e *Engine) pendingDeleteIDs(collection string) map[string]bool {
	pds, err := e.store.PendingDeletes()
	if err != nil {
		return nil
	}
	ids := make(map[string]bool)
	for _, pd := range pds {
		if pd.Collection == collection {
			ids[pd.ID] = true
		}
	}
	return ids
}

// DeleteEntity removes the remote mirror of a locally deleted entity. When
// the remote call fails the deletion is queued and retried by the next
// batched sync, and the queued ID is kept out of listener merges.
func (e *Engine) DeleteEntity(ctx context.Context, collection, id string) error {
	if e.session() == "" {
		return nil
	}
	err := e.pusher.Delete(ctx, collection, id)
	if err == nil {
		return nil
	}
	logger.LogErr(err, "remote delete failed, queued for next sync", "collection", collection, "id", id)
	e.recordError(err)
	if qerr := e.store.QueuePendingDelete(collection, id); qerr != nil {
		return canvass.E(canvass.KindData, "queue delete", qerr)
	}
	return nil
}
