package sync

import (
	"context"
	gosync "sync"

	"github.com/hyperengineering/canvass/internal/remote"
	"github.com/rohanthewiz/logger"
)

// ListenerState is the lifecycle state of a collection listener.
type ListenerState int

const (
	Detached ListenerState = iota
	Listening
	Suspended
)

func (s ListenerState) String() string {
	switch s {
	case Detached:
		return "detached"
	case Listening:
		return "listening"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Listener keeps one remote collection subscription for the signed-in user
// and hands each snapshot to apply.
//
// Transitions:
//
//	Detached  --Start-->   Listening
//	Listening --Start-->   Listening (no-op)
//	Listening --Suspend--> Suspended
//	Suspended --Resume-->  Listening
//	any       --Stop-->    Detached
//
// Suspend and Resume are no-ops from other states, so a listener that was
// not running before a bulk push stays detached afterwards.
//
// The mutex is never held across Subscribe or Unsubscribe: stores may deliver
// the first snapshot inside Subscribe, and Unsubscribe may wait for an
// in-flight delivery. Each attach gets a generation number and deliveries
// from a stale generation are dropped.
type Listener struct {
	remote     remote.DocumentStore
	collection string
	apply      func(remote.Snapshot)
	onState    func(ListenerState)

	mu    gosync.Mutex
	state ListenerState
	gen   uint64
	uid   string
	sub   remote.Subscription

	deliverMu gosync.Mutex
}

// NewListener creates a detached listener for collection.
func NewListener(store remote.DocumentStore, collection string, apply func(remote.Snapshot)) *Listener {
	return &Listener{remote: store, collection: collection, apply: apply}
}

// OnStateChange registers a callback run after every transition.
func (l *Listener) OnStateChange(fn func(ListenerState)) {
	l.mu.Lock()
	l.onState = fn
	l.mu.Unlock()
}

// State returns the current state.
func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start attaches to users/{uid}/{collection}. Calling Start while listening
// is a no-op. On subscribe failure the listener returns to Detached.
func (l *Listener) Start(ctx context.Context, uid string) error {
	l.mu.Lock()
	if l.state == Listening {
		l.mu.Unlock()
		return nil
	}
	l.state = Listening
	l.uid = uid
	l.gen++
	gen := l.gen
	l.mu.Unlock()

	l.notify(Listening)
	return l.attach(ctx, uid, gen)
}

// Suspend detaches the subscription and remembers that it was listening.
func (l *Listener) Suspend() {
	l.mu.Lock()
	if l.state != Listening {
		l.mu.Unlock()
		return
	}
	sub := l.sub
	l.sub = nil
	l.state = Suspended
	l.gen++
	l.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	l.drain()
	l.notify(Suspended)
}

// Resume reattaches a suspended listener.
func (l *Listener) Resume(ctx context.Context) error {
	l.mu.Lock()
	if l.state != Suspended {
		l.mu.Unlock()
		return nil
	}
	l.state = Listening
	l.gen++
	gen := l.gen
	uid := l.uid
	l.mu.Unlock()

	l.notify(Listening)
	return l.attach(ctx, uid, gen)
}

// Stop detaches from any state. No snapshot is applied after Stop returns.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.state == Detached {
		l.mu.Unlock()
		return
	}
	sub := l.sub
	l.sub = nil
	l.state = Detached
	l.uid = ""
	l.gen++
	l.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	l.drain()
	l.notify(Detached)
}

func (l *Listener) attach(ctx context.Context, uid string, gen uint64) error {
	path := remote.CollectionPath(uid, l.collection)
	sub, err := l.remote.Subscribe(ctx, path, func(snap remote.Snapshot) {
		l.deliver(gen, snap)
	})

	l.mu.Lock()
	if err != nil {
		reset := l.gen == gen
		if reset {
			l.state = Detached
		}
		l.mu.Unlock()
		logger.LogErr(err, "listener subscribe failed", "collection", path)
		if reset {
			l.notify(Detached)
		}
		return err
	}
	if l.gen != gen {
		// Stopped or suspended while subscribing.
		l.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	l.sub = sub
	l.mu.Unlock()
	logger.Debug("listener attached", "collection", path)
	return nil
}

func (l *Listener) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen == gen && l.state == Listening
}

func (l *Listener) deliver(gen uint64, snap remote.Snapshot) {
	if !l.current(gen) {
		return
	}
	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()
	if !l.current(gen) {
		return
	}
	l.apply(snap)
}

// drain waits out a delivery that passed its generation check before the
// state changed.
func (l *Listener) drain() {
	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()
}

func (l *Listener) notify(s ListenerState) {
	l.mu.Lock()
	fn := l.onState
	l.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
