package sync

import (
	gosync "sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventKind identifies an engine event.
type EventKind string

const (
	EventSyncStarted    EventKind = "sync_started"
	EventSyncCompleted  EventKind = "sync_completed"
	EventSyncFailed     EventKind = "sync_failed"
	EventSyncPaused     EventKind = "sync_paused"
	EventMergeCompleted EventKind = "merge_completed"
	EventListener       EventKind = "listener_state"
)

// Event is published on the engine's bus. ID is a ULID so events sort by time.
type Event struct {
	ID         string
	Kind       EventKind
	Time       time.Time
	Collection string
	// Count is the number of items pushed or merged.
	Count   int
	Added   int
	Updated int
	Message string
}

// Bus fans events out to subscribers. Publishing never blocks; a subscriber
// whose buffer is full misses events.
type Bus struct {
	mu     gosync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel with the given buffer and a cancel func.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()

	var once gosync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish stamps ev with an ID and time and delivers it.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
