package remote

import (
	"context"
	"maps"
	"strings"
	"sync"

	"github.com/hyperengineering/canvass"
)

// Hook intercepts MemoryStore operations. A non-nil error fails the call.
type Hook func(ctx context.Context, op, path string) error

// MemoryStore is an in-process DocumentStore. Subscribers are called
// synchronously after each change, outside the store lock.
type MemoryStore struct {
	mu     sync.Mutex
	colls  map[string]map[string]Document // collection path -> id -> doc
	subs   map[string]map[int]SnapshotFunc
	nextID int
	hook   Hook
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		colls: make(map[string]map[string]Document),
		subs:  make(map[string]map[int]SnapshotFunc),
	}
}

// SetHook installs fn to run before every operation. Pass nil to clear.
func (m *MemoryStore) SetHook(fn Hook) {
	m.mu.Lock()
	m.hook = fn
	m.mu.Unlock()
}

func (m *MemoryStore) runHook(ctx context.Context, op, path string) error {
	m.mu.Lock()
	hook := m.hook
	m.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(ctx, op, path)
}

// Set implements DocumentStore.
func (m *MemoryStore) Set(ctx context.Context, path string, doc Document) error {
	uid, coll, id, err := ParseDocumentPath(path)
	if err != nil {
		return err
	}
	if err := m.runHook(ctx, "set", path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return canvass.E(canvass.KindNetwork, "set", err)
	}

	cp := CollectionPath(uid, coll)
	m.mu.Lock()
	c, ok := m.colls[cp]
	if !ok {
		c = make(map[string]Document)
		m.colls[cp] = c
	}
	c[id] = doc.Clone()
	snap, fns := m.snapshotLocked(cp)
	m.mu.Unlock()

	notify(snap, fns)
	return nil
}

// Get implements DocumentStore.
func (m *MemoryStore) Get(ctx context.Context, path string) (Document, error) {
	uid, coll, id, err := ParseDocumentPath(path)
	if err != nil {
		return nil, err
	}
	if err := m.runHook(ctx, "get", path); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.colls[CollectionPath(uid, coll)][id]
	if !ok {
		return nil, canvass.ErrNotFound
	}
	return doc.Clone(), nil
}

// Delete implements DocumentStore.
func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	uid, coll, id, err := ParseDocumentPath(path)
	if err != nil {
		return err
	}
	if err := m.runHook(ctx, "delete", path); err != nil {
		return err
	}

	cp := CollectionPath(uid, coll)
	m.mu.Lock()
	if _, ok := m.colls[cp][id]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.colls[cp], id)
	snap, fns := m.snapshotLocked(cp)
	m.mu.Unlock()

	notify(snap, fns)
	return nil
}

// List implements DocumentStore.
func (m *MemoryStore) List(ctx context.Context, collectionPath string) (map[string]Document, error) {
	if _, _, err := ParseCollectionPath(collectionPath); err != nil {
		return nil, err
	}
	if err := m.runHook(ctx, "list", collectionPath); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneDocs(m.colls[collectionPath]), nil
}

// Subscribe implements DocumentStore. The initial snapshot is delivered
// before Subscribe returns.
func (m *MemoryStore) Subscribe(ctx context.Context, collectionPath string, fn SnapshotFunc) (Subscription, error) {
	if _, _, err := ParseCollectionPath(collectionPath); err != nil {
		return nil, err
	}
	if err := m.runHook(ctx, "subscribe", collectionPath); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	if m.subs[collectionPath] == nil {
		m.subs[collectionPath] = make(map[int]SnapshotFunc)
	}
	m.subs[collectionPath][id] = fn
	snap := Snapshot{Collection: collectionPath, Documents: cloneDocs(m.colls[collectionPath])}
	m.mu.Unlock()

	fn(snap)

	return &memorySubscription{store: m, path: collectionPath, id: id}, nil
}

// HasUserData implements DocumentStore.
func (m *MemoryStore) HasUserData(ctx context.Context, uid string) (bool, error) {
	if err := m.runHook(ctx, "has_user_data", UserPath(uid)); err != nil {
		return false, err
	}

	prefix := UserPath(uid) + "/"
	m.mu.Lock()
	defer m.mu.Unlock()
	for cp, docs := range m.colls {
		if len(docs) > 0 && strings.HasPrefix(cp, prefix) {
			return true, nil
		}
	}
	return false, nil
}

// DeleteUserData implements DocumentStore.
func (m *MemoryStore) DeleteUserData(ctx context.Context, uid string) error {
	if err := m.runHook(ctx, "delete_user_data", UserPath(uid)); err != nil {
		return err
	}

	prefix := UserPath(uid) + "/"
	type pending struct {
		snap Snapshot
		fns  []SnapshotFunc
	}
	var notices []pending

	m.mu.Lock()
	for cp := range m.colls {
		if strings.HasPrefix(cp, prefix) {
			delete(m.colls, cp)
			snap, fns := m.snapshotLocked(cp)
			notices = append(notices, pending{snap, fns})
		}
	}
	m.mu.Unlock()

	for _, n := range notices {
		notify(n.snap, n.fns)
	}
	return nil
}

// Count returns the number of documents in a collection.
func (m *MemoryStore) Count(collectionPath string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.colls[collectionPath])
}

func (m *MemoryStore) snapshotLocked(collectionPath string) (Snapshot, []SnapshotFunc) {
	subs := m.subs[collectionPath]
	if len(subs) == 0 {
		return Snapshot{}, nil
	}
	fns := make([]SnapshotFunc, 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	return Snapshot{Collection: collectionPath, Documents: cloneDocs(m.colls[collectionPath])}, fns
}

func notify(snap Snapshot, fns []SnapshotFunc) {
	for _, fn := range fns {
		fn(snap)
	}
}

func cloneDocs(in map[string]Document) map[string]Document {
	out := make(map[string]Document, len(in))
	for id, doc := range in {
		out[id] = maps.Clone(doc)
	}
	return out
}

type memorySubscription struct {
	store *MemoryStore
	path  string
	id    int
	once  sync.Once
}

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.subs[s.path], s.id)
		s.store.mu.Unlock()
	})
}
