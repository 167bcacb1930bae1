package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperengineering/canvass"
	"github.com/rohanthewiz/logger"
)

// DefaultDebounce coalesces bursts of file events into one snapshot.
const DefaultDebounce = 50 * time.Millisecond

// FileStore keeps one JSON file per document under a root directory, so a
// shared or synced folder can act as the remote. Subscribe watches the
// collection directory with fsnotify.
type FileStore struct {
	root     string
	debounce time.Duration
	debug    *canvass.DebugLogger
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) FileStoreOption {
	return func(f *FileStore) { f.debounce = d }
}

// WithFileDebug traces document traffic.
func WithFileDebug(d *canvass.DebugLogger) FileStoreOption {
	return func(f *FileStore) { f.debug = d }
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string, opts ...FileStoreOption) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create remote directory: %w", err)
	}
	f := &FileStore{root: root, debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FileStore) docFile(path string) (string, error) {
	uid, coll, id, err := ParseDocumentPath(path)
	if err != nil {
		return "", err
	}
	if !validSegment(uid) || !validSegment(coll) || !validSegment(id) {
		return "", canvass.E(canvass.KindValidation, "path", fmt.Errorf("invalid document path %q", path))
	}
	return filepath.Join(f.root, "users", uid, coll, id+".json"), nil
}

func (f *FileStore) collDir(collectionPath string) (string, error) {
	uid, coll, err := ParseCollectionPath(collectionPath)
	if err != nil {
		return "", err
	}
	if !validSegment(uid) || !validSegment(coll) {
		return "", canvass.E(canvass.KindValidation, "path", fmt.Errorf("invalid collection path %q", collectionPath))
	}
	return filepath.Join(f.root, "users", uid, coll), nil
}

// Set implements DocumentStore. Writes are atomic via rename.
func (f *FileStore) Set(ctx context.Context, path string, doc Document) error {
	file, err := f.docFile(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return canvass.E(canvass.KindNetwork, "set", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return canvass.E(canvass.KindData, "set", err)
	}
	f.debug.LogRequest("SET", path, data)

	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return classifyFSError("set", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(file), ".tmp-*")
	if err != nil {
		return classifyFSError("set", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return classifyFSError("set", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return classifyFSError("set", err)
	}
	if err := os.Rename(tmp.Name(), file); err != nil {
		_ = os.Remove(tmp.Name())
		return classifyFSError("set", err)
	}
	return nil
}

// Get implements DocumentStore.
func (f *FileStore) Get(ctx context.Context, path string) (Document, error) {
	file, err := f.docFile(path)
	if err != nil {
		return nil, err
	}
	return readDoc(file)
}

// Delete implements DocumentStore.
func (f *FileStore) Delete(ctx context.Context, path string) error {
	file, err := f.docFile(path)
	if err != nil {
		return err
	}
	f.debug.LogRequest("DELETE", path, nil)
	if err := os.Remove(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return classifyFSError("delete", err)
	}
	return nil
}

// List implements DocumentStore.
func (f *FileStore) List(ctx context.Context, collectionPath string) (map[string]Document, error) {
	dir, err := f.collDir(collectionPath)
	if err != nil {
		return nil, err
	}
	return listDir(dir)
}

// HasUserData implements DocumentStore.
func (f *FileStore) HasUserData(ctx context.Context, uid string) (bool, error) {
	if !validSegment(uid) {
		return false, canvass.E(canvass.KindValidation, "has_user_data", fmt.Errorf("invalid uid %q", uid))
	}
	found := false
	err := filepath.WalkDir(filepath.Join(f.root, "users", uid), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") && !strings.HasPrefix(d.Name(), ".") {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, classifyFSError("has_user_data", err)
	}
	return found, nil
}

// DeleteUserData implements DocumentStore.
func (f *FileStore) DeleteUserData(ctx context.Context, uid string) error {
	if !validSegment(uid) {
		return canvass.E(canvass.KindValidation, "delete_user_data", fmt.Errorf("invalid uid %q", uid))
	}
	base := filepath.Join(f.root, "users", uid)
	entries, err := os.ReadDir(base)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return classifyFSError("delete_user_data", err)
	}
	// Remove documents but keep collection directories so active watchers survive.
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		docs, err := os.ReadDir(filepath.Join(base, e.Name()))
		if err != nil {
			return classifyFSError("delete_user_data", err)
		}
		for _, d := range docs {
			if err := os.Remove(filepath.Join(base, e.Name(), d.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return classifyFSError("delete_user_data", err)
			}
		}
	}
	return nil
}

// Subscribe implements DocumentStore. The initial snapshot and every later
// one are delivered from a background goroutine.
func (f *FileStore) Subscribe(ctx context.Context, collectionPath string, fn SnapshotFunc) (Subscription, error) {
	dir, err := f.collDir(collectionPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, classifyFSError("subscribe", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, canvass.E(canvass.KindNetwork, "subscribe", fmt.Errorf("create watcher: %w", err))
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, canvass.E(canvass.KindNetwork, "subscribe", fmt.Errorf("watch %s: %w", dir, err))
	}

	sub := &fileSubscription{
		watcher:  watcher,
		done:     make(chan struct{}),
		dir:      dir,
		path:     collectionPath,
		fn:       fn,
		debounce: f.debounce,
	}
	sub.wg.Add(1)
	go sub.run()
	return sub, nil
}

type fileSubscription struct {
	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	dir      string
	path     string
	fn       SnapshotFunc
	debounce time.Duration
}

func (s *fileSubscription) run() {
	defer s.wg.Done()

	s.deliver()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-s.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			s.deliver()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.LogErr(err, "remote file watcher error", "collection", s.path)
		}
	}
}

func (s *fileSubscription) deliver() {
	docs, err := listDir(s.dir)
	if err != nil {
		logger.LogErr(err, "remote file snapshot failed", "collection", s.path)
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	s.fn(Snapshot{Collection: s.path, Documents: docs})
}

func (s *fileSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		_ = s.watcher.Close()
		s.wg.Wait()
	})
}

func readDoc(file string) (Document, error) {
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, canvass.ErrNotFound
	}
	if err != nil {
		return nil, classifyFSError("get", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, canvass.E(canvass.KindData, "get", fmt.Errorf("decode %s: %w", filepath.Base(file), err))
	}
	return doc, nil
}

func listDir(dir string) (map[string]Document, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Document{}, nil
	}
	if err != nil {
		return nil, classifyFSError("list", err)
	}
	docs := make(map[string]Document, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		doc, err := readDoc(filepath.Join(dir, name))
		if errors.Is(err, canvass.ErrNotFound) {
			continue // removed between ReadDir and ReadFile
		}
		if err != nil {
			return nil, err
		}
		docs[strings.TrimSuffix(name, ".json")] = doc
	}
	return docs, nil
}

func classifyFSError(op string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return canvass.E(canvass.KindPermission, op, err)
	}
	return canvass.E(canvass.KindNetwork, op, err)
}
