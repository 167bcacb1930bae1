package remote

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/canvass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir(), WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	return fs
}

func TestFileStore_CRUD(t *testing.T) {
	ctx := context.Background()
	fs := newTestFileStore(t)
	path := DocumentPath("u1", canvass.CollectionAppointments, "a1")

	require.NoError(t, fs.Set(ctx, path, Document{"title": "Estimate", "status": "Scheduled"}))

	doc, err := fs.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "Scheduled", doc["status"])

	docs, err := fs.List(ctx, CollectionPath("u1", canvass.CollectionAppointments))
	require.NoError(t, err)
	assert.Contains(t, docs, "a1")

	require.NoError(t, fs.Delete(ctx, path))
	_, err = fs.Get(ctx, path)
	assert.ErrorIs(t, err, canvass.ErrNotFound)
	assert.NoError(t, fs.Delete(ctx, path))
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	fs := newTestFileStore(t)
	err := fs.Set(context.Background(), "users/../appointments/x", Document{})
	assert.Equal(t, canvass.KindValidation, canvass.KindOf(err))
}

func TestFileStore_CorruptDocumentIsDataError(t *testing.T) {
	fs := newTestFileStore(t)
	dir := filepath.Join(fs.root, "users", "u1", canvass.CollectionLeads)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "l1.json"), []byte("{not json"), 0644))

	_, err := fs.Get(context.Background(), DocumentPath("u1", canvass.CollectionLeads, "l1"))
	assert.Equal(t, canvass.KindData, canvass.KindOf(err))
	assert.True(t, canvass.IsRetryable(err))
}

func TestFileStore_UserData(t *testing.T) {
	ctx := context.Background()
	fs := newTestFileStore(t)

	has, err := fs.HasUserData(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, fs.Set(ctx, DocumentPath("u1", canvass.CollectionLeads, "l1"), Document{}))
	has, _ = fs.HasUserData(ctx, "u1")
	assert.True(t, has)

	require.NoError(t, fs.DeleteUserData(ctx, "u1"))
	has, _ = fs.HasUserData(ctx, "u1")
	assert.False(t, has)
}

func TestFileStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	fs := newTestFileStore(t)
	coll := CollectionPath("u1", canvass.CollectionAppointments)
	require.NoError(t, fs.Set(ctx, coll+"/a1", Document{"title": "first"}))

	var mu sync.Mutex
	var latest Snapshot
	count := 0
	sub, err := fs.Subscribe(ctx, coll, func(s Snapshot) {
		mu.Lock()
		latest = s
		count++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 1 && len(latest.Documents) == 1
	}, 2*time.Second, 10*time.Millisecond, "initial snapshot")

	require.NoError(t, fs.Set(ctx, coll+"/a2", Document{"title": "second"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latest.Documents) == 2
	}, 2*time.Second, 10*time.Millisecond, "snapshot after write")
}
