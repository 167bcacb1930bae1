package remote

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hyperengineering/canvass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocumentPath(t *testing.T) {
	uid, coll, id, err := ParseDocumentPath("users/u1/appointments/a1")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)
	assert.Equal(t, "appointments", coll)
	assert.Equal(t, "a1", id)

	for _, bad := range []string{"", "users/u1/appointments", "accounts/u1/x/y", "users//x/y", "users/u1/x/y/z"} {
		_, _, _, err := ParseDocumentPath(bad)
		assert.Error(t, err, bad)
		assert.Equal(t, canvass.KindValidation, canvass.KindOf(err), bad)
	}
}

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	path := DocumentPath("u1", canvass.CollectionLeads, "l1")

	require.NoError(t, m.Set(ctx, path, Document{"name": "Ada"}))

	doc, err := m.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "Ada", doc["name"])

	// Returned documents are copies.
	doc["name"] = "changed"
	again, _ := m.Get(ctx, path)
	assert.Equal(t, "Ada", again["name"])

	docs, err := m.List(ctx, CollectionPath("u1", canvass.CollectionLeads))
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	require.NoError(t, m.Delete(ctx, path))
	_, err = m.Get(ctx, path)
	assert.ErrorIs(t, err, canvass.ErrNotFound)

	assert.NoError(t, m.Delete(ctx, path), "deleting a missing document succeeds")
}

func TestMemoryStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	coll := CollectionPath("u1", canvass.CollectionAppointments)
	require.NoError(t, m.Set(ctx, coll+"/a1", Document{"title": "first"}))

	var mu sync.Mutex
	var snaps []Snapshot
	sub, err := m.Subscribe(ctx, coll, func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, m.Set(ctx, coll+"/a2", Document{"title": "second"}))
	require.NoError(t, m.Set(ctx, CollectionPath("u2", canvass.CollectionAppointments)+"/x", Document{}))

	sub.Unsubscribe()
	require.NoError(t, m.Set(ctx, coll+"/a3", Document{"title": "third"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, snaps, 2, "initial snapshot plus one change; other users and post-unsubscribe writes excluded")
	assert.Len(t, snaps[0].Documents, 1)
	assert.Len(t, snaps[1].Documents, 2)
	assert.Equal(t, coll, snaps[1].Collection)
}

func TestMemoryStore_UserData(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	has, err := m.HasUserData(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, m.Set(ctx, DocumentPath("u1", canvass.CollectionLeads, "l1"), Document{}))
	require.NoError(t, m.Set(ctx, DocumentPath("u10", canvass.CollectionLeads, "l1"), Document{}))

	has, _ = m.HasUserData(ctx, "u1")
	assert.True(t, has)

	require.NoError(t, m.DeleteUserData(ctx, "u1"))
	has, _ = m.HasUserData(ctx, "u1")
	assert.False(t, has)

	has, _ = m.HasUserData(ctx, "u10")
	assert.True(t, has, "prefix match must not leak to other users")
}

func TestMemoryStore_Hook(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	boom := canvass.E(canvass.KindNetwork, "set", errors.New("offline"))
	m.SetHook(func(ctx context.Context, op, path string) error {
		if op == "set" {
			return boom
		}
		return nil
	})

	err := m.Set(ctx, DocumentPath("u1", canvass.CollectionLeads, "l1"), Document{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Count(CollectionPath("u1", canvass.CollectionLeads)))

	m.SetHook(nil)
	assert.NoError(t, m.Set(ctx, DocumentPath("u1", canvass.CollectionLeads, "l1"), Document{}))
}
