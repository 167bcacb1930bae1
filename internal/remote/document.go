// Package remote provides the per-user document store that local data is
// mirrored to. Documents live at users/{uid}/{collection}/{id} and are flat
// maps of JSON-compatible values.
//
// Operators must route every deletion through the application's explicit
// delete path. Listener merges never treat a missing remote document as a
// deletion, so a document removed directly in the backend comes back the next
// time a client with a cached copy syncs.
package remote

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/hyperengineering/canvass"
)

// Document is one remote record.
type Document map[string]any

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// Snapshot is the full contents of one collection at a point in time.
type Snapshot struct {
	Collection string
	Documents  map[string]Document
}

// SnapshotFunc receives collection snapshots from a subscription.
type SnapshotFunc func(Snapshot)

// Subscription is a live collection listener.
type Subscription interface {
	Unsubscribe()
}

// DocumentStore is the remote side of sync.
type DocumentStore interface {
	// Set upserts the full document at path.
	Set(ctx context.Context, path string, doc Document) error
	// Get returns the document at path or canvass.ErrNotFound.
	Get(ctx context.Context, path string) (Document, error)
	// Delete removes the document at path. Deleting a missing document succeeds.
	Delete(ctx context.Context, path string) error
	// List returns every document in a collection keyed by ID.
	List(ctx context.Context, collectionPath string) (map[string]Document, error)
	// Subscribe delivers an initial snapshot and then one per change until
	// the subscription is cancelled.
	Subscribe(ctx context.Context, collectionPath string, fn SnapshotFunc) (Subscription, error)
	// HasUserData reports whether any document exists under users/{uid}.
	HasUserData(ctx context.Context, uid string) (bool, error)
	// DeleteUserData removes the whole users/{uid} subtree.
	DeleteUserData(ctx context.Context, uid string) error
}

// UserPath returns users/{uid}.
func UserPath(uid string) string {
	return "users/" + uid
}

// CollectionPath returns users/{uid}/{collection}.
func CollectionPath(uid, collection string) string {
	return UserPath(uid) + "/" + collection
}

// DocumentPath returns users/{uid}/{collection}/{id}.
func DocumentPath(uid, collection, id string) string {
	return CollectionPath(uid, collection) + "/" + id
}

// ParseDocumentPath splits users/{uid}/{collection}/{id}.
func ParseDocumentPath(path string) (uid, collection, id string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 || parts[0] != "users" || parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return "", "", "", canvass.E(canvass.KindValidation, "parse path", fmt.Errorf("invalid document path %q", path))
	}
	return parts[1], parts[2], parts[3], nil
}

// ParseCollectionPath splits users/{uid}/{collection}.
func ParseCollectionPath(path string) (uid, collection string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "users" || parts[1] == "" || parts[2] == "" {
		return "", "", canvass.E(canvass.KindValidation, "parse path", fmt.Errorf("invalid collection path %q", path))
	}
	return parts[1], parts[2], nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
