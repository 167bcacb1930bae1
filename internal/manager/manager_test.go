package manager

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/canvass"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *canvass.Store {
	t.Helper()
	store, err := canvass.NewStore(filepath.Join(t.TempDir(), "canvass.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// mockCalendar implements Calendar for testing.
type mockCalendar struct {
	createFn func(ctx context.Context, a canvass.Appointment) (string, error)
	updated  []string
	deleted  []string
}

func (m *mockCalendar) CreateEvent(ctx context.Context, a canvass.Appointment) (string, error) {
	if m.createFn != nil {
		return m.createFn(ctx, a)
	}
	return "evt-" + a.ID.String()[:8], nil
}

func (m *mockCalendar) UpdateEvent(ctx context.Context, eventID string, a canvass.Appointment) error {
	m.updated = append(m.updated, eventID)
	return nil
}

func (m *mockCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	m.deleted = append(m.deleted, eventID)
	return nil
}

// mockNotifier implements Notifier for testing.
type mockNotifier struct {
	scheduled map[uuid.UUID]time.Time
	cancelled []uuid.UUID
	err       error
}

func (m *mockNotifier) ScheduleFollowUp(ctx context.Context, leadID uuid.UUID, title string, at time.Time) error {
	if m.err != nil {
		return m.err
	}
	if m.scheduled == nil {
		m.scheduled = make(map[uuid.UUID]time.Time)
	}
	m.scheduled[leadID] = at
	return nil
}

func (m *mockNotifier) CancelFollowUp(ctx context.Context, leadID uuid.UUID) error {
	m.cancelled = append(m.cancelled, leadID)
	return m.err
}

// mockMirror records remote deletions.
type mockMirror struct {
	mu      gosync.Mutex
	deleted []string
	err     error
}

func (m *mockMirror) DeleteEntity(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, collection+"/"+id)
	return m.err
}

var errCalendarDenied = errors.New("calendar access denied")
