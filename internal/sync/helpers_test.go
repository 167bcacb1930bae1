package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/remote"
	"github.com/stretchr/testify/require"
)

const (
	testUID = "rep-1"
	timeout = 2 * time.Second
	tick    = 10 * time.Millisecond
)

var baseTime = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *canvass.Store {
	t.Helper()
	store, err := canvass.NewStore(filepath.Join(t.TempDir(), "canvass.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testAppointment(title string, status canvass.AppointmentStatus) canvass.Appointment {
	return canvass.Appointment{
		ID:        uuid.New(),
		Title:     title,
		StartDate: baseTime,
		EndDate:   baseTime.Add(time.Hour),
		Type:      canvass.AppointmentEstimate,
		Status:    status,
		CreatedAt: baseTime.Add(-time.Hour),
		UpdatedAt: baseTime.Add(-time.Hour),
	}
}

func testLead(name string) canvass.Lead {
	return canvass.Lead{
		ID:        uuid.New(),
		Name:      name,
		Address:   "12 Elm St",
		Status:    canvass.LeadNotContacted,
		Price:     1500,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

// session returns a SessionFunc whose uid can be changed by the test.
type session struct{ uid string }

func (s *session) fn() SessionFunc { return func() string { return s.uid } }

type fixture struct {
	store   *canvass.Store
	remote  *remote.MemoryStore
	session *session
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   newTestStore(t),
		remote:  remote.NewMemoryStore(),
		session: &session{uid: testUID},
	}
	f.engine = NewEngine(f.store, f.remote, f.session.fn(), Options{})
	t.Cleanup(f.engine.Close)
	return f
}

func (f *fixture) apptPath(id uuid.UUID) string {
	return remote.DocumentPath(testUID, canvass.CollectionAppointments, id.String())
}

func (f *fixture) apptColl() string {
	return remote.CollectionPath(testUID, canvass.CollectionAppointments)
}

func (f *fixture) localAppointments(t *testing.T) []canvass.Appointment {
	t.Helper()
	appts, err := f.store.ListAppointments(canvass.AppointmentFilter{})
	require.NoError(t, err)
	return appts
}
