package manager

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/canvass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAppointmentManager(t *testing.T) (*AppointmentManager, *canvass.Store, *mockCalendar, *mockMirror) {
	t.Helper()
	store := newTestStore(t)
	cal := &mockCalendar{}
	mirror := &mockMirror{}
	m := NewAppointmentManager(store, cal, mirror)
	m.now = func() time.Time { return fixedNow }
	return m, store, cal, mirror
}

func TestSchedule_FillsDefaults(t *testing.T) {
	m, store, _, _ := newAppointmentManager(t)
	start := fixedNow.Add(24 * time.Hour)

	a, err := m.Schedule(context.Background(), canvass.Appointment{Title: "Estimate", StartDate: start})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, canvass.AppointmentScheduled, a.Status)
	assert.Equal(t, canvass.AppointmentOther, a.Type)
	assert.Equal(t, start.Add(time.Hour), a.EndDate)
	assert.Equal(t, fixedNow, a.CreatedAt)
	assert.NotEmpty(t, a.CalendarEventID)

	got, err := store.GetAppointment(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.CalendarEventID, got.CalendarEventID)
}

func TestSchedule_SameIDTwiceIsOneRecord(t *testing.T) {
	m, store, _, _ := newAppointmentManager(t)
	ctx := context.Background()
	a := canvass.Appointment{ID: uuid.New(), Title: "first", StartDate: fixedNow}

	_, err := m.Schedule(ctx, a)
	require.NoError(t, err)
	a.Title = "second"
	_, err = m.Schedule(ctx, a)
	require.NoError(t, err)

	all, err := store.ListAppointments(canvass.AppointmentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "second", all[0].Title)
}

func TestSchedule_RejectsEndBeforeStart(t *testing.T) {
	m, store, _, _ := newAppointmentManager(t)
	_, err := m.Schedule(context.Background(), canvass.Appointment{
		Title:     "bad",
		StartDate: fixedNow,
		EndDate:   fixedNow.Add(-time.Minute),
	})
	assert.Equal(t, canvass.KindValidation, canvass.KindOf(err))

	all, _ := store.ListAppointments(canvass.AppointmentFilter{})
	assert.Empty(t, all)
}

func TestSchedule_CalendarFailureIsNotFatal(t *testing.T) {
	m, _, cal, _ := newAppointmentManager(t)
	cal.createFn = func(context.Context, canvass.Appointment) (string, error) {
		return "", errCalendarDenied
	}
	a, err := m.Schedule(context.Background(), canvass.Appointment{Title: "x", StartDate: fixedNow})
	require.NoError(t, err)
	assert.Empty(t, a.CalendarEventID)
}

func TestCancel_IsSoft(t *testing.T) {
	m, store, cal, _ := newAppointmentManager(t)
	ctx := context.Background()
	a, err := m.Schedule(ctx, canvass.Appointment{Title: "x", StartDate: fixedNow})
	require.NoError(t, err)

	cancelled, err := m.Cancel(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, canvass.AppointmentCancelled, cancelled.Status)

	got, err := store.GetAppointment(a.ID)
	require.NoError(t, err, "cancelled appointments are kept")
	assert.Equal(t, canvass.AppointmentCancelled, got.Status)
	assert.Equal(t, []string{a.CalendarEventID}, cal.deleted)
}

func TestReschedule(t *testing.T) {
	m, _, cal, _ := newAppointmentManager(t)
	ctx := context.Background()
	a, err := m.Schedule(ctx, canvass.Appointment{Title: "x", StartDate: fixedNow, EndDate: fixedNow.Add(90 * time.Minute)})
	require.NoError(t, err)

	newStart := fixedNow.Add(48 * time.Hour)
	moved, err := m.Reschedule(ctx, a.ID, newStart, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, canvass.AppointmentRescheduled, moved.Status)
	assert.Equal(t, newStart, moved.StartDate)
	assert.Equal(t, newStart.Add(90*time.Minute), moved.EndDate, "duration is kept")
	assert.Contains(t, cal.updated, a.CalendarEventID)
}

func TestConfirmAndComplete(t *testing.T) {
	m, _, _, _ := newAppointmentManager(t)
	ctx := context.Background()
	a, err := m.Schedule(ctx, canvass.Appointment{Title: "x", StartDate: fixedNow})
	require.NoError(t, err)

	a, err = m.Confirm(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, canvass.AppointmentConfirmed, a.Status)

	a, err = m.Complete(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, canvass.AppointmentCompleted, a.Status)

	_, err = m.Complete(ctx, uuid.New())
	assert.ErrorIs(t, err, canvass.ErrNotFound)
}

func TestAppointmentDelete(t *testing.T) {
	m, store, cal, mirror := newAppointmentManager(t)
	ctx := context.Background()
	a, err := m.Schedule(ctx, canvass.Appointment{Title: "x", StartDate: fixedNow})
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, a.ID))

	_, err = store.GetAppointment(a.ID)
	assert.ErrorIs(t, err, canvass.ErrNotFound)
	assert.Equal(t, []string{a.CalendarEventID}, cal.deleted)
	assert.Equal(t, []string{canvass.CollectionAppointments + "/" + a.ID.String()}, mirror.deleted)
}

func TestUpdate(t *testing.T) {
	m, _, _, _ := newAppointmentManager(t)
	ctx := context.Background()
	a, err := m.Schedule(ctx, canvass.Appointment{Title: "x", StartDate: fixedNow})
	require.NoError(t, err)

	edit := a
	edit.Title = "renamed"
	edit.CalendarEventID = ""
	edit.CreatedAt = time.Time{}
	got, err := m.Update(ctx, edit)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, a.CalendarEventID, got.CalendarEventID)
	assert.Equal(t, a.CreatedAt, got.CreatedAt)

	_, err = m.Update(ctx, canvass.Appointment{ID: uuid.New()})
	assert.ErrorIs(t, err, canvass.ErrNotFound)
}

func TestForLeadAndUpcoming(t *testing.T) {
	m, _, _, _ := newAppointmentManager(t)
	ctx := context.Background()
	lead := uuid.New()

	_, err := m.Schedule(ctx, canvass.Appointment{Title: "soon", StartDate: fixedNow.Add(time.Hour), LeadID: &lead})
	require.NoError(t, err)
	later, err := m.Schedule(ctx, canvass.Appointment{Title: "later", StartDate: fixedNow.Add(72 * time.Hour)})
	require.NoError(t, err)
	cancelled, err := m.Schedule(ctx, canvass.Appointment{Title: "off", StartDate: fixedNow.Add(2 * time.Hour)})
	require.NoError(t, err)
	_, err = m.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)

	forLead, err := m.ForLead(lead)
	require.NoError(t, err)
	require.Len(t, forLead, 1)
	assert.Equal(t, "soon", forLead[0].Title)

	upcoming, err := m.Upcoming(24 * time.Hour)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "soon", upcoming[0].Title)
	assert.NotEqual(t, later.ID, upcoming[0].ID)
}
