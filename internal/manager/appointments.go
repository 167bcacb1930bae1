package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/canvass"
	"github.com/rohanthewiz/logger"
)

// AppointmentStore is the local persistence AppointmentManager needs.
type AppointmentStore interface {
	SaveAppointment(a canvass.Appointment) error
	GetAppointment(id uuid.UUID) (*canvass.Appointment, error)
	ListAppointments(filter canvass.AppointmentFilter) ([]canvass.Appointment, error)
	DeleteAppointment(id uuid.UUID) error
}

// AppointmentManager schedules and edits appointments.
type AppointmentManager struct {
	store    AppointmentStore
	calendar Calendar
	mirror   Mirror
	now      func() time.Time
}

// NewAppointmentManager creates a manager. Nil collaborators become no-ops.
func NewAppointmentManager(store AppointmentStore, calendar Calendar, mirror Mirror) *AppointmentManager {
	if calendar == nil {
		calendar = NopCalendar{}
	}
	if mirror == nil {
		mirror = NopMirror{}
	}
	return &AppointmentManager{store: store, calendar: calendar, mirror: mirror, now: time.Now}
}

// Schedule saves a new appointment. A missing ID is generated; an existing ID
// updates that appointment rather than adding a second one.
func (m *AppointmentManager) Schedule(ctx context.Context, a canvass.Appointment) (canvass.Appointment, error) {
	now := m.now().UTC()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = canvass.AppointmentScheduled
	}
	if a.Type == "" && !a.UsesCustomType() {
		a.Type = canvass.AppointmentOther
	}
	if a.EndDate.IsZero() && !a.StartDate.IsZero() {
		a.EndDate = a.StartDate.Add(time.Hour)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	if err := a.Validate(); err != nil {
		return a, err
	}

	if a.CalendarEventID == "" {
		if eventID, err := m.calendar.CreateEvent(ctx, a); err != nil {
			logger.LogErr(err, "calendar event create failed", "appointment", a.ID.String())
		} else {
			a.CalendarEventID = eventID
		}
	} else {
		m.updateCalendar(ctx, a)
	}

	if err := m.store.SaveAppointment(a); err != nil {
		return a, fmt.Errorf("schedule appointment: %w", err)
	}
	return a, nil
}

// Update saves changes to an existing appointment.
func (m *AppointmentManager) Update(ctx context.Context, a canvass.Appointment) (canvass.Appointment, error) {
	existing, err := m.store.GetAppointment(a.ID)
	if err != nil {
		return a, fmt.Errorf("update appointment: %w", err)
	}
	a.CreatedAt = existing.CreatedAt
	if a.CalendarEventID == "" {
		a.CalendarEventID = existing.CalendarEventID
	}
	a.UpdatedAt = m.now().UTC()
	if err := a.Validate(); err != nil {
		return a, err
	}
	if err := m.store.SaveAppointment(a); err != nil {
		return a, fmt.Errorf("update appointment: %w", err)
	}
	m.updateCalendar(ctx, a)
	return a, nil
}

// Reschedule moves an appointment and marks it rescheduled.
func (m *AppointmentManager) Reschedule(ctx context.Context, id uuid.UUID, start, end time.Time) (canvass.Appointment, error) {
	return m.mutate(ctx, id, "reschedule", func(a *canvass.Appointment) {
		if end.IsZero() {
			end = start.Add(a.EndDate.Sub(a.StartDate))
		}
		a.StartDate = start.UTC()
		a.EndDate = end.UTC()
		a.Status = canvass.AppointmentRescheduled
	})
}

// Confirm marks an appointment confirmed.
func (m *AppointmentManager) Confirm(ctx context.Context, id uuid.UUID) (canvass.Appointment, error) {
	return m.mutate(ctx, id, "confirm", func(a *canvass.Appointment) {
		a.Status = canvass.AppointmentConfirmed
	})
}

// Complete marks an appointment completed.
func (m *AppointmentManager) Complete(ctx context.Context, id uuid.UUID) (canvass.Appointment, error) {
	return m.mutate(ctx, id, "complete", func(a *canvass.Appointment) {
		a.Status = canvass.AppointmentCompleted
	})
}

// Cancel soft-cancels an appointment. The record is kept with status
// cancelled and its calendar event is removed.
func (m *AppointmentManager) Cancel(ctx context.Context, id uuid.UUID) (canvass.Appointment, error) {
	a, err := m.mutate(ctx, id, "cancel", func(a *canvass.Appointment) {
		a.Status = canvass.AppointmentCancelled
	})
	if err != nil {
		return a, err
	}
	if a.CalendarEventID != "" {
		if err := m.calendar.DeleteEvent(ctx, a.CalendarEventID); err != nil {
			logger.LogErr(err, "calendar event delete failed", "appointment", a.ID.String())
		}
	}
	return a, nil
}

func (m *AppointmentManager) mutate(ctx context.Context, id uuid.UUID, op string, fn func(*canvass.Appointment)) (canvass.Appointment, error) {
	existing, err := m.store.GetAppointment(id)
	if err != nil {
		return canvass.Appointment{}, fmt.Errorf("%s appointment: %w", op, err)
	}
	a := *existing
	fn(&a)
	a.UpdatedAt = m.now().UTC()
	if err := a.Validate(); err != nil {
		return a, err
	}
	if err := m.store.SaveAppointment(a); err != nil {
		return a, fmt.Errorf("%s appointment: %w", op, err)
	}
	if a.Status != canvass.AppointmentCancelled {
		m.updateCalendar(ctx, a)
	}
	return a, nil
}

// Delete removes an appointment locally, from the calendar and from the remote.
func (m *AppointmentManager) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := m.store.GetAppointment(id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if err := m.store.DeleteAppointment(id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if existing.CalendarEventID != "" {
		if err := m.calendar.DeleteEvent(ctx, existing.CalendarEventID); err != nil {
			logger.LogErr(err, "calendar event delete failed", "appointment", id.String())
		}
	}
	if err := m.mirror.DeleteEntity(ctx, canvass.CollectionAppointments, id.String()); err != nil {
		logger.LogErr(err, "remote appointment delete failed", "appointment", id.String())
	}
	return nil
}

// Get returns one appointment.
func (m *AppointmentManager) Get(id uuid.UUID) (*canvass.Appointment, error) {
	return m.store.GetAppointment(id)
}

// List returns appointments matching filter.
func (m *AppointmentManager) List(filter canvass.AppointmentFilter) ([]canvass.Appointment, error) {
	return m.store.ListAppointments(filter)
}

// Upcoming returns non-cancelled appointments starting within the window.
func (m *AppointmentManager) Upcoming(window time.Duration) ([]canvass.Appointment, error) {
	from := m.now().UTC()
	to := from.Add(window)
	return m.store.ListAppointments(canvass.AppointmentFilter{
		From: &from,
		To:   &to,
		Statuses: []canvass.AppointmentStatus{
			canvass.AppointmentScheduled,
			canvass.AppointmentConfirmed,
			canvass.AppointmentRescheduled,
		},
	})
}

// ForLead returns a lead's appointments.
func (m *AppointmentManager) ForLead(leadID uuid.UUID) ([]canvass.Appointment, error) {
	return m.store.ListAppointments(canvass.AppointmentFilter{LeadID: &leadID})
}

func (m *AppointmentManager) updateCalendar(ctx context.Context, a canvass.Appointment) {
	if a.CalendarEventID == "" {
		return
	}
	if err := m.calendar.UpdateEvent(ctx, a.CalendarEventID, a); err != nil && !errors.Is(err, context.Canceled) {
		logger.LogErr(err, "calendar event update failed", "appointment", a.ID.String())
	}
}
