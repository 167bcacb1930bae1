// Package manager holds the domain operations on leads and appointments.
// Managers write the local store and drive the calendar and notification
// collaborators; remote mirroring of edits happens in batched sync windows,
// except deletions, which go to the remote immediately.
package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/canvass"
)

// Calendar mirrors appointments into the device calendar. Calls are
// fire-and-forget: failures are logged, never returned to the caller.
type Calendar interface {
	CreateEvent(ctx context.Context, a canvass.Appointment) (eventID string, err error)
	UpdateEvent(ctx context.Context, eventID string, a canvass.Appointment) error
	DeleteEvent(ctx context.Context, eventID string) error
}

// Notifier schedules local follow-up reminders. Also fire-and-forget.
type Notifier interface {
	ScheduleFollowUp(ctx context.Context, leadID uuid.UUID, title string, at time.Time) error
	CancelFollowUp(ctx context.Context, leadID uuid.UUID) error
}

// Mirror removes the remote copy of a deleted entity.
type Mirror interface {
	DeleteEntity(ctx context.Context, collection, id string) error
}

// NopCalendar does nothing.
type NopCalendar struct{}

func (NopCalendar) CreateEvent(context.Context, canvass.Appointment) (string, error) { return "", nil }
func (NopCalendar) UpdateEvent(context.Context, string, canvass.Appointment) error   { return nil }
func (NopCalendar) DeleteEvent(context.Context, string) error                        { return nil }

// NopNotifier does nothing.
type NopNotifier struct{}

func (NopNotifier) ScheduleFollowUp(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (NopNotifier) CancelFollowUp(context.Context, uuid.UUID) error                      { return nil }

// NopMirror does nothing. Used for offline-only profiles.
type NopMirror struct{}

func (NopMirror) DeleteEntity(context.Context, string, string) error { return nil }
