package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/canvass"
	"github.com/rohanthewiz/logger"
)

// LeadStore is the local persistence LeadManager needs.
type LeadStore interface {
	SaveLead(lead canvass.Lead) error
	GetLead(id uuid.UUID) (*canvass.Lead, error)
	FindLeadByContact(phone, email string) (*canvass.Lead, error)
	ListLeads(filter canvass.LeadFilter) ([]canvass.Lead, error)
	DeleteLead(id uuid.UUID) ([]uuid.UUID, error)
	SaveCheckIn(c canvass.FollowUpCheckIn) error
	ListCheckIns(leadID uuid.UUID) ([]canvass.FollowUpCheckIn, error)
	BackfillCheckInOutcomes(outcome canvass.CheckInOutcome) (int, error)
	GetBoolPreference(key string) (bool, error)
	SetBoolPreference(key string, value bool) error
}

// LeadManager captures and works leads.
type LeadManager struct {
	store    LeadStore
	notifier Notifier
	mirror   Mirror
	now      func() time.Time
}

// NewLeadManager creates a manager. Nil collaborators become no-ops.
func NewLeadManager(store LeadStore, notifier Notifier, mirror Mirror) *LeadManager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if mirror == nil {
		mirror = NopMirror{}
	}
	return &LeadManager{store: store, notifier: notifier, mirror: mirror, now: time.Now}
}

// Add saves a new lead. When another lead already has the same phone or
// email, that lead is returned with existing set and nothing is written.
func (m *LeadManager) Add(ctx context.Context, l canvass.Lead) (lead canvass.Lead, existing bool, err error) {
	if l.Phone != "" || l.Email != "" {
		dup, err := m.store.FindLeadByContact(l.Phone, l.Email)
		if err == nil && dup.ID != l.ID {
			return *dup, true, nil
		}
		if err != nil && !errors.Is(err, canvass.ErrNotFound) {
			return l, false, fmt.Errorf("add lead: %w", err)
		}
	}

	now := m.now().UTC()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = canvass.LeadNotContacted
	}
	l.Email = strings.ToLower(strings.TrimSpace(l.Email))
	l.Phone = strings.TrimSpace(l.Phone)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	if err := m.store.SaveLead(l); err != nil {
		return l, false, err
	}
	if l.FollowUpDate != nil {
		m.scheduleReminder(ctx, l)
	}
	return l, false, nil
}

// QuickCapture drops a pin at the rep's location. Without an address the
// coordinates stand in for one so the lead stays valid.
func (m *LeadManager) QuickCapture(ctx context.Context, lat, lon float64, address string) (canvass.Lead, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		address = fmt.Sprintf("%.5f, %.5f", lat, lon)
	}
	l, _, err := m.Add(ctx, canvass.Lead{
		Latitude:  lat,
		Longitude: lon,
		Address:   address,
		Status:    canvass.LeadNotHome,
	})
	return l, err
}

// Update saves changes to an existing lead.
func (m *LeadManager) Update(ctx context.Context, l canvass.Lead) (canvass.Lead, error) {
	existing, err := m.store.GetLead(l.ID)
	if err != nil {
		return l, fmt.Errorf("update lead: %w", err)
	}
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = m.now().UTC()
	if err := m.store.SaveLead(l); err != nil {
		return l, err
	}
	m.syncReminder(ctx, *existing, l)
	return l, nil
}

// SetStatus changes a lead's status.
func (m *LeadManager) SetStatus(ctx context.Context, id uuid.UUID, status canvass.LeadStatus) (canvass.Lead, error) {
	if !status.IsValid() {
		return canvass.Lead{}, &canvass.ValidationError{Field: "Status", Message: "unknown status " + string(status)}
	}
	l, err := m.store.GetLead(id)
	if err != nil {
		return canvass.Lead{}, fmt.Errorf("set lead status: %w", err)
	}
	updated := *l
	updated.Status = status
	// Closed leads need no reminder.
	if status == canvass.LeadConverted || status == canvass.LeadNotInterested {
		updated.FollowUpDate = nil
	}
	return m.Update(ctx, updated)
}

// ScheduleFollowUp sets the follow-up date and schedules a reminder.
func (m *LeadManager) ScheduleFollowUp(ctx context.Context, id uuid.UUID, at time.Time) (canvass.Lead, error) {
	l, err := m.store.GetLead(id)
	if err != nil {
		return canvass.Lead{}, fmt.Errorf("schedule follow-up: %w", err)
	}
	updated := *l
	at = at.UTC()
	updated.FollowUpDate = &at
	return m.Update(ctx, updated)
}

// Delete removes a lead and its check-ins, cancels its reminder and deletes
// the remote copies.
func (m *LeadManager) Delete(ctx context.Context, id uuid.UUID) error {
	checkInIDs, err := m.store.DeleteLead(id)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if err := m.notifier.CancelFollowUp(ctx, id); err != nil {
		logger.LogErr(err, "cancel follow-up failed", "lead", id.String())
	}
	for _, cid := range checkInIDs {
		if err := m.mirror.DeleteEntity(ctx, canvass.CollectionCheckIns, cid.String()); err != nil {
			logger.LogErr(err, "remote check-in delete failed", "checkin", cid.String())
		}
	}
	if err := m.mirror.DeleteEntity(ctx, canvass.CollectionLeads, id.String()); err != nil {
		logger.LogErr(err, "remote lead delete failed", "lead", id.String())
	}
	return nil
}

// Get returns one lead.
func (m *LeadManager) Get(id uuid.UUID) (*canvass.Lead, error) {
	return m.store.GetLead(id)
}

// Search runs a query built with NewQuery.
func (m *LeadManager) Search(q *Query) ([]canvass.Lead, error) {
	if q == nil {
		q = NewQuery()
	}
	return m.store.ListLeads(q.Filter())
}

// DueForFollowUp returns leads whose follow-up date has passed.
func (m *LeadManager) DueForFollowUp() ([]canvass.Lead, error) {
	return m.Search(NewQuery().DueBefore(m.now()))
}

// RecordCheckIn logs a contact attempt. An empty outcome defaults to no answer.
func (m *LeadManager) RecordCheckIn(ctx context.Context, leadID uuid.UUID, channel canvass.ContactChannel, outcome canvass.CheckInOutcome, notes string) (canvass.FollowUpCheckIn, error) {
	if outcome == canvass.OutcomeUnknown {
		outcome = canvass.DefaultCheckInOutcome
	}
	c := canvass.FollowUpCheckIn{
		ID:        uuid.New(),
		LeadID:    leadID,
		Timestamp: m.now().UTC(),
		Channel:   channel,
		Outcome:   outcome,
		Notes:     strings.TrimSpace(notes),
	}
	if err := m.store.SaveCheckIn(c); err != nil {
		return c, fmt.Errorf("record check-in: %w", err)
	}

	if outcome == canvass.OutcomeNotInterested {
		if _, err := m.SetStatus(ctx, leadID, canvass.LeadNotInterested); err != nil {
			logger.LogErr(err, "update lead after check-in failed", "lead", leadID.String())
		}
	}
	return c, nil
}

// CheckIns returns a lead's check-ins, newest first.
func (m *LeadManager) CheckIns(leadID uuid.UUID) ([]canvass.FollowUpCheckIn, error) {
	return m.store.ListCheckIns(leadID)
}

// BackfillCheckInOutcomes assigns the default outcome to check-ins recorded
// before outcomes existed. It runs once per store.
func (m *LeadManager) BackfillCheckInOutcomes() (int, error) {
	done, err := m.store.GetBoolPreference(canvass.PrefCheckInBackfillRun)
	if err != nil {
		return 0, err
	}
	if done {
		return 0, nil
	}
	n, err := m.store.BackfillCheckInOutcomes(canvass.DefaultCheckInOutcome)
	if err != nil {
		return 0, fmt.Errorf("backfill check-in outcomes: %w", err)
	}
	if err := m.store.SetBoolPreference(canvass.PrefCheckInBackfillRun, true); err != nil {
		return n, err
	}
	if n > 0 {
		logger.Info("backfilled check-in outcomes", "count", n)
	}
	return n, nil
}

func (m *LeadManager) scheduleReminder(ctx context.Context, l canvass.Lead) {
	if err := m.notifier.ScheduleFollowUp(ctx, l.ID, l.DisplayName(), *l.FollowUpDate); err != nil {
		logger.LogErr(err, "schedule follow-up failed", "lead", l.ID.String())
	}
}

func (m *LeadManager) syncReminder(ctx context.Context, before, after canvass.Lead) {
	switch {
	case after.FollowUpDate == nil && before.FollowUpDate != nil:
		if err := m.notifier.CancelFollowUp(ctx, after.ID); err != nil {
			logger.LogErr(err, "cancel follow-up failed", "lead", after.ID.String())
		}
	case after.FollowUpDate != nil && (before.FollowUpDate == nil || !before.FollowUpDate.Equal(*after.FollowUpDate)):
		m.scheduleReminder(ctx, after)
	}
}
