package canvass

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Collection names used for the remote document subtree of each user.
const (
	CollectionAppointments = "appointments"
	CollectionLeads        = "leads"
	CollectionCheckIns     = "checkins"
)

// AppointmentStatus tracks where an appointment is in its lifecycle.
type AppointmentStatus string

const (
	AppointmentScheduled   AppointmentStatus = "scheduled"
	AppointmentConfirmed   AppointmentStatus = "confirmed"
	AppointmentCompleted   AppointmentStatus = "completed"
	AppointmentCancelled   AppointmentStatus = "cancelled"
	AppointmentRescheduled AppointmentStatus = "rescheduled"
)

// ValidAppointmentStatuses returns all appointment statuses.
func ValidAppointmentStatuses() []AppointmentStatus {
	return []AppointmentStatus{
		AppointmentScheduled,
		AppointmentConfirmed,
		AppointmentCompleted,
		AppointmentCancelled,
		AppointmentRescheduled,
	}
}

// IsValid checks if the status is a known appointment status.
func (s AppointmentStatus) IsValid() bool {
	for _, valid := range ValidAppointmentStatuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// DisplayName returns the capitalized form stored in remote documents ("Cancelled").
func (s AppointmentStatus) DisplayName() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// ParseAppointmentStatus accepts either the stored or the display form.
func ParseAppointmentStatus(v string) (AppointmentStatus, bool) {
	s := AppointmentStatus(strings.ToLower(strings.TrimSpace(v)))
	return s, s.IsValid()
}

// AppointmentType is one of the fixed appointment categories.
type AppointmentType string

const (
	AppointmentConsultation AppointmentType = "consultation"
	AppointmentFollowUp     AppointmentType = "follow_up"
	AppointmentEstimate     AppointmentType = "estimate"
	AppointmentInstallation AppointmentType = "installation"
	AppointmentInspection   AppointmentType = "inspection"
	AppointmentOther        AppointmentType = "other"
)

// ValidAppointmentTypes returns all fixed appointment types.
func ValidAppointmentTypes() []AppointmentType {
	return []AppointmentType{
		AppointmentConsultation,
		AppointmentFollowUp,
		AppointmentEstimate,
		AppointmentInstallation,
		AppointmentInspection,
		AppointmentOther,
	}
}

// IsValid checks if the type is one of the fixed appointment types.
func (t AppointmentType) IsValid() bool {
	for _, valid := range ValidAppointmentTypes() {
		if t == valid {
			return true
		}
	}
	return false
}

// Appointment is a scheduled visit, usually tied to a lead.
type Appointment struct {
	ID              uuid.UUID         `json:"id"`
	Title           string            `json:"title"`
	Notes           string            `json:"notes,omitempty"`
	StartDate       time.Time         `json:"start_date"`
	EndDate         time.Time         `json:"end_date"`
	Location        string            `json:"location,omitempty"`
	LeadID          *uuid.UUID        `json:"lead_id,omitempty"`
	CalendarEventID string            `json:"calendar_event_id,omitempty"`
	Type            AppointmentType   `json:"type,omitempty"`
	CustomTypeID    *uuid.UUID        `json:"custom_type_id,omitempty"`
	Status          AppointmentStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// UsesCustomType reports whether the custom type reference is the one to display.
func (a Appointment) UsesCustomType() bool {
	return a.CustomTypeID != nil && *a.CustomTypeID != uuid.Nil
}

// Validate checks the appointment invariants.
func (a Appointment) Validate() error {
	if a.ID == uuid.Nil {
		return &ValidationError{Field: "ID", Message: "required"}
	}
	if a.StartDate.IsZero() || a.EndDate.IsZero() {
		return &ValidationError{Field: "StartDate", Message: "start and end dates are required"}
	}
	if a.StartDate.After(a.EndDate) {
		return &ValidationError{Field: "EndDate", Message: "must not be before start date"}
	}
	if !a.Status.IsValid() {
		return &ValidationError{Field: "Status", Message: "unknown status " + string(a.Status)}
	}
	if a.Type != "" && !a.Type.IsValid() {
		return &ValidationError{Field: "Type", Message: "unknown type " + string(a.Type)}
	}
	return nil
}

// Equal compares two appointments field by field, using time.Equal for timestamps.
func (a Appointment) Equal(b Appointment) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Notes == b.Notes &&
		a.StartDate.Equal(b.StartDate) &&
		a.EndDate.Equal(b.EndDate) &&
		a.Location == b.Location &&
		equalUUIDPtr(a.LeadID, b.LeadID) &&
		a.CalendarEventID == b.CalendarEventID &&
		a.Type == b.Type &&
		equalUUIDPtr(a.CustomTypeID, b.CustomTypeID) &&
		a.Status == b.Status &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}

// LeadStatus classifies how far a lead has progressed.
type LeadStatus string

const (
	LeadNotContacted  LeadStatus = "not_contacted"
	LeadNotHome       LeadStatus = "not_home"
	LeadInterested    LeadStatus = "interested"
	LeadConverted     LeadStatus = "converted"
	LeadNotInterested LeadStatus = "not_interested"
)

// ValidLeadStatuses returns all lead statuses.
func ValidLeadStatuses() []LeadStatus {
	return []LeadStatus{
		LeadNotContacted,
		LeadNotHome,
		LeadInterested,
		LeadConverted,
		LeadNotInterested,
	}
}

// IsValid checks if the status is a known lead status.
func (s LeadStatus) IsValid() bool {
	for _, valid := range ValidLeadStatuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// Lead is a prospect a rep is working.
type Lead struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name,omitempty"`
	Phone             string     `json:"phone,omitempty"`
	Email             string     `json:"email,omitempty"`
	Address           string     `json:"address,omitempty"`
	Latitude          float64    `json:"latitude,omitempty"`
	Longitude         float64    `json:"longitude,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	Price             float64    `json:"price,omitempty"`
	Status            LeadStatus `json:"status"`
	FollowUpDate      *time.Time `json:"follow_up_date,omitempty"`
	ServiceCategoryID *uuid.UUID `json:"service_category_id,omitempty"`
	AreaID            *uuid.UUID `json:"area_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Validate checks the lead invariants. A lead needs a name or an address.
func (l Lead) Validate() error {
	if l.ID == uuid.Nil {
		return &ValidationError{Field: "ID", Message: "required"}
	}
	if strings.TrimSpace(l.Name) == "" && strings.TrimSpace(l.Address) == "" {
		return &ValidationError{Field: "Name", Message: "a lead needs a name or an address"}
	}
	if !l.Status.IsValid() {
		return &ValidationError{Field: "Status", Message: "unknown status " + string(l.Status)}
	}
	if l.Price < 0 {
		return &ValidationError{Field: "Price", Message: "must be non-negative"}
	}
	return nil
}

// DisplayName returns the name, falling back to the address.
func (l Lead) DisplayName() string {
	if name := strings.TrimSpace(l.Name); name != "" {
		return name
	}
	return strings.TrimSpace(l.Address)
}

// ContactChannel is how a rep reached a lead during a check-in.
type ContactChannel string

const (
	ChannelCall     ContactChannel = "call"
	ChannelText     ContactChannel = "text"
	ChannelEmail    ContactChannel = "email"
	ChannelInPerson ContactChannel = "in_person"
)

// IsValid checks if the channel is known.
func (c ContactChannel) IsValid() bool {
	switch c {
	case ChannelCall, ChannelText, ChannelEmail, ChannelInPerson:
		return true
	}
	return false
}

// CheckInOutcome records what happened on a follow-up. Older records may
// carry an empty outcome until backfilled.
type CheckInOutcome string

const (
	OutcomeUnknown       CheckInOutcome = ""
	OutcomeNoAnswer      CheckInOutcome = "no_answer"
	OutcomeLeftMessage   CheckInOutcome = "left_message"
	OutcomeSpoke         CheckInOutcome = "spoke"
	OutcomeScheduled     CheckInOutcome = "scheduled"
	OutcomeNotInterested CheckInOutcome = "not_interested"
)

// DefaultCheckInOutcome is assigned to legacy check-ins during backfill.
const DefaultCheckInOutcome = OutcomeNoAnswer

// IsValid checks if the outcome is a known, non-empty outcome.
func (o CheckInOutcome) IsValid() bool {
	switch o {
	case OutcomeNoAnswer, OutcomeLeftMessage, OutcomeSpoke, OutcomeScheduled, OutcomeNotInterested:
		return true
	}
	return false
}

// FollowUpCheckIn is a single contact attempt, owned by one lead.
type FollowUpCheckIn struct {
	ID        uuid.UUID      `json:"id"`
	LeadID    uuid.UUID      `json:"lead_id"`
	Timestamp time.Time      `json:"timestamp"`
	Channel   ContactChannel `json:"channel"`
	Outcome   CheckInOutcome `json:"outcome,omitempty"`
	Notes     string         `json:"notes,omitempty"`
}

// Validate checks the check-in invariants. An empty outcome is allowed.
func (c FollowUpCheckIn) Validate() error {
	if c.ID == uuid.Nil {
		return &ValidationError{Field: "ID", Message: "required"}
	}
	if c.LeadID == uuid.Nil {
		return &ValidationError{Field: "LeadID", Message: "required"}
	}
	if !c.Channel.IsValid() {
		return &ValidationError{Field: "Channel", Message: "unknown channel " + string(c.Channel)}
	}
	if c.Outcome != OutcomeUnknown && !c.Outcome.IsValid() {
		return &ValidationError{Field: "Outcome", Message: "unknown outcome " + string(c.Outcome)}
	}
	return nil
}

// Account is a locally persisted identity record.
type Account struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	DisplayName    string     `json:"display_name,omitempty"`
	PasswordHash   string     `json:"-"`
	ResetToken     string     `json:"-"`
	ResetExpiresAt *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Preference keys persisted in the local store.
const (
	PrefGuestMode          = "guest_mode"
	PrefCleared            = "cleared"
	PrefSessionToken       = "session_token"
	PrefLocale             = "locale"
	PrefSkipPasswordSave   = "skip_password_save_prompt"
	PrefKeychainPrompted   = "keychain_prompted"
	PrefCheckInBackfillRun = "checkin_outcome_backfilled"
	PrefLastSync           = "last_sync"
)

// PreservedPreferences lists preference keys that survive a local sign-out clear.
func PreservedPreferences() []string {
	return []string{PrefLocale, PrefSkipPasswordSave, PrefKeychainPrompted, PrefCleared}
}

// StoreStats contains statistics about the local store.
type StoreStats struct {
	LeadCount        int    `json:"lead_count"`
	CheckInCount     int    `json:"checkin_count"`
	AppointmentCount int    `json:"appointment_count"`
	PendingDeletes   int    `json:"pending_deletes"`
	SchemaVersion    string `json:"schema_version"`
}

func equalUUIDPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
