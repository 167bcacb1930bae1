package canvass

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AppointmentFilter narrows ListAppointments. Zero values match everything.
type AppointmentFilter struct {
	From     *time.Time
	To       *time.Time
	Statuses []AppointmentStatus
	LeadID   *uuid.UUID
	Limit    int
}

const appointmentColumns = `id, title, notes, start_date, end_date, location, lead_id,
	calendar_event_id, type, custom_type_id, status, created_at, updated_at`

const upsertAppointmentSQL = `
	INSERT INTO appointments (` + appointmentColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		notes = excluded.notes,
		start_date = excluded.start_date,
		end_date = excluded.end_date,
		location = excluded.location,
		lead_id = excluded.lead_id,
		calendar_event_id = excluded.calendar_event_id,
		type = excluded.type,
		custom_type_id = excluded.custom_type_id,
		status = excluded.status,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertAppointment(ex execer, a Appointment) error {
	_, err := ex.Exec(upsertAppointmentSQL,
		a.ID.String(),
		a.Title,
		nullString(a.Notes),
		formatTime(a.StartDate),
		formatTime(a.EndDate),
		nullString(a.Location),
		nullUUID(a.LeadID),
		nullString(a.CalendarEventID),
		nullString(string(a.Type)),
		nullUUID(a.CustomTypeID),
		string(a.Status),
		formatTime(a.CreatedAt),
		formatTime(a.UpdatedAt),
	)
	return err
}

// SaveAppointment inserts or updates an appointment by ID. Saving the same ID
// twice updates the existing row.
func (s *Store) SaveAppointment(a Appointment) error {
	if err := a.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if err := upsertAppointment(s.db, a); err != nil {
		return fmt.Errorf("store: save appointment: %w", err)
	}
	return nil
}

// UpsertAppointments writes the given appointments by ID in one transaction.
// Rows not in appts are left alone. Either every row is written or none is.
func (s *Store) UpsertAppointments(appts []Appointment) error {
	for _, a := range appts {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("store: appointment %s: %w", a.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range appts {
		if err := upsertAppointment(tx, a); err != nil {
			return fmt.Errorf("store: save appointment %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// GetAppointment retrieves an appointment by ID.
func (s *Store) GetAppointment(id uuid.UUID) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRow("SELECT "+appointmentColumns+" FROM appointments WHERE id = ?", id.String())
	return scanAppointment(row)
}

// ListAppointments returns appointments matching the filter ordered by start date.
func (s *Store) ListAppointments(filter AppointmentFilter) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	query := "SELECT " + appointmentColumns + " FROM appointments WHERE 1=1"
	args := []any{}

	if filter.From != nil {
		query += " AND start_date >= ?"
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		query += " AND start_date < ?"
		args = append(args, formatTime(*filter.To))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ","))
	}
	if filter.LeadID != nil {
		query += " AND lead_id = ?"
		args = append(args, filter.LeadID.String())
	}

	query += " ORDER BY start_date, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var results []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *a)
	}
	return results, rows.Err()
}

// DeleteAppointment removes an appointment.
func (s *Store) DeleteAppointment(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.Exec("DELETE FROM appointments WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("store: delete appointment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearAppointments removes every local appointment. Remote copies are untouched.
func (s *Store) ClearAppointments() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec("DELETE FROM appointments"); err != nil {
		return fmt.Errorf("store: clear appointments: %w", err)
	}
	return nil
}

func scanAppointment(sc scanner) (*Appointment, error) {
	var (
		a               Appointment
		id              string
		notes           sql.NullString
		startDate       string
		endDate         string
		location        sql.NullString
		leadID          sql.NullString
		calendarEventID sql.NullString
		apptType        sql.NullString
		customTypeID    sql.NullString
		status          string
		createdAt       string
		updatedAt       string
	)

	err := sc.Scan(
		&id,
		&a.Title,
		&notes,
		&startDate,
		&endDate,
		&location,
		&leadID,
		&calendarEventID,
		&apptType,
		&customTypeID,
		&status,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.ID, _ = uuid.Parse(id)
	a.Notes = notes.String
	a.StartDate = parseTime(startDate)
	a.EndDate = parseTime(endDate)
	a.Location = location.String
	a.LeadID = parseNullUUID(leadID)
	a.CalendarEventID = calendarEventID.String
	a.Type = AppointmentType(apptType.String)
	a.CustomTypeID = parseNullUUID(customTypeID)
	a.Status = AppointmentStatus(status)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}
