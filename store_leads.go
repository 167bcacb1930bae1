package canvass

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LeadFilter narrows ListLeads. Zero values match everything.
type LeadFilter struct {
	Statuses          []LeadStatus
	Query             string // substring match on name, address, phone, email
	FollowUpDueBefore *time.Time
	AreaID            *uuid.UUID
	ServiceCategoryID *uuid.UUID
	Limit             int
}

const leadColumns = `id, name, phone, email, address, latitude, longitude, notes, price, status,
	follow_up_date, service_category_id, area_id, created_at, updated_at`

// SaveLead inserts or updates a lead by ID.
func (s *Store) SaveLead(lead Lead) error {
	if err := lead.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	var followUp *string
	if lead.FollowUpDate != nil {
		v := formatTime(*lead.FollowUpDate)
		followUp = &v
	}

	_, err := s.db.Exec(`
		INSERT INTO leads (`+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			email = excluded.email,
			address = excluded.address,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			notes = excluded.notes,
			price = excluded.price,
			status = excluded.status,
			follow_up_date = excluded.follow_up_date,
			service_category_id = excluded.service_category_id,
			area_id = excluded.area_id,
			updated_at = excluded.updated_at
	`,
		lead.ID.String(),
		lead.Name,
		nullString(lead.Phone),
		nullString(strings.ToLower(lead.Email)),
		lead.Address,
		lead.Latitude,
		lead.Longitude,
		nullString(lead.Notes),
		lead.Price,
		string(lead.Status),
		followUp,
		nullUUID(lead.ServiceCategoryID),
		nullUUID(lead.AreaID),
		formatTime(lead.CreatedAt),
		formatTime(lead.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: save lead: %w", err)
	}
	return nil
}

// GetLead retrieves a lead by ID.
func (s *Store) GetLead(id uuid.UUID) (*Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRow("SELECT "+leadColumns+" FROM leads WHERE id = ?", id.String())
	return scanLead(row)
}

// FindLeadByContact returns the first lead sharing a non-empty phone or email.
func (s *Store) FindLeadByContact(phone, email string) (*Lead, error) {
	phone = strings.TrimSpace(phone)
	email = strings.ToLower(strings.TrimSpace(email))
	if phone == "" && email == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRow(`
		SELECT `+leadColumns+` FROM leads
		WHERE (? != '' AND phone = ?) OR (? != '' AND email = ?)
		ORDER BY created_at LIMIT 1
	`, phone, phone, email, email)
	return scanLead(row)
}

// ListLeads returns leads matching the filter, most recently updated first.
func (s *Store) ListLeads(filter LeadFilter) ([]Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	query := "SELECT " + leadColumns + " FROM leads WHERE 1=1"
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ","))
	}

	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query += " AND (lower(name) LIKE ? OR lower(address) LIKE ? OR phone LIKE ? OR email LIKE ?)"
		args = append(args, like, like, like, like)
	}

	if filter.FollowUpDueBefore != nil {
		query += " AND follow_up_date IS NOT NULL AND follow_up_date <= ?"
		args = append(args, formatTime(*filter.FollowUpDueBefore))
	}

	if filter.AreaID != nil {
		query += " AND area_id = ?"
		args = append(args, filter.AreaID.String())
	}

	if filter.ServiceCategoryID != nil {
		query += " AND service_category_id = ?"
		args = append(args, filter.ServiceCategoryID.String())
	}

	query += " ORDER BY updated_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var results []Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *lead)
	}
	return results, rows.Err()
}

// DeleteLead removes a lead and its check-ins in one transaction. It returns
// the IDs of the deleted check-ins so callers can mirror the cascade remotely.
func (s *Store) DeleteLead(id uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	rows, err := tx.Query("SELECT id FROM checkins WHERE lead_id = ?", id.String())
	if err != nil {
		return nil, fmt.Errorf("store: query check-ins: %w", err)
	}
	var checkIns []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, err
		}
		if cid, err := uuid.Parse(raw); err == nil {
			checkIns = append(checkIns, cid)
		}
	}
	rows.Close()

	if _, err := tx.Exec("DELETE FROM checkins WHERE lead_id = ?", id.String()); err != nil {
		return nil, fmt.Errorf("store: delete check-ins: %w", err)
	}

	res, err := tx.Exec("DELETE FROM leads WHERE id = ?", id.String())
	if err != nil {
		return nil, fmt.Errorf("store: delete lead: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return checkIns, nil
}

func scanLead(sc scanner) (*Lead, error) {
	var (
		lead              Lead
		id                string
		phone             sql.NullString
		email             sql.NullString
		notes             sql.NullString
		status            string
		followUp          sql.NullString
		serviceCategoryID sql.NullString
		areaID            sql.NullString
		createdAt         string
		updatedAt         string
	)

	err := sc.Scan(
		&id,
		&lead.Name,
		&phone,
		&email,
		&lead.Address,
		&lead.Latitude,
		&lead.Longitude,
		&notes,
		&lead.Price,
		&status,
		&followUp,
		&serviceCategoryID,
		&areaID,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	lead.ID, _ = uuid.Parse(id)
	lead.Phone = phone.String
	lead.Email = email.String
	lead.Notes = notes.String
	lead.Status = LeadStatus(status)
	if followUp.Valid {
		t := parseTime(followUp.String)
		lead.FollowUpDate = &t
	}
	lead.ServiceCategoryID = parseNullUUID(serviceCategoryID)
	lead.AreaID = parseNullUUID(areaID)
	lead.CreatedAt = parseTime(createdAt)
	lead.UpdatedAt = parseTime(updatedAt)
	return &lead, nil
}

// ============================================================================
// Check-ins
// ============================================================================

// SaveCheckIn inserts or updates a check-in by ID. The owning lead must exist.
func (s *Store) SaveCheckIn(c FollowUpCheckIn) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM leads WHERE id = ?", c.LeadID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("store: check lead: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("store: check-in lead %s: %w", c.LeadID, ErrNotFound)
	}

	_, err := s.db.Exec(`
		INSERT INTO checkins (id, lead_id, timestamp, channel, outcome, notes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timestamp = excluded.timestamp,
			channel = excluded.channel,
			outcome = excluded.outcome,
			notes = excluded.notes
	`,
		c.ID.String(),
		c.LeadID.String(),
		formatTime(c.Timestamp),
		string(c.Channel),
		nullString(string(c.Outcome)),
		nullString(c.Notes),
	)
	if err != nil {
		return fmt.Errorf("store: save check-in: %w", err)
	}
	return nil
}

// ListCheckIns returns a lead's check-ins, newest first.
func (s *Store) ListCheckIns(leadID uuid.UUID) ([]FollowUpCheckIn, error) {
	return s.queryCheckIns("SELECT id, lead_id, timestamp, channel, outcome, notes FROM checkins WHERE lead_id = ? ORDER BY timestamp DESC", leadID.String())
}

// ListAllCheckIns returns every check-in, newest first.
func (s *Store) ListAllCheckIns() ([]FollowUpCheckIn, error) {
	return s.queryCheckIns("SELECT id, lead_id, timestamp, channel, outcome, notes FROM checkins ORDER BY timestamp DESC")
}

func (s *Store) queryCheckIns(query string, args ...any) ([]FollowUpCheckIn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query check-ins: %w", err)
	}
	defer rows.Close()

	var results []FollowUpCheckIn
	for rows.Next() {
		var (
			c         FollowUpCheckIn
			id        string
			leadID    string
			timestamp string
			channel   string
			outcome   sql.NullString
			notes     sql.NullString
		)
		if err := rows.Scan(&id, &leadID, &timestamp, &channel, &outcome, &notes); err != nil {
			return nil, err
		}
		c.ID, _ = uuid.Parse(id)
		c.LeadID, _ = uuid.Parse(leadID)
		c.Timestamp = parseTime(timestamp)
		c.Channel = ContactChannel(channel)
		c.Outcome = CheckInOutcome(outcome.String)
		c.Notes = notes.String
		results = append(results, c)
	}
	return results, rows.Err()
}

// BackfillCheckInOutcomes sets outcome on check-ins that have none.
// Returns the number of rows updated.
func (s *Store) BackfillCheckInOutcomes(outcome CheckInOutcome) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.Exec("UPDATE checkins SET outcome = ? WHERE outcome IS NULL OR outcome = ''", string(outcome))
	if err != nil {
		return 0, fmt.Errorf("store: backfill outcomes: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
