package canvass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// ExportVersion is the current version of the backup format.
const ExportVersion = "1.0"

// ExportFormat is the top-level structure for JSON backups.
type ExportFormat struct {
	Version      string            `json:"version"`
	ExportedAt   time.Time         `json:"exported_at"`
	Profile      string            `json:"profile"`
	Leads        []Lead            `json:"leads"`
	CheckIns     []FollowUpCheckIn `json:"checkins"`
	Appointments []Appointment     `json:"appointments"`
}

// MergeStrategy defines how to handle conflicts during import.
type MergeStrategy string

const (
	// MergeStrategySkip skips entries that already exist (by ID).
	MergeStrategySkip MergeStrategy = "skip"
	// MergeStrategyMerge upserts entries by ID (default).
	MergeStrategyMerge MergeStrategy = "merge"
)

// ImportResult summarizes an import operation.
type ImportResult struct {
	Total   int      `json:"total"`
	Created int      `json:"created"`
	Merged  int      `json:"merged"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// ExportJSON writes every lead, check-in and appointment as one JSON document.
func (s *Store) ExportJSON(ctx context.Context, profileName string, w io.Writer) error {
	leads, err := s.ListLeads(LeadFilter{})
	if err != nil {
		return fmt.Errorf("export leads: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	checkIns, err := s.ListAllCheckIns()
	if err != nil {
		return fmt.Errorf("export check-ins: %w", err)
	}
	appts, err := s.ListAppointments(AppointmentFilter{})
	if err != nil {
		return fmt.Errorf("export appointments: %w", err)
	}

	out := ExportFormat{
		Version:      ExportVersion,
		ExportedAt:   time.Now().UTC(),
		Profile:      profileName,
		Leads:        nonNil(leads),
		CheckIns:     nonNil(checkIns),
		Appointments: nonNil(appts),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// ExportSQLite exports the store to a SQLite database file.
// It performs a WAL checkpoint first to ensure consistency, then copies the database file.
func (s *Store) ExportSQLite(ctx context.Context, destPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint WAL: %w", err)
	}

	srcFile, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer srcFile.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, srcFile); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("copy database: %w", err)
	}

	return destFile.Sync()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
