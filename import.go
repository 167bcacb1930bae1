package canvass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ImportJSON loads a backup written by ExportJSON. Leads are imported before
// check-ins so ownership can be verified. With dryRun nothing is written.
func (s *Store) ImportJSON(ctx context.Context, r io.Reader, strategy MergeStrategy, dryRun bool) (*ImportResult, error) {
	if strategy == "" {
		strategy = MergeStrategyMerge
	}

	var in ExportFormat
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	if in.Version == "" {
		return nil, fmt.Errorf("missing version field in export file")
	}
	if in.Version != ExportVersion {
		return nil, fmt.Errorf("unsupported export version %q (expected %q)", in.Version, ExportVersion)
	}

	result := &ImportResult{}

	for _, lead := range in.Leads {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, err := s.GetLead(lead.ID)
		s.importOne(result, "lead "+lead.ID.String(), err, strategy, dryRun, func() error {
			return s.SaveLead(lead)
		})
	}

	for _, c := range in.CheckIns {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		s.importOne(result, "check-in "+c.ID.String(), s.checkInExists(c), strategy, dryRun, func() error {
			return s.SaveCheckIn(c)
		})
	}

	for _, a := range in.Appointments {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, err := s.GetAppointment(a.ID)
		s.importOne(result, "appointment "+a.ID.String(), err, strategy, dryRun, func() error {
			return s.SaveAppointment(a)
		})
	}

	return result, nil
}

// importOne applies strategy to a single entry. lookupErr is the result of the
// existence check: nil means the entry exists, ErrNotFound means it is new.
func (s *Store) importOne(result *ImportResult, label string, lookupErr error, strategy MergeStrategy, dryRun bool, save func() error) {
	result.Total++

	exists := lookupErr == nil
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		result.Errors = append(result.Errors, fmt.Sprintf("check existence %s: %v", label, lookupErr))
		return
	}

	if exists && strategy == MergeStrategySkip {
		result.Skipped++
		return
	}

	if !dryRun {
		if err := save(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("import %s: %v", label, err))
			return
		}
	}

	if exists {
		result.Merged++
	} else {
		result.Created++
	}
}

func (s *Store) checkInExists(c FollowUpCheckIn) error {
	existing, err := s.ListCheckIns(c.LeadID)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.ID == c.ID {
			return nil
		}
	}
	return ErrNotFound
}
