package canvass

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestExportImport_JSON(t *testing.T) {
	src := newTestStore(t)
	lead := testLead("Ada")
	_ = src.SaveLead(lead)
	_ = src.SaveCheckIn(FollowUpCheckIn{ID: uuid.New(), LeadID: lead.ID, Timestamp: time.Now(), Channel: ChannelEmail, Outcome: OutcomeSpoke})
	_ = src.SaveAppointment(testAppointment(time.Now().UTC()))

	var buf bytes.Buffer
	if err := src.ExportJSON(context.Background(), "field", &buf); err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	var decoded ExportFormat
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if decoded.Version != ExportVersion || decoded.Profile != "field" {
		t.Errorf("header = %q/%q", decoded.Version, decoded.Profile)
	}

	dst := newTestStore(t)
	result, err := dst.ImportJSON(context.Background(), bytes.NewReader(buf.Bytes()), MergeStrategyMerge, false)
	if err != nil {
		t.Fatalf("ImportJSON failed: %v", err)
	}
	if result.Total != 3 || result.Created != 3 || len(result.Errors) != 0 {
		t.Errorf("result = %+v, want 3 created", result)
	}

	// Importing again with skip leaves everything alone.
	again, err := dst.ImportJSON(context.Background(), bytes.NewReader(buf.Bytes()), MergeStrategySkip, false)
	if err != nil {
		t.Fatalf("second ImportJSON failed: %v", err)
	}
	if again.Skipped != 3 {
		t.Errorf("second import skipped %d, want 3", again.Skipped)
	}
}

func TestImportJSON_DryRun(t *testing.T) {
	src := newTestStore(t)
	_ = src.SaveLead(testLead("Ada"))
	var buf bytes.Buffer
	_ = src.ExportJSON(context.Background(), "default", &buf)

	dst := newTestStore(t)
	result, err := dst.ImportJSON(context.Background(), &buf, MergeStrategyMerge, true)
	if err != nil {
		t.Fatalf("ImportJSON failed: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("dry run Created = %d, want 1", result.Created)
	}
	stats, _ := dst.Stats()
	if stats.LeadCount != 0 {
		t.Errorf("dry run wrote %d leads", stats.LeadCount)
	}
}

func TestImportJSON_RejectsUnknownVersion(t *testing.T) {
	store := newTestStore(t)
	_, err := store.ImportJSON(context.Background(), strings.NewReader(`{"version":"9.9"}`), MergeStrategyMerge, false)
	if err == nil || !strings.Contains(err.Error(), "unsupported export version") {
		t.Errorf("ImportJSON() error = %v", err)
	}
}

func TestExportSQLite(t *testing.T) {
	store := newTestStore(t)
	_ = store.SaveLead(testLead("Ada"))

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := store.ExportSQLite(context.Background(), dest); err != nil {
		t.Fatalf("ExportSQLite failed: %v", err)
	}

	copyStore, err := NewStore(dest)
	if err != nil {
		t.Fatalf("open backup failed: %v", err)
	}
	defer copyStore.Close()
	leads, _ := copyStore.ListLeads(LeadFilter{})
	if len(leads) != 1 {
		t.Errorf("backup has %d leads, want 1", len(leads))
	}
}
