package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperengineering/canvass"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv points the CLI at a fresh database and clears global flag state.
// It returns the database path.
func testEnv(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "canvass.db")
	t.Setenv("HOME", dir)
	t.Setenv("CANVASS_DB_PATH", dbPath)
	t.Setenv("CANVASS_JWT_SECRET", "test-secret")
	for _, name := range []string{"CANVASS_PROFILE", "CANVASS_REMOTE_URL", "CANVASS_REMOTE_DIR", "CANVASS_API_KEY", "CANVASS_PASSWORD", "CANVASS_SYNC_INTERVAL"} {
		t.Setenv(name, "")
	}

	resetFlags(rootCmd)
	v = newViper(rootCmd.PersistentFlags())
	stdoutIsTerminal = func() bool { return false }
	t.Cleanup(func() { resetFlags(rootCmd) })
	return dbPath
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// run executes one CLI invocation and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "canvass %v", args)
	return out
}

func addLeadJSON(t *testing.T, args ...string) canvass.Lead {
	t.Helper()
	out := mustRun(t, append([]string{"lead", "add", "--json"}, args...)...)
	var lead canvass.Lead
	require.NoError(t, json.Unmarshal([]byte(out), &lead), out)
	return lead
}

func listLeadsJSON(t *testing.T) []canvass.Lead {
	t.Helper()
	out := mustRun(t, "lead", "list", "--json")
	var leads []canvass.Lead
	require.NoError(t, json.Unmarshal([]byte(out), &leads), out)
	return leads
}

var helpInstalled bool

func TestCLI_Help_ListsAllCommands(t *testing.T) {
	testEnv(t)
	if !helpInstalled {
		initHelp(rootCmd)
		helpInstalled = true
	}

	out := mustRun(t, "--help")

	for _, name := range []string{"lead", "appt", "sync", "status", "auth", "serve", "mcp", "export", "import", "version"} {
		assert.Contains(t, out, name)
	}
	for _, header := range []string{"Field Work:", "Account & Sync:", "Other Commands:", "Environment:"} {
		assert.Contains(t, out, header)
	}
	assert.Contains(t, out, "CANVASS_JWT_SECRET")
}

func TestCLI_Help_ShowsAliases(t *testing.T) {
	testEnv(t)
	if !helpInstalled {
		initHelp(rootCmd)
		helpInstalled = true
	}

	out := mustRun(t, "appt", "--help")
	assert.Contains(t, out, "Aliases:")
	assert.Contains(t, out, "appointment")
	assert.NotContains(t, out, "Environment:")
}

func TestCLI_LeadAddAndList(t *testing.T) {
	testEnv(t)

	lead := addLeadJSON(t, "--name", "Dana Whitfield", "--address", "12 Elm St", "--phone", "555-0101", "--price", "4200")
	assert.Equal(t, "Dana Whitfield", lead.Name)
	assert.Equal(t, canvass.LeadNotContacted, lead.Status)

	leads := listLeadsJSON(t)
	require.Len(t, leads, 1)
	assert.Equal(t, lead.ID, leads[0].ID)
	assert.Equal(t, 4200.0, leads[0].Price)

	out := mustRun(t, "lead", "list", "elm")
	assert.Contains(t, out, "Dana Whitfield")
	assert.Contains(t, out, shortID(lead.ID))
}

func TestCLI_LeadAdd_DuplicateContactShowsExisting(t *testing.T) {
	testEnv(t)
	first := addLeadJSON(t, "--name", "Dana Whitfield", "--phone", "555-0101")

	out := mustRun(t, "lead", "add", "--name", "D. Whitfield", "--phone", "555-0101")

	assert.Contains(t, out, "already exists")
	assert.Contains(t, out, shortID(first.ID))
	assert.Len(t, listLeadsJSON(t), 1)
}

func TestCLI_LeadAdd_RequiresNameOrAddress(t *testing.T) {
	testEnv(t)

	_, err := run(t, "lead", "add", "--phone", "555-0101")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "name or an address")
	assert.Equal(t, canvass.KindValidation, canvass.KindOf(err))
}

func TestCLI_LeadAdd_BadFollowUp(t *testing.T) {
	testEnv(t)

	_, err := run(t, "lead", "add", "--name", "Dana", "--follow-up", "purple monkey dishwasher")

	var ve *canvass.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Date", ve.Field)
}

func TestCLI_LeadCheckIn_ByPrefix(t *testing.T) {
	testEnv(t)
	lead := addLeadJSON(t, "--name", "Dana Whitfield")

	mustRun(t, "lead", "checkin", shortID(lead.ID), "--channel", "call", "--outcome", "not_interested")

	out := mustRun(t, "lead", "show", lead.ID.String(), "--json")
	var shown struct {
		Lead     canvass.Lead              `json:"lead"`
		CheckIns []canvass.FollowUpCheckIn `json:"checkins"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, canvass.LeadNotInterested, shown.Lead.Status)
	require.Len(t, shown.CheckIns, 1)
	assert.Equal(t, canvass.ChannelCall, shown.CheckIns[0].Channel)
}

func TestCLI_LeadStatusAndDelete(t *testing.T) {
	testEnv(t)
	lead := addLeadJSON(t, "--name", "Dana Whitfield")

	_, err := run(t, "lead", "status", shortID(lead.ID), "sold")
	assert.Error(t, err)

	mustRun(t, "lead", "status", shortID(lead.ID), "interested")
	leads := listLeadsJSON(t)
	require.Len(t, leads, 1)
	assert.Equal(t, canvass.LeadInterested, leads[0].Status)

	mustRun(t, "lead", "delete", shortID(lead.ID))
	assert.Empty(t, listLeadsJSON(t))

	_, err = run(t, "lead", "show", shortID(lead.ID))
	assert.ErrorIs(t, err, canvass.ErrNotFound)
}

func TestCLI_AppointmentScheduleListCancel(t *testing.T) {
	testEnv(t)
	lead := addLeadJSON(t, "--name", "Dana Whitfield", "--address", "12 Elm St")

	out := mustRun(t, "appt", "schedule", "Roof estimate",
		"--start", "2026-11-02 15:00", "--duration", "90m",
		"--lead", shortID(lead.ID), "--type", "estimate", "--json")
	var appt canvass.Appointment
	require.NoError(t, json.Unmarshal([]byte(out), &appt), out)
	assert.Equal(t, 90*time.Minute, appt.EndDate.Sub(appt.StartDate))
	require.NotNil(t, appt.LeadID)
	assert.Equal(t, lead.ID, *appt.LeadID)
	assert.Equal(t, "12 Elm St", appt.Location)
	assert.Equal(t, canvass.AppointmentEstimate, appt.Type)

	out = mustRun(t, "appt", "list", "--lead", shortID(lead.ID))
	assert.Contains(t, out, "Roof estimate")

	mustRun(t, "appt", "cancel", shortID(appt.ID))

	out = mustRun(t, "appt", "list", "--status", "cancelled", "--json")
	var cancelled []canvass.Appointment
	require.NoError(t, json.Unmarshal([]byte(out), &cancelled))
	require.Len(t, cancelled, 1)
	assert.Equal(t, appt.ID, cancelled[0].ID)
}

func TestCLI_Sync_RequiresSession(t *testing.T) {
	testEnv(t)

	_, err := run(t, "sync")

	assert.ErrorIs(t, err, canvass.ErrNoSession)
	assert.Equal(t, canvass.KindAuthentication, canvass.KindOf(err))
}

func TestCLI_SignUpSessionSurvivesRestart(t *testing.T) {
	testEnv(t)
	addLeadJSON(t, "--name", "Dana Whitfield")

	mustRun(t, "auth", "signup", "rep@example.com", "--password", "hunter22")

	out := mustRun(t, "sync", "--json")
	var result struct {
		Pushed    int  `json:"pushed"`
		NoSession bool `json:"no_session"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.False(t, result.NoSession)
	assert.Equal(t, 1, result.Pushed)

	out = mustRun(t, "status")
	assert.Contains(t, out, "Signed in as rep@example.com")
}

func TestCLI_SignIn_PasswordFromEnv(t *testing.T) {
	testEnv(t)
	mustRun(t, "auth", "signup", "rep@example.com", "--password", "hunter22")
	mustRun(t, "auth", "signout")

	t.Setenv("CANVASS_PASSWORD", "wrong-password")
	_, err := run(t, "auth", "signin", "rep@example.com")
	assert.ErrorIs(t, err, canvass.ErrInvalidCredentials)

	t.Setenv("CANVASS_PASSWORD", "hunter22")
	out := mustRun(t, "auth", "signin", "rep@example.com")
	assert.Contains(t, out, "Signed in as rep@example.com")
}

func TestCLI_SignOut_ClearsLocalData(t *testing.T) {
	testEnv(t)
	mustRun(t, "auth", "signup", "rep@example.com", "--password", "hunter22")
	addLeadJSON(t, "--name", "Dana Whitfield")

	out := mustRun(t, "auth", "signout", "--json")
	var report signOutOutput
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Equal(t, "done", report.WaitResult)
	assert.False(t, report.SyncTimedOut)
	assert.Equal(t, 1, report.Pushed)

	assert.Empty(t, listLeadsJSON(t))
	out = mustRun(t, "status")
	assert.Contains(t, out, "Not signed in")
}

func TestCLI_GuestMode(t *testing.T) {
	testEnv(t)

	mustRun(t, "auth", "guest")

	out := mustRun(t, "status", "--json")
	var st struct {
		Guest bool `json:"guest"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Guest)

	_, err := run(t, "auth", "convert", "rep@example.com", "--password", "x")
	var ve *canvass.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestCLI_SignUpInGuestModePointsToConvert(t *testing.T) {
	testEnv(t)
	mustRun(t, "auth", "guest")

	_, err := run(t, "auth", "signup", "rep@example.com", "--password", "hunter22")
	require.Error(t, err)
	assert.ErrorIs(t, err, canvass.ErrGuestMode)
	assert.Contains(t, err.Error(), "canvass auth convert rep@example.com")
}

func TestCLI_ExportImportRoundTrip(t *testing.T) {
	dbPath := testEnv(t)
	addLeadJSON(t, "--name", "Dana Whitfield")
	addLeadJSON(t, "--name", "Marcus Oyelaran")
	backup := filepath.Join(filepath.Dir(dbPath), "backup.json")

	mustRun(t, "export", "-o", backup)

	t.Setenv("CANVASS_DB_PATH", filepath.Join(t.TempDir(), "restored.db"))
	out := mustRun(t, "import", "-i", backup, "--dry-run", "--json")
	var dry canvass.ImportResult
	require.NoError(t, json.Unmarshal([]byte(out), &dry))
	assert.Equal(t, 2, dry.Created)
	assert.Empty(t, listLeadsJSON(t))

	mustRun(t, "import", "-i", backup)
	assert.Len(t, listLeadsJSON(t), 2)
}

func TestCLI_ConfigFile(t *testing.T) {
	testEnv(t)
	t.Setenv("CANVASS_DB_PATH", "")
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "from-config.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("db_path: "+dbPath+"\njwt_secret: s\n"), 0644))

	mustRun(t, "--config", cfgPath, "lead", "add", "--name", "Dana Whitfield")

	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestCLI_InvalidConfig(t *testing.T) {
	testEnv(t)
	t.Setenv("CANVASS_REMOTE_URL", "http://localhost:8080")

	_, err := run(t, "status")

	var ve *canvass.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "APIKey", ve.Field)
}

func TestOutputError_ScrubsAPIKey(t *testing.T) {
	testEnv(t)
	t.Setenv("CANVASS_API_KEY", "sk-very-secret")

	var buf bytes.Buffer
	outputError(&buf, errors.New("request with sk-very-secret failed"))

	assert.NotContains(t, buf.String(), "sk-very-secret")
	assert.Contains(t, buf.String(), "[REDACTED]")
}

func TestOutputError_UserMessageForNetwork(t *testing.T) {
	testEnv(t)

	var buf bytes.Buffer
	outputError(&buf, canvass.E(canvass.KindNetwork, "push", errors.New("dial tcp: refused")))

	assert.Contains(t, buf.String(), "Your changes are saved")
	assert.Contains(t, buf.String(), "dial tcp: refused")
}
