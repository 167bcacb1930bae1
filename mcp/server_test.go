package mcp_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/app"
	"github.com/hyperengineering/canvass/internal/remote"
	canvassmcp "github.com/hyperengineering/canvass/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*canvassmcp.Server, *app.App) {
	t.Helper()
	dir := t.TempDir()
	a, err := app.New(canvass.Config{
		LocalPath: filepath.Join(dir, "canvass.db"),
		CacheDir:  filepath.Join(dir, "cache"),
		JWTSecret: "test-secret",
	}, app.WithRemote(remote.NewMemoryStore()))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return canvassmcp.NewServer(a), a
}

func call(t *testing.T, s *canvassmcp.Server, name string, args map[string]any) *canvassmcp.ToolResult {
	t.Helper()
	res, err := s.CallTool(context.Background(), name, args)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestServer_ToolsList(t *testing.T) {
	s, _ := newTestServer(t)

	names := map[string]bool{}
	for _, tool := range s.ListTools() {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"canvass_lead_add",
		"canvass_lead_search",
		"canvass_appointment_schedule",
		"canvass_appointment_cancel",
		"canvass_sync",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

func TestTool_LeadAdd(t *testing.T) {
	s, a := newTestServer(t)

	res := call(t, s, "canvass_lead_add", map[string]any{
		"name":      "Dana Whitfield",
		"address":   "12 Elm St",
		"phone":     "555-0101",
		"price":     float64(4200),
		"follow_up": "2026-11-02 10:00",
	})
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "Added lead [L1] Dana Whitfield")
	assert.Contains(t, res.Content, "Follow up: Mon Nov 2 2026")

	leads, err := a.Store().ListLeads(canvass.LeadFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, 4200.0, leads[0].Price)
	require.NotNil(t, leads[0].FollowUpDate)
}

func TestTool_LeadAdd_DuplicateReturnsExisting(t *testing.T) {
	s, _ := newTestServer(t)
	call(t, s, "canvass_lead_add", map[string]any{"name": "Dana Whitfield", "phone": "555-0101"})

	res := call(t, s, "canvass_lead_add", map[string]any{"name": "D. Whitfield", "phone": "555-0101"})

	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "Found existing lead [L1] Dana Whitfield")
}

func TestTool_LeadAdd_Invalid(t *testing.T) {
	s, _ := newTestServer(t)

	res := call(t, s, "canvass_lead_add", map[string]any{"phone": "555-0101"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "a lead needs a name or an address")

	res = call(t, s, "canvass_lead_add", map[string]any{"name": "Dana", "follow_up": "whenever"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "invalid follow_up")
}

func TestTool_LeadSearch(t *testing.T) {
	s, _ := newTestServer(t)
	call(t, s, "canvass_lead_add", map[string]any{"name": "Dana Whitfield", "address": "12 Elm St"})
	call(t, s, "canvass_lead_add", map[string]any{"name": "Marcus Oyelaran", "address": "40 Oak Ave"})

	res := call(t, s, "canvass_lead_search", map[string]any{"query": "oak"})
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "Found 1 leads")
	assert.Contains(t, res.Content, "[L2] Marcus Oyelaran (not_contacted)")

	res = call(t, s, "canvass_lead_search", map[string]any{"status": []any{"converted"}})
	assert.Equal(t, "No matching leads found.", res.Content)

	res = call(t, s, "canvass_lead_search", map[string]any{"status": []any{"sold"}})
	assert.True(t, res.IsError)
}

func TestTool_CheckIn(t *testing.T) {
	s, a := newTestServer(t)
	call(t, s, "canvass_lead_add", map[string]any{"name": "Dana Whitfield"})

	res := call(t, s, "canvass_checkin", map[string]any{"lead": "L1", "channel": "call", "outcome": "not_interested"})
	require.False(t, res.IsError, res.Content)
	assert.Equal(t, "Recorded call check-in: not_interested", res.Content)

	leads, err := a.Store().ListLeads(canvass.LeadFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, canvass.LeadNotInterested, leads[0].Status)

	res = call(t, s, "canvass_checkin", map[string]any{"lead": "L7"})
	assert.True(t, res.IsError)
}

func TestTool_ScheduleAndCancelAppointment(t *testing.T) {
	s, a := newTestServer(t)
	call(t, s, "canvass_lead_add", map[string]any{"name": "Dana Whitfield"})

	res := call(t, s, "canvass_appointment_schedule", map[string]any{
		"title":            "Roof estimate",
		"start":            "2026-11-02 15:00",
		"duration_minutes": float64(90),
		"lead":             "L1",
		"type":             "estimate",
	})
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "Scheduled [A1] Roof estimate")
	assert.Contains(t, res.Content, "Type: estimate")

	appts, err := a.Store().ListAppointments(canvass.AppointmentFilter{})
	require.NoError(t, err)
	require.Len(t, appts, 1)
	require.NotNil(t, appts[0].LeadID)
	assert.Equal(t, canvass.AppointmentEstimate, appts[0].Type)
	assert.Equal(t, 90*time.Minute, appts[0].EndDate.Sub(appts[0].StartDate))

	res = call(t, s, "canvass_appointment_cancel", map[string]any{"appointment": "A1"})
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "Cancelled Roof estimate")

	got, err := a.Store().GetAppointment(appts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, canvass.AppointmentCancelled, got.Status)
}

func TestTool_ScheduleAppointment_Invalid(t *testing.T) {
	s, _ := newTestServer(t)

	res := call(t, s, "canvass_appointment_schedule", map[string]any{"start": "2026-11-02 15:00"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "title is required")

	res = call(t, s, "canvass_appointment_schedule", map[string]any{"title": "Visit", "start": "someday maybe"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "invalid start")

	res = call(t, s, "canvass_appointment_cancel", map[string]any{"appointment": "A3"})
	assert.True(t, res.IsError)
}

func TestTool_Sync(t *testing.T) {
	s, a := newTestServer(t)

	res := call(t, s, "canvass_sync", nil)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "signed-in account")

	_, err := a.SignUp(context.Background(), "rep@example.com", "hunter22", "")
	require.NoError(t, err)
	call(t, s, "canvass_lead_add", map[string]any{"name": "Dana Whitfield"})

	require.Eventually(t, func() bool {
		res = call(t, s, "canvass_sync", nil)
		return !res.IsError
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, res.Content, "Sync completed: 1 pushed")
}

func TestTool_Status(t *testing.T) {
	s, a := newTestServer(t)
	require.NoError(t, a.ContinueAsGuest())
	call(t, s, "canvass_lead_add", map[string]any{"name": "Dana Whitfield"})

	res := call(t, s, "canvass_status", nil)

	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, "Guest mode")
	assert.Contains(t, res.Content, "Leads: 1")
}

func TestTool_Unknown(t *testing.T) {
	s, _ := newTestServer(t)
	res := call(t, s, "canvass_nope", nil)
	assert.True(t, res.IsError)
	assert.Equal(t, "unknown tool: canvass_nope", res.Content)
}

func TestProtocol_Initialize(t *testing.T) {
	s, _ := newTestServer(t)
	req := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test-client","version":"1.0.0"}}}`

	resp := s.HandleMessage(context.Background(), []byte(req))
	require.NotNil(t, resp)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var body struct {
		Result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "canvass", body.Result.ServerInfo.Name)
}

func TestProtocol_UnknownMethod(t *testing.T) {
	s, _ := newTestServer(t)

	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"unknown/method","params":{}}`))

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var body struct {
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, -32601, body.Error.Code)
}
