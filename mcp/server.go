// Package mcp exposes canvass to coding and assistant agents over the Model
// Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperengineering/canvass/internal/app"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server with canvass tools.
type Server struct {
	app       *app.App
	mcpServer *server.MCPServer
	session   *Session
	now       func() time.Time
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

type toolHandler func(ctx context.Context, args map[string]any) (*ToolResult, error)

// NewServer creates an MCP server bound to a started app.
func NewServer(a *app.App) *Server {
	s := &Server{
		app:     a,
		session: NewSession(),
		now:     time.Now,
	}
	s.mcpServer = server.NewMCPServer(
		"canvass",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// Run serves MCP over stdin and stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message. Used by protocol tests.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "canvass_lead_add", Description: "Add a lead, or return the existing one with the same phone or email"},
		{Name: "canvass_lead_search", Description: "Search leads by text, status or follow-up date"},
		{Name: "canvass_checkin", Description: "Record a follow-up contact attempt on a lead"},
		{Name: "canvass_appointment_schedule", Description: "Schedule an appointment, optionally tied to a lead"},
		{Name: "canvass_appointment_cancel", Description: "Cancel an appointment"},
		{Name: "canvass_sync", Description: "Push local leads, check-ins and appointments to the shared store"},
		{Name: "canvass_status", Description: "Show account, sync and local record counts"},
	}
}

// CallTool executes a tool by name.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	h, ok := s.handlers()[name]
	if !ok {
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
	return h(ctx, args)
}

func (s *Server) handlers() map[string]toolHandler {
	return map[string]toolHandler{
		"canvass_lead_add":             s.handleLeadAdd,
		"canvass_lead_search":          s.handleLeadSearch,
		"canvass_checkin":              s.handleCheckIn,
		"canvass_appointment_schedule": s.handleScheduleAppointment,
		"canvass_appointment_cancel":   s.handleCancelAppointment,
		"canvass_sync":                 s.handleSync,
		"canvass_status":               s.handleStatus,
	}
}

func (s *Server) registerTools() {
	h := s.handlers()

	s.mcpServer.AddTool(mcp.NewTool("canvass_lead_add",
		mcp.WithDescription("Add a lead. A lead needs a name or an address. If a lead with the same phone or email exists it is returned instead. Returns a session reference (L1, L2, ...) usable by other tools."),
		mcp.WithString("name", mcp.Description("Homeowner or contact name")),
		mcp.WithString("address", mcp.Description("Street address")),
		mcp.WithString("phone", mcp.Description("Phone number")),
		mcp.WithString("email", mcp.Description("Email address")),
		mcp.WithString("notes", mcp.Description("Free-form notes")),
		mcp.WithNumber("price", mcp.Description("Quoted price")),
		mcp.WithString("follow_up", mcp.Description("When to follow up, e.g. 2026-11-02 15:00 or 'next tuesday at 10am'")),
	), wrap(h["canvass_lead_add"]))

	s.mcpServer.AddTool(mcp.NewTool("canvass_lead_search",
		mcp.WithDescription("Search leads. Results carry session references (L1, L2, ...)."),
		mcp.WithString("query", mcp.Description("Text matched against name, address, phone and email")),
		mcp.WithArray("status",
			mcp.Description("Filter by status: not_contacted, not_home, interested, converted, not_interested"),
			mcp.WithStringItems(),
		),
		mcp.WithString("due_before", mcp.Description("Only leads with a follow-up due before this date")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default: 20)")),
	), wrap(h["canvass_lead_search"]))

	s.mcpServer.AddTool(mcp.NewTool("canvass_checkin",
		mcp.WithDescription("Record a follow-up contact attempt on a lead."),
		mcp.WithString("lead", mcp.Description("Lead reference (L1) or ID"), mcp.Required()),
		mcp.WithString("channel", mcp.Description("call, text, email or in_person (default: in_person)")),
		mcp.WithString("outcome", mcp.Description("no_answer, left_message, spoke, scheduled or not_interested (default: no_answer)")),
		mcp.WithString("notes", mcp.Description("What happened")),
	), wrap(h["canvass_checkin"]))

	s.mcpServer.AddTool(mcp.NewTool("canvass_appointment_schedule",
		mcp.WithDescription("Schedule an appointment. Returns a session reference (A1, A2, ...)."),
		mcp.WithString("title", mcp.Description("Appointment title"), mcp.Required()),
		mcp.WithString("start", mcp.Description("Start time, e.g. 2026-11-02 15:00 or 'tomorrow at 3pm'"), mcp.Required()),
		mcp.WithNumber("duration_minutes", mcp.Description("Length in minutes (default: 60)")),
		mcp.WithString("lead", mcp.Description("Lead reference (L1) or ID")),
		mcp.WithString("location", mcp.Description("Where the appointment takes place")),
		mcp.WithString("type", mcp.Description("consultation, follow_up, estimate, installation, inspection or other")),
		mcp.WithString("notes", mcp.Description("Notes")),
	), wrap(h["canvass_appointment_schedule"]))

	s.mcpServer.AddTool(mcp.NewTool("canvass_appointment_cancel",
		mcp.WithDescription("Cancel an appointment. The record is kept with status cancelled."),
		mcp.WithString("appointment", mcp.Description("Appointment reference (A1) or ID"), mcp.Required()),
	), wrap(h["canvass_appointment_cancel"]))

	s.mcpServer.AddTool(mcp.NewTool("canvass_sync",
		mcp.WithDescription("Push local leads, check-ins and appointments to the shared store. Requires a signed-in account."),
	), wrap(h["canvass_sync"]))

	s.mcpServer.AddTool(mcp.NewTool("canvass_status",
		mcp.WithDescription("Show the signed-in account, sync state and local record counts."),
	), wrap(h["canvass_status"]))
}

func wrap(h toolHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := h(ctx, req.GetArguments())
		if err != nil {
			return nil, err
		}
		return toMCPResult(result), nil
	}
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
		IsError: r.IsError,
	}
}

func errorResult(format string, args ...any) (*ToolResult, error) {
	return &ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}, nil
}
