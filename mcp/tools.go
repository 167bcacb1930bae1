package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/datetext"
	"github.com/hyperengineering/canvass/internal/manager"
)

const defaultSearchLimit = 20

func (s *Server) handleLeadAdd(ctx context.Context, args map[string]any) (*ToolResult, error) {
	lead := canvass.Lead{
		Name:    stringArg(args, "name"),
		Address: stringArg(args, "address"),
		Phone:   stringArg(args, "phone"),
		Email:   stringArg(args, "email"),
		Notes:   stringArg(args, "notes"),
	}
	if price, ok := args["price"].(float64); ok {
		lead.Price = price
	}
	if text := stringArg(args, "follow_up"); text != "" {
		at, err := datetext.Parse(text, s.now())
		if err != nil {
			return errorResult("invalid follow_up: %v", err)
		}
		lead.FollowUpDate = &at
	}

	saved, existing, err := s.app.Leads.Add(ctx, lead)
	if err != nil {
		return errorResult("add lead failed: %s", canvass.UserMessage(err))
	}
	ref := s.session.Track(RefLead, saved.ID)

	verb := "Added"
	if existing {
		verb = "Found existing"
	}
	return &ToolResult{Content: fmt.Sprintf("%s lead [%s] %s\n%s", verb, ref, saved.DisplayName(), formatLeadDetail(saved))}, nil
}

func (s *Server) handleLeadSearch(ctx context.Context, args map[string]any) (*ToolResult, error) {
	q := manager.NewQuery().Matching(stringArg(args, "query"))
	for _, st := range toStringSlice(args["status"]) {
		status := canvass.LeadStatus(strings.ToLower(st))
		if !status.IsValid() {
			return errorResult("invalid status: %s", st)
		}
		q.Status(status)
	}
	if text := stringArg(args, "due_before"); text != "" {
		at, err := datetext.Parse(text, s.now())
		if err != nil {
			return errorResult("invalid due_before: %v", err)
		}
		q.DueBefore(at)
	}
	limit := defaultSearchLimit
	if n, ok := args["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}
	q.Limit(limit)

	leads, err := s.app.Leads.Search(q)
	if err != nil {
		return errorResult("search failed: %s", canvass.UserMessage(err))
	}
	if len(leads) == 0 {
		return &ToolResult{Content: "No matching leads found."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d leads:\n\n", len(leads))
	for _, l := range leads {
		ref := s.session.Track(RefLead, l.ID)
		fmt.Fprintf(&sb, "[%s] %s (%s)\n", ref, l.DisplayName(), l.Status)
		sb.WriteString(formatLeadDetail(l))
		sb.WriteString("\n")
	}
	sb.WriteString("Use the L references with canvass_checkin or canvass_appointment_schedule.")
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleCheckIn(ctx context.Context, args map[string]any) (*ToolResult, error) {
	leadID, err := s.session.Resolve(RefLead, stringArg(args, "lead"))
	if err != nil {
		return errorResult("invalid lead: %v", err)
	}
	channel := canvass.ContactChannel(strings.ToLower(stringArg(args, "channel")))
	if channel == "" {
		channel = canvass.ChannelInPerson
	}
	outcome := canvass.CheckInOutcome(strings.ToLower(stringArg(args, "outcome")))

	c, err := s.app.Leads.RecordCheckIn(ctx, leadID, channel, outcome, stringArg(args, "notes"))
	if errors.Is(err, canvass.ErrNotFound) {
		return errorResult("lead not found")
	}
	if err != nil {
		return errorResult("check-in failed: %s", canvass.UserMessage(err))
	}
	return &ToolResult{Content: fmt.Sprintf("Recorded %s check-in: %s", c.Channel, c.Outcome)}, nil
}

func (s *Server) handleScheduleAppointment(ctx context.Context, args map[string]any) (*ToolResult, error) {
	title := stringArg(args, "title")
	if title == "" {
		return errorResult("title is required")
	}
	start, err := datetext.Parse(stringArg(args, "start"), s.now())
	if err != nil {
		return errorResult("invalid start: %v", err)
	}
	appt := canvass.Appointment{
		Title:     title,
		StartDate: start,
		Location:  stringArg(args, "location"),
		Notes:     stringArg(args, "notes"),
		Type:      canvass.AppointmentType(strings.ToLower(stringArg(args, "type"))),
	}
	if mins, ok := args["duration_minutes"].(float64); ok && mins > 0 {
		appt.EndDate = start.Add(time.Duration(mins) * time.Minute)
	}
	if ref := stringArg(args, "lead"); ref != "" {
		leadID, err := s.session.Resolve(RefLead, ref)
		if err != nil {
			return errorResult("invalid lead: %v", err)
		}
		appt.LeadID = &leadID
	}

	saved, err := s.app.Appointments.Schedule(ctx, appt)
	if err != nil {
		return errorResult("schedule failed: %s", canvass.UserMessage(err))
	}
	ref := s.session.Track(RefAppointment, saved.ID)
	return &ToolResult{Content: fmt.Sprintf("Scheduled [%s] %s\n  When: %s to %s\n  Type: %s",
		ref, saved.Title, formatTime(saved.StartDate), saved.EndDate.Format("15:04"), saved.Type)}, nil
}

func (s *Server) handleCancelAppointment(ctx context.Context, args map[string]any) (*ToolResult, error) {
	id, err := s.session.Resolve(RefAppointment, stringArg(args, "appointment"))
	if err != nil {
		return errorResult("invalid appointment: %v", err)
	}
	appt, err := s.app.Appointments.Cancel(ctx, id)
	if errors.Is(err, canvass.ErrNotFound) {
		return errorResult("appointment not found")
	}
	if err != nil {
		return errorResult("cancel failed: %s", canvass.UserMessage(err))
	}
	return &ToolResult{Content: fmt.Sprintf("Cancelled %s (%s)", appt.Title, formatTime(appt.StartDate))}, nil
}

func (s *Server) handleSync(ctx context.Context, args map[string]any) (*ToolResult, error) {
	report, err := s.app.SyncNow(ctx)
	if errors.Is(err, canvass.ErrNoSession) {
		return errorResult("sync requires a signed-in account")
	}
	if err != nil {
		return errorResult("sync failed: %s", canvass.UserMessage(err))
	}
	msg := fmt.Sprintf("Sync completed: %d pushed, %d deleted", report.Pushed, report.Deleted)
	return &ToolResult{Content: msg}, nil
}

func (s *Server) handleStatus(ctx context.Context, args map[string]any) (*ToolResult, error) {
	st, err := s.app.Status()
	if err != nil {
		return errorResult("status failed: %v", err)
	}

	var sb strings.Builder
	switch {
	case st.User != nil:
		fmt.Fprintf(&sb, "Signed in as %s\n", st.User.Email)
	case st.Guest:
		sb.WriteString("Guest mode (data stays on this device)\n")
	default:
		sb.WriteString("Not signed in\n")
	}
	fmt.Fprintf(&sb, "Leads: %d\nCheck-ins: %d\nAppointments: %d\n",
		st.Stats.LeadCount, st.Stats.CheckInCount, st.Stats.AppointmentCount)
	fmt.Fprintf(&sb, "Sync: %s (listener %s)", st.Sync.State, st.Sync.Listener)
	if st.Sync.LastError != "" {
		fmt.Fprintf(&sb, "\nLast error: %s", st.Sync.LastError)
	}
	return &ToolResult{Content: sb.String()}, nil
}

func formatLeadDetail(l canvass.Lead) string {
	var sb strings.Builder
	if l.Address != "" && l.Name != "" {
		fmt.Fprintf(&sb, "  Address: %s\n", l.Address)
	}
	if l.Phone != "" {
		fmt.Fprintf(&sb, "  Phone: %s\n", l.Phone)
	}
	if l.Email != "" {
		fmt.Fprintf(&sb, "  Email: %s\n", l.Email)
	}
	if l.FollowUpDate != nil {
		fmt.Fprintf(&sb, "  Follow up: %s\n", formatTime(*l.FollowUpDate))
	}
	if l.Notes != "" {
		fmt.Fprintf(&sb, "  Notes: %s\n", truncate(l.Notes, 100))
	}
	return sb.String()
}

func formatTime(t time.Time) string {
	return t.Format("Mon Jan 2 2006 15:04")
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// toStringSlice converts []any, []string or a single string to []string.
func toStringSlice(v any) []string {
	switch arr := v.(type) {
	case nil:
		return nil
	case string:
		if arr == "" {
			return nil
		}
		return []string{arr}
	case []string:
		return arr
	case []any:
		result := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}
