package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperengineering/canvass"
	"github.com/spf13/cobra"
)

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputText prints text to the command's stdout.
func outputText(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

// outputError prints an error to stderr without leaking the API key.
// Network and auth failures get the user-facing message with the cause below.
func outputError(w io.Writer, err error) {
	msg := err.Error()
	switch canvass.KindOf(err) {
	case canvass.KindNetwork, canvass.KindAuthentication, canvass.KindPermission:
		msg = canvass.UserMessage(err) + "\n  " + err.Error()
	}
	printError(w, "Error: %s", scrubSensitiveData(msg))
}

func scrubSensitiveData(msg string) string {
	if key := v.GetString("api_key"); key != "" && strings.Contains(msg, key) {
		msg = strings.ReplaceAll(msg, key, "[REDACTED]")
	}
	return msg
}

func shortID(id fmt.Stringer) string {
	s := id.String()
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

func formatWhen(t time.Time) string {
	return t.Local().Format("Mon Jan 2 2006 15:04")
}

func outputLead(cmd *cobra.Command, l canvass.Lead) error {
	if outputJSON {
		return outputAsJSON(cmd, l)
	}
	out := cmd.OutOrStdout()
	printField(out, "Lead", fmt.Sprintf("%s (%s)", l.DisplayName(), shortID(l.ID)))
	printField(out, "Status", renderStatus(l.Status))
	if l.Name != "" && l.Address != "" {
		printField(out, "Address", l.Address)
	}
	if l.Phone != "" {
		printField(out, "Phone", l.Phone)
	}
	if l.Email != "" {
		printField(out, "Email", l.Email)
	}
	if l.Price > 0 {
		printField(out, "Price", fmt.Sprintf("%.2f", l.Price))
	}
	if l.FollowUpDate != nil {
		printField(out, "Follow up", formatWhen(*l.FollowUpDate))
	}
	if l.Notes != "" {
		printField(out, "Notes", "")
		fmt.Fprintln(out, renderMarkdown(l.Notes))
	}
	return nil
}

func outputLeadList(cmd *cobra.Command, leads []canvass.Lead) error {
	if outputJSON {
		if leads == nil {
			leads = []canvass.Lead{}
		}
		return outputAsJSON(cmd, leads)
	}
	out := cmd.OutOrStdout()
	if len(leads) == 0 {
		fmt.Fprintln(out, "No matching leads found.")
		return nil
	}
	fmt.Fprintf(out, "%d leads:\n\n", len(leads))
	for _, l := range leads {
		fmt.Fprintf(out, "  %s  %-28s %s\n", shortID(l.ID), truncate(l.DisplayName(), 28), renderStatus(l.Status))
		if l.FollowUpDate != nil {
			printMuted(out, "            follow up %s", formatWhen(*l.FollowUpDate))
		}
	}
	return nil
}

func outputAppointment(cmd *cobra.Command, a canvass.Appointment) error {
	if outputJSON {
		return outputAsJSON(cmd, a)
	}
	out := cmd.OutOrStdout()
	printField(out, "Appointment", fmt.Sprintf("%s (%s)", a.Title, shortID(a.ID)))
	printField(out, "When", fmt.Sprintf("%s to %s", formatWhen(a.StartDate), a.EndDate.Local().Format("15:04")))
	printField(out, "Status", a.Status.DisplayName())
	if a.Type != "" {
		printField(out, "Type", string(a.Type))
	}
	if a.Location != "" {
		printField(out, "Location", a.Location)
	}
	if a.Notes != "" {
		printField(out, "Notes", "")
		fmt.Fprintln(out, renderMarkdown(a.Notes))
	}
	return nil
}

func outputAppointmentList(cmd *cobra.Command, appts []canvass.Appointment) error {
	if outputJSON {
		if appts == nil {
			appts = []canvass.Appointment{}
		}
		return outputAsJSON(cmd, appts)
	}
	out := cmd.OutOrStdout()
	if len(appts) == 0 {
		fmt.Fprintln(out, "No appointments.")
		return nil
	}
	for _, a := range appts {
		fmt.Fprintf(out, "  %s  %s  %-24s %s\n", shortID(a.ID), formatWhen(a.StartDate), truncate(a.Title, 24), a.Status.DisplayName())
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
