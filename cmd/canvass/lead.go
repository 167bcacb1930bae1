package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/app"
	"github.com/hyperengineering/canvass/internal/datetext"
	"github.com/hyperengineering/canvass/internal/manager"
	"github.com/spf13/cobra"
)

var leadCmd = &cobra.Command{
	Use:   "lead",
	Short: "Manage leads and check-ins",
	Long: `Add, search and work leads. Leads can be referenced by full ID or by the
first characters of the ID shown in listings.

Example:
  canvass lead add --name "Dana Whitfield" --address "12 Elm St" --phone 555-0101
  canvass lead list --status interested
  canvass lead checkin 3f2a9c1d --channel call --outcome spoke`,
}

var leadAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a lead",
	Long: `Add a lead. A lead needs a name or an address. When a lead with the same
phone or email already exists it is shown instead of adding a duplicate.

Example:
  canvass lead add --name "Dana Whitfield" --phone 555-0101 --follow-up "next tuesday 10am"`,
	RunE: runLeadAdd,
}

var leadCaptureCmd = &cobra.Command{
	Use:   "capture <lat> <lon> [address]",
	Short: "Quick-capture a lead at a location",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runLeadCapture,
}

var leadListCmd = &cobra.Command{
	Use:   "list [search]",
	Short: "List leads",
	Long: `List leads, optionally filtered by a substring of name, address, phone or email.

Example:
  canvass lead list
  canvass lead list elm --status interested,not_home
  canvass lead list --due "friday"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLeadList,
}

var leadShowCmd = &cobra.Command{
	Use:   "show <lead>",
	Short: "Show a lead and its check-ins",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeadShow,
}

var leadStatusCmd = &cobra.Command{
	Use:   "status <lead> <status>",
	Short: "Set a lead's status",
	Long: `Set a lead's status. Valid statuses: not_contacted, not_home, interested,
converted, not_interested.`,
	Args: cobra.ExactArgs(2),
	RunE: runLeadStatus,
}

var leadFollowUpCmd = &cobra.Command{
	Use:   "follow-up <lead> <when>",
	Short: "Schedule a follow-up reminder",
	Args:  cobra.ExactArgs(2),
	RunE:  runLeadFollowUp,
}

var leadDeleteCmd = &cobra.Command{
	Use:   "delete <lead>",
	Short: "Delete a lead and its check-ins",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeadDelete,
}

var leadCheckInCmd = &cobra.Command{
	Use:   "checkin <lead>",
	Short: "Record a contact attempt",
	Long: `Record a check-in against a lead. Channels: call, text, email, in_person.
Outcomes: no_answer, left_message, spoke, scheduled, not_interested.
A not_interested outcome also marks the lead not interested.`,
	Args: cobra.ExactArgs(1),
	RunE: runLeadCheckIn,
}

var (
	leadName     string
	leadAddress  string
	leadPhone    string
	leadEmail    string
	leadNotes    string
	leadPrice    float64
	leadFollowUp string

	leadListStatus string
	leadListDue    string
	leadListLimit  int

	checkInChannel string
	checkInOutcome string
	checkInNotes   string
)

func init() {
	leadAddCmd.Flags().StringVar(&leadName, "name", "", "Contact name")
	leadAddCmd.Flags().StringVar(&leadAddress, "address", "", "Street address")
	leadAddCmd.Flags().StringVar(&leadPhone, "phone", "", "Phone number")
	leadAddCmd.Flags().StringVar(&leadEmail, "email", "", "Email address")
	leadAddCmd.Flags().StringVar(&leadNotes, "notes", "", "Notes (markdown)")
	leadAddCmd.Flags().Float64Var(&leadPrice, "price", 0, "Quoted price")
	leadAddCmd.Flags().StringVar(&leadFollowUp, "follow-up", "", "Follow-up date, e.g. \"tomorrow 3pm\" or 2026-11-02")

	leadListCmd.Flags().StringVar(&leadListStatus, "status", "", "Comma-separated statuses to include")
	leadListCmd.Flags().StringVar(&leadListDue, "due", "", "Only leads with a follow-up before this date")
	leadListCmd.Flags().IntVarP(&leadListLimit, "limit", "n", 0, "Maximum number of results")

	leadCheckInCmd.Flags().StringVar(&checkInChannel, "channel", string(canvass.ChannelInPerson), "Contact channel")
	leadCheckInCmd.Flags().StringVar(&checkInOutcome, "outcome", "", "Outcome of the attempt")
	leadCheckInCmd.Flags().StringVar(&checkInNotes, "notes", "", "Notes")

	leadCmd.AddCommand(leadAddCmd, leadCaptureCmd, leadListCmd, leadShowCmd,
		leadStatusCmd, leadFollowUpCmd, leadDeleteCmd, leadCheckInCmd)
	rootCmd.AddCommand(leadCmd)
}

func runLeadAdd(cmd *cobra.Command, args []string) error {
	lead := canvass.Lead{
		Name:    leadName,
		Address: leadAddress,
		Phone:   leadPhone,
		Email:   leadEmail,
		Notes:   leadNotes,
		Price:   leadPrice,
	}
	if leadFollowUp != "" {
		at, err := datetext.Parse(leadFollowUp, time.Now())
		if err != nil {
			return err
		}
		lead.FollowUpDate = &at
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	saved, existing, err := a.Leads.Add(cmd.Context(), lead)
	if err != nil {
		return fmt.Errorf("add lead: %w", err)
	}
	if !outputJSON {
		if existing {
			printWarning(cmd.OutOrStdout(), "A lead with this contact already exists")
		} else {
			printSuccess(cmd.OutOrStdout(), "Lead added")
		}
	}
	return outputLead(cmd, saved)
}

func runLeadCapture(cmd *cobra.Command, args []string) error {
	var lat, lon float64
	if _, err := fmt.Sscanf(args[0]+" "+args[1], "%g %g", &lat, &lon); err != nil {
		return fmt.Errorf("invalid coordinates %q %q", args[0], args[1])
	}
	var address string
	if len(args) == 3 {
		address = args[2]
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	lead, err := a.Leads.QuickCapture(cmd.Context(), lat, lon, address)
	if err != nil {
		return fmt.Errorf("capture lead: %w", err)
	}
	return outputLead(cmd, lead)
}

func runLeadList(cmd *cobra.Command, args []string) error {
	q := manager.NewQuery()
	if len(args) == 1 {
		q.Matching(args[0])
	}
	if leadListStatus != "" {
		for _, s := range strings.Split(leadListStatus, ",") {
			status := canvass.LeadStatus(strings.TrimSpace(s))
			if !status.IsValid() {
				return fmt.Errorf("invalid status %q", s)
			}
			q.Status(status)
		}
	}
	if leadListDue != "" {
		at, err := datetext.Parse(leadListDue, time.Now())
		if err != nil {
			return err
		}
		q.DueBefore(at)
	}
	if leadListLimit > 0 {
		q.Limit(leadListLimit)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	leads, err := a.Leads.Search(q)
	if err != nil {
		return fmt.Errorf("list leads: %w", err)
	}
	return outputLeadList(cmd, leads)
}

func runLeadShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	lead, err := resolveLead(a, args[0])
	if err != nil {
		return err
	}
	checkIns, err := a.Leads.CheckIns(lead.ID)
	if err != nil {
		return fmt.Errorf("list check-ins: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]interface{}{
			"lead":     lead,
			"checkins": checkIns,
		})
	}
	if err := outputLead(cmd, *lead); err != nil {
		return err
	}
	if len(checkIns) == 0 {
		return nil
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nCheck-ins (%d):\n", len(checkIns))
	for _, c := range checkIns {
		outcome := string(c.Outcome)
		if outcome == "" {
			outcome = "-"
		}
		fmt.Fprintf(out, "  %s  %-9s %s\n", formatWhen(c.Timestamp), c.Channel, outcome)
		if c.Notes != "" {
			printMuted(out, "    %s", c.Notes)
		}
	}
	return nil
}

func runLeadStatus(cmd *cobra.Command, args []string) error {
	status := canvass.LeadStatus(strings.ToLower(args[1]))
	if !status.IsValid() {
		return fmt.Errorf("invalid status %q", args[1])
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	lead, err := resolveLead(a, args[0])
	if err != nil {
		return err
	}
	updated, err := a.Leads.SetStatus(cmd.Context(), lead.ID, status)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, updated)
	}
	printSuccess(cmd.OutOrStdout(), "%s is now %s", updated.DisplayName(), renderStatus(updated.Status))
	return nil
}

func runLeadFollowUp(cmd *cobra.Command, args []string) error {
	at, err := datetext.Parse(args[1], time.Now())
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	lead, err := resolveLead(a, args[0])
	if err != nil {
		return err
	}
	updated, err := a.Leads.ScheduleFollowUp(cmd.Context(), lead.ID, at)
	if err != nil {
		return fmt.Errorf("schedule follow-up: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, updated)
	}
	printSuccess(cmd.OutOrStdout(), "Follow up with %s on %s", updated.DisplayName(), formatWhen(at))
	return nil
}

func runLeadDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	lead, err := resolveLead(a, args[0])
	if err != nil {
		return err
	}
	if err := a.Leads.Delete(cmd.Context(), lead.ID); err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]string{"deleted": lead.ID.String()})
	}
	printSuccess(cmd.OutOrStdout(), "Deleted %s", lead.DisplayName())
	return nil
}

func runLeadCheckIn(cmd *cobra.Command, args []string) error {
	channel := canvass.ContactChannel(strings.ToLower(checkInChannel))
	if !channel.IsValid() {
		return fmt.Errorf("invalid channel %q", checkInChannel)
	}
	outcome := canvass.CheckInOutcome(strings.ToLower(checkInOutcome))
	if outcome != canvass.OutcomeUnknown && !outcome.IsValid() {
		return fmt.Errorf("invalid outcome %q", checkInOutcome)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	lead, err := resolveLead(a, args[0])
	if err != nil {
		return err
	}
	c, err := a.Leads.RecordCheckIn(cmd.Context(), lead.ID, channel, outcome, checkInNotes)
	if err != nil {
		return fmt.Errorf("record check-in: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, c)
	}
	printSuccess(cmd.OutOrStdout(), "Recorded %s check-in with %s: %s", c.Channel, lead.DisplayName(), c.Outcome)
	return nil
}

// resolveLead accepts a full lead ID or a unique prefix of one.
func resolveLead(a *app.App, ref string) (*canvass.Lead, error) {
	if id, err := uuid.Parse(ref); err == nil {
		lead, err := a.Leads.Get(id)
		if err != nil {
			return nil, fmt.Errorf("lead %s: %w", ref, err)
		}
		return lead, nil
	}

	leads, err := a.Leads.Search(manager.NewQuery())
	if err != nil {
		return nil, err
	}
	var match *canvass.Lead
	for i := range leads {
		if !strings.HasPrefix(leads[i].ID.String(), strings.ToLower(ref)) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("lead reference %q is ambiguous", ref)
		}
		match = &leads[i]
	}
	if match == nil {
		return nil, fmt.Errorf("lead %s: %w", ref, canvass.ErrNotFound)
	}
	return match, nil
}
