package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/app"
	"github.com/hyperengineering/canvass/internal/datetext"
	"github.com/spf13/cobra"
)

var apptCmd = &cobra.Command{
	Use:     "appt",
	Aliases: []string{"appointment"},
	Short:   "Manage appointments",
	Long: `Schedule and manage appointments. Start times accept natural language
("tomorrow at 3pm", "next friday 10am") as well as 2006-01-02 15:04.

Example:
  canvass appt schedule "Roof estimate" --start "tomorrow 3pm" --lead 3f2a9c1d
  canvass appt list --upcoming 72h
  canvass appt cancel 9b1e44c0`,
}

var apptScheduleCmd = &cobra.Command{
	Use:   "schedule <title>",
	Short: "Schedule an appointment",
	Args:  cobra.ExactArgs(1),
	RunE:  runApptSchedule,
}

var apptRescheduleCmd = &cobra.Command{
	Use:   "reschedule <appointment> <start>",
	Short: "Move an appointment, keeping its length",
	Args:  cobra.ExactArgs(2),
	RunE:  runApptReschedule,
}

var apptCancelCmd = &cobra.Command{
	Use:   "cancel <appointment>",
	Short: "Cancel an appointment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApptTransition(cmd, args[0], "Cancelled", func(a *app.App, id uuid.UUID) (canvass.Appointment, error) {
			return a.Appointments.Cancel(cmd.Context(), id)
		})
	},
}

var apptConfirmCmd = &cobra.Command{
	Use:   "confirm <appointment>",
	Short: "Mark an appointment confirmed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApptTransition(cmd, args[0], "Confirmed", func(a *app.App, id uuid.UUID) (canvass.Appointment, error) {
			return a.Appointments.Confirm(cmd.Context(), id)
		})
	},
}

var apptCompleteCmd = &cobra.Command{
	Use:   "complete <appointment>",
	Short: "Mark an appointment completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApptTransition(cmd, args[0], "Completed", func(a *app.App, id uuid.UUID) (canvass.Appointment, error) {
			return a.Appointments.Complete(cmd.Context(), id)
		})
	},
}

var apptDeleteCmd = &cobra.Command{
	Use:   "delete <appointment>",
	Short: "Delete an appointment",
	Args:  cobra.ExactArgs(1),
	RunE:  runApptDelete,
}

var apptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List appointments",
	RunE:  runApptList,
}

var (
	apptStart    string
	apptDuration time.Duration
	apptLead     string
	apptType     string
	apptLocation string
	apptNotes    string

	apptListUpcoming time.Duration
	apptListLead     string
	apptListStatus   string
)

func init() {
	apptScheduleCmd.Flags().StringVar(&apptStart, "start", "", "Start time (required)")
	apptScheduleCmd.Flags().DurationVar(&apptDuration, "duration", time.Hour, "Length of the appointment")
	apptScheduleCmd.Flags().StringVar(&apptLead, "lead", "", "Lead the appointment is for")
	apptScheduleCmd.Flags().StringVar(&apptType, "type", "", "Type: consultation, follow_up, estimate, installation, inspection, other")
	apptScheduleCmd.Flags().StringVar(&apptLocation, "location", "", "Location")
	apptScheduleCmd.Flags().StringVar(&apptNotes, "notes", "", "Notes")
	_ = apptScheduleCmd.MarkFlagRequired("start")

	apptListCmd.Flags().DurationVar(&apptListUpcoming, "upcoming", 0, "Only appointments starting within this window")
	apptListCmd.Flags().StringVar(&apptListLead, "lead", "", "Only appointments for this lead")
	apptListCmd.Flags().StringVar(&apptListStatus, "status", "", "Comma-separated statuses to include")

	apptCmd.AddCommand(apptScheduleCmd, apptRescheduleCmd, apptCancelCmd, apptConfirmCmd,
		apptCompleteCmd, apptDeleteCmd, apptListCmd)
	rootCmd.AddCommand(apptCmd)
}

func runApptSchedule(cmd *cobra.Command, args []string) error {
	start, err := datetext.Parse(apptStart, time.Now())
	if err != nil {
		return err
	}
	appt := canvass.Appointment{
		Title:     args[0],
		StartDate: start,
		EndDate:   start.Add(apptDuration),
		Type:      canvass.AppointmentType(strings.ToLower(apptType)),
		Location:  apptLocation,
		Notes:     apptNotes,
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if apptLead != "" {
		lead, err := resolveLead(a, apptLead)
		if err != nil {
			return err
		}
		appt.LeadID = &lead.ID
		if appt.Location == "" {
			appt.Location = lead.Address
		}
	}

	saved, err := a.Appointments.Schedule(cmd.Context(), appt)
	if err != nil {
		return fmt.Errorf("schedule appointment: %w", err)
	}
	if !outputJSON {
		printSuccess(cmd.OutOrStdout(), "Appointment scheduled")
	}
	return outputAppointment(cmd, saved)
}

func runApptReschedule(cmd *cobra.Command, args []string) error {
	start, err := datetext.Parse(args[1], time.Now())
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	appt, err := resolveAppointment(a, args[0])
	if err != nil {
		return err
	}
	end := start.Add(appt.EndDate.Sub(appt.StartDate))
	updated, err := a.Appointments.Reschedule(cmd.Context(), appt.ID, start, end)
	if err != nil {
		return fmt.Errorf("reschedule: %w", err)
	}
	if !outputJSON {
		printSuccess(cmd.OutOrStdout(), "Rescheduled")
	}
	return outputAppointment(cmd, updated)
}

func runApptTransition(cmd *cobra.Command, ref, verb string, fn func(*app.App, uuid.UUID) (canvass.Appointment, error)) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	appt, err := resolveAppointment(a, ref)
	if err != nil {
		return err
	}
	updated, err := fn(a, appt.ID)
	if err != nil {
		return fmt.Errorf("%s %s: %w", strings.ToLower(verb), appt.Title, err)
	}
	if outputJSON {
		return outputAsJSON(cmd, updated)
	}
	printSuccess(cmd.OutOrStdout(), "%s %s (%s)", verb, updated.Title, formatWhen(updated.StartDate))
	return nil
}

func runApptDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	appt, err := resolveAppointment(a, args[0])
	if err != nil {
		return err
	}
	if err := a.Appointments.Delete(cmd.Context(), appt.ID); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]string{"deleted": appt.ID.String()})
	}
	printSuccess(cmd.OutOrStdout(), "Deleted %s", appt.Title)
	return nil
}

func runApptList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var appts []canvass.Appointment
	switch {
	case apptListUpcoming > 0:
		appts, err = a.Appointments.Upcoming(apptListUpcoming)
	default:
		var filter canvass.AppointmentFilter
		if apptListLead != "" {
			lead, lerr := resolveLead(a, apptListLead)
			if lerr != nil {
				return lerr
			}
			filter.LeadID = &lead.ID
		}
		if apptListStatus != "" {
			for _, s := range strings.Split(apptListStatus, ",") {
				status, ok := canvass.ParseAppointmentStatus(strings.TrimSpace(s))
				if !ok {
					return fmt.Errorf("invalid status %q", s)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
		}
		appts, err = a.Appointments.List(filter)
	}
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}
	return outputAppointmentList(cmd, appts)
}

// resolveAppointment accepts a full appointment ID or a unique prefix of one.
func resolveAppointment(a *app.App, ref string) (*canvass.Appointment, error) {
	if id, err := uuid.Parse(ref); err == nil {
		appt, err := a.Appointments.Get(id)
		if err != nil {
			return nil, fmt.Errorf("appointment %s: %w", ref, err)
		}
		return appt, nil
	}

	appts, err := a.Appointments.List(canvass.AppointmentFilter{})
	if err != nil {
		return nil, err
	}
	var match *canvass.Appointment
	for i := range appts {
		if !strings.HasPrefix(appts[i].ID.String(), strings.ToLower(ref)) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("appointment reference %q is ambiguous", ref)
		}
		match = &appts[i]
	}
	if match == nil {
		return nil, fmt.Errorf("appointment %s: %w", ref, canvass.ErrNotFound)
	}
	return match, nil
}
