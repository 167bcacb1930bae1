package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show account, sync and local data status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	st, err := a.Status()
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, st)
	}

	out := cmd.OutOrStdout()
	switch {
	case st.User != nil:
		printInfo(out, "Signed in as %s", st.User.Email)
	case st.Guest:
		printInfo(out, "Guest mode (data stays on this device)")
	default:
		printMuted(out, "Not signed in")
	}
	fmt.Fprintln(out)

	printField(out, "Profile", st.Profile)
	remote := "shared store"
	if st.Offline {
		remote = "in-process (nothing leaves this machine)"
	}
	printField(out, "Remote", remote)
	printField(out, "Leads", fmt.Sprint(st.Stats.LeadCount))
	printField(out, "Check-ins", fmt.Sprint(st.Stats.CheckInCount))
	printField(out, "Appointments", fmt.Sprint(st.Stats.AppointmentCount))
	printField(out, "Pending deletes", fmt.Sprint(st.Stats.PendingDeletes))
	printField(out, "Schema version", st.Stats.SchemaVersion)

	sync := st.Sync.State
	if st.Sync.Paused {
		sync += " (paused)"
	}
	printField(out, "Sync", sync)
	printField(out, "Listener", st.Sync.Listener)
	if st.LastSync != "" {
		last := st.LastSync
		if t, err := time.Parse(time.RFC3339, st.LastSync); err == nil {
			last = fmt.Sprintf("%s (%s ago)", formatWhen(t), time.Since(t).Round(time.Minute))
		}
		printField(out, "Last sync", last)
	} else {
		printField(out, "Last sync", "never")
	}
	if st.Sync.LastError != "" {
		printWarning(out, "Last error: %s", st.Sync.LastError)
	}
	return nil
}
