package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/canvass/internal/sync"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push local data to the shared store",
	Long: `Push every local lead, check-in and appointment to the shared document store
and retry queued deletions. Requires a signed-in account.

Example:
  canvass sync
  canvass sync --timeout 2m --json`,
	RunE: runSync,
}

var syncTimeout time.Duration

func init() {
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 60*time.Second, "Give up after this long")
	rootCmd.AddCommand(syncCmd)
}

// SyncResult for JSON output.
type SyncResult struct {
	*sync.PushReport
	DurationMs int64 `json:"duration_ms"`
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
	defer cancel()

	start := time.Now()
	var report *sync.PushReport
	err = runWithSpinner(cmd.ErrOrStderr(), "Syncing", func() error {
		var serr error
		report, serr = a.SyncNow(ctx)
		return serr
	})
	elapsed := time.Since(start)
	if report == nil {
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		report = &sync.PushReport{}
	}

	if outputJSON {
		if jerr := outputAsJSON(cmd, SyncResult{PushReport: report, DurationMs: elapsed.Milliseconds()}); jerr != nil {
			return jerr
		}
		return err
	}

	out := cmd.OutOrStdout()
	if report.Failed() == 0 && err == nil {
		printSuccess(out, "Sync complete (took %s)", elapsed.Round(time.Millisecond))
	} else {
		printWarning(out, "Sync finished with %d failures (took %s)", report.Failed(), elapsed.Round(time.Millisecond))
	}
	fmt.Fprintf(out, "Pushed %d of %d, deleted %d\n", report.Pushed, report.Attempted, report.Deleted)
	for _, f := range report.Failures {
		printMuted(out, "  %s/%s: %s", f.Collection, f.ID, f.Error)
	}
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}
