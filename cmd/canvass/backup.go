package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/profile"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Back up local data to a file",
	Long: `Export every lead, check-in and appointment in the current profile.

Formats:
  json    Portable backup that 'canvass import' reads (default)
  sqlite  Copy of the database file

Example:
  canvass export -o backup.json
  canvass export -o backup.db --format sqlite --profile field`,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Restore local data from a JSON backup",
	Long: `Import a JSON backup into the current profile. Imported records reach the
shared store on the next sync.

Merge strategies:
  skip    Keep existing records with the same ID
  merge   Overwrite existing records with the same ID (default)

Example:
  canvass import -i backup.json
  canvass import -i backup.json --merge-strategy skip --dry-run`,
	RunE: runImport,
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List local profiles",
	RunE:  runProfiles,
}

var (
	exportOutputPath    string
	exportFormat        string
	importInputPath     string
	importMergeStrategy string
	importDryRun        bool
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutputPath, "output", "o", "", "Output file path (required)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json, sqlite")
	_ = exportCmd.MarkFlagRequired("output")

	importCmd.Flags().StringVarP(&importInputPath, "input", "i", "", "Input file path (required)")
	importCmd.Flags().StringVar(&importMergeStrategy, "merge-strategy", "merge", "Merge strategy: skip, merge")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Preview import without making changes")
	_ = importCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(exportCmd, importCmd, profilesCmd)
}

// ExportResult for JSON output.
type ExportResult struct {
	Profile          string `json:"profile"`
	Format           string `json:"format"`
	LeadCount        int    `json:"lead_count"`
	CheckInCount     int    `json:"checkin_count"`
	AppointmentCount int    `json:"appointment_count"`
	FilePath         string `json:"file_path"`
	FileSize         int64  `json:"file_size"`
	Duration         string `json:"duration"`
}

func openStore() (*canvass.Store, canvass.Config, error) {
	cfg, err := loadAndValidateConfig()
	if err != nil {
		return nil, cfg, err
	}
	s, err := canvass.NewStore(cfg.LocalPath)
	if err != nil {
		return nil, cfg, fmt.Errorf("open store: %w", err)
	}
	return s, cfg, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(exportFormat)
	if format != "json" && format != "sqlite" {
		return fmt.Errorf("invalid format %q: must be 'json' or 'sqlite'", exportFormat)
	}

	s, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Stats()
	if err != nil {
		return err
	}

	start := time.Now()
	switch format {
	case "json":
		err = exportJSONFile(cmd, s, cfg.Profile)
	case "sqlite":
		err = s.ExportSQLite(cmd.Context(), exportOutputPath)
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	duration := time.Since(start)

	var size int64
	if fi, statErr := os.Stat(exportOutputPath); statErr == nil {
		size = fi.Size()
	}

	if outputJSON {
		return outputAsJSON(cmd, ExportResult{
			Profile:          cfg.Profile,
			Format:           format,
			LeadCount:        stats.LeadCount,
			CheckInCount:     stats.CheckInCount,
			AppointmentCount: stats.AppointmentCount,
			FilePath:         exportOutputPath,
			FileSize:         size,
			Duration:         duration.Round(time.Millisecond).String(),
		})
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "Exported profile '%s' to %s", cfg.Profile, exportOutputPath)
	fmt.Fprintf(out, "  Leads:        %d\n", stats.LeadCount)
	fmt.Fprintf(out, "  Check-ins:    %d\n", stats.CheckInCount)
	fmt.Fprintf(out, "  Appointments: %d\n", stats.AppointmentCount)
	fmt.Fprintf(out, "  Size:         %d bytes\n", size)
	return nil
}

func exportJSONFile(cmd *cobra.Command, s *canvass.Store, profileName string) error {
	f, err := os.Create(exportOutputPath)
	if err != nil {
		return err
	}
	if err := s.ExportJSON(cmd.Context(), profileName, f); err != nil {
		f.Close()
		_ = os.Remove(exportOutputPath)
		return err
	}
	return f.Close()
}

func runImport(cmd *cobra.Command, args []string) error {
	strategy := canvass.MergeStrategy(strings.ToLower(importMergeStrategy))
	if strategy != canvass.MergeStrategySkip && strategy != canvass.MergeStrategyMerge {
		return fmt.Errorf("invalid merge strategy %q: must be 'skip' or 'merge'", importMergeStrategy)
	}

	f, err := os.Open(importInputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.ImportJSON(cmd.Context(), f, strategy, importDryRun)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}
	out := cmd.OutOrStdout()
	if importDryRun {
		printInfo(out, "Dry run: nothing was written")
	} else {
		printSuccess(out, "Import complete")
	}
	fmt.Fprintf(out, "  Total:   %d\n", result.Total)
	fmt.Fprintf(out, "  Created: %d\n", result.Created)
	fmt.Fprintf(out, "  Merged:  %d\n", result.Merged)
	fmt.Fprintf(out, "  Skipped: %d\n", result.Skipped)
	for _, e := range result.Errors {
		printWarning(out, "%s", e)
	}
	return nil
}

// ProfileEntry is one row of 'canvass profiles'.
type ProfileEntry struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	LeadCount int    `json:"lead_count"`
	Current   bool   `json:"current"`
}

func runProfiles(cmd *cobra.Command, args []string) error {
	current := loadConfig().Profile

	entries, err := os.ReadDir(profile.Root())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read profiles: %w", err)
	}

	profiles := []ProfileEntry{}
	for _, e := range entries {
		if !e.IsDir() || profile.Validate(e.Name()) != nil {
			continue
		}
		p := ProfileEntry{Name: e.Name(), Path: profile.DBPath(e.Name()), Current: e.Name() == current}
		if _, err := os.Stat(p.Path); err != nil {
			continue
		}
		if s, err := canvass.NewStore(p.Path); err == nil {
			if stats, err := s.Stats(); err == nil {
				p.LeadCount = stats.LeadCount
			}
			_ = s.Close()
		}
		profiles = append(profiles, p)
	}

	if outputJSON {
		return outputAsJSON(cmd, profiles)
	}
	out := cmd.OutOrStdout()
	if len(profiles) == 0 {
		printMuted(out, "No profiles under %s", profile.Root())
		return nil
	}
	for _, p := range profiles {
		marker := " "
		if p.Current {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-20s %5d leads\n", marker, p.Name, p.LeadCount)
	}
	return nil
}
