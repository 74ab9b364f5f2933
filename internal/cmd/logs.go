package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/omniagent/devboxctl/internal/config"
	"github.com/omniagent/devboxctl/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View and filter devboxctl logs",
	Long: `View, filter, and export the structured logs devboxctl writes.

Examples:
  # Show the last 50 entries
  devboxctl logs

  # Only warnings and errors from the last hour
  devboxctl logs --level warn --since 1h

  # Entries for a specific devbox
  devboxctl logs --devbox dbx_abc123

  # Export everything matching a phase to CSV
  devboxctl logs --phase health_checking --export report.csv --format csv`,
	RunE: runLogs,
}

var (
	logsLevel  string
	logsRole   string
	logsDevbox string
	logsPhase  string
	logsMember string
	logsSince  string
	logsGrep   string
	logsTail   int
	logsExport string
	logsFormat string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsLevel, "level", "", "minimum log level (debug, info, warn, error)")
	logsCmd.Flags().StringVar(&logsRole, "for-role", "", "only entries for this role")
	logsCmd.Flags().StringVar(&logsDevbox, "devbox", "", "only entries for this devbox ID")
	logsCmd.Flags().StringVar(&logsPhase, "phase", "", "only entries from this deployment phase")
	logsCmd.Flags().StringVar(&logsMember, "member", "", "only entries from this swarm member")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "only entries newer than this duration (e.g. 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "only entries whose message contains this substring")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsExport, "export", "", "write matching entries to this file instead of stdout")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "export format (json, text, csv)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logDir := cfg.Paths.ResolveLogDir()

	filter := logging.LogFilter{
		Level:           strings.ToUpper(logsLevel),
		Role:            logsRole,
		DevboxID:        logsDevbox,
		Phase:           logsPhase,
		MemberID:        logsMember,
		MessageContains: logsGrep,
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return fmt.Errorf("invalid --since duration: %w", err)
		}
		filter.StartTime = time.Now().Add(-d)
	}

	entries, err := logging.AggregateLogs(logDir)
	if err != nil {
		return fmt.Errorf("failed to read logs from %s: %w", logDir, err)
	}
	entries = logging.FilterLogs(entries, filter)

	if logsExport != "" {
		if err := logging.ExportLogEntries(entries, logsExport, logsFormat); err != nil {
			return err
		}
		fmt.Printf("Exported %d entries to %s\n", len(entries), logsExport)
		return nil
	}

	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}
	if len(entries) == 0 {
		fmt.Println(mutedStyle.Render("no matching log entries"))
		return nil
	}
	for _, e := range entries {
		printLogEntry(e)
	}
	return nil
}

func printLogEntry(e logging.LogEntry) {
	ts := e.Timestamp.Format("2006-01-02 15:04:05")
	level := e.Level
	switch level {
	case logging.LevelError:
		level = errStyle.Render(level)
	case logging.LevelWarn:
		level = warnStyle.Render(level)
	default:
		level = mutedStyle.Render(level)
	}
	line := fmt.Sprintf("%s %s %s", mutedStyle.Render(ts), level, e.Message)
	var tags []string
	if e.Role != "" {
		tags = append(tags, "role="+e.Role)
	}
	if e.DevboxID != "" {
		tags = append(tags, "devbox="+e.DevboxID)
	}
	if e.Phase != "" {
		tags = append(tags, "phase="+e.Phase)
	}
	if e.MemberID != "" {
		tags = append(tags, "member="+e.MemberID)
	}
	if len(tags) > 0 {
		line += " " + mutedStyle.Render(strings.Join(tags, " "))
	}
	fmt.Println(line)
}
