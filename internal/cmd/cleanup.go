package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/omniagent/devboxctl/internal/cleanup"
	"github.com/omniagent/devboxctl/internal/config"
)

var cleanupDryRun bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Reclaim leftover devboxes and blueprints",
	Long: `Derive a reclamation plan from the provider inventory under the keep
policy (saved pointers and the active blueprint are never touched) and
execute it. With --dry-run the plan is printed and nothing is changed.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "print the plan without reclaiming anything")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	role := a.role(cmd)
	pinnedDevbox, _ := a.store.Get(role)
	pinnedBlueprint, _ := a.store.GetBlueprintID(role)
	if pinnedBlueprint == "" {
		pinnedBlueprint = a.cfg.Blueprint.ID
	}

	planner := cleanup.NewPlanner(a.client, a.logger, cleanup.Policy{
		NamePrefix:      a.cfg.Devbox.NamePrefix,
		KeepDevboxIDs:   []string{pinnedDevbox},
		KeepBlueprintID: pinnedBlueprint,
		SuspendRunning:  a.cfg.Cleanup.SuspendRunning,
		DeleteSuspended: a.cfg.Cleanup.DeleteSuspended,
		MaxAge:          a.cfg.Cleanup.MaxAge(),
	})

	jobs, err := planner.Plan(ctx)
	if err != nil {
		return fmt.Errorf("planning cleanup: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("nothing to reclaim")
		return nil
	}

	for _, job := range jobs {
		fmt.Println("  " + job.Describe())
	}

	record := cleanup.NewRecord(jobs, cleanupDryRun)
	recordsDir := filepath.Join(config.ConfigDir(), cleanup.RecordsDir)
	record.Status = cleanup.RecordStatusRunning
	record.StartedAt = time.Now()
	if err := record.Save(recordsDir); err != nil {
		a.logger.Warn("failed to save cleanup record", "error", err.Error())
	}

	executor := cleanup.NewExecutor(a.client, a.logger, cleanupDryRun)
	summary := executor.Run(ctx, jobs)

	record.Summary = &summary
	record.Status = cleanup.RecordStatusCompleted
	if summary.Failed > 0 && summary.Reclaimed == 0 && !cleanupDryRun {
		record.Status = cleanup.RecordStatusFailed
	}
	record.EndedAt = time.Now()
	if err := record.Save(recordsDir); err != nil {
		a.logger.Warn("failed to save cleanup record", "error", err.Error())
	}
	if _, err := cleanup.PruneRecords(recordsDir, 30*24*time.Hour); err != nil {
		a.logger.Warn("failed to prune cleanup records", "error", err.Error())
	}

	title := "Cleanup complete"
	if cleanupDryRun {
		title = "Cleanup plan (dry run)"
	}
	printSummary(title, []string{
		fmt.Sprintf("Reclaimed: %d", summary.Reclaimed),
		fmt.Sprintf("Failed:    %d", summary.Failed),
		fmt.Sprintf("Skipped:   %d", summary.Skipped),
	})
	if summary.Failed > 0 && !cleanupDryRun {
		return fmt.Errorf("%d cleanup jobs failed", summary.Failed)
	}
	return nil
}
