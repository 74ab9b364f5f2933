package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "github.com/omniagent/devboxctl/internal/errors"
	"github.com/omniagent/devboxctl/internal/health"
)

var healthCmd = &cobra.Command{
	Use:   "health [devbox-id]",
	Short: "Run the role's health checklist against a devbox",
	Long: `Execute the role's health checklist on a devbox and print per-check
results. Without an argument the saved pointer devbox is checked.
Exits 1 when the pass rate is below the role's threshold.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	role := a.role(cmd)
	devboxID := ""
	if len(args) > 0 {
		devboxID = args[0]
	} else {
		devboxID, err = a.store.Get(role)
		if err != nil {
			return fmt.Errorf("reading pointer for role %s: %w", role, err)
		}
		if devboxID == "" {
			return fmt.Errorf("no saved devbox for role %s: pass a devbox id or run ensure first", role)
		}
	}

	devbox, err := a.client.GetDevbox(ctx, devboxID)
	if err != nil {
		return fmt.Errorf("looking up devbox %s: %w", devboxID, err)
	}
	if !devbox.IsRunning() {
		return fmt.Errorf("%w: devbox %s is %s, checks need a running devbox",
			apperrors.ErrDevboxNotRunning, devboxID, devbox.Status)
	}

	checker := health.NewChecker(a.client, a.cfg.Health.CheckTimeout(), a.logger)
	report := checker.Run(ctx, devboxID, health.ChecklistForRole(role))

	var rows [][]string
	for _, r := range report.Results {
		verdict := okStyle.Render("pass")
		detail := ""
		if !r.Passed {
			verdict = errStyle.Render("FAIL")
			detail = r.Detail
		}
		rows = append(rows, []string{r.Name, verdict, detail})
	}
	fmt.Print(renderTable([]string{"CHECK", "RESULT", "DETAIL"}, rows))

	threshold := a.passThreshold(role)
	fmt.Printf("\npass rate %.2f (threshold %.2f)\n", report.PassRate(), threshold)
	if !report.Passed(threshold) {
		return fmt.Errorf("devbox %s failed health gate for role %s", devboxID, role)
	}
	return nil
}
