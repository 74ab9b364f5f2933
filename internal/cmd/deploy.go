package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/omniagent/devboxctl/internal/blueprint"
	"github.com/omniagent/devboxctl/internal/cmd/progress"
	"github.com/omniagent/devboxctl/internal/deploy"
	"github.com/omniagent/devboxctl/internal/health"
)

var (
	deployProgress  bool
	deployBlueprint string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a devbox from the configured blueprint",
	Long: `Run the deployment state machine for the role: validate the blueprint,
create a devbox, wait for it to run, health-check it and persist the
pointer. Transient failures are retried; exhausted deployments roll back.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().BoolVar(&deployProgress, "progress", false, "show a live progress view instead of log output")
	deployCmd.Flags().StringVar(&deployBlueprint, "blueprint", "", "blueprint id to deploy from (overrides configuration)")
	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	role := a.role(cmd)
	blueprintID, err := resolveBlueprintID(ctx, a, role)
	if err != nil {
		return err
	}

	opts := deploy.Options{
		Role:              role,
		DevboxName:        a.devboxName(role),
		BlueprintID:       blueprintID,
		MaxRetries:        a.cfg.Deploy.MaxRetries,
		PassThreshold:     a.passThreshold(role),
		ReadyTimeout:      a.cfg.Deploy.ReadyTimeout(),
		ReadyPoll:         a.cfg.Deploy.ReadyPoll(),
		Target:            a.cfg.Deploy.Target(),
		RollbackOnFailure: a.cfg.Deploy.RollbackOnFailure,
		Domain:            a.cfg.Devbox.Domain,
		Port:              a.cfg.Devbox.Port,
	}
	checker := health.NewChecker(a.client, a.cfg.Health.CheckTimeout(), a.logger)

	if deployProgress {
		return deployWithProgress(ctx, a, role, checker, opts)
	}

	controller := deploy.NewController(a.client, a.store, checker, a.logger, opts)
	result, err := controller.Deploy(ctx)
	printDeployResult(result)
	return err
}

// resolveBlueprintID picks the blueprint for this deployment: explicit flag,
// pinned config id, or name resolution through the blueprint manager.
func resolveBlueprintID(ctx context.Context, a *app, role string) (string, error) {
	if deployBlueprint != "" {
		return deployBlueprint, nil
	}
	if a.cfg.Blueprint.ID != "" {
		return a.cfg.Blueprint.ID, nil
	}
	if a.cfg.Blueprint.Name == "" {
		return "", nil
	}

	manager := blueprint.NewManager(a.client, a.store, a.logger, blueprint.Options{
		Name:         a.cfg.Blueprint.Name,
		Role:         role,
		BuildTimeout: a.cfg.Blueprint.BuildTimeout(),
		BuildPoll:    a.cfg.Blueprint.BuildPoll(),
	})
	b, err := manager.Find(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving blueprint %q: %w", a.cfg.Blueprint.Name, err)
	}
	return b.ID, nil
}

func deployWithProgress(ctx context.Context, a *app, role string, checker deploy.HealthChecker, opts deploy.Options) error {
	msgs := make(chan tea.Msg, 16)
	opts.OnPhase = func(phase deploy.Phase, attempt int) {
		msgs <- progress.PhaseMsg{Phase: phase, Attempt: attempt}
	}
	controller := deploy.NewController(a.client, a.store, checker, a.logger, opts)

	go func() {
		result, err := controller.Deploy(ctx)
		msgs <- progress.DoneMsg{Result: result, Err: err}
	}()

	p := tea.NewProgram(progress.New(role, msgs))
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress view: %w", err)
	}

	model, ok := final.(progress.Model)
	if !ok {
		return nil
	}
	result, deployErr, finished := model.Finished()
	if !finished {
		// View was detached before the verdict; the deployment keeps going
		// but this invocation cannot report it.
		fmt.Println("detached from deployment; check logs for the outcome")
		return nil
	}
	printDeployResult(result)
	return deployErr
}

func printDeployResult(result deploy.Result) {
	if result.Status == deploy.StatusSuccess {
		health := "passed"
		if !result.HealthCheckPassed {
			health = "below threshold (informational)"
		}
		printSummary("Deployment succeeded", []string{
			fmt.Sprintf("Devbox:  %s", result.DevboxID),
			fmt.Sprintf("URL:     %s", result.URL),
			fmt.Sprintf("Retries: %d", result.RetryCount),
			fmt.Sprintf("Elapsed: %s", formatElapsed(result.Elapsed)),
			fmt.Sprintf("Health:  %s", health),
		})
		return
	}
	printSummary("Deployment failed", []string{
		fmt.Sprintf("Retries: %d", result.RetryCount),
		fmt.Sprintf("Elapsed: %s", formatElapsed(result.Elapsed)),
		fmt.Sprintf("Error:   %s", result.Error),
	})
}
