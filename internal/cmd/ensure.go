package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omniagent/devboxctl/internal/health"
	"github.com/omniagent/devboxctl/internal/lifecycle"
	"github.com/omniagent/devboxctl/internal/statestore"
)

var ensureSuspend bool

var ensureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Acquire a healthy devbox for the role",
	Long: `Walk the acquisition chain for the configured role: reuse the saved
pointer, resume a suspended instance, adopt a running one, or create a
fresh devbox. The winning devbox id and URL are persisted to the pointer
store.`,
	RunE: runEnsure,
}

func init() {
	ensureCmd.Flags().BoolVar(&ensureSuspend, "suspend", false, "suspend the devbox after acquiring it (warm standby)")
	rootCmd.AddCommand(ensureCmd)
}

func runEnsure(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	role := a.role(cmd)
	checker := health.NewChecker(a.client, a.cfg.Health.CheckTimeout(), a.logger)
	manager := lifecycle.NewManager(a.client, a.store, checker, a.logger, lifecycle.Options{
		Role:          role,
		DevboxName:    a.devboxName(role),
		PassThreshold: a.passThreshold(role),
		ReadyTimeout:  a.cfg.Devbox.ReadyTimeout(),
		ReadyPoll:     a.cfg.Devbox.ReadyPoll(),
		Domain:        a.cfg.Devbox.Domain,
		Port:          a.cfg.Devbox.Port,
	})

	id, err := manager.Ensure(ctx)
	if err != nil {
		return fmt.Errorf("acquiring devbox for role %s: %w", role, err)
	}

	if ensureSuspend {
		if err := manager.Finalize(ctx, id, true); err != nil {
			a.logger.Warn("failed to suspend devbox after acquisition", "devbox_id", id, "error", err.Error())
		}
	}

	url := statestore.DerivedURL(id, a.cfg.Devbox.Domain, a.cfg.Devbox.Port)
	printSummary("Devbox ready", []string{
		fmt.Sprintf("Role:   %s", role),
		fmt.Sprintf("Devbox: %s", id),
		fmt.Sprintf("URL:    %s", url),
	})
	return nil
}
