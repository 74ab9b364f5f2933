package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omniagent/devboxctl/internal/agentapi"
	"github.com/omniagent/devboxctl/internal/runloop"
	"github.com/omniagent/devboxctl/internal/statestore"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the deployment status for the role",
	Long: `Read the pointer store, fetch the devbox state from the provider and
probe the service endpoint. Exits 0 when the deployment is healthy and 1
otherwise.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	role := a.role(cmd)
	devboxID, err := a.store.Get(role)
	if err != nil {
		return fmt.Errorf("reading pointer for role %s: %w", role, err)
	}
	if devboxID == "" {
		fmt.Printf("no deployment recorded for role %s\n", role)
		return fmt.Errorf("role %s has no saved devbox", role)
	}

	devboxStatus := "missing"
	if devbox, err := a.client.GetDevbox(ctx, devboxID); err == nil {
		devboxStatus = string(devbox.Status)
	}

	url, _ := a.store.GetURL(role)
	if url == "" {
		url = statestore.DerivedURL(devboxID, a.cfg.Devbox.Domain, a.cfg.Devbox.Port)
	}
	endpoint, model := probeEndpoint(ctx, a, url, devboxStatus)

	blueprintID, _ := a.store.GetBlueprintID(role)
	if blueprintID == "" {
		blueprintID = "-"
	}

	rows := [][]string{{
		role,
		devboxID,
		statusStyle(devboxStatus).Render(devboxStatus),
		statusStyle(endpoint).Render(endpoint),
		model,
		blueprintID,
	}}
	fmt.Print(renderTable([]string{"ROLE", "DEVBOX", "STATUS", "ENDPOINT", "MODEL", "BLUEPRINT"}, rows))
	fmt.Println(mutedStyle.Render(url))

	if devboxStatus != string(runloop.StatusRunning) || endpoint != "ok" {
		return fmt.Errorf("deployment for role %s is not healthy", role)
	}
	return nil
}

// probeEndpoint checks the service endpoint of a running devbox. Suspended
// and shutdown devboxes are not probed.
func probeEndpoint(ctx context.Context, a *app, url, devboxStatus string) (verdict, model string) {
	if devboxStatus != string(runloop.StatusRunning) {
		return "-", "-"
	}

	agent := agentapi.NewClient(agentapi.WithLogger(a.logger))
	status, err := agent.Health(ctx, url)
	if err != nil {
		return "unreachable", "-"
	}
	model = status.Model
	if model == "" {
		model = "-"
	}
	if !status.OK() {
		return "degraded", model
	}
	return "ok", model
}
