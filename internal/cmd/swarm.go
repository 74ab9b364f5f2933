package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omniagent/devboxctl/internal/agentapi"
	"github.com/omniagent/devboxctl/internal/runloop"
	"github.com/omniagent/devboxctl/internal/statestore"
	"github.com/omniagent/devboxctl/internal/swarm"
)

var (
	swarmSize int
	swarmKeep bool
)

var swarmCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Operate a swarm of agent devboxes",
}

var swarmDeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Provision swarm members and leave them suspended as a warm pool",
	RunE:  runSwarmDeploy,
}

var swarmTaskCmd = &cobra.Command{
	Use:   "task <prompt>",
	Short: "Fan a task out to the swarm and print the consensus answer",
	Args:  cobra.ExactArgs(1),
	RunE:  runSwarmTask,
}

var swarmTeardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Suspend all running swarm members",
	RunE:  runSwarmTeardown,
}

var swarmStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show swarm member devboxes and endpoint health",
	RunE:  runSwarmStatus,
}

func init() {
	swarmCmd.PersistentFlags().IntVar(&swarmSize, "size", 0, "member count (0 uses the configured nominal size)")
	swarmTaskCmd.Flags().BoolVar(&swarmKeep, "keep", false, "leave members running after the task instead of suspending them")
	swarmCmd.AddCommand(swarmDeployCmd, swarmTaskCmd, swarmTeardownCmd, swarmStatusCmd)
	rootCmd.AddCommand(swarmCmd)
}

func (a *app) swarmPrefix() string {
	return a.cfg.Devbox.NamePrefix + "-swarm"
}

func (a *app) newOrchestrator(ctx context.Context, cmd *cobra.Command) (*swarm.Orchestrator, error) {
	role := a.role(cmd)
	blueprintID, err := resolveBlueprintID(ctx, a, role)
	if err != nil {
		return nil, err
	}
	if blueprintID == "" {
		return nil, fmt.Errorf("swarm deployments need a blueprint: set blueprint.name or blueprint.id")
	}

	agent := agentapi.NewClient(agentapi.WithLogger(a.logger))
	return swarm.NewOrchestrator(a.client, agent, a.logger, swarm.Options{
		NamePrefix:   a.swarmPrefix(),
		BlueprintID:  blueprintID,
		Size:         a.cfg.Swarm.Size,
		MinSize:      a.cfg.Swarm.MinSize,
		MaxSize:      a.cfg.Swarm.MaxSize,
		ReadyTimeout: a.cfg.Devbox.ReadyTimeout(),
		ReadyPoll:    a.cfg.Devbox.ReadyPoll(),
		TaskTimeout:  a.cfg.Swarm.TaskTimeout(),
		Domain:       a.cfg.Devbox.Domain,
		Port:         a.cfg.Devbox.Port,
	}), nil
}

func runSwarmDeploy(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	o, err := a.newOrchestrator(ctx, cmd)
	if err != nil {
		return err
	}

	if err := o.Deploy(ctx, swarmSize); err != nil {
		return fmt.Errorf("deploying swarm: %w", err)
	}
	_, members := o.Status()
	printMembers(members)

	// Suspend the admitted members so the pool is warm but not billing.
	if err := o.Teardown(ctx); err != nil {
		return fmt.Errorf("suspending swarm members: %w", err)
	}
	fmt.Printf("%d members provisioned and suspended\n", len(members))
	return nil
}

func runSwarmTask(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	o, err := a.newOrchestrator(ctx, cmd)
	if err != nil {
		return err
	}

	if err := o.Deploy(ctx, swarmSize); err != nil {
		return fmt.Errorf("deploying swarm: %w", err)
	}
	if !swarmKeep {
		defer func() {
			if err := o.Teardown(ctx); err != nil {
				a.logger.Warn("swarm teardown failed", "error", err.Error())
			}
		}()
	}

	result, err := o.ProcessTask(ctx, args[0], swarmSize)
	if err != nil {
		return fmt.Errorf("processing task: %w", err)
	}

	fmt.Println(result.Consensus)
	fmt.Println()
	printSummary("Swarm verdict", []string{
		fmt.Sprintf("Responses:  %d of %d", len(result.Responses), result.Dispatched),
		fmt.Sprintf("Confidence: %.2f", result.Confidence),
		fmt.Sprintf("Elapsed:    %s", formatElapsed(result.Elapsed)),
	})
	return nil
}

func runSwarmTeardown(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	members, err := a.listSwarmDevboxes(ctx)
	if err != nil {
		return err
	}

	// suspend_on_teardown keeps member disk state for later re-use; turning
	// it off deletes the pool outright.
	reclaimed := 0
	for _, d := range members {
		switch {
		case a.cfg.Swarm.SuspendOnTeardown && d.Status == runloop.StatusRunning:
			if err := a.client.SuspendDevbox(ctx, d.ID); err != nil {
				a.logger.Warn("failed to suspend swarm member", "devbox_id", d.ID, "error", err.Error())
				continue
			}
			reclaimed++
		case !a.cfg.Swarm.SuspendOnTeardown && d.Status != runloop.StatusShutdown:
			if err := a.client.DeleteDevbox(ctx, d.ID); err != nil {
				a.logger.Warn("failed to delete swarm member", "devbox_id", d.ID, "error", err.Error())
				continue
			}
			reclaimed++
		}
	}
	if a.cfg.Swarm.SuspendOnTeardown {
		fmt.Printf("%d swarm members suspended\n", reclaimed)
	} else {
		fmt.Printf("%d swarm members deleted\n", reclaimed)
	}
	return nil
}

func runSwarmStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	members, err := a.listSwarmDevboxes(ctx)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		fmt.Println("no swarm members found")
		return nil
	}

	agent := agentapi.NewClient(agentapi.WithLogger(a.logger))
	var rows [][]string
	for _, d := range members {
		endpoint := "-"
		if d.Status == runloop.StatusRunning {
			url := statestore.DerivedURL(d.ID, a.cfg.Devbox.Domain, a.cfg.Devbox.Port)
			endpoint = "unreachable"
			if status, err := agent.Health(ctx, url); err == nil && status.OK() {
				endpoint = "ok"
			}
		}
		rows = append(rows, []string{
			d.ID,
			d.Name,
			statusStyle(string(d.Status)).Render(string(d.Status)),
			statusStyle(endpoint).Render(endpoint),
		})
	}
	fmt.Print(renderTable([]string{"DEVBOX", "NAME", "STATUS", "ENDPOINT"}, rows))
	return nil
}

// listSwarmDevboxes returns provider devboxes carrying the swarm name prefix.
func (a *app) listSwarmDevboxes(ctx context.Context) ([]runloop.Devbox, error) {
	devboxes, err := a.client.ListDevboxes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devboxes: %w", err)
	}
	var members []runloop.Devbox
	for _, d := range devboxes {
		if strings.HasPrefix(d.Name, a.swarmPrefix()) {
			members = append(members, d)
		}
	}
	return members, nil
}

func printMembers(members []swarm.Member) {
	var rows [][]string
	for _, m := range members {
		healthy := "healthy"
		if !m.Healthy {
			healthy = "unhealthy"
		}
		rows = append(rows, []string{m.ID[:8], m.DevboxID, m.URL, statusStyle(healthy).Render(healthy)})
	}
	fmt.Print(renderTable([]string{"MEMBER", "DEVBOX", "URL", "HEALTH"}, rows))
}
