package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omniagent/devboxctl/internal/blueprint"
)

var blueprintCmd = &cobra.Command{
	Use:   "blueprint",
	Short: "Manage deployment blueprints",
}

var blueprintEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Resolve the configured blueprint, building one if needed",
	RunE:  runBlueprintEnsure,
}

var blueprintStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the newest blueprint for the configured name",
	RunE:  runBlueprintStatus,
}

func init() {
	blueprintCmd.AddCommand(blueprintEnsureCmd, blueprintStatusCmd)
	rootCmd.AddCommand(blueprintCmd)
}

func (a *app) blueprintManager(cmd *cobra.Command) (*blueprint.Manager, error) {
	if a.cfg.Blueprint.Name == "" {
		return nil, fmt.Errorf("no blueprint name configured: set blueprint.name")
	}
	return blueprint.NewManager(a.client, a.store, a.logger, blueprint.Options{
		Name:         a.cfg.Blueprint.Name,
		Role:         a.role(cmd),
		BuildTimeout: a.cfg.Blueprint.BuildTimeout(),
		BuildPoll:    a.cfg.Blueprint.BuildPoll(),
	}), nil
}

func runBlueprintEnsure(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	manager, err := a.blueprintManager(cmd)
	if err != nil {
		return err
	}

	id, err := manager.Ensure(ctx)
	if err != nil {
		return fmt.Errorf("ensuring blueprint %q: %w", a.cfg.Blueprint.Name, err)
	}
	printSummary("Blueprint ready", []string{
		fmt.Sprintf("Name: %s", a.cfg.Blueprint.Name),
		fmt.Sprintf("ID:   %s", id),
	})
	return nil
}

func runBlueprintStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	manager, err := a.blueprintManager(cmd)
	if err != nil {
		return err
	}

	b, err := manager.Find(ctx)
	if err != nil {
		return fmt.Errorf("resolving blueprint %q: %w", a.cfg.Blueprint.Name, err)
	}

	rows := [][]string{{
		b.ID,
		b.Name,
		statusStyle(string(b.Status)).Render(string(b.Status)),
		b.CreatedAt,
	}}
	fmt.Print(renderTable([]string{"ID", "NAME", "STATUS", "CREATED"}, rows))

	if !b.IsReady() {
		return fmt.Errorf("blueprint %s is not build complete", b.ID)
	}
	return nil
}
