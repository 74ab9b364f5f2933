package cleanup

import (
	"context"
	"fmt"

	"github.com/omniagent/devboxctl/internal/logging"
)

// Summary is the outcome of one cleanup run.
type Summary struct {
	Reclaimed int      `json:"reclaimed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Executor runs planned cleanup jobs best-effort: individual failures are
// collected, never fatal to the run.
type Executor struct {
	provider Provider
	logger   *logging.Logger
	dryRun   bool
}

// NewExecutor creates an Executor. With dryRun set, jobs are reported but
// nothing is touched.
func NewExecutor(provider Provider, logger *logging.Logger, dryRun bool) *Executor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Executor{provider: provider, logger: logger, dryRun: dryRun}
}

// Run executes the jobs and returns a summary.
func (e *Executor) Run(ctx context.Context, jobs []Job) Summary {
	var summary Summary

	for _, job := range jobs {
		if e.dryRun {
			e.logger.Info("cleanup (dry run)", "action", string(job.Action), "resource_id", job.ResourceID, "reason", job.Reason)
			summary.Skipped++
			continue
		}

		if err := e.apply(ctx, job); err != nil {
			e.logger.Warn("cleanup job failed", "action", string(job.Action), "resource_id", job.ResourceID, "error", err.Error())
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", job.Describe(), err))
			continue
		}

		e.logger.Info("reclaimed", "action", string(job.Action), "resource_id", job.ResourceID, "reason", job.Reason)
		summary.Reclaimed++
	}

	return summary
}

func (e *Executor) apply(ctx context.Context, job Job) error {
	switch job.Action {
	case ActionDeleteDevbox:
		return e.provider.DeleteDevbox(ctx, job.ResourceID)
	case ActionSuspendDevbox:
		return e.provider.SuspendDevbox(ctx, job.ResourceID)
	case ActionDeleteBlueprint:
		return e.provider.DeleteBlueprint(ctx, job.ResourceID)
	default:
		return fmt.Errorf("unknown cleanup action %q", job.Action)
	}
}
