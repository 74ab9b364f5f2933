// Package deploy drives blueprint-based devbox deployments through an
// explicit state machine with bounded retries and best-effort rollback.
//
// The controller validates the blueprint up front (a blueprint that is not
// build-complete is a configuration fault and consumes no retries), then runs
// create -> wait-for-running -> health-check attempts until one succeeds or
// the retry budget is exhausted. Health checks are informational at this
// layer: their outcome is recorded on the result, not used as a gate.
package deploy

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/omniagent/devboxctl/internal/errors"
	"github.com/omniagent/devboxctl/internal/health"
	"github.com/omniagent/devboxctl/internal/lifecycle"
	"github.com/omniagent/devboxctl/internal/logging"
	"github.com/omniagent/devboxctl/internal/runloop"
	"github.com/omniagent/devboxctl/internal/statestore"
)

// Phase is one state of the deployment state machine.
type Phase string

const (
	PhaseValidating     Phase = "validating"
	PhaseCreating       Phase = "creating"
	PhaseWaitingReady   Phase = "waiting_ready"
	PhaseHealthChecking Phase = "health_checking"
	PhaseSucceeded      Phase = "succeeded"
	PhaseRetrying       Phase = "retrying"
	PhaseFailed         Phase = "failed"
	PhaseRollingBack    Phase = "rolling_back"
	PhaseRolledBack     Phase = "rolled_back"
	PhaseRollbackFailed Phase = "rollback_failed"
)

// Status is the final verdict of a deployment.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Result describes one finished deployment.
type Result struct {
	Status            Status        `json:"status"`
	DevboxID          string        `json:"devbox_id,omitempty"`
	URL               string        `json:"devbox_url,omitempty"`
	Error             string        `json:"error,omitempty"`
	RetryCount        int           `json:"retry_count"`
	Elapsed           time.Duration `json:"-"`
	ElapsedMS         int64         `json:"deployment_time_ms"`
	HealthCheckPassed bool          `json:"health_check_passed"`
}

// Provider is the slice of the provider API the controller needs.
type Provider interface {
	ListDevboxes(ctx context.Context) ([]runloop.Devbox, error)
	GetDevbox(ctx context.Context, id string) (*runloop.Devbox, error)
	CreateDevbox(ctx context.Context, name, blueprintID string) (string, error)
	DeleteDevbox(ctx context.Context, id string) error
	GetBlueprint(ctx context.Context, id string) (*runloop.Blueprint, error)
}

// HealthChecker runs a checklist against a devbox. *health.Checker satisfies it.
type HealthChecker interface {
	Run(ctx context.Context, devboxID string, checks []health.Check) health.Report
}

// PhaseListener observes state machine transitions, e.g. for a progress UI.
type PhaseListener func(phase Phase, attempt int)

// Options configures a Controller.
type Options struct {
	// Role names the pointer slot the deployment result is saved under.
	Role string

	// DevboxName is the provider-side name for created devboxes.
	DevboxName string

	// BlueprintID is the blueprint every attempt deploys from.
	BlueprintID string

	// MaxRetries bounds extra attempts after the first (default 1).
	MaxRetries int

	// PassThreshold classifies the informational health check outcome.
	PassThreshold float64

	// ReadyTimeout and ReadyPoll bound the wait for running (defaults 300s/5s).
	ReadyTimeout time.Duration
	ReadyPoll    time.Duration

	// Target is the soft deployment-time objective; exceeding it logs a
	// warning. Zero disables the warning.
	Target time.Duration

	// RollbackOnFailure runs the rollback pass when the deployment fails.
	RollbackOnFailure bool

	// Domain and Port derive the public service URL.
	Domain string
	Port   int

	// OnPhase, when set, is invoked on every phase transition.
	OnPhase PhaseListener
}

// Controller runs deployments for one role.
type Controller struct {
	provider Provider
	store    statestore.Store
	checker  HealthChecker
	logger   *logging.Logger
	opts     Options
}

// NewController creates a deployment controller.
func NewController(provider Provider, store statestore.Store, checker HealthChecker, logger *logging.Logger, opts Options) *Controller {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 300 * time.Second
	}
	if opts.ReadyPoll <= 0 {
		opts.ReadyPoll = 5 * time.Second
	}
	return &Controller{
		provider: provider,
		store:    store,
		checker:  checker,
		logger:   logger.WithRole(opts.Role),
		opts:     opts,
	}
}

// Deploy runs the deployment to completion. The returned error is non-nil
// exactly when the result status is failed; the result always carries the
// full outcome either way.
func (c *Controller) Deploy(ctx context.Context) (Result, error) {
	start := time.Now()

	c.transition(PhaseValidating, 0)
	if err := c.validateBlueprint(ctx); err != nil {
		return c.fail(ctx, start, 0, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			c.transition(PhaseRetrying, attempt)
			c.logger.Info("retrying deployment", "attempt", attempt, "max_retries", c.opts.MaxRetries)
		}

		id, healthPassed, err := c.attempt(ctx, attempt)
		if err == nil {
			return c.succeed(start, attempt, id, healthPassed), nil
		}

		lastErr = err
		if apperrors.IsConfiguration(err) {
			// A configuration fault will fail identically on every attempt.
			c.logger.Error("configuration fault, not retrying", "error", err.Error())
			return c.fail(ctx, start, attempt, err)
		}
		c.logger.Warn("deployment attempt failed", "attempt", attempt, "error", err.Error())
	}

	err := apperrors.NewDeploymentError(
		fmt.Sprintf("deployment failed after %d retries", c.opts.MaxRetries), lastErr,
	).WithAttempt(c.opts.MaxRetries)
	return c.fail(ctx, start, c.opts.MaxRetries, err)
}

// attempt runs one create -> wait -> health-check cycle.
func (c *Controller) attempt(ctx context.Context, attempt int) (string, bool, error) {
	c.transition(PhaseCreating, attempt)
	id, err := c.provider.CreateDevbox(ctx, c.opts.DevboxName, c.opts.BlueprintID)
	if err != nil {
		derr := apperrors.NewDeploymentError("creating devbox", err).
			WithPhase(string(PhaseCreating)).
			WithAttempt(attempt)
		if apperrors.IsConfiguration(err) {
			return "", false, derr.WithConfiguration()
		}
		return "", false, derr.WithRetryable(true)
	}
	logger := c.logger.WithDevbox(id)
	logger.Info("devbox created", "attempt", attempt)

	c.transition(PhaseWaitingReady, attempt)
	if err := lifecycle.WaitForRunning(ctx, c.provider, id, c.opts.ReadyTimeout, c.opts.ReadyPoll); err != nil {
		return "", false, apperrors.NewDeploymentError("waiting for devbox to become ready", err).
			WithPhase(string(PhaseWaitingReady)).
			WithAttempt(attempt)
	}
	logger.Info("devbox is running")

	c.transition(PhaseHealthChecking, attempt)
	report := c.checker.Run(ctx, id, health.ChecklistForRole(c.opts.Role))
	healthPassed := report.Passed(c.opts.PassThreshold)
	if !healthPassed {
		// Informational only: a deployment that is up but unhealthy still
		// beats no deployment; the verdict is recorded on the result.
		logger.Warn("health checks failed, continuing",
			"pass_rate", report.PassRate(),
			"failed", report.FailedChecks(),
		)
	}

	return id, healthPassed, nil
}

// validateBlueprint enforces the build-complete precondition.
func (c *Controller) validateBlueprint(ctx context.Context) error {
	if c.opts.BlueprintID == "" {
		return apperrors.Wrap(apperrors.ErrNoBlueprint, "no blueprint configured for deployment")
	}

	bp, err := c.provider.GetBlueprint(ctx, c.opts.BlueprintID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrBlueprintNotFound) {
			return fmt.Errorf("%w: %w", apperrors.ErrBlueprintNotReady, err)
		}
		return err
	}
	if !bp.IsReady() {
		return fmt.Errorf("%w: blueprint %s has status %s", apperrors.ErrBlueprintNotReady, bp.ID, bp.Status)
	}
	c.logger.Info("blueprint validated", "blueprint_id", bp.ID)
	return nil
}

func (c *Controller) succeed(start time.Time, attempt int, id string, healthPassed bool) Result {
	c.transition(PhaseSucceeded, attempt)

	elapsed := time.Since(start)
	url := statestore.DerivedURL(id, c.opts.Domain, c.opts.Port)
	result := Result{
		Status:            StatusSuccess,
		DevboxID:          id,
		URL:               url,
		RetryCount:        attempt,
		Elapsed:           elapsed,
		ElapsedMS:         elapsed.Milliseconds(),
		HealthCheckPassed: healthPassed,
	}

	c.logger.Info("deployment succeeded",
		"devbox_id", id,
		"devbox_url", url,
		"retry_count", attempt,
		"elapsed_ms", result.ElapsedMS,
	)
	if c.opts.Target > 0 && elapsed > c.opts.Target {
		c.logger.Warn("deployment exceeded target time",
			"elapsed_ms", result.ElapsedMS,
			"target_ms", c.opts.Target.Milliseconds(),
		)
	}

	c.persist(result)
	return result
}

func (c *Controller) fail(ctx context.Context, start time.Time, retryCount int, cause error) (Result, error) {
	c.transition(PhaseFailed, retryCount)
	c.logger.Error("deployment failed", "retry_count", retryCount, "error", cause.Error())

	if c.opts.RollbackOnFailure {
		c.rollback(ctx, retryCount)
	}

	elapsed := time.Since(start)
	result := Result{
		Status:     StatusFailed,
		Error:      cause.Error(),
		RetryCount: retryCount,
		Elapsed:    elapsed,
		ElapsedMS:  elapsed.Milliseconds(),
	}
	return result, cause
}

// rollback reclaims shutdown devboxes left behind by failed attempts. A
// rollback failure is logged; the deployment verdict stays failed either way.
func (c *Controller) rollback(ctx context.Context, attempt int) {
	c.transition(PhaseRollingBack, attempt)
	c.logger.Info("rolling back failed deployment")

	devboxes, err := c.provider.ListDevboxes(ctx)
	if err != nil {
		c.transition(PhaseRollbackFailed, attempt)
		c.logger.Error("rollback failed: could not list devboxes", "error", err.Error())
		return
	}

	failed := false
	for _, d := range devboxes {
		if d.Name != c.opts.DevboxName || d.Status != runloop.StatusShutdown {
			continue
		}
		if err := c.provider.DeleteDevbox(ctx, d.ID); err != nil {
			c.logger.Warn("rollback: could not delete devbox", "devbox_id", d.ID, "error", err.Error())
			failed = true
		}
	}

	if failed {
		c.transition(PhaseRollbackFailed, attempt)
	} else {
		c.transition(PhaseRolledBack, attempt)
		c.logger.Info("rollback completed")
	}
}

// persist saves the successful deployment to the pointer store.
func (c *Controller) persist(result Result) {
	if err := c.store.Set(c.opts.Role, result.DevboxID); err != nil {
		c.logger.Warn("failed to persist devbox pointer", "error", err.Error())
		return
	}
	if err := c.store.SetURL(c.opts.Role, result.URL); err != nil {
		c.logger.Warn("failed to persist devbox url", "error", err.Error())
	}
}

func (c *Controller) transition(phase Phase, attempt int) {
	c.logger.WithPhase(string(phase)).Debug("phase transition", "attempt", attempt)
	if c.opts.OnPhase != nil {
		c.opts.OnPhase(phase, attempt)
	}
}
