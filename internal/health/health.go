// Package health runs command-based health checks against a devbox and
// reports a pass rate. The checker is stateless: every check in a checklist
// runs to completion regardless of earlier failures, and a non-zero exit or
// transport error fails only the check that produced it.
package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/omniagent/devboxctl/internal/logging"
	"github.com/omniagent/devboxctl/internal/runloop"
)

// DefaultCheckTimeout bounds a single check's execution.
const DefaultCheckTimeout = 30 * time.Second

// Check is one named probe command.
type Check struct {
	Name    string
	Command string
}

// Result is the outcome of one check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Report aggregates the results of one checklist run.
type Report struct {
	Results []Result
}

// PassRate returns passed/total. An empty report counts as fully healthy.
func (r Report) PassRate() float64 {
	if len(r.Results) == 0 {
		return 1.0
	}
	passed := 0
	for _, res := range r.Results {
		if res.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(r.Results))
}

// Passed reports whether the pass rate meets the threshold.
func (r Report) Passed(threshold float64) bool {
	return r.PassRate() >= threshold
}

// FailedChecks returns the names of failed checks with their detail.
func (r Report) FailedChecks() []string {
	var failed []string
	for _, res := range r.Results {
		if !res.Passed {
			if res.Detail != "" {
				failed = append(failed, fmt.Sprintf("%s: %s", res.Name, res.Detail))
			} else {
				failed = append(failed, res.Name)
			}
		}
	}
	return failed
}

// Runner executes a command inside a devbox. *runloop.Client satisfies it.
type Runner interface {
	Execute(ctx context.Context, id, command string, timeout time.Duration) (runloop.ExecResult, error)
}

// Checker runs checklists against devboxes.
type Checker struct {
	runner  Runner
	timeout time.Duration
	logger  *logging.Logger
}

// NewChecker creates a Checker. A non-positive timeout falls back to
// DefaultCheckTimeout; a nil logger falls back to the no-op logger.
func NewChecker(runner Runner, timeout time.Duration, logger *logging.Logger) *Checker {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Checker{runner: runner, timeout: timeout, logger: logger}
}

// Run executes every check in the checklist against the devbox. Checks run
// in order; a failure never short-circuits the rest.
func (c *Checker) Run(ctx context.Context, devboxID string, checks []Check) Report {
	report := Report{Results: make([]Result, 0, len(checks))}
	logger := c.logger.WithDevbox(devboxID)

	for _, check := range checks {
		result := c.runOne(ctx, devboxID, check)
		if result.Passed {
			logger.Debug("health check passed", "check", check.Name)
		} else {
			logger.Warn("health check failed", "check", check.Name, "detail", result.Detail)
		}
		report.Results = append(report.Results, result)
	}

	logger.Info("health checks complete",
		"passed", int(report.PassRate()*float64(len(checks))+0.5),
		"total", len(checks),
		"pass_rate", report.PassRate(),
	)
	return report
}

func (c *Checker) runOne(ctx context.Context, devboxID string, check Check) Result {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.runner.Execute(checkCtx, devboxID, check.Command, c.timeout)
	if err != nil {
		return Result{Name: check.Name, Detail: err.Error()}
	}
	if !res.Success() {
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" {
			detail = fmt.Sprintf("exit status %d", res.ExitStatus)
		}
		return Result{Name: check.Name, Detail: detail}
	}
	return Result{Name: check.Name, Passed: true}
}
