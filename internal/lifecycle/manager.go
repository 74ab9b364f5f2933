// Package lifecycle acquires and releases the canonical devbox for a role.
// Ensure walks a fallback chain from cheapest to most expensive: reclaim the
// saved pointer, adopt an existing suspended or running devbox, and only then
// create a fresh one. The manager is the sole writer of the role's pointer;
// the pointer is advisory and re-validated against the provider on every run.
package lifecycle

import (
	"context"
	"time"

	apperrors "github.com/omniagent/devboxctl/internal/errors"
	"github.com/omniagent/devboxctl/internal/health"
	"github.com/omniagent/devboxctl/internal/logging"
	"github.com/omniagent/devboxctl/internal/runloop"
	"github.com/omniagent/devboxctl/internal/statestore"
)

// Provider is the slice of the provider API the manager needs.
type Provider interface {
	ListDevboxes(ctx context.Context) ([]runloop.Devbox, error)
	GetDevbox(ctx context.Context, id string) (*runloop.Devbox, error)
	CreateDevbox(ctx context.Context, name, blueprintID string) (string, error)
	SuspendDevbox(ctx context.Context, id string) error
	ResumeDevbox(ctx context.Context, id string) error
	DeleteDevbox(ctx context.Context, id string) error
	GetBlueprint(ctx context.Context, id string) (*runloop.Blueprint, error)
}

// HealthChecker runs a checklist against a devbox. *health.Checker satisfies it.
type HealthChecker interface {
	Run(ctx context.Context, devboxID string, checks []health.Check) health.Report
}

// Options configures a Manager for one role.
type Options struct {
	// Role names the pointer slot, e.g. "backend" or "general".
	Role string

	// DevboxName is the provider-side name devboxes for this role carry.
	DevboxName string

	// PassThreshold is the health pass rate required by hard gates.
	PassThreshold float64

	// ReadyTimeout bounds the wait for a devbox to reach running.
	ReadyTimeout time.Duration

	// ReadyPoll is the status poll interval during the wait.
	ReadyPoll time.Duration

	// Domain and Port derive the public service URL persisted next to the id.
	Domain string
	Port   int
}

// Manager acquires healthy devboxes for a single role.
type Manager struct {
	provider Provider
	store    statestore.Store
	checker  HealthChecker
	logger   *logging.Logger
	opts     Options
}

// NewManager creates a lifecycle manager.
func NewManager(provider Provider, store statestore.Store, checker HealthChecker, logger *logging.Logger, opts Options) *Manager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 120 * time.Second
	}
	if opts.ReadyPoll <= 0 {
		opts.ReadyPoll = 5 * time.Second
	}
	return &Manager{
		provider: provider,
		store:    store,
		checker:  checker,
		logger:   logger.WithRole(opts.Role),
		opts:     opts,
	}
}

// Ensure returns the id of a running devbox for the role, reusing existing
// instances wherever possible. When every branch of the fallback chain is
// exhausted it returns ErrNoDevboxAvailable.
func (m *Manager) Ensure(ctx context.Context) (string, error) {
	m.logger.Info("looking for healthy devbox", "name", m.opts.DevboxName)

	// Shutdown devboxes cost nothing but clutter the pool; reclaim first.
	m.cleanupShutdown(ctx)

	// Instances that fail the resume hard gate are remembered so later
	// chain steps cannot re-adopt them through the pool scans.
	rejected := make(map[string]bool)

	if id := m.trySavedPointer(ctx, rejected); id != "" {
		return id, nil
	}
	if id := m.trySuspendedPool(ctx, rejected); id != "" {
		return id, nil
	}
	if id := m.tryRunningPool(ctx, rejected); id != "" {
		return id, nil
	}
	if id := m.tryFreshCreate(ctx); id != "" {
		return id, nil
	}

	m.logger.Error("no devbox available", "name", m.opts.DevboxName)
	return "", apperrors.ErrNoDevboxAvailable
}

// Finalize releases a devbox after use. With suspend set it suspends the
// devbox to preserve its disk state for the next run; either way it reruns
// the shutdown cleanup pass.
func (m *Manager) Finalize(ctx context.Context, id string, suspend bool) error {
	var err error
	if suspend {
		if err = m.provider.SuspendDevbox(ctx, id); err != nil {
			m.logger.Warn("failed to suspend devbox", "devbox_id", id, "error", err.Error())
		} else {
			m.logger.Info("devbox suspended", "devbox_id", id)
		}
	} else {
		m.logger.Info("devbox kept running", "devbox_id", id)
	}

	m.cleanupShutdown(ctx)
	return err
}

// trySavedPointer re-validates the saved pointer. Suspended pointers are
// resumed and hard-gated on health; running pointers are soft-accepted even
// when unhealthy, since replacing a live instance is the caller's call.
func (m *Manager) trySavedPointer(ctx context.Context, rejected map[string]bool) string {
	saved, err := m.store.Get(m.opts.Role)
	if err != nil {
		m.logger.Warn("failed to read saved pointer", "error", err.Error())
		return ""
	}
	if saved == "" {
		return ""
	}

	logger := m.logger.WithDevbox(saved)
	logger.Info("found saved devbox pointer")

	devbox, err := m.provider.GetDevbox(ctx, saved)
	if err != nil {
		logger.Warn("saved devbox not retrievable", "error", err.Error())
		return ""
	}

	switch devbox.Status {
	case runloop.StatusSuspended:
		logger.Info("resuming saved devbox")
		if !m.resumeAndVerify(ctx, saved, rejected) {
			return ""
		}
		return saved

	case runloop.StatusRunning:
		if m.healthy(ctx, saved) {
			logger.Info("saved devbox is running and healthy")
			return saved
		}
		logger.Warn("saved devbox failed health checks, using it anyway")
		return saved

	default:
		logger.Info("saved devbox unusable", "status", string(devbox.Status))
		return ""
	}
}

// trySuspendedPool scans for a suspended devbox with the role's name and
// resumes the first match. Health is a hard gate here: an unhealthy resumed
// instance is not adopted.
func (m *Manager) trySuspendedPool(ctx context.Context, rejected map[string]bool) string {
	devboxes, err := m.provider.ListDevboxes(ctx)
	if err != nil {
		m.logger.Warn("failed to list devboxes", "error", err.Error())
		return ""
	}

	for _, d := range devboxes {
		if d.Name != m.opts.DevboxName || d.Status != runloop.StatusSuspended || rejected[d.ID] {
			continue
		}
		m.logger.Info("found suspended devbox in pool", "devbox_id", d.ID)
		if m.resumeAndVerify(ctx, d.ID, rejected) {
			m.persistPointer(d.ID)
			return d.ID
		}
		return ""
	}
	return ""
}

// tryRunningPool adopts the first running name match without a health check.
// Instances that already failed a hard gate this invocation are skipped.
func (m *Manager) tryRunningPool(ctx context.Context, rejected map[string]bool) string {
	devboxes, err := m.provider.ListDevboxes(ctx)
	if err != nil {
		m.logger.Warn("failed to list devboxes", "error", err.Error())
		return ""
	}

	for _, d := range devboxes {
		if d.Name == m.opts.DevboxName && d.Status == runloop.StatusRunning && !rejected[d.ID] {
			m.logger.Info("adopting running devbox", "devbox_id", d.ID)
			m.persistPointer(d.ID)
			return d.ID
		}
	}
	return ""
}

// tryFreshCreate provisions a new devbox, from the role's blueprint when one
// is build-complete. Health is soft here: a fresh instance is returned even
// when checks fail, because it is the best instance there is.
func (m *Manager) tryFreshCreate(ctx context.Context) string {
	blueprintID := m.readyBlueprintID(ctx)
	if blueprintID != "" {
		m.logger.Info("creating fresh devbox from blueprint", "blueprint_id", blueprintID)
	} else {
		m.logger.Info("creating fresh devbox without blueprint")
	}

	id, err := m.provider.CreateDevbox(ctx, m.opts.DevboxName, blueprintID)
	if err != nil {
		m.logger.Error("failed to create devbox", "error", err.Error())
		return ""
	}

	logger := m.logger.WithDevbox(id)
	if err := WaitForRunning(ctx, m.provider, id, m.opts.ReadyTimeout, m.opts.ReadyPoll); err != nil {
		logger.Warn("fresh devbox did not become ready", "error", err.Error())
		return ""
	}

	if !m.healthy(ctx, id) {
		logger.Warn("fresh devbox failed health checks, returning it anyway")
	} else {
		logger.Info("created healthy fresh devbox")
	}
	m.persistPointer(id)
	return id
}

// readyBlueprintID returns the saved blueprint id when it is build-complete.
func (m *Manager) readyBlueprintID(ctx context.Context) string {
	saved, err := m.store.GetBlueprintID(m.opts.Role)
	if err != nil || saved == "" {
		return ""
	}
	bp, err := m.provider.GetBlueprint(ctx, saved)
	if err != nil {
		m.logger.Warn("saved blueprint not retrievable", "blueprint_id", saved, "error", err.Error())
		return ""
	}
	if !bp.IsReady() {
		m.logger.Warn("saved blueprint not build-complete", "blueprint_id", saved, "status", string(bp.Status))
		return ""
	}
	return saved
}

// resumeAndVerify resumes a suspended devbox, waits for it to reach running
// and hard-gates on the health threshold. A gate failure records the id in
// rejected and suspends the instance back, so the now-running devbox cannot
// be re-adopted by later chain steps.
func (m *Manager) resumeAndVerify(ctx context.Context, id string, rejected map[string]bool) bool {
	logger := m.logger.WithDevbox(id)

	if err := m.provider.ResumeDevbox(ctx, id); err != nil {
		logger.Warn("failed to resume devbox", "error", err.Error())
		return false
	}
	if err := WaitForRunning(ctx, m.provider, id, m.opts.ReadyTimeout, m.opts.ReadyPoll); err != nil {
		logger.Warn("resumed devbox did not become ready", "error", err.Error())
		rejected[id] = true
		return false
	}
	if !m.healthy(ctx, id) {
		logger.Warn("resumed devbox failed health checks, releasing it")
		rejected[id] = true
		if err := m.provider.SuspendDevbox(ctx, id); err != nil {
			logger.Warn("failed to suspend unhealthy devbox", "error", err.Error())
		}
		return false
	}
	logger.Info("resumed healthy devbox")
	return true
}

func (m *Manager) healthy(ctx context.Context, id string) bool {
	report := m.checker.Run(ctx, id, health.ChecklistForRole(m.opts.Role))
	return report.Passed(m.opts.PassThreshold)
}

// cleanupShutdown best-effort deletes shutdown devboxes carrying the role's
// name. The provider may refuse; shutdown devboxes cost nothing, so failures
// only get a log line.
func (m *Manager) cleanupShutdown(ctx context.Context) {
	devboxes, err := m.provider.ListDevboxes(ctx)
	if err != nil {
		m.logger.Warn("cleanup: failed to list devboxes", "error", err.Error())
		return
	}

	deleted := 0
	for _, d := range devboxes {
		if d.Name != m.opts.DevboxName || d.Status != runloop.StatusShutdown {
			continue
		}
		if err := m.provider.DeleteDevbox(ctx, d.ID); err != nil {
			m.logger.Debug("cleanup: could not delete shutdown devbox", "devbox_id", d.ID, "error", err.Error())
			continue
		}
		deleted++
	}
	if deleted > 0 {
		m.logger.Info("cleanup: deleted shutdown devboxes", "count", deleted)
	}
}

// persistPointer saves the devbox id and derived URL for the role. Failures
// are logged, not fatal: the pointer is an optimization, not ground truth.
func (m *Manager) persistPointer(id string) {
	if err := m.store.Set(m.opts.Role, id); err != nil {
		m.logger.Warn("failed to persist devbox pointer", "devbox_id", id, "error", err.Error())
		return
	}
	url := statestore.DerivedURL(id, m.opts.Domain, m.opts.Port)
	if err := m.store.SetURL(m.opts.Role, url); err != nil {
		m.logger.Warn("failed to persist devbox url", "devbox_id", id, "error", err.Error())
	}
	m.logger.Info("devbox pointer saved", "devbox_id", id)
}

// DevboxGetter fetches one devbox; the subset of Provider WaitForRunning needs.
type DevboxGetter interface {
	GetDevbox(ctx context.Context, id string) (*runloop.Devbox, error)
}

// WaitForRunning polls a devbox until it reports running. A failed status
// aborts immediately; exhausting the budget returns a timeout error.
func WaitForRunning(ctx context.Context, provider DevboxGetter, id string, timeout, poll time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		devbox, err := provider.GetDevbox(waitCtx, id)
		if err == nil {
			switch devbox.Status {
			case runloop.StatusRunning:
				return nil
			case runloop.StatusFailed:
				return apperrors.NewDeploymentError("devbox entered failed state", nil).WithPhase("waiting_ready")
			}
		} else if !apperrors.IsRetryable(err) && !apperrors.Is(err, apperrors.ErrDevboxNotFound) {
			return err
		}

		select {
		case <-waitCtx.Done():
			return apperrors.NewTimeoutError("waiting for devbox to reach running", timeout)
		case <-ticker.C:
		}
	}
}
