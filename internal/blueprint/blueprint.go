// Package blueprint resolves, creates and gates provider blueprints.
//
// Blueprints are immutable once build_complete, so deployments treat the
// newest ready blueprint of the configured name as canonical. Ensure
// implements find-or-create: an existing ready blueprint wins, an in-flight
// build is waited out, and anything else triggers a fresh build.
package blueprint

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/omniagent/devboxctl/internal/errors"
	"github.com/omniagent/devboxctl/internal/logging"
	"github.com/omniagent/devboxctl/internal/runloop"
	"github.com/omniagent/devboxctl/internal/statestore"
)

// Build wait defaults.
const (
	DefaultBuildTimeout = 600 * time.Second
	DefaultBuildPoll    = 10 * time.Second
)

// Provider is the slice of the provider API the manager needs.
type Provider interface {
	ListBlueprints(ctx context.Context) ([]runloop.Blueprint, error)
	GetBlueprint(ctx context.Context, id string) (*runloop.Blueprint, error)
	CreateBlueprint(ctx context.Context, name string, launchParams map[string]any) (string, error)
}

// Options configures a Manager.
type Options struct {
	// Name identifies the blueprint family; Find picks the newest build
	// carrying it.
	Name string

	// Role scopes the persisted blueprint pointer in the store.
	Role string

	// LaunchParameters is passed through on blueprint creation.
	LaunchParameters map[string]any

	// BuildTimeout and BuildPoll bound WaitReady. Zero values take the
	// package defaults.
	BuildTimeout time.Duration
	BuildPoll    time.Duration
}

func (o *Options) applyDefaults() {
	if o.BuildTimeout <= 0 {
		o.BuildTimeout = DefaultBuildTimeout
	}
	if o.BuildPoll <= 0 {
		o.BuildPoll = DefaultBuildPoll
	}
}

// Manager finds, creates and waits on blueprints, persisting the resolved id
// so deployments can reuse it without re-listing.
type Manager struct {
	provider Provider
	store    statestore.Store
	logger   *logging.Logger
	opts     Options
}

// NewManager creates a Manager. The store may be nil when pointer
// persistence is not wanted.
func NewManager(provider Provider, store statestore.Store, logger *logging.Logger, opts Options) *Manager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	opts.applyDefaults()
	return &Manager{
		provider: provider,
		store:    store,
		logger:   logger,
		opts:     opts,
	}
}

// Find returns the newest blueprint carrying the configured name, in any
// build status. A typed NotFound error signals the name is unknown.
func (m *Manager) Find(ctx context.Context) (*runloop.Blueprint, error) {
	blueprints, err := m.provider.ListBlueprints(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "listing blueprints")
	}

	var newest *runloop.Blueprint
	var newestAt time.Time
	for i := range blueprints {
		b := &blueprints[i]
		if b.Name != m.opts.Name {
			continue
		}
		// An unparseable timestamp ranks as zero time, so it never
		// displaces a dated build.
		created, _ := b.CreatedTime()
		if newest == nil || created.After(newestAt) {
			newest = b
			newestAt = created
		}
	}
	if newest == nil {
		return nil, apperrors.NewNotFoundError("blueprint", m.opts.Name)
	}

	m.logger.Debug("resolved blueprint", "name", m.opts.Name, "blueprint_id", newest.ID, "status", newest.Status)
	return newest, nil
}

// Ensure resolves the configured blueprint to a build-complete id, creating
// and waiting for a fresh build when no usable one exists. The resolved id
// is persisted to the pointer store.
func (m *Manager) Ensure(ctx context.Context) (string, error) {
	existing, err := m.Find(ctx)
	if err != nil && !apperrors.Is(err, apperrors.ErrBlueprintNotFound) {
		return "", err
	}

	if existing != nil {
		switch existing.Status {
		case runloop.BlueprintBuildComplete:
			m.logger.Info("blueprint ready", "blueprint_id", existing.ID)
			return existing.ID, m.persist(existing.ID)
		case runloop.BlueprintBuilding:
			m.logger.Info("blueprint build in flight, waiting", "blueprint_id", existing.ID)
			if err := m.WaitReady(ctx, existing.ID); err != nil {
				return "", err
			}
			return existing.ID, m.persist(existing.ID)
		default:
			// Failed builds are dead ends; build a replacement.
			m.logger.Warn("newest blueprint unusable, rebuilding", "blueprint_id", existing.ID, "status", existing.Status)
		}
	}

	id, err := m.provider.CreateBlueprint(ctx, m.opts.Name, m.opts.LaunchParameters)
	if err != nil {
		return "", apperrors.Wrap(err, "creating blueprint")
	}
	m.logger.Info("blueprint build started", "blueprint_id", id, "name", m.opts.Name)

	if err := m.WaitReady(ctx, id); err != nil {
		return "", err
	}
	return id, m.persist(id)
}

// WaitReady polls the blueprint until it reaches build_complete. A failed
// build aborts immediately; transient lookup errors keep the loop alive
// until the budget runs out.
func (m *Manager) WaitReady(ctx context.Context, id string) error {
	waitCtx, cancel := context.WithTimeout(ctx, m.opts.BuildTimeout)
	defer cancel()

	ticker := time.NewTicker(m.opts.BuildPoll)
	defer ticker.Stop()

	for {
		b, err := m.provider.GetBlueprint(waitCtx, id)
		switch {
		case err != nil:
			if waitCtx.Err() == nil {
				m.logger.Warn("blueprint status check failed", "blueprint_id", id, "error", err.Error())
			}
		case b.IsReady():
			m.logger.Info("blueprint build complete", "blueprint_id", id)
			return nil
		case b.Status == runloop.BlueprintFailed:
			return fmt.Errorf("%w: blueprint %s build failed", apperrors.ErrBlueprintNotReady, id)
		default:
			m.logger.Debug("blueprint building", "blueprint_id", id, "status", b.Status)
		}

		select {
		case <-waitCtx.Done():
			return apperrors.NewTimeoutError("waiting for blueprint build", m.opts.BuildTimeout)
		case <-ticker.C:
		}
	}
}

func (m *Manager) persist(id string) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.SetBlueprintID(m.opts.Role, id); err != nil {
		return apperrors.Wrap(err, "persisting blueprint pointer")
	}
	return nil
}
