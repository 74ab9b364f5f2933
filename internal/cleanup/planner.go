package cleanup

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/omniagent/devboxctl/internal/errors"
	"github.com/omniagent/devboxctl/internal/logging"
	"github.com/omniagent/devboxctl/internal/runloop"
)

// Provider is the slice of the provider API cleanup needs.
type Provider interface {
	ListDevboxes(ctx context.Context) ([]runloop.Devbox, error)
	ListBlueprints(ctx context.Context) ([]runloop.Blueprint, error)
	SuspendDevbox(ctx context.Context, id string) error
	DeleteDevbox(ctx context.Context, id string) error
	DeleteBlueprint(ctx context.Context, id string) error
}

// Policy is the keep-policy a plan is derived under. Resources outside the
// configured name prefix are never touched.
type Policy struct {
	// NamePrefix scopes cleanup to devboxes and blueprints whose names carry
	// it. Empty disables planning entirely.
	NamePrefix string

	// KeepDevboxIDs are pinned instances (saved pointers) that are never
	// reclaimed regardless of status.
	KeepDevboxIDs []string

	// KeepBlueprintID pins the active blueprint.
	KeepBlueprintID string

	// SuspendRunning reclaims running devboxes by suspending them.
	SuspendRunning bool

	// DeleteSuspended deletes duplicate suspended devboxes beyond the one
	// canonical instance kept per name.
	DeleteSuspended bool

	// MaxAge limits reclamation to resources older than this; zero disables
	// the age filter. Resources with no creation timestamp are kept.
	MaxAge time.Duration
}

// Planner derives cleanup jobs from the current provider inventory.
type Planner struct {
	provider Provider
	logger   *logging.Logger
	policy   Policy
}

// NewPlanner creates a Planner.
func NewPlanner(provider Provider, logger *logging.Logger, policy Policy) *Planner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Planner{provider: provider, logger: logger, policy: policy}
}

// Plan lists devboxes and blueprints and derives reclamation jobs under the
// keep policy: shutdown devboxes are deleted, the first suspended instance
// per name is kept as canonical and further ones deleted (when enabled),
// running strays are suspended (when enabled), and blueprints other than the
// pinned one and the newest build-complete one per name are deleted.
func (p *Planner) Plan(ctx context.Context) ([]Job, error) {
	if p.policy.NamePrefix == "" {
		return nil, nil
	}

	devboxes, err := p.provider.ListDevboxes(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "listing devboxes for cleanup")
	}
	blueprints, err := p.provider.ListBlueprints(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "listing blueprints for cleanup")
	}

	jobs := p.planDevboxes(devboxes)
	jobs = append(jobs, p.planBlueprints(blueprints)...)

	p.logger.Info("cleanup plan derived",
		"devboxes", len(devboxes),
		"blueprints", len(blueprints),
		"jobs", len(jobs),
	)
	return jobs, nil
}

func (p *Planner) planDevboxes(devboxes []runloop.Devbox) []Job {
	var jobs []Job
	canonicalSuspended := make(map[string]bool)

	for i := range devboxes {
		d := &devboxes[i]
		if !strings.HasPrefix(d.Name, p.policy.NamePrefix) {
			continue
		}
		if p.pinned(d.ID) {
			p.logger.Debug("keeping pinned devbox", "devbox_id", d.ID)
			continue
		}

		switch d.Status {
		case runloop.StatusShutdown:
			jobs = append(jobs, Job{
				Action:     ActionDeleteDevbox,
				ResourceID: d.ID,
				Name:       d.Name,
				Reason:     "shutdown",
			})

		case runloop.StatusSuspended:
			if !canonicalSuspended[d.Name] {
				// First suspended instance per name is the warm standby.
				canonicalSuspended[d.Name] = true
				continue
			}
			if created, _ := d.CreatedTime(); p.policy.DeleteSuspended && p.oldEnough(created) {
				jobs = append(jobs, Job{
					Action:     ActionDeleteDevbox,
					ResourceID: d.ID,
					Name:       d.Name,
					Reason:     "duplicate suspended instance",
				})
			}

		case runloop.StatusRunning:
			if created, _ := d.CreatedTime(); p.policy.SuspendRunning && p.oldEnough(created) {
				jobs = append(jobs, Job{
					Action:     ActionSuspendDevbox,
					ResourceID: d.ID,
					Name:       d.Name,
					Reason:     "running stray",
				})
			}
		}
	}
	return jobs
}

func (p *Planner) planBlueprints(blueprints []runloop.Blueprint) []Job {
	// The newest build-complete blueprint per name stays deployable.
	newestReady := make(map[string]string)
	newestAt := make(map[string]time.Time)
	for i := range blueprints {
		b := &blueprints[i]
		if !strings.HasPrefix(b.Name, p.policy.NamePrefix) || !b.IsReady() {
			continue
		}
		// An unparseable timestamp ranks as zero time, so it never
		// displaces a dated build.
		if created, _ := b.CreatedTime(); newestReady[b.Name] == "" || created.After(newestAt[b.Name]) {
			newestReady[b.Name] = b.ID
			newestAt[b.Name] = created
		}
	}

	var jobs []Job
	for i := range blueprints {
		b := &blueprints[i]
		if !strings.HasPrefix(b.Name, p.policy.NamePrefix) {
			continue
		}
		if b.ID == p.policy.KeepBlueprintID || b.ID == newestReady[b.Name] {
			continue
		}
		if b.Status == runloop.BlueprintBuilding {
			// In-flight builds are left to finish.
			continue
		}
		if created, _ := b.CreatedTime(); !p.oldEnough(created) {
			continue
		}

		reason := "superseded by newer build"
		if b.Status == runloop.BlueprintFailed {
			reason = "failed build"
		}
		jobs = append(jobs, Job{
			Action:     ActionDeleteBlueprint,
			ResourceID: b.ID,
			Name:       b.Name,
			Reason:     reason,
		})
	}
	return jobs
}

func (p *Planner) pinned(devboxID string) bool {
	for _, id := range p.policy.KeepDevboxIDs {
		if id != "" && id == devboxID {
			return true
		}
	}
	return false
}

// oldEnough applies the age filter; unknown creation times never pass it.
func (p *Planner) oldEnough(created time.Time) bool {
	if p.policy.MaxAge <= 0 {
		return true
	}
	if created.IsZero() {
		return false
	}
	return time.Since(created) > p.policy.MaxAge
}

// Describe renders a job as a one-line human summary for plan output.
func (j Job) Describe() string {
	verb := map[Action]string{
		ActionDeleteDevbox:    "delete devbox",
		ActionSuspendDevbox:   "suspend devbox",
		ActionDeleteBlueprint: "delete blueprint",
	}[j.Action]
	return fmt.Sprintf("%s %s (%s)", verb, j.ResourceID, j.Reason)
}
