package cleanup

import (
	"context"
	"testing"

	apperrors "github.com/omniagent/devboxctl/internal/errors"
)

func TestExecutor_Run(t *testing.T) {
	provider := &fakeProvider{}
	e := NewExecutor(provider, nil, false)

	summary := e.Run(context.Background(), []Job{
		{Action: ActionDeleteDevbox, ResourceID: "dbx_1", Reason: "shutdown"},
		{Action: ActionSuspendDevbox, ResourceID: "dbx_2", Reason: "running stray"},
		{Action: ActionDeleteBlueprint, ResourceID: "bpt_1", Reason: "failed build"},
	})

	if summary.Reclaimed != 3 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Errorf("summary = %+v, want 3 reclaimed", summary)
	}
	if len(provider.deletedDevboxes) != 1 || provider.deletedDevboxes[0] != "dbx_1" {
		t.Errorf("deleted devboxes = %v", provider.deletedDevboxes)
	}
	if len(provider.suspended) != 1 || provider.suspended[0] != "dbx_2" {
		t.Errorf("suspended = %v", provider.suspended)
	}
	if len(provider.deletedBlueprints) != 1 || provider.deletedBlueprints[0] != "bpt_1" {
		t.Errorf("deleted blueprints = %v", provider.deletedBlueprints)
	}
}

func TestExecutor_DryRunTouchesNothing(t *testing.T) {
	provider := &fakeProvider{}
	e := NewExecutor(provider, nil, true)

	summary := e.Run(context.Background(), []Job{
		{Action: ActionDeleteDevbox, ResourceID: "dbx_1", Reason: "shutdown"},
		{Action: ActionDeleteBlueprint, ResourceID: "bpt_1", Reason: "failed build"},
	})

	if summary.Skipped != 2 || summary.Reclaimed != 0 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 2 skipped", summary)
	}
	if len(provider.deletedDevboxes)+len(provider.suspended)+len(provider.deletedBlueprints) != 0 {
		t.Error("dry run touched provider resources")
	}
}

func TestExecutor_FailuresIsolated(t *testing.T) {
	provider := &fakeProvider{failIDs: map[string]error{
		"dbx_cursed": apperrors.NewProviderError("deletion rejected", nil).WithStatusCode(409),
	}}
	e := NewExecutor(provider, nil, false)

	summary := e.Run(context.Background(), []Job{
		{Action: ActionDeleteDevbox, ResourceID: "dbx_cursed", Reason: "shutdown"},
		{Action: ActionDeleteDevbox, ResourceID: "dbx_fine", Reason: "shutdown"},
	})

	if summary.Reclaimed != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want 1 reclaimed / 1 failed", summary)
	}
	if len(summary.Errors) != 1 {
		t.Errorf("errors = %v, want 1 entry", summary.Errors)
	}
	if len(provider.deletedDevboxes) != 1 || provider.deletedDevboxes[0] != "dbx_fine" {
		t.Errorf("deleted devboxes = %v", provider.deletedDevboxes)
	}
}

func TestExecutor_UnknownAction(t *testing.T) {
	e := NewExecutor(&fakeProvider{}, nil, false)

	summary := e.Run(context.Background(), []Job{{Action: Action("defragment"), ResourceID: "x"}})
	if summary.Failed != 1 {
		t.Errorf("summary = %+v, want 1 failed", summary)
	}
}
