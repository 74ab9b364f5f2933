package blueprint

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/omniagent/devboxctl/internal/errors"
	"github.com/omniagent/devboxctl/internal/runloop"
	"github.com/omniagent/devboxctl/internal/statestore"
)

type fakeProvider struct {
	mu         sync.Mutex
	blueprints []runloop.Blueprint
	creates    int
	createErr  error
	listErr    error

	// readyAfterGets flips the created blueprint to build_complete once this
	// many GetBlueprint calls have been made (0 means immediately ready).
	readyAfterGets int
	gets           int
}

func (f *fakeProvider) ListBlueprints(ctx context.Context) ([]runloop.Blueprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]runloop.Blueprint, len(f.blueprints))
	copy(out, f.blueprints)
	return out, nil
}

func (f *fakeProvider) GetBlueprint(ctx context.Context, id string) (*runloop.Blueprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	for i := range f.blueprints {
		if f.blueprints[i].ID == id {
			b := f.blueprints[i]
			if b.Status == runloop.BlueprintBuilding && f.gets > f.readyAfterGets {
				b.Status = runloop.BlueprintBuildComplete
				f.blueprints[i].Status = runloop.BlueprintBuildComplete
			}
			return &b, nil
		}
	}
	return nil, apperrors.NewNotFoundError("blueprint", id)
}

func (f *fakeProvider) CreateBlueprint(ctx context.Context, name string, launchParams map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.creates++
	id := fmt.Sprintf("bpt_new_%d", f.creates)
	status := runloop.BlueprintBuildComplete
	if f.readyAfterGets > 0 {
		status = runloop.BlueprintBuilding
	}
	f.blueprints = append(f.blueprints, runloop.Blueprint{ID: id, Name: name, Status: status})
	return id, nil
}

func testOptions() Options {
	return Options{
		Name:         "devboxctl-agent",
		Role:         "backend",
		BuildTimeout: 100 * time.Millisecond,
		BuildPoll:    time.Millisecond,
	}
}

func TestFind_NewestWins(t *testing.T) {
	provider := &fakeProvider{blueprints: []runloop.Blueprint{
		{ID: "bpt_old", Name: "devboxctl-agent", Status: runloop.BlueprintBuildComplete, CreatedAt: "2026-01-01T00:00:00Z"},
		{ID: "bpt_other", Name: "something-else", Status: runloop.BlueprintBuildComplete, CreatedAt: "2026-03-01T00:00:00Z"},
		{ID: "bpt_new", Name: "devboxctl-agent", Status: runloop.BlueprintBuilding, CreatedAt: "2026-02-01T00:00:00Z"},
	}}
	m := NewManager(provider, nil, nil, testOptions())

	b, err := m.Find(context.Background())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if b.ID != "bpt_new" {
		t.Errorf("Find() = %s, want bpt_new (newest by creation time, status irrelevant)", b.ID)
	}
}

func TestFind_UndatedRanksOldest(t *testing.T) {
	provider := &fakeProvider{blueprints: []runloop.Blueprint{
		{ID: "bpt_undated", Name: "devboxctl-agent", Status: runloop.BlueprintBuildComplete, CreatedAt: "not-a-timestamp"},
		{ID: "bpt_dated", Name: "devboxctl-agent", Status: runloop.BlueprintBuildComplete, CreatedAt: "2026-01-01T00:00:00Z"},
	}}
	m := NewManager(provider, nil, nil, testOptions())

	b, err := m.Find(context.Background())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if b.ID != "bpt_dated" {
		t.Errorf("Find() = %s, want bpt_dated (unparseable timestamp must not displace a dated build)", b.ID)
	}
}

func TestFind_NoMatch(t *testing.T) {
	provider := &fakeProvider{blueprints: []runloop.Blueprint{
		{ID: "bpt_other", Name: "something-else", Status: runloop.BlueprintBuildComplete},
	}}
	m := NewManager(provider, nil, nil, testOptions())

	_, err := m.Find(context.Background())
	if !apperrors.Is(err, apperrors.ErrBlueprintNotFound) {
		t.Errorf("Find() error = %v, want ErrBlueprintNotFound", err)
	}
}

func TestEnsure_ExistingReady(t *testing.T) {
	provider := &fakeProvider{blueprints: []runloop.Blueprint{
		{ID: "bpt_ready", Name: "devboxctl-agent", Status: runloop.BlueprintBuildComplete},
	}}
	store := statestore.NewMemoryStore()
	m := NewManager(provider, store, nil, testOptions())

	id, err := m.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id != "bpt_ready" {
		t.Errorf("Ensure() = %s, want bpt_ready", id)
	}
	if provider.creates != 0 {
		t.Errorf("created %d blueprints with a ready one available, want 0", provider.creates)
	}
	if got, _ := store.GetBlueprintID("backend"); got != "bpt_ready" {
		t.Errorf("blueprint pointer = %q, want bpt_ready", got)
	}
}

func TestEnsure_WaitsOutInflightBuild(t *testing.T) {
	provider := &fakeProvider{
		blueprints: []runloop.Blueprint{
			{ID: "bpt_building", Name: "devboxctl-agent", Status: runloop.BlueprintBuilding},
		},
		readyAfterGets: 3,
	}
	m := NewManager(provider, statestore.NewMemoryStore(), nil, testOptions())

	id, err := m.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id != "bpt_building" {
		t.Errorf("Ensure() = %s, want bpt_building", id)
	}
	if provider.creates != 0 {
		t.Errorf("created %d blueprints while one was building, want 0", provider.creates)
	}
}

func TestEnsure_CreatesWhenAbsent(t *testing.T) {
	provider := &fakeProvider{}
	store := statestore.NewMemoryStore()
	opts := testOptions()
	opts.LaunchParameters = map[string]any{"keep_alive_time_seconds": 3600}
	m := NewManager(provider, store, nil, opts)

	id, err := m.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id != "bpt_new_1" {
		t.Errorf("Ensure() = %s, want bpt_new_1", id)
	}
	if got, _ := store.GetBlueprintID("backend"); got != id {
		t.Errorf("blueprint pointer = %q, want %s", got, id)
	}
}

func TestEnsure_RebuildsAfterFailedBuild(t *testing.T) {
	provider := &fakeProvider{blueprints: []runloop.Blueprint{
		{ID: "bpt_dead", Name: "devboxctl-agent", Status: runloop.BlueprintFailed},
	}}
	m := NewManager(provider, statestore.NewMemoryStore(), nil, testOptions())

	id, err := m.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id == "bpt_dead" {
		t.Error("Ensure() reused a failed blueprint")
	}
	if provider.creates != 1 {
		t.Errorf("creates = %d, want 1", provider.creates)
	}
}

func TestWaitReady_FailedBuildAborts(t *testing.T) {
	provider := &fakeProvider{blueprints: []runloop.Blueprint{
		{ID: "bpt_dead", Name: "devboxctl-agent", Status: runloop.BlueprintFailed},
	}}
	m := NewManager(provider, nil, nil, testOptions())

	err := m.WaitReady(context.Background(), "bpt_dead")
	if !apperrors.Is(err, apperrors.ErrBlueprintNotReady) {
		t.Errorf("WaitReady() error = %v, want ErrBlueprintNotReady", err)
	}
	if provider.gets != 1 {
		t.Errorf("polled %d times after a failed build, want 1", provider.gets)
	}
}

func TestWaitReady_Timeout(t *testing.T) {
	provider := &fakeProvider{
		blueprints: []runloop.Blueprint{
			{ID: "bpt_slow", Name: "devboxctl-agent", Status: runloop.BlueprintBuilding},
		},
		readyAfterGets: 1 << 30,
	}
	m := NewManager(provider, nil, nil, testOptions())

	err := m.WaitReady(context.Background(), "bpt_slow")
	if !apperrors.Is(err, apperrors.ErrTimeout) {
		t.Errorf("WaitReady() error = %v, want ErrTimeout", err)
	}
}

func TestWaitReady_ToleratesTransientLookupErrors(t *testing.T) {
	// The blueprint is briefly invisible after creation; the poll loop must
	// ride that out rather than abort.
	provider := &fakeProvider{readyAfterGets: 2}
	m := NewManager(provider, nil, nil, testOptions())

	done := make(chan error, 1)
	go func() { done <- m.WaitReady(context.Background(), "bpt_late") }()

	time.Sleep(5 * time.Millisecond)
	provider.mu.Lock()
	provider.blueprints = append(provider.blueprints, runloop.Blueprint{
		ID: "bpt_late", Name: "devboxctl-agent", Status: runloop.BlueprintBuildComplete,
	})
	provider.mu.Unlock()

	if err := <-done; err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
}
