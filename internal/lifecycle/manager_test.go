package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/omniagent/devboxctl/internal/errors"
	"github.com/omniagent/devboxctl/internal/health"
	"github.com/omniagent/devboxctl/internal/runloop"
	"github.com/omniagent/devboxctl/internal/statestore"
)

type fakeProvider struct {
	mu         sync.Mutex
	devboxes   map[string]*runloop.Devbox
	blueprints map[string]*runloop.Blueprint

	creates   int
	createErr error
	resumeErr error
	deleteErr error
	listErr   error
	deleted   []string

	// status assigned to freshly created devboxes (default running)
	createStatus runloop.DevboxStatus
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		devboxes:     make(map[string]*runloop.Devbox),
		blueprints:   make(map[string]*runloop.Blueprint),
		createStatus: runloop.StatusRunning,
	}
}

func (f *fakeProvider) add(id, name string, status runloop.DevboxStatus) {
	f.devboxes[id] = &runloop.Devbox{ID: id, Name: name, Status: status}
}

func (f *fakeProvider) ListDevboxes(ctx context.Context) ([]runloop.Devbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []runloop.Devbox
	for _, d := range f.devboxes {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeProvider) GetDevbox(ctx context.Context, id string) (*runloop.Devbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devboxes[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("devbox", id)
	}
	dup := *d
	return &dup, nil
}

func (f *fakeProvider) CreateDevbox(ctx context.Context, name, blueprintID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	id := fmt.Sprintf("dbx_created_%d", f.creates)
	f.devboxes[id] = &runloop.Devbox{ID: id, Name: name, Status: f.createStatus, BlueprintID: blueprintID}
	return id, nil
}

func (f *fakeProvider) SuspendDevbox(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.devboxes[id]; ok {
		d.Status = runloop.StatusSuspended
	}
	return nil
}

func (f *fakeProvider) ResumeDevbox(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resumeErr != nil {
		return f.resumeErr
	}
	if d, ok := f.devboxes[id]; ok {
		d.Status = runloop.StatusRunning
	}
	return nil
}

func (f *fakeProvider) DeleteDevbox(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	delete(f.devboxes, id)
	return nil
}

func (f *fakeProvider) GetBlueprint(ctx context.Context, id string) (*runloop.Blueprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blueprints[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("blueprint", id)
	}
	dup := *b
	return &dup, nil
}

// fakeChecker passes or fails every check based on a per-devbox flag.
type fakeChecker struct {
	healthy map[string]bool
	runs    []string
}

func (f *fakeChecker) Run(ctx context.Context, devboxID string, checks []health.Check) health.Report {
	f.runs = append(f.runs, devboxID)
	passed := f.healthy[devboxID]
	report := health.Report{}
	for _, c := range checks {
		report.Results = append(report.Results, health.Result{Name: c.Name, Passed: passed})
	}
	return report
}

func testOptions() Options {
	return Options{
		Role:          "general",
		DevboxName:    "devboxctl-general",
		PassThreshold: 0.8,
		ReadyTimeout:  200 * time.Millisecond,
		ReadyPoll:     time.Millisecond,
		Domain:        "runloop.dev",
		Port:          8000,
	}
}

func newTestManager(provider *fakeProvider, checker *fakeChecker, store statestore.Store) *Manager {
	return NewManager(provider, store, checker, nil, testOptions())
}

func TestEnsure_SavedRunningHealthy(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_saved", "devboxctl-general", runloop.StatusRunning)
	checker := &fakeChecker{healthy: map[string]bool{"dbx_saved": true}}
	store := statestore.NewMemoryStore()
	store.Set("general", "dbx_saved")

	id, err := newTestManager(provider, checker, store).Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id != "dbx_saved" {
		t.Errorf("id = %q, want dbx_saved", id)
	}
	if provider.creates != 0 {
		t.Errorf("created %d devboxes, want 0", provider.creates)
	}
}

func TestEnsure_SavedRunningUnhealthy_SoftAccept(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_saved", "devboxctl-general", runloop.StatusRunning)
	checker := &fakeChecker{healthy: map[string]bool{}}
	store := statestore.NewMemoryStore()
	store.Set("general", "dbx_saved")

	id, err := newTestManager(provider, checker, store).Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id != "dbx_saved" {
		t.Errorf("unhealthy running pointer should still be returned, got %q", id)
	}
	if provider.creates != 0 {
		t.Errorf("created %d devboxes, want 0", provider.creates)
	}
}

func TestEnsure_SavedSuspended_ResumedHealthy(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_saved", "devboxctl-general", runloop.StatusSuspended)
	checker := &fakeChecker{healthy: map[string]bool{"dbx_saved": true}}
	store := statestore.NewMemoryStore()
	store.Set("general", "dbx_saved")

	id, err := newTestManager(provider, checker, store).Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id != "dbx_saved" {
		t.Errorf("id = %q, want dbx_saved", id)
	}
	if provider.devboxes["dbx_saved"].Status != runloop.StatusRunning {
		t.Errorf("saved devbox not resumed: %s", provider.devboxes["dbx_saved"].Status)
	}
}

func TestEnsure_SavedSuspendedUnhealthy_FallsThrough(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_saved", "devboxctl-general", runloop.StatusSuspended)
	// Resumed pointer stays unhealthy; fresh instances are healthy.
	checker := &fakeChecker{healthy: map[string]bool{"dbx_created_1": true}}
	store := statestore.NewMemoryStore()
	store.Set("general", "dbx_saved")

	id, err := newTestManager(provider, checker, store).Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id != "dbx_created_1" {
		t.Errorf("id = %q, want dbx_created_1 (unhealthy resume must be a hard gate)", id)
	}
	// The rejected instance is suspended back, not left running for the
	// pool scans to re-adopt.
	if got := provider.devboxes["dbx_saved"].Status; got != runloop.StatusSuspended {
		t.Errorf("rejected devbox status = %s, want suspended", got)
	}
	if saved, _ := store.Get("general"); saved != "dbx_created_1" {
		t.Errorf("pointer = %q, want dbx_created_1", saved)
	}
}

func TestEnsure_PoolSuspendedUnhealthy_FallsThrough(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_pool", "devboxctl-general", runloop.StatusSuspended)
	checker := &fakeChecker{healthy: map[string]bool{"dbx_created_1": true}}
	store := statestore.NewMemoryStore()

	id, err := newTestManager(provider, checker, store).Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id != "dbx_created_1" {
		t.Errorf("id = %q, want dbx_created_1 (pool resume shares the hard gate)", id)
	}
	if provider.creates != 1 {
		t.Errorf("creates = %d, want 1", provider.creates)
	}
}

func TestEnsure_AdoptsRunningPool(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_running", "devboxctl-general", runloop.StatusRunning)
	checker := &fakeChecker{healthy: map[string]bool{}}
	store := statestore.NewMemoryStore()

	id, err := newTestManager(provider, checker, store).Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id != "dbx_running" {
		t.Errorf("id = %q, want dbx_running", id)
	}
	if provider.creates != 0 {
		t.Errorf("created %d devboxes, want 0 (adoption must beat creation)", provider.creates)
	}
	// Adoption skips health checks entirely.
	if len(checker.runs) != 0 {
		t.Errorf("health checks run against %v, want none", checker.runs)
	}
	if saved, _ := store.Get("general"); saved != "dbx_running" {
		t.Errorf("pointer = %q, want dbx_running", saved)
	}
	if url, _ := store.GetURL("general"); url != "https://dbx_running.runloop.dev:8000" {
		t.Errorf("url = %q", url)
	}
}

func TestEnsure_SuspendedPool_HardGate(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_pool", "devboxctl-general", runloop.StatusSuspended)
	checker := &fakeChecker{healthy: map[string]bool{"dbx_pool": true}}
	store := statestore.NewMemoryStore()

	id, err := newTestManager(provider, checker, store).Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id != "dbx_pool" {
		t.Errorf("id = %q, want dbx_pool", id)
	}
	if saved, _ := store.Get("general"); saved != "dbx_pool" {
		t.Errorf("pointer = %q, want dbx_pool", saved)
	}
}

func TestEnsure_IgnoresOtherNames(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_other", "unrelated-service", runloop.StatusRunning)
	checker := &fakeChecker{healthy: map[string]bool{"dbx_created_1": true}}
	store := statestore.NewMemoryStore()

	id, err := newTestManager(provider, checker, store).Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id != "dbx_created_1" {
		t.Errorf("id = %q, want a fresh devbox (name mismatch must not be adopted)", id)
	}
}

func TestEnsure_FreshCreate_UnhealthyStillReturned(t *testing.T) {
	provider := newFakeProvider()
	checker := &fakeChecker{healthy: map[string]bool{}}
	store := statestore.NewMemoryStore()

	id, err := newTestManager(provider, checker, store).Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if id != "dbx_created_1" {
		t.Errorf("id = %q, want dbx_created_1", id)
	}
	if saved, _ := store.Get("general"); saved != "dbx_created_1" {
		t.Errorf("pointer = %q, want dbx_created_1", saved)
	}
}

func TestEnsure_FreshCreate_UsesReadyBlueprint(t *testing.T) {
	provider := newFakeProvider()
	provider.blueprints["bpt_ready"] = &runloop.Blueprint{ID: "bpt_ready", Status: runloop.BlueprintBuildComplete}
	checker := &fakeChecker{healthy: map[string]bool{}}
	store := statestore.NewMemoryStore()
	store.SetBlueprintID("general", "bpt_ready")

	id, err := newTestManager(provider, checker, store).Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if got := provider.devboxes[id].BlueprintID; got != "bpt_ready" {
		t.Errorf("created with blueprint %q, want bpt_ready", got)
	}
}

func TestEnsure_FreshCreate_SkipsBuildingBlueprint(t *testing.T) {
	provider := newFakeProvider()
	provider.blueprints["bpt_building"] = &runloop.Blueprint{ID: "bpt_building", Status: runloop.BlueprintBuilding}
	checker := &fakeChecker{healthy: map[string]bool{}}
	store := statestore.NewMemoryStore()
	store.SetBlueprintID("general", "bpt_building")

	id, err := newTestManager(provider, checker, store).Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if got := provider.devboxes[id].BlueprintID; got != "" {
		t.Errorf("created with blueprint %q, want bare devbox", got)
	}
}

func TestEnsure_NothingAvailable(t *testing.T) {
	provider := newFakeProvider()
	provider.createErr = apperrors.ErrCreateFailed
	checker := &fakeChecker{healthy: map[string]bool{}}
	store := statestore.NewMemoryStore()

	_, err := newTestManager(provider, checker, store).Ensure(context.Background())
	if !apperrors.Is(err, apperrors.ErrNoDevboxAvailable) {
		t.Errorf("error = %v, want ErrNoDevboxAvailable", err)
	}
}

func TestEnsure_CleansUpShutdownDevboxes(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_dead", "devboxctl-general", runloop.StatusShutdown)
	provider.add("dbx_other_dead", "unrelated-service", runloop.StatusShutdown)
	provider.add("dbx_saved", "devboxctl-general", runloop.StatusRunning)
	checker := &fakeChecker{healthy: map[string]bool{"dbx_saved": true}}
	store := statestore.NewMemoryStore()
	store.Set("general", "dbx_saved")

	if _, err := newTestManager(provider, checker, store).Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if len(provider.deleted) != 1 || provider.deleted[0] != "dbx_dead" {
		t.Errorf("deleted = %v, want [dbx_dead] only", provider.deleted)
	}
}

func TestEnsure_CleanupFailureNonFatal(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_dead", "devboxctl-general", runloop.StatusShutdown)
	provider.add("dbx_saved", "devboxctl-general", runloop.StatusRunning)
	provider.deleteErr = apperrors.New("deletion unsupported")
	checker := &fakeChecker{healthy: map[string]bool{"dbx_saved": true}}
	store := statestore.NewMemoryStore()
	store.Set("general", "dbx_saved")

	id, err := newTestManager(provider, checker, store).Ensure(context.Background())
	if err != nil {
		t.Fatalf("cleanup failure must not block Ensure: %v", err)
	}
	if id != "dbx_saved" {
		t.Errorf("id = %q, want dbx_saved", id)
	}
}

func TestFinalize_Suspend(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_1", "devboxctl-general", runloop.StatusRunning)
	provider.add("dbx_dead", "devboxctl-general", runloop.StatusShutdown)
	checker := &fakeChecker{}
	store := statestore.NewMemoryStore()

	m := newTestManager(provider, checker, store)
	if err := m.Finalize(context.Background(), "dbx_1", true); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if provider.devboxes["dbx_1"].Status != runloop.StatusSuspended {
		t.Errorf("devbox not suspended: %s", provider.devboxes["dbx_1"].Status)
	}
	if len(provider.deleted) != 1 || provider.deleted[0] != "dbx_dead" {
		t.Errorf("Finalize should rerun cleanup, deleted = %v", provider.deleted)
	}
}

func TestFinalize_KeepRunning(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_1", "devboxctl-general", runloop.StatusRunning)
	m := newTestManager(provider, &fakeChecker{}, statestore.NewMemoryStore())

	if err := m.Finalize(context.Background(), "dbx_1", false); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if provider.devboxes["dbx_1"].Status != runloop.StatusRunning {
		t.Errorf("devbox should stay running, got %s", provider.devboxes["dbx_1"].Status)
	}
}

func TestWaitForRunning_FailedStatusAborts(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_1", "devboxctl-general", runloop.StatusFailed)

	err := WaitForRunning(context.Background(), provider, "dbx_1", time.Second, time.Millisecond)
	if err == nil {
		t.Fatal("expected error for failed devbox")
	}
	var derr *apperrors.DeploymentError
	if !apperrors.As(err, &derr) {
		t.Errorf("error = %T, want *DeploymentError", err)
	}
}

func TestWaitForRunning_Timeout(t *testing.T) {
	provider := newFakeProvider()
	provider.add("dbx_1", "devboxctl-general", runloop.StatusProvisioning)

	err := WaitForRunning(context.Background(), provider, "dbx_1", 10*time.Millisecond, time.Millisecond)
	if !apperrors.Is(err, apperrors.ErrTimeout) {
		t.Errorf("error = %v, want timeout", err)
	}
}

func TestWaitForRunning_ToleratesBriefNotFound(t *testing.T) {
	provider := newFakeProvider()

	done := make(chan error, 1)
	go func() {
		done <- WaitForRunning(context.Background(), provider, "dbx_late", time.Second, time.Millisecond)
	}()

	// The devbox appears shortly after creation was acknowledged.
	time.Sleep(5 * time.Millisecond)
	provider.mu.Lock()
	provider.devboxes["dbx_late"] = &runloop.Devbox{ID: "dbx_late", Status: runloop.StatusRunning}
	provider.mu.Unlock()

	if err := <-done; err != nil {
		t.Errorf("WaitForRunning() error = %v, want nil", err)
	}
}
