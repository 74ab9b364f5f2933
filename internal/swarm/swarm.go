// Package swarm fans one task out to several independently provisioned
// backend devboxes and reduces their responses to a single consensus answer.
//
// Deploy provisions size members concurrently from one shared blueprint and
// admits each only after its service endpoint answers a liveness probe.
// ProcessTask dispatches the same payload to the admitted members, scores
// whatever comes back and collates a best-of-N answer with a lexical
// agreement confidence. Teardown suspends the members so their disk state
// survives for the next deployment.
package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omniagent/devboxctl/internal/agentapi"
	apperrors "github.com/omniagent/devboxctl/internal/errors"
	"github.com/omniagent/devboxctl/internal/lifecycle"
	"github.com/omniagent/devboxctl/internal/logging"
	"github.com/omniagent/devboxctl/internal/runloop"
	"github.com/omniagent/devboxctl/internal/statestore"
)

// Size bounds for a swarm deployment.
const (
	DefaultSize = 3
	DefaultMin  = 2
	DefaultMax  = 7
)

// State is the orchestrator's lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateDeployed State = "deployed"
)

// Member is one admitted swarm instance.
type Member struct {
	ID            string    `json:"id"`
	DevboxID      string    `json:"devbox_id"`
	URL           string    `json:"url"`
	Healthy       bool      `json:"healthy"`
	ResponseCount int       `json:"response_count"`
	ErrorCount    int       `json:"error_count"`
	LastUsed      time.Time `json:"last_used,omitempty"`
}

// Response is one member's answer to a task.
type Response struct {
	MemberID  string        `json:"member_id"`
	Text      string        `json:"text"`
	Score     float64       `json:"score"`
	Latency   time.Duration `json:"latency"`
	Timestamp time.Time     `json:"timestamp"`
}

// Result is the collated outcome of one task dispatch.
type Result struct {
	TaskID     string        `json:"task_id"`
	Responses  []Response    `json:"responses"`
	Consensus  string        `json:"consensus"`
	Confidence float64       `json:"confidence"`
	Dispatched int           `json:"dispatched"`
	Failed     int           `json:"failed"`
	Elapsed    time.Duration `json:"-"`
}

// Provider is the slice of the provider API the orchestrator needs.
type Provider interface {
	CreateDevbox(ctx context.Context, name, blueprintID string) (string, error)
	GetDevbox(ctx context.Context, id string) (*runloop.Devbox, error)
	SuspendDevbox(ctx context.Context, id string) error
	GetBlueprint(ctx context.Context, id string) (*runloop.Blueprint, error)
}

// AgentClient probes and dispatches to member endpoints. *agentapi.Client
// satisfies it.
type AgentClient interface {
	Health(ctx context.Context, baseURL string) (*agentapi.HealthStatus, error)
	Chat(ctx context.Context, baseURL string, req agentapi.ChatRequest) (*agentapi.ChatResponse, error)
}

// Options configures an Orchestrator.
type Options struct {
	// NamePrefix names member devboxes ("<prefix>-<n>").
	NamePrefix string

	// BlueprintID is the shared blueprint all members deploy from. It must
	// be build-complete at deploy time.
	BlueprintID string

	// Size bounds: requested sizes are clamped into [MinSize, MaxSize];
	// zero requests fall back to Size. Zero values take the package defaults.
	Size    int
	MinSize int
	MaxSize int

	// ReadyTimeout and ReadyPoll bound each member's wait for running.
	ReadyTimeout time.Duration
	ReadyPoll    time.Duration

	// AdmitTimeout and AdmitPoll bound the liveness probe loop after a
	// member reaches running.
	AdmitTimeout time.Duration
	AdmitPoll    time.Duration

	// TaskTimeout bounds one member's answer to one task.
	TaskTimeout time.Duration

	// Domain and Port derive member service URLs.
	Domain string
	Port   int
}

func (o *Options) applyDefaults() {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.MinSize <= 0 {
		o.MinSize = DefaultMin
	}
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMax
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 300 * time.Second
	}
	if o.ReadyPoll <= 0 {
		o.ReadyPoll = 5 * time.Second
	}
	if o.AdmitTimeout <= 0 {
		o.AdmitTimeout = 60 * time.Second
	}
	if o.AdmitPoll <= 0 {
		o.AdmitPoll = 5 * time.Second
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = 60 * time.Second
	}
}

// Orchestrator manages a swarm of backend devboxes.
type Orchestrator struct {
	provider Provider
	agent    AgentClient
	logger   *logging.Logger
	opts     Options

	mu      sync.Mutex
	state   State
	members []*Member
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(provider Provider, agent AgentClient, logger *logging.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	opts.applyDefaults()
	return &Orchestrator{
		provider: provider,
		agent:    agent,
		logger:   logger,
		opts:     opts,
		state:    StateIdle,
	}
}

// clampSize maps a requested size into [MinSize, MaxSize], with zero and
// negative requests falling back to the configured nominal size.
func (o *Orchestrator) clampSize(requested int) int {
	size := requested
	if size <= 0 {
		size = o.opts.Size
	}
	if size < o.opts.MinSize {
		size = o.opts.MinSize
	}
	if size > o.opts.MaxSize {
		size = o.opts.MaxSize
	}
	return size
}

// Deploy provisions a swarm of the requested size. Member launches run
// concurrently and all settle before the verdict: fewer admitted members
// than MinSize fails the deployment and releases what was provisioned.
func (o *Orchestrator) Deploy(ctx context.Context, requested int) error {
	size := o.clampSize(requested)
	o.logger.Info("deploying swarm", "requested", requested, "size", size)

	bp, err := o.provider.GetBlueprint(ctx, o.opts.BlueprintID)
	if err != nil {
		return apperrors.Wrap(err, "resolving swarm blueprint")
	}
	if !bp.IsReady() {
		return fmt.Errorf("%w: blueprint %s has status %s", apperrors.ErrBlueprintNotReady, bp.ID, bp.Status)
	}

	results := make([]launchResult, size)
	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = o.launchMember(ctx, n)
		}(i)
	}
	wg.Wait()

	var admitted []*Member
	var stragglers []string
	for _, l := range results {
		switch {
		case l.member != nil:
			admitted = append(admitted, l.member)
		case l.devboxID != "":
			// Created but never admitted; release it.
			stragglers = append(stragglers, l.devboxID)
		}
		if l.err != nil {
			o.logger.Warn("swarm member failed to launch", "error", l.err.Error())
		}
	}
	o.releaseDevboxes(ctx, stragglers)

	if len(admitted) < o.opts.MinSize {
		o.logger.Error("swarm quorum not met", "admitted", len(admitted), "min_size", o.opts.MinSize)
		var ids []string
		for _, m := range admitted {
			ids = append(ids, m.DevboxID)
		}
		o.releaseDevboxes(ctx, ids)
		return fmt.Errorf("%w: %d of %d members admitted (minimum %d)",
			apperrors.ErrQuorumNotMet, len(admitted), size, o.opts.MinSize)
	}

	o.mu.Lock()
	o.state = StateDeployed
	o.members = admitted
	o.mu.Unlock()

	o.logger.Info("swarm deployed", "members", len(admitted))
	return nil
}

// launchResult is the outcome of one member launch: an admitted member, or
// the devbox id of a created-but-unadmitted instance that needs releasing.
type launchResult struct {
	member   *Member
	devboxID string
	err      error
}

// launchMember creates, waits for and admits one member.
func (o *Orchestrator) launchMember(ctx context.Context, n int) (l launchResult) {
	memberID := uuid.New().String()
	name := fmt.Sprintf("%s-%d", o.opts.NamePrefix, n)
	logger := o.logger.WithSwarmMember(memberID)

	devboxID, err := o.provider.CreateDevbox(ctx, name, o.opts.BlueprintID)
	if err != nil {
		l.err = apperrors.NewSwarmError("creating member devbox", err).WithMemberID(memberID)
		return l
	}
	l.devboxID = devboxID
	logger.Info("member devbox created", "devbox_id", devboxID)

	if err := lifecycle.WaitForRunning(ctx, o.provider, devboxID, o.opts.ReadyTimeout, o.opts.ReadyPoll); err != nil {
		l.err = apperrors.NewSwarmError("member did not become ready", err).
			WithMemberID(memberID).
			WithDevboxID(devboxID)
		return l
	}

	url := statestore.DerivedURL(devboxID, o.opts.Domain, o.opts.Port)
	if err := o.awaitLiveness(ctx, url); err != nil {
		l.err = apperrors.NewSwarmError("member failed liveness probe", err).
			WithMemberID(memberID).
			WithDevboxID(devboxID)
		return l
	}

	logger.Info("member admitted", "devbox_id", devboxID, "url", url)
	l.member = &Member{
		ID:       memberID,
		DevboxID: devboxID,
		URL:      url,
		Healthy:  true,
	}
	return l
}

// awaitLiveness polls the member endpoint until it declares readiness.
func (o *Orchestrator) awaitLiveness(ctx context.Context, url string) error {
	probeCtx, cancel := context.WithTimeout(ctx, o.opts.AdmitTimeout)
	defer cancel()

	ticker := time.NewTicker(o.opts.AdmitPoll)
	defer ticker.Stop()

	var lastErr error
	for {
		status, err := o.agent.Health(probeCtx, url)
		if err == nil && status.OK() {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-probeCtx.Done():
			if lastErr != nil {
				return lastErr
			}
			return apperrors.NewTimeoutError("waiting for member liveness", o.opts.AdmitTimeout)
		case <-ticker.C:
		}
	}
}

// ProcessTask dispatches one task to up to size admitted members and
// collates the responses. Member failures are isolated; only a fully empty
// return is a hard failure.
func (o *Orchestrator) ProcessTask(ctx context.Context, task string, size int) (*Result, error) {
	o.mu.Lock()
	if o.state != StateDeployed || len(o.members) == 0 {
		o.mu.Unlock()
		return nil, apperrors.ErrSwarmNotDeployed
	}
	selected := o.selectMembers(size)
	o.mu.Unlock()

	taskID := uuid.New().String()
	logger := o.logger.With("task_id", taskID)
	logger.Info("dispatching task to swarm", "members", len(selected))
	start := time.Now()

	responses := make([]*Response, len(selected))
	var wg sync.WaitGroup
	for i, m := range selected {
		wg.Add(1)
		go func(n int, member *Member) {
			defer wg.Done()
			responses[n] = o.dispatch(ctx, taskID, member, task)
		}(i, m)
	}
	wg.Wait()

	result := &Result{
		TaskID:     taskID,
		Dispatched: len(selected),
		Elapsed:    time.Since(start),
	}
	for _, r := range responses {
		if r != nil {
			result.Responses = append(result.Responses, *r)
		} else {
			result.Failed++
		}
	}

	if len(result.Responses) == 0 {
		logger.Error("no swarm responses", "dispatched", result.Dispatched)
		return nil, fmt.Errorf("%w: all %d members failed", apperrors.ErrNoResponses, result.Dispatched)
	}

	result.Consensus, result.Confidence = Collate(result.Responses)
	logger.Info("task collated",
		"responses", len(result.Responses),
		"failed", result.Failed,
		"confidence", result.Confidence,
		"elapsed_ms", result.Elapsed.Milliseconds(),
	)
	return result, nil
}

// selectMembers picks up to size members; zero and negative sizes take all
// admitted members capped at the nominal size. Caller holds o.mu.
func (o *Orchestrator) selectMembers(size int) []*Member {
	if size <= 0 {
		size = o.opts.Size
	}
	if size > len(o.members) {
		size = len(o.members)
	}
	return o.members[:size]
}

// dispatch sends the task to one member and records its stats. A nil return
// means the member failed.
func (o *Orchestrator) dispatch(ctx context.Context, taskID string, member *Member, task string) *Response {
	taskCtx, cancel := context.WithTimeout(ctx, o.opts.TaskTimeout)
	defer cancel()

	start := time.Now()
	resp, err := o.agent.Chat(taskCtx, member.URL, agentapi.ChatRequest{
		Message:   task,
		SessionID: fmt.Sprintf("swarm_%s", member.ID),
	})

	o.mu.Lock()
	member.LastUsed = time.Now()
	if err != nil {
		member.ErrorCount++
		member.Healthy = false
	} else {
		member.ResponseCount++
		member.Healthy = true
	}
	o.mu.Unlock()

	if err != nil {
		o.logger.WithSwarmMember(member.ID).Warn("member task failed", "task_id", taskID, "error", err.Error())
		return nil
	}

	text := resp.Response
	return &Response{
		MemberID:  member.ID,
		Text:      text,
		Score:     QualityScore(text),
		Latency:   time.Since(start),
		Timestamp: time.Now(),
	}
}

// Teardown suspends every member to preserve state and resets the
// orchestrator to idle. Suspension failures are collected, not fatal to the
// reset.
func (o *Orchestrator) Teardown(ctx context.Context) error {
	o.mu.Lock()
	members := o.members
	o.members = nil
	o.state = StateIdle
	o.mu.Unlock()

	var errs []error
	for _, m := range members {
		if err := o.provider.SuspendDevbox(ctx, m.DevboxID); err != nil {
			o.logger.Warn("failed to suspend member", "member_id", m.ID, "devbox_id", m.DevboxID, "error", err.Error())
			errs = append(errs, err)
			continue
		}
		o.logger.Info("member suspended", "member_id", m.ID, "devbox_id", m.DevboxID)
	}
	return apperrors.Join(errs...)
}

// Status returns the orchestrator state and a snapshot of the members.
func (o *Orchestrator) Status() (State, []Member) {
	o.mu.Lock()
	defer o.mu.Unlock()

	members := make([]Member, len(o.members))
	for i, m := range o.members {
		members[i] = *m
	}
	return o.state, members
}

// releaseDevboxes suspends devboxes that will not join the swarm.
func (o *Orchestrator) releaseDevboxes(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := o.provider.SuspendDevbox(ctx, id); err != nil {
			o.logger.Warn("failed to release devbox", "devbox_id", id, "error", err.Error())
		}
	}
}
