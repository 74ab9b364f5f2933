// Package agentapi is a thin client for the agent service endpoints exposed
// by deployed devboxes. It covers the liveness probe used for swarm admission
// and status reporting, and the chat endpoint used for task dispatch.
package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/omniagent/devboxctl/internal/errors"
	"github.com/omniagent/devboxctl/internal/logging"
)

// DefaultProbeTimeout bounds the liveness probe request. It applies to
// Health only; Chat is bounded by the caller's context so long-running
// task dispatches are not cut short.
const DefaultProbeTimeout = 10 * time.Second

// Client probes and dispatches to agent service endpoints. The target base
// URL is passed per call because every swarm member has its own endpoint.
type Client struct {
	httpClient   *http.Client
	probeTimeout time.Duration
	logger       *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithProbeTimeout overrides the bound on liveness probes.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.probeTimeout = d
	}
}

// WithLogger attaches a logger for request-level diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates an agent endpoint client. The underlying HTTP client
// carries no transport-level timeout; every call is bounded per request.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{},
		probeTimeout: DefaultProbeTimeout,
		logger:       logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HealthStatus is the readiness payload served at /health.
type HealthStatus struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
}

// OK reports whether the service declared itself ready.
func (h *HealthStatus) OK() bool {
	return h.Status == "ok" || h.Status == "healthy"
}

// Health probes baseURL/health. A reachable endpoint that answers 200 with a
// readiness payload yields a nil error; everything else is an error. The
// request is bounded by the probe timeout regardless of the caller's context.
func (c *Client) Health(ctx context.Context, baseURL string) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL(baseURL, "/health"), nil)
	if err != nil {
		return nil, apperrors.Wrap(err, "building health request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewProviderError("health probe failed", err).WithEndpoint(baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewProviderError("health probe rejected", nil).
			WithEndpoint(baseURL).
			WithStatusCode(resp.StatusCode)
	}

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, apperrors.NewProviderError("decoding health payload", err).WithEndpoint(baseURL)
	}
	return &status, nil
}

// ChatRequest is the dispatch payload for the chat endpoint.
type ChatRequest struct {
	Message      string `json:"message"`
	Conversation string `json:"conversation,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
}

// ChatResponse is the agent's answer.
type ChatResponse struct {
	Response string `json:"response"`
}

// Chat posts a message to baseURL/chat and returns the agent's response.
// The caller bounds the request through ctx; no client-side timeout applies,
// so the orchestrator's per-member task deadline is the effective bound.
func (c *Client) Chat(ctx context.Context, baseURL string, chatReq ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, apperrors.Wrap(err, "encoding chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(baseURL, "/chat"), bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, "building chat request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewProviderError("chat request failed", err).WithEndpoint(baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.NewProviderError("chat request rejected", nil).
			WithEndpoint(baseURL).
			WithStatusCode(resp.StatusCode).
			WithBody(string(snippet))
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, apperrors.NewProviderError("decoding chat response", err).WithEndpoint(baseURL)
	}

	c.logger.Debug("chat dispatch complete",
		"endpoint", baseURL,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"response_len", len(chatResp.Response),
	)
	return &chatResp, nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
