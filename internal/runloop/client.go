// Package runloop is a typed HTTP client for the devbox provider API.
// It covers the devbox and blueprint resources plus synchronous command
// execution, and translates transport and HTTP failures into the domain
// error taxonomy so callers can decide between retrying and failing fast.
package runloop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/omniagent/devboxctl/internal/errors"
	"github.com/omniagent/devboxctl/internal/logging"
)

// DefaultBaseURL is the production provider endpoint.
const DefaultBaseURL = "https://api.runloop.ai/v1"

// maxErrorBody caps how much of an error response body is kept for diagnostics.
const maxErrorBody = 4096

// Client talks to the provider REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout on the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger attaches a logger for request-level diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a provider client. baseURL falls back to DefaultBaseURL
// when empty; an empty apiKey is a configuration error.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, apperrors.Wrap(apperrors.ErrMissingCredential, "provider API key is empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do performs one API request. body (if non-nil) is JSON-encoded; out (if
// non-nil) receives the decoded response body. Non-2xx responses come back
// as *apperrors.ProviderError carrying the status code and a body snippet.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrapf(err, "encoding request body for %s %s", method, path)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return apperrors.Wrapf(err, "building request for %s %s", method, path)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return apperrors.NewTimeoutError(fmt.Sprintf("%s %s", method, path), c.httpClient.Timeout).WithCause(err)
		}
		return apperrors.NewProviderError("request failed", err).WithEndpoint(path)
	}
	defer resp.Body.Close()

	c.logger.Debug("provider request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperrors.NewProviderError("unexpected response", nil).
			WithEndpoint(path).
			WithStatusCode(resp.StatusCode).
			WithBody(string(snippet))
	}

	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewProviderError("reading response body", err).WithEndpoint(path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.NewProviderError("decoding response body", err).WithEndpoint(path)
	}
	return nil
}

// statusCode extracts the HTTP status from a provider error, or 0.
func statusCode(err error) int {
	var perr *apperrors.ProviderError
	if apperrors.As(err, &perr) {
		return perr.StatusCode
	}
	return 0
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	var t timeout
	return apperrors.As(err, &t) && t.Timeout()
}

// decodeList normalizes the two list-envelope shapes the API serves: a bare
// JSON array, or an object wrapping the array under a resource key.
func decodeList[T any](data []byte, key string) ([]T, error) {
	var bare []T
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("unrecognized list envelope: %w", err)
	}
	raw, ok := wrapped[key]
	if !ok {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding %q list: %w", key, err)
	}
	return items, nil
}

// list fetches path and normalizes the envelope under key.
func list[T any](ctx context.Context, c *Client, path, key string) ([]T, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	items, err := decodeList[T](raw, key)
	if err != nil {
		return nil, apperrors.NewProviderError("decoding list response", err).WithEndpoint(path)
	}
	return items, nil
}
