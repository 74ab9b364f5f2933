package runloop

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/omniagent/devboxctl/internal/errors"
)

// ListDevboxes returns every devbox visible to the API key.
func (c *Client) ListDevboxes(ctx context.Context) ([]Devbox, error) {
	return list[Devbox](ctx, c, "/devboxes", "devboxes")
}

// GetDevbox fetches one devbox by id. A missing devbox comes back as a
// NotFoundError satisfying errors.Is(err, apperrors.ErrDevboxNotFound).
func (c *Client) GetDevbox(ctx context.Context, id string) (*Devbox, error) {
	var d Devbox
	if err := c.do(ctx, http.MethodGet, "/devboxes/"+id, nil, &d); err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, apperrors.NewNotFoundError("devbox", id).WithCause(err)
		}
		return nil, err
	}
	if d.Status == "" {
		d.Status = StatusUnknown
	}
	return &d, nil
}

type createDevboxRequest struct {
	Name        string `json:"name"`
	BlueprintID string `json:"blueprint_id,omitempty"`
}

type createResponse struct {
	ID string `json:"id"`
}

// CreateDevbox requests a new devbox and returns its id. Provisioning is
// asynchronous; callers poll GetDevbox until the status settles.
func (c *Client) CreateDevbox(ctx context.Context, name, blueprintID string) (string, error) {
	req := createDevboxRequest{Name: name, BlueprintID: blueprintID}
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/devboxes", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", apperrors.NewProviderError("create response missing devbox id", nil).WithEndpoint("/devboxes")
	}
	return resp.ID, nil
}

// SuspendDevbox suspends a running devbox, preserving its disk state.
func (c *Client) SuspendDevbox(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/devboxes/"+id+"/suspend", nil, nil)
}

// ResumeDevbox resumes a suspended devbox. The devbox transitions through
// provisioning before reaching running again.
func (c *Client) ResumeDevbox(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/devboxes/"+id+"/resume", nil, nil); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrResumeFailed, err)
	}
	return nil
}

// DeleteDevbox permanently removes a devbox.
func (c *Client) DeleteDevbox(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/devboxes/"+id, nil, nil)
}

type executeRequest struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

// Execute runs a command synchronously inside a devbox. timeout is the
// provider-side execution budget; zero means the provider default. The error
// covers transport and HTTP failures only; a non-zero exit status is reported
// through the result.
func (c *Client) Execute(ctx context.Context, id, command string, timeout time.Duration) (ExecResult, error) {
	req := executeRequest{Command: command, Timeout: int(timeout.Seconds())}
	var result ExecResult
	if err := c.do(ctx, http.MethodPost, "/devboxes/"+id+"/execute_sync", req, &result); err != nil {
		if statusCode(err) == http.StatusNotFound {
			return ExecResult{}, apperrors.NewNotFoundError("devbox", id).WithCause(err)
		}
		return ExecResult{}, err
	}
	return result, nil
}
