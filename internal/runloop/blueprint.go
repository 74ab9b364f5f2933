package runloop

import (
	"context"
	"net/http"

	apperrors "github.com/omniagent/devboxctl/internal/errors"
)

// ListBlueprints returns every blueprint visible to the API key.
func (c *Client) ListBlueprints(ctx context.Context) ([]Blueprint, error) {
	return list[Blueprint](ctx, c, "/blueprints", "blueprints")
}

// GetBlueprint fetches one blueprint by id. A missing blueprint comes back as
// a NotFoundError satisfying errors.Is(err, apperrors.ErrBlueprintNotFound).
func (c *Client) GetBlueprint(ctx context.Context, id string) (*Blueprint, error) {
	var b Blueprint
	if err := c.do(ctx, http.MethodGet, "/blueprints/"+id, nil, &b); err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, apperrors.NewNotFoundError("blueprint", id).WithCause(err)
		}
		return nil, err
	}
	return &b, nil
}

type createBlueprintRequest struct {
	Name             string         `json:"name"`
	LaunchParameters map[string]any `json:"launch_parameters,omitempty"`
}

// CreateBlueprint registers a new blueprint build and returns its id. The
// build runs asynchronously; callers poll GetBlueprint until the status
// leaves building.
func (c *Client) CreateBlueprint(ctx context.Context, name string, launchParams map[string]any) (string, error) {
	req := createBlueprintRequest{Name: name, LaunchParameters: launchParams}
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/blueprints", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", apperrors.NewProviderError("create response missing blueprint id", nil).WithEndpoint("/blueprints")
	}
	return resp.ID, nil
}

// DeleteBlueprint permanently removes a blueprint.
func (c *Client) DeleteBlueprint(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/blueprints/"+id, nil, nil)
}
