package api

import "context"

// StageBuild registers a new OTA build as a promotion candidate.
func (c *Client) StageBuild(ctx context.Context, req OTAStageRequest) (*OTABuild, error) {
	var build OTABuild
	if err := c.Post(ctx, "/v1/admin/ota/builds", req, &build); err != nil {
		return nil, err
	}
	return &build, nil
}

// PromoteBuild promotes a staged build to current for its package.
func (c *Client) PromoteBuild(ctx context.Context, req OTAPromoteRequest) (*OTAPromoteResponse, error) {
	var resp OTAPromoteResponse
	if err := c.Post(ctx, "/v1/admin/ota/promote", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AdjustRollout changes a build's staged rollout percentage.
func (c *Client) AdjustRollout(ctx context.Context, buildID string, pct int) error {
	return c.PostNoResponse(ctx, "/v1/admin/ota/rollout", OTARolloutRequest{BuildID: buildID, Pct: pct})
}

// Rollback re-promotes a build's recorded rollback target.
func (c *Client) Rollback(ctx context.Context, req OTARollbackRequest) (*OTARollbackResponse, error) {
	var resp OTARollbackResponse
	if err := c.Post(ctx, "/v1/admin/ota/rollback", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Nudge prompts a device to re-poll the OTA manifest immediately.
func (c *Client) Nudge(ctx context.Context, deviceID string) (*DispatchResponse, error) {
	var resp DispatchResponse
	if err := c.Post(ctx, "/v1/admin/ota/nudge", OTANudgeRequest{DeviceID: deviceID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
