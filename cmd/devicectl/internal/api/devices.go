package api

import (
	"context"
	"fmt"
)

// ListDevices returns a page of enrolled devices.
func (c *Client) ListDevices(ctx context.Context, limit, offset int) ([]Device, error) {
	path := fmt.Sprintf("/v1/admin/devices?limit=%d&offset=%d", limit, offset)
	var devices []Device
	if err := c.Get(ctx, path, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// GetDevice retrieves a single device by id.
func (c *Client) GetDevice(ctx context.Context, id string) (*Device, error) {
	var device Device
	if err := c.Get(ctx, fmt.Sprintf("/v1/admin/devices/%s", id), &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// Dispatch sends a single-device command.
func (c *Client) Dispatch(ctx context.Context, deviceID, action string, payload map[string]any) (*DispatchResponse, error) {
	var resp DispatchResponse
	req := DispatchRequest{Action: action, Payload: payload}
	if err := c.Post(ctx, fmt.Sprintf("/v1/devices/%s/command", deviceID), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BulkDispatch fans a command out to a target selection.
func (c *Client) BulkDispatch(ctx context.Context, req BulkDispatchRequest) (*BulkDispatchResponse, error) {
	var resp BulkDispatchResponse
	if err := c.Post(ctx, "/v1/remote-exec", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetBulkExecution retrieves a bulk execution's progress.
func (c *Client) GetBulkExecution(ctx context.Context, execID string) (*BulkExecution, error) {
	var exec BulkExecution
	if err := c.Get(ctx, fmt.Sprintf("/v1/remote-exec/%s", execID), &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}
