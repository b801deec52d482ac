package api

import "context"

// RunAlertTick triggers the alert engine's evaluation pass out of band.
func (c *Client) RunAlertTick(ctx context.Context) (*JobResponse, error) {
	var resp JobResponse
	if err := c.Post(ctx, "/v1/admin/jobs/alert-tick", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunReconciliation triggers the heartbeat/last-status reconciliation job.
func (c *Client) RunReconciliation(ctx context.Context) (*JobResponse, error) {
	var resp JobResponse
	if err := c.Post(ctx, "/v1/admin/jobs/reconcile", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunMaintenance triggers the nightly partition maintenance job.
func (c *Client) RunMaintenance(ctx context.Context) (*JobResponse, error) {
	var resp JobResponse
	if err := c.Post(ctx, "/v1/admin/jobs/maintenance", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListPartitions returns the current partition catalog.
func (c *Client) ListPartitions(ctx context.Context) ([]Partition, error) {
	var partitions []Partition
	if err := c.Get(ctx, "/v1/admin/partitions", &partitions); err != nil {
		return nil, err
	}
	return partitions, nil
}

// PoolHealth returns the database pool governor's last sample.
func (c *Client) PoolHealth(ctx context.Context) (*PoolHealth, error) {
	var health PoolHealth
	if err := c.Get(ctx, "/v1/admin/pool-health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}
