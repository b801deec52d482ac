// Package targeting resolves a bulk dispatch request's target specification
// ("all" | "filter" | "aliases") into a concrete device-id list under a
// single read, and freezes it as a SelectionSnapshot so a long-running run
// targets the fleet as it existed at request time.
package targeting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetops/devicecontrol/internal/models"
	"github.com/fleetops/devicecontrol/internal/repository"
)

// Spec is the decoded `targets` field of a bulk-dispatch request.
type Spec struct {
	All     bool
	Filter  *Filter
	Aliases []string
}

// Filter is the supported filter shape; "online" is the example filter key.
type Filter struct {
	Online *bool
}

// Resolver resolves target specs against the device table and last-status
// projection, and manages selection snapshots.
type Resolver struct {
	devices    repository.DeviceRepository
	lastStatus repository.LastStatusRepository
	snapshots  repository.SelectionSnapshotRepository
	// OnlineWithin is the window used by the "online" filter: a device is
	// "online" if its last heartbeat fell within this duration of now.
	OnlineWithin time.Duration
}

// NewResolver constructs a Resolver.
func NewResolver(devices repository.DeviceRepository, lastStatus repository.LastStatusRepository, snapshots repository.SelectionSnapshotRepository) *Resolver {
	return &Resolver{devices: devices, lastStatus: lastStatus, snapshots: snapshots, OnlineWithin: 5 * time.Minute}
}

// Resolve computes the eligible device-id list (devices with a non-empty
// push token) for a target spec and persists it as a SelectionSnapshot.
// Returns ErrNoTargets via the caller's check (an empty slice here, not an
// error, so callers can distinguish "no targets" from a resolution failure).
func (r *Resolver) Resolve(ctx context.Context, spec Spec) (snapshotID string, deviceIDs []string, err error) {
	var candidates []*models.Device

	switch {
	case spec.All:
		candidates, err = r.devices.List(ctx, 0, 0)
	case len(spec.Aliases) > 0:
		candidates, err = r.byAliases(ctx, spec.Aliases)
	case spec.Filter != nil:
		candidates, err = r.byFilter(ctx, *spec.Filter)
	default:
		return "", nil, fmt.Errorf("targeting: target spec must set one of all, filter, or aliases")
	}
	if err != nil {
		return "", nil, err
	}

	for _, d := range candidates {
		if d.PushToken != "" {
			deviceIDs = append(deviceIDs, d.ID)
		}
	}

	id := uuid.NewString()
	snap := &models.SelectionSnapshot{
		ID:        id,
		DeviceIDs: deviceIDs,
		ExpiresAt: time.Now().Add(models.SelectionSnapshotTTL),
	}
	if err := r.snapshots.Create(ctx, snap); err != nil {
		return "", nil, err
	}
	return id, deviceIDs, nil
}

func (r *Resolver) byAliases(ctx context.Context, aliases []string) ([]*models.Device, error) {
	out := make([]*models.Device, 0, len(aliases))
	for _, alias := range aliases {
		d, err := r.devices.GetByAlias(ctx, alias)
		if err != nil {
			return nil, err
		}
		if d != nil {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *Resolver) byFilter(ctx context.Context, f Filter) ([]*models.Device, error) {
	all, err := r.devices.List(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	if f.Online == nil {
		return all, nil
	}

	out := make([]*models.Device, 0, len(all))
	now := time.Now()
	for _, d := range all {
		online := d.LastHeartbeatAt != nil && now.Sub(*d.LastHeartbeatAt) <= r.OnlineWithin
		if online == *f.Online {
			out = append(out, d)
		}
	}
	return out, nil
}

// Snapshot fetches a previously resolved selection by id, for callers that
// want to re-read the frozen target list.
func (r *Resolver) Snapshot(ctx context.Context, id string) (*models.SelectionSnapshot, error) {
	return r.snapshots.Get(ctx, id)
}

// SweepExpired deletes selection snapshots past their TTL; invoked by the
// scheduler's nightly maintenance job.
func (r *Resolver) SweepExpired(ctx context.Context) (int64, error) {
	return r.snapshots.DeleteExpired(ctx, time.Now())
}
