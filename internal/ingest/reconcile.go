package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicecontrol/internal/dblock"
	"github.com/fleetops/devicecontrol/internal/models"
	"github.com/fleetops/devicecontrol/internal/repository"
)

// reconcileLockName is the advisory-lock key guarding the hourly
// reconciliation job process-wide.
const reconcileLockName = "ingest.reconcile"

// reconcileMaxUpdates bounds a single run to protect the hot path (spec
// §4.1: "bounded to 5,000 updates per run").
const reconcileMaxUpdates = 5000

// reconcileLookback is how far back the reconciler re-scans heartbeat
// history on each run.
const reconcileLookback = 24 * time.Hour

// Reconciler re-derives the last-status projection from raw heartbeat
// history, correcting any projection row that fell behind.
type Reconciler struct {
	pool       *pgxpool.Pool
	heartbeats repository.HeartbeatRepository
	lastStatus repository.LastStatusRepository
	devices    repository.DeviceRepository
	logger     *slog.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(pool *pgxpool.Pool, heartbeats repository.HeartbeatRepository, lastStatus repository.LastStatusRepository, devices repository.DeviceRepository, logger *slog.Logger) *Reconciler {
	return &Reconciler{pool: pool, heartbeats: heartbeats, lastStatus: lastStatus, devices: devices, logger: logger}
}

// Run acquires the global advisory lock and, if successful, re-scans the
// last 24h of heartbeats, updating any last_status row whose last_ts is
// strictly behind what the history implies, capped at reconcileMaxUpdates.
// A lock miss (another instance already running it) is not an error.
func (r *Reconciler) Run(ctx context.Context) error {
	acquired, release, err := dblock.TryLock(ctx, r.pool, reconcileLockName)
	if err != nil {
		return err
	}
	if !acquired {
		r.logger.Info("ingest: reconciliation skipped, lock held elsewhere")
		return nil
	}
	defer release()

	since := time.Now().Add(-reconcileLookback)
	heartbeats, err := r.heartbeats.RecentSince(ctx, since)
	if err != nil {
		return err
	}

	latestByDevice := latestPerDevice(heartbeats)

	updated := 0
	for deviceID, hb := range latestByDevice {
		if updated >= reconcileMaxUpdates {
			r.logger.Warn("ingest: reconciliation hit the per-run update cap", slog.Int("cap", reconcileMaxUpdates))
			break
		}

		device, err := r.devices.GetByID(ctx, deviceID)
		if err != nil || device == nil {
			continue
		}

		appInstalled := false
		if av, ok := hb.AppVersions[device.MonitoredPackage]; ok {
			appInstalled = av.Installed
		}
		serviceUp := models.EvaluateServiceUp(appInstalled, hb.ForegroundRecentS, device.ThresholdMinutes)

		advanced, err := r.lastStatus.UpsertIfNewer(ctx, &models.LastStatus{
			DeviceID:                 deviceID,
			LastTs:                   hb.Ts,
			BatteryPct:               hb.BatteryPct,
			Charging:                 hb.Charging,
			NetworkType:              hb.NetworkType,
			SignalDBM:                hb.SignalDBM,
			UptimeSeconds:            hb.UptimeSeconds,
			RAMUsedMB:                hb.RAMUsedMB,
			ForegroundRecentS:        hb.ForegroundRecentS,
			AgentVersion:             hb.AgentVersion,
			ServiceUp:                serviceUp,
			ThresholdMinutesSnapshot: device.ThresholdMinutes,
		})
		if err != nil {
			r.logger.Error("ingest: reconcile row failed", slog.String("device_id", deviceID), slog.Any("error", err))
			continue
		}
		if advanced {
			updated++
		}
	}

	r.logger.Info("ingest: reconciliation complete", slog.Int("devices_updated", updated), slog.Int("devices_scanned", len(latestByDevice)))
	return nil
}

// latestPerDevice reduces a device's heartbeat history to its single latest
// row, since RecentSince returns every row and we only ever need the most
// recent to recompute last_status.
func latestPerDevice(heartbeats []*models.Heartbeat) map[string]*models.Heartbeat {
	out := make(map[string]*models.Heartbeat)
	for _, hb := range heartbeats {
		cur, ok := out[hb.DeviceID]
		if !ok || hb.Ts.After(cur.Ts) {
			out[hb.DeviceID] = hb
		}
	}
	return out
}
