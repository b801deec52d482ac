package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicecontrol/internal/models"
)

// LastStatusRepository defines data access for the last-status projection.
type LastStatusRepository interface {
	Get(ctx context.Context, deviceID string) (*models.LastStatus, error)
	ListAll(ctx context.Context) ([]*models.LastStatus, error)
	// UpsertIfNewer mirrors the ordering-guarded upsert the ingest dual-write
	// performs, for the reconciler to call directly against a recomputed
	// heartbeat without re-inserting into the partitioned history (spec
	// §4.1's reconciliation: "update only where the projection's last_ts is
	// strictly less than the recomputed timestamp").
	UpsertIfNewer(ctx context.Context, s *models.LastStatus) (advanced bool, err error)
}

type lastStatusRepo struct {
	pool *pgxpool.Pool
}

// NewLastStatusRepository creates a new last-status repository.
func NewLastStatusRepository(pool *pgxpool.Pool) LastStatusRepository {
	return &lastStatusRepo{pool: pool}
}

const lastStatusColumns = `device_id, last_ts, battery_pct, charging, network_type, signal_dbm,
	uptime_s, ram_used_mb, monitored_foreground_recent_s, agent_version, service_up,
	threshold_minutes_snapshot, updated_at`

func (r *lastStatusRepo) Get(ctx context.Context, deviceID string) (*models.LastStatus, error) {
	query := `SELECT ` + lastStatusColumns + ` FROM last_status WHERE device_id = $1`
	var s models.LastStatus
	err := r.pool.QueryRow(ctx, query, deviceID).Scan(
		&s.DeviceID, &s.LastTs, &s.BatteryPct, &s.Charging, &s.NetworkType, &s.SignalDBM,
		&s.UptimeSeconds, &s.RAMUsedMB, &s.ForegroundRecentS, &s.AgentVersion, &s.ServiceUp,
		&s.ThresholdMinutesSnapshot, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListAll reads the whole projection in one pass — O(devices), never the
// heartbeat history — for the alert tick.
func (r *lastStatusRepo) ListAll(ctx context.Context) ([]*models.LastStatus, error) {
	query := `SELECT ` + lastStatusColumns + ` FROM last_status`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.LastStatus
	for rows.Next() {
		var s models.LastStatus
		if err := rows.Scan(
			&s.DeviceID, &s.LastTs, &s.BatteryPct, &s.Charging, &s.NetworkType, &s.SignalDBM,
			&s.UptimeSeconds, &s.RAMUsedMB, &s.ForegroundRecentS, &s.AgentVersion, &s.ServiceUp,
			&s.ThresholdMinutesSnapshot, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *lastStatusRepo) UpsertIfNewer(ctx context.Context, s *models.LastStatus) (bool, error) {
	query := `
		INSERT INTO last_status (device_id, last_ts, battery_pct, charging, network_type, signal_dbm,
			uptime_s, ram_used_mb, monitored_foreground_recent_s, agent_version, service_up,
			threshold_minutes_snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (device_id) DO UPDATE SET
			last_ts = EXCLUDED.last_ts,
			battery_pct = EXCLUDED.battery_pct,
			charging = EXCLUDED.charging,
			network_type = EXCLUDED.network_type,
			signal_dbm = EXCLUDED.signal_dbm,
			uptime_s = EXCLUDED.uptime_s,
			ram_used_mb = EXCLUDED.ram_used_mb,
			monitored_foreground_recent_s = EXCLUDED.monitored_foreground_recent_s,
			agent_version = EXCLUDED.agent_version,
			service_up = EXCLUDED.service_up,
			threshold_minutes_snapshot = EXCLUDED.threshold_minutes_snapshot,
			updated_at = now()
		WHERE last_status.last_ts < EXCLUDED.last_ts`

	tag, err := r.pool.Exec(ctx, query,
		s.DeviceID, s.LastTs, s.BatteryPct, s.Charging, s.NetworkType, s.SignalDBM,
		s.UptimeSeconds, s.RAMUsedMB, s.ForegroundRecentS, s.AgentVersion, s.ServiceUp,
		s.ThresholdMinutesSnapshot,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

var _ LastStatusRepository = (*lastStatusRepo)(nil)
