package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicecontrol/internal/models"
)

// ErrDuplicateBucket is returned by Ingest when the heartbeat falls in a
// dedupe bucket already occupied for this device; the caller still answers
// 200.
var ErrDuplicateBucket = errors.New("heartbeat: duplicate within dedupe bucket")

// HeartbeatRepository owns the dual-write path: an append to the day's
// partition and a conditional upsert of the last-status projection, both
// inside one transaction.
type HeartbeatRepository interface {
	// Ingest performs the dual write and reports whether the projection was
	// actually advanced (false when an out-of-order or duplicate heartbeat
	// only appended to history without moving last_status forward).
	Ingest(ctx context.Context, hb *models.Heartbeat, serviceUp models.ServiceUpState, thresholdMinutes int) (projectionAdvanced bool, err error)
	// RecentSince returns heartbeats across all devices with ts > since, used
	// by the hourly reconciliation job.
	RecentSince(ctx context.Context, since pgxAny) ([]*models.Heartbeat, error)
}

// pgxAny avoids importing time twice for readability in the interface decl;
// concretely this is time.Time.
type pgxAny = interface{}

type heartbeatRepo struct {
	pool *pgxpool.Pool
}

// NewHeartbeatRepository creates a new heartbeat repository.
func NewHeartbeatRepository(pool *pgxpool.Pool) HeartbeatRepository {
	return &heartbeatRepo{pool: pool}
}

func (r *heartbeatRepo) Ingest(ctx context.Context, hb *models.Heartbeat, serviceUp models.ServiceUpState, thresholdMinutes int) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	appVersionsJSON, err := json.Marshal(hb.AppVersions)
	if err != nil {
		return false, err
	}

	insertQuery := `
		INSERT INTO heartbeats (device_id, ts, monotonic_id, battery_pct, charging, network_type,
			signal_dbm, uptime_s, ram_used_mb, monitored_foreground_recent_s, agent_version, app_versions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT DO NOTHING`

	insertTag, err := tx.Exec(ctx, insertQuery,
		hb.DeviceID, hb.Ts, hb.MonotonicID, hb.BatteryPct, hb.Charging, hb.NetworkType,
		hb.SignalDBM, hb.UptimeSeconds, hb.RAMUsedMB, hb.ForegroundRecentS, hb.AgentVersion, appVersionsJSON,
	)
	if err != nil {
		return false, err
	}
	duplicate := insertTag.RowsAffected() == 0

	upsertQuery := `
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

	tag, err := tx.Exec(ctx, upsertQuery,
		hb.DeviceID, hb.Ts, hb.BatteryPct, hb.Charging, hb.NetworkType, hb.SignalDBM,
		hb.UptimeSeconds, hb.RAMUsedMB, hb.ForegroundRecentS, hb.AgentVersion, serviceUp,
		thresholdMinutes,
	)
	if err != nil {
		return false, err
	}
	advanced := tag.RowsAffected() > 0

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	if duplicate {
		return advanced, ErrDuplicateBucket
	}
	return advanced, nil
}

func (r *heartbeatRepo) RecentSince(ctx context.Context, since pgxAny) ([]*models.Heartbeat, error) {
	query := `
		SELECT device_id, ts, monotonic_id, battery_pct, charging, network_type, signal_dbm,
			uptime_s, ram_used_mb, monitored_foreground_recent_s, agent_version, app_versions
		FROM heartbeats WHERE ts > $1 ORDER BY device_id, ts DESC`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Heartbeat
	for rows.Next() {
		var hb models.Heartbeat
		var appVersionsJSON []byte
		if err := rows.Scan(
			&hb.DeviceID, &hb.Ts, &hb.MonotonicID, &hb.BatteryPct, &hb.Charging, &hb.NetworkType,
			&hb.SignalDBM, &hb.UptimeSeconds, &hb.RAMUsedMB, &hb.ForegroundRecentS, &hb.AgentVersion,
			&appVersionsJSON,
		); err != nil {
			return nil, err
		}
		if len(appVersionsJSON) > 0 {
			_ = json.Unmarshal(appVersionsJSON, &hb.AppVersions)
		}
		out = append(out, &hb)
	}
	return out, rows.Err()
}

var _ HeartbeatRepository = (*heartbeatRepo)(nil)
