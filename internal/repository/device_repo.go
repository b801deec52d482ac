package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicecontrol/internal/models"
)

// DeviceRepository defines data access for the device enrollment record.
type DeviceRepository interface {
	Create(ctx context.Context, d *models.Device) error
	GetByID(ctx context.Context, id string) (*models.Device, error)
	GetByTokenID(ctx context.Context, tokenID string) (*models.Device, error)
	GetByAlias(ctx context.Context, alias string) (*models.Device, error)
	List(ctx context.Context, limit, offset int) ([]*models.Device, error)
	ListByIDs(ctx context.Context, ids []string) ([]*models.Device, error)
	UpdateLastHeartbeat(ctx context.Context, id string, at time.Time) error
	RevokeToken(ctx context.Context, id string) error
}

type deviceRepo struct {
	pool *pgxpool.Pool
}

// NewDeviceRepository creates a new device repository.
func NewDeviceRepository(pool *pgxpool.Pool) DeviceRepository {
	return &deviceRepo{pool: pool}
}

const deviceColumns = `id, alias, token_id, token_hash, token_revoked_at, push_token,
	monitored_package, monitored_display_name, threshold_minutes, monitoring_enabled,
	device_owner_mode, last_heartbeat_at, created_at, updated_at`

func scanDevice(row pgx.Row) (*models.Device, error) {
	var d models.Device
	err := row.Scan(
		&d.ID, &d.Alias, &d.TokenID, &d.TokenHash, &d.TokenRevokedAt, &d.PushToken,
		&d.MonitoredPackage, &d.MonitoredDisplay, &d.ThresholdMinutes, &d.MonitoringEnabled,
		&d.DeviceOwnerMode, &d.LastHeartbeatAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deviceRepo) Create(ctx context.Context, d *models.Device) error {
	query := `
		INSERT INTO devices (id, alias, token_id, token_hash, push_token, monitored_package,
			monitored_display_name, threshold_minutes, monitoring_enabled, device_owner_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		d.ID, d.Alias, d.TokenID, d.TokenHash, d.PushToken, d.MonitoredPackage,
		d.MonitoredDisplay, d.ThresholdMinutes, d.MonitoringEnabled, d.DeviceOwnerMode,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *deviceRepo) GetByID(ctx context.Context, id string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	return scanDevice(r.pool.QueryRow(ctx, query, id))
}

func (r *deviceRepo) GetByTokenID(ctx context.Context, tokenID string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE token_id = $1`
	return scanDevice(r.pool.QueryRow(ctx, query, tokenID))
}

func (r *deviceRepo) GetByAlias(ctx context.Context, alias string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE alias = $1`
	return scanDevice(r.pool.QueryRow(ctx, query, alias))
}

func (r *deviceRepo) List(ctx context.Context, limit, offset int) ([]*models.Device, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDevices(rows)
}

func (r *deviceRepo) ListByIDs(ctx context.Context, ids []string) ([]*models.Device, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDevices(rows)
}

func collectDevices(rows pgx.Rows) ([]*models.Device, error) {
	var out []*models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(
			&d.ID, &d.Alias, &d.TokenID, &d.TokenHash, &d.TokenRevokedAt, &d.PushToken,
			&d.MonitoredPackage, &d.MonitoredDisplay, &d.ThresholdMinutes, &d.MonitoringEnabled,
			&d.DeviceOwnerMode, &d.LastHeartbeatAt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (r *deviceRepo) UpdateLastHeartbeat(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE devices SET last_heartbeat_at = $2, updated_at = now() WHERE id = $1 AND (last_heartbeat_at IS NULL OR last_heartbeat_at < $2)`
	_, err := r.pool.Exec(ctx, query, id, at)
	return err
}

func (r *deviceRepo) RevokeToken(ctx context.Context, id string) error {
	query := `UPDATE devices SET token_revoked_at = now(), updated_at = now() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

var _ DeviceRepository = (*deviceRepo)(nil)
