package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicecontrol/internal/models"
)

// AlertStateRepository owns the per-(device,condition) firing state machine
// driven by the alert engine's 60s tick.
type AlertStateRepository interface {
	Get(ctx context.Context, deviceID string, condition models.AlertCondition) (*models.AlertState, error)
	Upsert(ctx context.Context, s *models.AlertState) error
	ListFiringSince(ctx context.Context, condition models.AlertCondition, since time.Time) ([]*models.AlertState, error)
}

type alertStateRepo struct {
	pool *pgxpool.Pool
}

// NewAlertStateRepository creates a new alert state repository.
func NewAlertStateRepository(pool *pgxpool.Pool) AlertStateRepository {
	return &alertStateRepo{pool: pool}
}

const alertStateColumns = `device_id, condition, state, last_raised, last_recovered,
	cooldown_until, consecutive_violations, last_value, updated_at`

func (r *alertStateRepo) Get(ctx context.Context, deviceID string, condition models.AlertCondition) (*models.AlertState, error) {
	query := `SELECT ` + alertStateColumns + ` FROM alert_states WHERE device_id = $1 AND condition = $2`
	var s models.AlertState
	err := r.pool.QueryRow(ctx, query, deviceID, condition).Scan(
		&s.DeviceID, &s.Condition, &s.State, &s.LastRaised, &s.LastRecovered,
		&s.CooldownUntil, &s.ConsecutiveViolations, &s.LastValue, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *alertStateRepo) Upsert(ctx context.Context, s *models.AlertState) error {
	query := `
		INSERT INTO alert_states (device_id, condition, state, last_raised, last_recovered,
			cooldown_until, consecutive_violations, last_value, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (device_id, condition) DO UPDATE SET
			state = EXCLUDED.state,
			last_raised = EXCLUDED.last_raised,
			last_recovered = EXCLUDED.last_recovered,
			cooldown_until = EXCLUDED.cooldown_until,
			consecutive_violations = EXCLUDED.consecutive_violations,
			last_value = EXCLUDED.last_value,
			updated_at = now()`
	_, err := r.pool.Exec(ctx, query,
		s.DeviceID, s.Condition, s.State, s.LastRaised, s.LastRecovered,
		s.CooldownUntil, s.ConsecutiveViolations, s.LastValue,
	)
	return err
}

// ListFiringSince returns device ids currently firing a condition whose
// last_raised falls within the roll-up window, used by the roll-up policy.
func (r *alertStateRepo) ListFiringSince(ctx context.Context, condition models.AlertCondition, since time.Time) ([]*models.AlertState, error) {
	query := `SELECT ` + alertStateColumns + ` FROM alert_states
		WHERE condition = $1 AND state = 'firing' AND last_raised >= $2`
	rows, err := r.pool.Query(ctx, query, condition, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.AlertState
	for rows.Next() {
		var s models.AlertState
		if err := rows.Scan(
			&s.DeviceID, &s.Condition, &s.State, &s.LastRaised, &s.LastRecovered,
			&s.CooldownUntil, &s.ConsecutiveViolations, &s.LastValue, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

var _ AlertStateRepository = (*alertStateRepo)(nil)
