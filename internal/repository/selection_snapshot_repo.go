package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicecontrol/internal/models"
)

// SelectionSnapshotRepository persists the frozen device-id list a bulk
// dispatch run targets, so the run doesn't chase fleet membership changes
// mid-flight.
type SelectionSnapshotRepository interface {
	Create(ctx context.Context, s *models.SelectionSnapshot) error
	Get(ctx context.Context, id string) (*models.SelectionSnapshot, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type selectionSnapshotRepo struct {
	pool *pgxpool.Pool
}

// NewSelectionSnapshotRepository creates a new selection-snapshot repository.
func NewSelectionSnapshotRepository(pool *pgxpool.Pool) SelectionSnapshotRepository {
	return &selectionSnapshotRepo{pool: pool}
}

func (r *selectionSnapshotRepo) Create(ctx context.Context, s *models.SelectionSnapshot) error {
	query := `
		INSERT INTO selection_snapshots (id, device_ids, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at`
	return r.pool.QueryRow(ctx, query, s.ID, s.DeviceIDs, s.ExpiresAt).Scan(&s.CreatedAt)
}

func (r *selectionSnapshotRepo) Get(ctx context.Context, id string) (*models.SelectionSnapshot, error) {
	query := `SELECT id, device_ids, created_at, expires_at FROM selection_snapshots WHERE id = $1`
	var s models.SelectionSnapshot
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.DeviceIDs, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *selectionSnapshotRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM selection_snapshots WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ SelectionSnapshotRepository = (*selectionSnapshotRepo)(nil)
