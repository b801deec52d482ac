package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicecontrol/internal/models"
)

// PartitionRepository owns the process-wide partition catalog.
type PartitionRepository interface {
	Upsert(ctx context.Context, p *models.PartitionCatalog) error
	Get(ctx context.Context, name string) (*models.PartitionCatalog, error)
	ListOlderThan(ctx context.Context, cutoff time.Time, states ...models.PartitionState) ([]*models.PartitionCatalog, error)
	UpdateCounts(ctx context.Context, name string, rowCount, byteSize int64) error
	SetArchived(ctx context.Context, name, archiveURL, sha256sum string) error
	SetArchiveFailed(ctx context.Context, name, errMsg string) error
	SetDropped(ctx context.Context, name string) error
}

type partitionRepo struct {
	pool *pgxpool.Pool
}

// NewPartitionRepository creates a new partition-catalog repository.
func NewPartitionRepository(pool *pgxpool.Pool) PartitionRepository {
	return &partitionRepo{pool: pool}
}

const partitionColumns = `name, range_start, range_end, state, row_count, byte_size, sha256,
	archive_url, archive_error, created_at, updated_at`

func (r *partitionRepo) Upsert(ctx context.Context, p *models.PartitionCatalog) error {
	query := `
		INSERT INTO partition_catalog (name, range_start, range_end, state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, p.Name, p.RangeStart, p.RangeEnd, p.State)
	return err
}

func (r *partitionRepo) Get(ctx context.Context, name string) (*models.PartitionCatalog, error) {
	query := `SELECT ` + partitionColumns + ` FROM partition_catalog WHERE name = $1`
	var p models.PartitionCatalog
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&p.Name, &p.RangeStart, &p.RangeEnd, &p.State, &p.RowCount, &p.ByteSize, &p.SHA256,
		&p.ArchiveURL, &p.ArchiveError, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *partitionRepo) ListOlderThan(ctx context.Context, cutoff time.Time, states ...models.PartitionState) ([]*models.PartitionCatalog, error) {
	query := `SELECT ` + partitionColumns + ` FROM partition_catalog WHERE range_end <= $1 AND state = ANY($2) ORDER BY range_start`
	rows, err := r.pool.Query(ctx, query, cutoff, states)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PartitionCatalog
	for rows.Next() {
		var p models.PartitionCatalog
		if err := rows.Scan(
			&p.Name, &p.RangeStart, &p.RangeEnd, &p.State, &p.RowCount, &p.ByteSize, &p.SHA256,
			&p.ArchiveURL, &p.ArchiveError, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *partitionRepo) UpdateCounts(ctx context.Context, name string, rowCount, byteSize int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE partition_catalog SET row_count = $2, byte_size = $3, updated_at = now()
		WHERE name = $1`, name, rowCount, byteSize)
	return err
}

func (r *partitionRepo) SetArchived(ctx context.Context, name, archiveURL, sha256sum string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE partition_catalog SET state = 'archived', archive_url = $2, sha256 = $3,
			archive_error = '', updated_at = now()
		WHERE name = $1`, name, archiveURL, sha256sum)
	return err
}

func (r *partitionRepo) SetArchiveFailed(ctx context.Context, name, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE partition_catalog SET state = 'archive_failed', archive_error = $2, updated_at = now()
		WHERE name = $1`, name, errMsg)
	return err
}

func (r *partitionRepo) SetDropped(ctx context.Context, name string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE partition_catalog SET state = 'dropped', updated_at = now() WHERE name = $1`, name)
	return err
}

var _ PartitionRepository = (*partitionRepo)(nil)
