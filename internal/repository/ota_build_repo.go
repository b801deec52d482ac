package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicecontrol/internal/models"
)

// OTABuildRepository owns staged-rollout build records.
type OTABuildRepository interface {
	Create(ctx context.Context, b *models.OTABuild) error
	GetByID(ctx context.Context, buildID string) (*models.OTABuild, error)
	GetCurrent(ctx context.Context, packageName string) (*models.OTABuild, error)
	// Promote atomically demotes the package's current build and promotes
	// buildID, recording the rollback pointer, inside one transaction.
	Promote(ctx context.Context, packageName, buildID, promotedBy string, rolloutPct int) (rollbackFrom *string, err error)
	AdjustRollout(ctx context.Context, buildID string, pct int) error
	SetMustInstall(ctx context.Context, buildID string, mustInstall bool) error
}

type otaBuildRepo struct {
	pool *pgxpool.Pool
}

// NewOTABuildRepository creates a new OTA build repository.
func NewOTABuildRepository(pool *pgxpool.Pool) OTABuildRepository {
	return &otaBuildRepo{pool: pool}
}

const otaBuildColumns = `build_id, package_name, version_code, version_name, sha256,
	signer_fingerprint, storage_url, is_current, staged_rollout_pct, wifi_only,
	must_install, rollback_from_build_id, promoted_at, promoted_by, created_at`

func scanOTABuild(row pgx.Row) (*models.OTABuild, error) {
	var b models.OTABuild
	err := row.Scan(
		&b.BuildID, &b.PackageName, &b.VersionCode, &b.VersionName, &b.SHA256,
		&b.SignerFingerprint, &b.StorageURL, &b.IsCurrent, &b.StagedRolloutPct, &b.WifiOnly,
		&b.MustInstall, &b.RollbackFromBuildID, &b.PromotedAt, &b.PromotedBy, &b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *otaBuildRepo) Create(ctx context.Context, b *models.OTABuild) error {
	query := `
		INSERT INTO ota_builds (build_id, package_name, version_code, version_name, sha256,
			signer_fingerprint, storage_url, wifi_only, must_install)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		b.BuildID, b.PackageName, b.VersionCode, b.VersionName, b.SHA256,
		b.SignerFingerprint, b.StorageURL, b.WifiOnly, b.MustInstall,
	).Scan(&b.CreatedAt)
}

func (r *otaBuildRepo) GetByID(ctx context.Context, buildID string) (*models.OTABuild, error) {
	query := `SELECT ` + otaBuildColumns + ` FROM ota_builds WHERE build_id = $1`
	return scanOTABuild(r.pool.QueryRow(ctx, query, buildID))
}

func (r *otaBuildRepo) GetCurrent(ctx context.Context, packageName string) (*models.OTABuild, error) {
	query := `SELECT ` + otaBuildColumns + ` FROM ota_builds WHERE package_name = $1 AND is_current = true`
	return scanOTABuild(r.pool.QueryRow(ctx, query, packageName))
}

func (r *otaBuildRepo) Promote(ctx context.Context, packageName, buildID, promotedBy string, rolloutPct int) (*string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var previousID *string
	err = tx.QueryRow(ctx, `SELECT build_id FROM ota_builds WHERE package_name = $1 AND is_current = true`, packageName).Scan(&previousID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if previousID != nil {
		if _, err := tx.Exec(ctx, `UPDATE ota_builds SET is_current = false WHERE build_id = $1`, *previousID); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE ota_builds SET is_current = true, staged_rollout_pct = $2, promoted_at = now(),
			promoted_by = $3, rollback_from_build_id = $4
		WHERE build_id = $1`, buildID, rolloutPct, promotedBy, previousID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return previousID, nil
}

func (r *otaBuildRepo) AdjustRollout(ctx context.Context, buildID string, pct int) error {
	_, err := r.pool.Exec(ctx, `UPDATE ota_builds SET staged_rollout_pct = $2 WHERE build_id = $1`, buildID, pct)
	return err
}

func (r *otaBuildRepo) SetMustInstall(ctx context.Context, buildID string, mustInstall bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE ota_builds SET must_install = $2 WHERE build_id = $1`, buildID, mustInstall)
	return err
}

var _ OTABuildRepository = (*otaBuildRepo)(nil)
