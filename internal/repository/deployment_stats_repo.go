package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicecontrol/internal/models"
)

// DeploymentStatsRepository owns the per-build durable OTA rollout counters
//, incremented atomically from the manifest and
// action-result paths.
type DeploymentStatsRepository interface {
	Get(ctx context.Context, buildID string) (*models.DeploymentStats, error)
	IncrementCheck(ctx context.Context, buildID string) error
	IncrementEligible(ctx context.Context, buildID string) error
	IncrementDownload(ctx context.Context, buildID string) error
	IncrementInstallSuccess(ctx context.Context, buildID string) error
	IncrementInstallFailed(ctx context.Context, buildID string) error
	IncrementVerifyFailed(ctx context.Context, buildID string) error
}

type deploymentStatsRepo struct {
	pool *pgxpool.Pool
}

// NewDeploymentStatsRepository creates a new deployment-stats repository.
func NewDeploymentStatsRepository(pool *pgxpool.Pool) DeploymentStatsRepository {
	return &deploymentStatsRepo{pool: pool}
}

func (r *deploymentStatsRepo) Get(ctx context.Context, buildID string) (*models.DeploymentStats, error) {
	query := `
		SELECT build_id, total_checks, total_eligible, total_downloads, installs_success,
			installs_failed, verify_failed
		FROM deployment_stats WHERE build_id = $1`
	var s models.DeploymentStats
	err := r.pool.QueryRow(ctx, query, buildID).Scan(
		&s.BuildID, &s.TotalChecks, &s.TotalEligible, &s.TotalDownloads, &s.InstallsSuccess,
		&s.InstallsFailed, &s.VerifyFailed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.DeploymentStats{BuildID: buildID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *deploymentStatsRepo) bump(ctx context.Context, buildID, column string) error {
	query := `
		INSERT INTO deployment_stats (build_id, ` + column + `)
		VALUES ($1, 1)
		ON CONFLICT (build_id) DO UPDATE SET ` + column + ` = deployment_stats.` + column + ` + 1`
	_, err := r.pool.Exec(ctx, query, buildID)
	return err
}

func (r *deploymentStatsRepo) IncrementCheck(ctx context.Context, buildID string) error {
	return r.bump(ctx, buildID, "total_checks")
}

func (r *deploymentStatsRepo) IncrementEligible(ctx context.Context, buildID string) error {
	return r.bump(ctx, buildID, "total_eligible")
}

func (r *deploymentStatsRepo) IncrementDownload(ctx context.Context, buildID string) error {
	return r.bump(ctx, buildID, "total_downloads")
}

func (r *deploymentStatsRepo) IncrementInstallSuccess(ctx context.Context, buildID string) error {
	return r.bump(ctx, buildID, "installs_success")
}

func (r *deploymentStatsRepo) IncrementInstallFailed(ctx context.Context, buildID string) error {
	return r.bump(ctx, buildID, "installs_failed")
}

func (r *deploymentStatsRepo) IncrementVerifyFailed(ctx context.Context, buildID string) error {
	return r.bump(ctx, buildID, "verify_failed")
}

var _ DeploymentStatsRepository = (*deploymentStatsRepo)(nil)
