// Package ota implements the staged-rollout update manifest: a deterministic
// per-device cohort function, a manifest endpoint with no per-device write on
// the read path, and the promote/rollback/rollout-adjust/nudge admin
// operations.
package ota

import (
	"context"
	"fmt"

	"github.com/fleetops/devicecontrol/internal/dispatch"
	"github.com/fleetops/devicecontrol/internal/models"
	"github.com/fleetops/devicecontrol/internal/repository"
)

// ManifestReason is the diagnostic reason sent with a 304 response.
type ManifestReason string

const (
	ReasonNoCurrentBuild ManifestReason = "no_current_build"
	ReasonUpToDate       ManifestReason = "up_to_date"
	ReasonNotInCohort    ManifestReason = "not_in_cohort"
)

// ManifestResult is either a 200 manifest (Build != nil) or a 304 with a
// reason.
type ManifestResult struct {
	Build          *models.OTABuild
	Reason         ManifestReason
	EffectivePct   int
	EligibleCohort bool
}

// Service implements the manifest read path and the admin mutation path over
// OTABuildRepository and DeploymentStatsRepository.
type Service struct {
	builds     repository.OTABuildRepository
	stats      repository.DeploymentStatsRepository
	devices    repository.DeviceRepository
	dispatcher *dispatch.Service
}

// NewService constructs an ota Service.
func NewService(builds repository.OTABuildRepository, stats repository.DeploymentStatsRepository, devices repository.DeviceRepository, dispatcher *dispatch.Service) *Service {
	return &Service{builds: builds, stats: stats, devices: devices, dispatcher: dispatcher}
}

// Manifest evaluates a device's update check against the package's current
// build. It increments total_checks whenever the package has a current build
// and total_eligible only on a 200 response — no per-device row is written.
// A device already on a newer version code is offered the build only when
// must_install is set (a forced downgrade after a rollback).
func (s *Service) Manifest(ctx context.Context, deviceID, packageName string, currentVersionCode int64) (ManifestResult, error) {
	build, err := s.builds.GetCurrent(ctx, packageName)
	if err != nil {
		return ManifestResult{}, err
	}
	if build == nil {
		return ManifestResult{Reason: ReasonNoCurrentBuild}, nil
	}

	if err := s.stats.IncrementCheck(ctx, build.BuildID); err != nil {
		return ManifestResult{}, err
	}

	if currentVersionCode == build.VersionCode || (currentVersionCode > build.VersionCode && !build.MustInstall) {
		return ManifestResult{Reason: ReasonUpToDate, Build: build}, nil
	}

	cohort := models.Cohort(deviceID)
	if !models.EligibleForCohort(cohort, build.StagedRolloutPct) {
		return ManifestResult{Reason: ReasonNotInCohort, Build: build, EffectivePct: build.StagedRolloutPct}, nil
	}

	if err := s.stats.IncrementEligible(ctx, build.BuildID); err != nil {
		return ManifestResult{}, err
	}

	return ManifestResult{Build: build, EffectivePct: build.StagedRolloutPct, EligibleCohort: true}, nil
}

// RecordDownload marks a device's reported download-complete event.
func (s *Service) RecordDownload(ctx context.Context, buildID string) error {
	return s.stats.IncrementDownload(ctx, buildID)
}

// RecordInstallResult marks the agent's reported install outcome.
func (s *Service) RecordInstallResult(ctx context.Context, buildID string, success bool) error {
	if success {
		return s.stats.IncrementInstallSuccess(ctx, buildID)
	}
	return s.stats.IncrementInstallFailed(ctx, buildID)
}

// RecordVerifyFailed marks a signature-verification failure reported by the
// agent.
func (s *Service) RecordVerifyFailed(ctx context.Context, buildID string) error {
	return s.stats.IncrementVerifyFailed(ctx, buildID)
}

// Stage registers a new build as a promotion candidate; it starts
// non-current with staged_rollout_pct left at the repository's column
// default (0) until Promote sets it.
func (s *Service) Stage(ctx context.Context, b *models.OTABuild) error {
	return s.builds.Create(ctx, b)
}

// Promote atomically demotes the package's current build and promotes
// buildID at the given rollout percent.
func (s *Service) Promote(ctx context.Context, packageName, buildID, promotedBy string, rolloutPct int) (rollbackFrom *string, err error) {
	return s.builds.Promote(ctx, packageName, buildID, promotedBy, rolloutPct)
}

// AdjustRollout mutates only the staged_rollout_pct column; no per-device
// state changes as a result.
func (s *Service) AdjustRollout(ctx context.Context, buildID string, pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("ota: rollout percent must be in [0,100], got %d", pct)
	}
	return s.builds.AdjustRollout(ctx, buildID, pct)
}

// Rollback promotes the build's recorded rollback_from_build_id back to
// current at the operator-selected percent, optionally forcing already
// up-to-date-on-the-bad-build devices to downgrade via must_install.
func (s *Service) Rollback(ctx context.Context, buildID, operator string, pct int, forceDowngrade bool) (rollbackFrom *string, err error) {
	bad, err := s.builds.GetByID(ctx, buildID)
	if err != nil {
		return nil, err
	}
	if bad == nil {
		return nil, fmt.Errorf("ota: unknown build %q", buildID)
	}
	if bad.RollbackFromBuildID == nil {
		return nil, fmt.Errorf("ota: build %q has no recorded rollback target", buildID)
	}

	target := *bad.RollbackFromBuildID
	from, err := s.builds.Promote(ctx, bad.PackageName, target, operator, pct)
	if err != nil {
		return nil, err
	}

	if forceDowngrade {
		if err := s.builds.SetMustInstall(ctx, target, true); err != nil {
			return from, err
		}
	}
	return from, nil
}

// Nudge pushes an out-of-band command prompting a device to re-poll the
// manifest immediately rather than waiting for its periodic check.
func (s *Service) Nudge(ctx context.Context, deviceID string) (string, error) {
	return s.dispatcher.Dispatch(ctx, deviceID, models.ActionUpdate, nil)
}
