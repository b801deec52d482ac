package ota

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/devicecontrol/internal/models"
)

type mockBuildRepo struct{ mock.Mock }

func (m *mockBuildRepo) Create(ctx context.Context, b *models.OTABuild) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}
func (m *mockBuildRepo) GetByID(ctx context.Context, buildID string) (*models.OTABuild, error) {
	args := m.Called(ctx, buildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OTABuild), args.Error(1)
}
func (m *mockBuildRepo) GetCurrent(ctx context.Context, packageName string) (*models.OTABuild, error) {
	args := m.Called(ctx, packageName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OTABuild), args.Error(1)
}
func (m *mockBuildRepo) Promote(ctx context.Context, packageName, buildID, promotedBy string, rolloutPct int) (*string, error) {
	args := m.Called(ctx, packageName, buildID, promotedBy, rolloutPct)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*string), args.Error(1)
}
func (m *mockBuildRepo) AdjustRollout(ctx context.Context, buildID string, pct int) error {
	args := m.Called(ctx, buildID, pct)
	return args.Error(0)
}
func (m *mockBuildRepo) SetMustInstall(ctx context.Context, buildID string, mustInstall bool) error {
	args := m.Called(ctx, buildID, mustInstall)
	return args.Error(0)
}

type mockStatsRepo struct{ mock.Mock }

func (m *mockStatsRepo) Get(ctx context.Context, buildID string) (*models.DeploymentStats, error) {
	args := m.Called(ctx, buildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DeploymentStats), args.Error(1)
}
func (m *mockStatsRepo) IncrementCheck(ctx context.Context, buildID string) error {
	return m.Called(ctx, buildID).Error(0)
}
func (m *mockStatsRepo) IncrementEligible(ctx context.Context, buildID string) error {
	return m.Called(ctx, buildID).Error(0)
}
func (m *mockStatsRepo) IncrementDownload(ctx context.Context, buildID string) error {
	return m.Called(ctx, buildID).Error(0)
}
func (m *mockStatsRepo) IncrementInstallSuccess(ctx context.Context, buildID string) error {
	return m.Called(ctx, buildID).Error(0)
}
func (m *mockStatsRepo) IncrementInstallFailed(ctx context.Context, buildID string) error {
	return m.Called(ctx, buildID).Error(0)
}
func (m *mockStatsRepo) IncrementVerifyFailed(ctx context.Context, buildID string) error {
	return m.Called(ctx, buildID).Error(0)
}

func TestManifestNoCurrentBuild(t *testing.T) {
	builds := new(mockBuildRepo)
	stats := new(mockStatsRepo)
	builds.On("GetCurrent", mock.Anything, "com.example.app").Return(nil, nil)

	svc := NewService(builds, stats, nil, nil)
	result, err := svc.Manifest(context.Background(), "device-1", "com.example.app", 1)
	require.NoError(t, err)
	assert.Equal(t, ReasonNoCurrentBuild, result.Reason)
	assert.Nil(t, result.Build)
	stats.AssertNotCalled(t, "IncrementCheck", mock.Anything, mock.Anything)
}

func TestManifestUpToDate(t *testing.T) {
	builds := new(mockBuildRepo)
	stats := new(mockStatsRepo)
	build := &models.OTABuild{BuildID: "b1", VersionCode: 5, StagedRolloutPct: 100}
	builds.On("GetCurrent", mock.Anything, "com.example.app").Return(build, nil)
	stats.On("IncrementCheck", mock.Anything, "b1").Return(nil)

	svc := NewService(builds, stats, nil, nil)
	result, err := svc.Manifest(context.Background(), "device-1", "com.example.app", 5)
	require.NoError(t, err)
	assert.Equal(t, ReasonUpToDate, result.Reason)
	stats.AssertExpectations(t)
	stats.AssertNotCalled(t, "IncrementEligible", mock.Anything, mock.Anything)
}

func TestManifestNotInCohort(t *testing.T) {
	builds := new(mockBuildRepo)
	stats := new(mockStatsRepo)
	build := &models.OTABuild{BuildID: "b1", VersionCode: 5, StagedRolloutPct: 0}
	builds.On("GetCurrent", mock.Anything, "com.example.app").Return(build, nil)
	stats.On("IncrementCheck", mock.Anything, "b1").Return(nil)

	svc := NewService(builds, stats, nil, nil)
	result, err := svc.Manifest(context.Background(), "device-not-eligible", "com.example.app", 1)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotInCohort, result.Reason)
	assert.False(t, result.EligibleCohort)
	stats.AssertNotCalled(t, "IncrementEligible", mock.Anything, mock.Anything)
}

func TestManifestEligibleIncrementsEligible(t *testing.T) {
	builds := new(mockBuildRepo)
	stats := new(mockStatsRepo)
	build := &models.OTABuild{BuildID: "b1", VersionCode: 5, StagedRolloutPct: 100}
	builds.On("GetCurrent", mock.Anything, "com.example.app").Return(build, nil)
	stats.On("IncrementCheck", mock.Anything, "b1").Return(nil)
	stats.On("IncrementEligible", mock.Anything, "b1").Return(nil)

	svc := NewService(builds, stats, nil, nil)
	result, err := svc.Manifest(context.Background(), "any-device", "com.example.app", 1)
	require.NoError(t, err)
	assert.True(t, result.EligibleCohort)
	assert.Equal(t, build, result.Build)
	stats.AssertExpectations(t)
}

func TestAdjustRolloutRejectsOutOfRangePercent(t *testing.T) {
	builds := new(mockBuildRepo)
	stats := new(mockStatsRepo)
	svc := NewService(builds, stats, nil, nil)

	err := svc.AdjustRollout(context.Background(), "b1", 150)
	assert.Error(t, err)
	builds.AssertNotCalled(t, "AdjustRollout", mock.Anything, mock.Anything, mock.Anything)

	err = svc.AdjustRollout(context.Background(), "b1", -1)
	assert.Error(t, err)
}

func TestAdjustRolloutValidPercent(t *testing.T) {
	builds := new(mockBuildRepo)
	stats := new(mockStatsRepo)
	builds.On("AdjustRollout", mock.Anything, "b1", 42).Return(nil)

	svc := NewService(builds, stats, nil, nil)
	err := svc.AdjustRollout(context.Background(), "b1", 42)
	require.NoError(t, err)
	builds.AssertExpectations(t)
}

func TestRollbackFailsWithoutRecordedTarget(t *testing.T) {
	builds := new(mockBuildRepo)
	stats := new(mockStatsRepo)
	bad := &models.OTABuild{BuildID: "bad-build", PackageName: "com.example.app"}
	builds.On("GetByID", mock.Anything, "bad-build").Return(bad, nil)

	svc := NewService(builds, stats, nil, nil)
	_, err := svc.Rollback(context.Background(), "bad-build", "operator-1", 100, false)
	assert.Error(t, err)
}

func TestRollbackPromotesRecordedTarget(t *testing.T) {
	builds := new(mockBuildRepo)
	stats := new(mockStatsRepo)
	previous := "good-build"
	bad := &models.OTABuild{BuildID: "bad-build", PackageName: "com.example.app", RollbackFromBuildID: &previous}
	builds.On("GetByID", mock.Anything, "bad-build").Return(bad, nil)
	builds.On("Promote", mock.Anything, "com.example.app", "good-build", "operator-1", 100).Return(&bad.BuildID, nil)
	builds.On("SetMustInstall", mock.Anything, "good-build", true).Return(nil)

	svc := NewService(builds, stats, nil, nil)
	from, err := svc.Rollback(context.Background(), "bad-build", "operator-1", 100, true)
	require.NoError(t, err)
	assert.Equal(t, "bad-build", *from)
	builds.AssertExpectations(t)
}
