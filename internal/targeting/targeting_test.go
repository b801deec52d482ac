package targeting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/devicecontrol/internal/models"
)

type mockDeviceRepo struct{ mock.Mock }

func (m *mockDeviceRepo) Create(ctx context.Context, d *models.Device) error { return nil }
func (m *mockDeviceRepo) GetByID(ctx context.Context, id string) (*models.Device, error) {
	return nil, nil
}
func (m *mockDeviceRepo) GetByTokenID(ctx context.Context, tokenID string) (*models.Device, error) {
	return nil, nil
}
func (m *mockDeviceRepo) GetByAlias(ctx context.Context, alias string) (*models.Device, error) {
	args := m.Called(ctx, alias)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Device), args.Error(1)
}
func (m *mockDeviceRepo) List(ctx context.Context, limit, offset int) ([]*models.Device, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*models.Device), args.Error(1)
}
func (m *mockDeviceRepo) ListByIDs(ctx context.Context, ids []string) ([]*models.Device, error) {
	return nil, nil
}
func (m *mockDeviceRepo) UpdateLastHeartbeat(ctx context.Context, id string, at time.Time) error {
	return nil
}
func (m *mockDeviceRepo) RevokeToken(ctx context.Context, id string) error { return nil }

type mockLastStatusRepo struct{ mock.Mock }

func (m *mockLastStatusRepo) Get(ctx context.Context, deviceID string) (*models.LastStatus, error) {
	return nil, nil
}
func (m *mockLastStatusRepo) ListAll(ctx context.Context) ([]*models.LastStatus, error) {
	return nil, nil
}
func (m *mockLastStatusRepo) UpsertIfNewer(ctx context.Context, s *models.LastStatus) (bool, error) {
	return false, nil
}

type mockSnapshotRepo struct{ mock.Mock }

func (m *mockSnapshotRepo) Create(ctx context.Context, s *models.SelectionSnapshot) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}
func (m *mockSnapshotRepo) Get(ctx context.Context, id string) (*models.SelectionSnapshot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SelectionSnapshot), args.Error(1)
}
func (m *mockSnapshotRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func TestResolveAllReturnsDevicesWithPushTokens(t *testing.T) {
	devices := new(mockDeviceRepo)
	snapshots := new(mockSnapshotRepo)

	devices.On("List", mock.Anything, 0, 0).Return([]*models.Device{
		{ID: "d1", PushToken: "token-1"},
		{ID: "d2", PushToken: ""},
		{ID: "d3", PushToken: "token-3"},
	}, nil)
	snapshots.On("Create", mock.Anything, mock.AnythingOfType("*models.SelectionSnapshot")).Return(nil)

	r := NewResolver(devices, new(mockLastStatusRepo), snapshots)
	_, ids, err := r.Resolve(context.Background(), Spec{All: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d1", "d3"}, ids)
}

func TestResolveByAliasesSkipsUnknown(t *testing.T) {
	devices := new(mockDeviceRepo)
	snapshots := new(mockSnapshotRepo)

	devices.On("GetByAlias", mock.Anything, "known").Return(&models.Device{ID: "d1", PushToken: "token-1"}, nil)
	devices.On("GetByAlias", mock.Anything, "ghost").Return(nil, nil)
	snapshots.On("Create", mock.Anything, mock.AnythingOfType("*models.SelectionSnapshot")).Return(nil)

	r := NewResolver(devices, new(mockLastStatusRepo), snapshots)
	_, ids, err := r.Resolve(context.Background(), Spec{Aliases: []string{"known", "ghost"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ids)
}

func TestResolveByFilterOnline(t *testing.T) {
	devices := new(mockDeviceRepo)
	snapshots := new(mockSnapshotRepo)

	now := time.Now()
	recentHeartbeat := now.Add(-time.Minute)
	staleHeartbeat := now.Add(-time.Hour)

	devices.On("List", mock.Anything, 0, 0).Return([]*models.Device{
		{ID: "online-device", PushToken: "t1", LastHeartbeatAt: &recentHeartbeat},
		{ID: "offline-device", PushToken: "t2", LastHeartbeatAt: &staleHeartbeat},
	}, nil)
	snapshots.On("Create", mock.Anything, mock.AnythingOfType("*models.SelectionSnapshot")).Return(nil)

	online := true
	r := NewResolver(devices, new(mockLastStatusRepo), snapshots)
	_, ids, err := r.Resolve(context.Background(), Spec{Filter: &Filter{Online: &online}})
	require.NoError(t, err)
	assert.Equal(t, []string{"online-device"}, ids)
}

func TestResolveRequiresOneTargetMode(t *testing.T) {
	devices := new(mockDeviceRepo)
	snapshots := new(mockSnapshotRepo)
	r := NewResolver(devices, new(mockLastStatusRepo), snapshots)

	_, _, err := r.Resolve(context.Background(), Spec{})
	assert.Error(t, err)
}

func TestResolveReturnsEmptySliceWhenNoPushTokens(t *testing.T) {
	devices := new(mockDeviceRepo)
	snapshots := new(mockSnapshotRepo)

	devices.On("List", mock.Anything, 0, 0).Return([]*models.Device{
		{ID: "d1", PushToken: ""},
	}, nil)
	snapshots.On("Create", mock.Anything, mock.AnythingOfType("*models.SelectionSnapshot")).Return(nil)

	r := NewResolver(devices, new(mockLastStatusRepo), snapshots)
	_, ids, err := r.Resolve(context.Background(), Spec{All: true})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSweepExpiredDelegatesToRepository(t *testing.T) {
	devices := new(mockDeviceRepo)
	snapshots := new(mockSnapshotRepo)
	snapshots.On("DeleteExpired", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(3), nil)

	r := NewResolver(devices, new(mockLastStatusRepo), snapshots)
	n, err := r.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
