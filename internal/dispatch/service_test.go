package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/devicecontrol/internal/models"
	"github.com/fleetops/devicecontrol/internal/pushprovider"
)

type mockDeviceRepo struct{ mock.Mock }

func (m *mockDeviceRepo) Create(ctx context.Context, d *models.Device) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}
func (m *mockDeviceRepo) GetByID(ctx context.Context, id string) (*models.Device, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Device), args.Error(1)
}
func (m *mockDeviceRepo) GetByTokenID(ctx context.Context, tokenID string) (*models.Device, error) {
	args := m.Called(ctx, tokenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Device), args.Error(1)
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
	args := m.Called(ctx, ids)
	return args.Get(0).([]*models.Device), args.Error(1)
}
func (m *mockDeviceRepo) UpdateLastHeartbeat(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}
func (m *mockDeviceRepo) RevokeToken(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockDispatchRepo struct{ mock.Mock }

func (m *mockDispatchRepo) Create(ctx context.Context, d *models.Dispatch) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}
func (m *mockDispatchRepo) GetByRequestID(ctx context.Context, requestID string) (*models.Dispatch, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispatch), args.Error(1)
}
func (m *mockDispatchRepo) UpdatePushResult(ctx context.Context, requestID string, status models.PushStatus, messageID string, httpStatus int) error {
	args := m.Called(ctx, requestID, status, messageID, httpStatus)
	return args.Error(0)
}
func (m *mockDispatchRepo) RecordAck(ctx context.Context, requestID string, result models.DispatchResult, message string, exitCode *int, output string) (bool, string, *string, error) {
	args := m.Called(ctx, requestID, result, message, exitCode, output)
	var bulkExecID *string
	if v := args.Get(2); v != nil {
		bulkExecID = v.(*string)
	}
	return args.Bool(0), args.String(1), bulkExecID, args.Error(3)
}
func (m *mockDispatchRepo) DemoteStaleSent(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type mockBulkExecRepo struct{ mock.Mock }

func (m *mockBulkExecRepo) Create(ctx context.Context, b *models.BulkExecution) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}
func (m *mockBulkExecRepo) GetByExecID(ctx context.Context, execID string) (*models.BulkExecution, error) {
	args := m.Called(ctx, execID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BulkExecution), args.Error(1)
}
func (m *mockBulkExecRepo) CreatePendingResults(ctx context.Context, execID string, deviceIDs []string, requestIDs map[string]string) error {
	args := m.Called(ctx, execID, deviceIDs, requestIDs)
	return args.Error(0)
}
func (m *mockBulkExecRepo) IncrementAckedOrErrored(ctx context.Context, execID string, outcome models.DispatchResult) error {
	args := m.Called(ctx, execID, outcome)
	return args.Error(0)
}
func (m *mockBulkExecRepo) GetResult(ctx context.Context, execID, deviceID string) (*models.BulkExecutionResult, error) {
	args := m.Called(ctx, execID, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BulkExecutionResult), args.Error(1)
}
func (m *mockBulkExecRepo) UpdateResult(ctx context.Context, r *models.BulkExecutionResult) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

type fakeSender struct {
	result pushprovider.Result
	err    error
}

func (f *fakeSender) Send(ctx context.Context, pushToken string, payload map[string]any) (pushprovider.Result, error) {
	return f.result, f.err
}

func TestDispatchRejectsActionNotOnAllowList(t *testing.T) {
	devices := new(mockDeviceRepo)
	dispatches := new(mockDispatchRepo)
	bulkExecs := new(mockBulkExecRepo)
	svc := NewService(dispatches, devices, bulkExecs, &fakeSender{}, []byte("key"))

	_, err := svc.Dispatch(context.Background(), "device-1", models.DispatchAction("reboot_bootloader"), nil)
	assert.ErrorIs(t, err, ErrActionNotAllowed)
	devices.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestDispatchSendsPushAndRecordsSentResult(t *testing.T) {
	devices := new(mockDeviceRepo)
	dispatches := new(mockDispatchRepo)
	bulkExecs := new(mockBulkExecRepo)

	device := &models.Device{ID: "device-1", PushToken: "push-token-1"}
	devices.On("GetByID", mock.Anything, "device-1").Return(device, nil)
	dispatches.On("Create", mock.Anything, mock.AnythingOfType("*models.Dispatch")).Return(nil)
	dispatches.On("UpdatePushResult", mock.Anything, mock.AnythingOfType("string"), models.PushSent, "msg-1", 200).Return(nil)

	svc := NewService(dispatches, devices, bulkExecs, &fakeSender{result: pushprovider.Result{MessageID: "msg-1", HTTPStatus: 200}}, []byte("key"))

	requestID, err := svc.Dispatch(context.Background(), "device-1", models.ActionPing, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)

	devices.AssertExpectations(t)
	dispatches.AssertExpectations(t)
}

func TestDispatchRecordsFailedPushWhenNoPushToken(t *testing.T) {
	devices := new(mockDeviceRepo)
	dispatches := new(mockDispatchRepo)
	bulkExecs := new(mockBulkExecRepo)

	device := &models.Device{ID: "device-1", PushToken: ""}
	devices.On("GetByID", mock.Anything, "device-1").Return(device, nil)
	dispatches.On("Create", mock.Anything, mock.AnythingOfType("*models.Dispatch")).Return(nil)
	dispatches.On("UpdatePushResult", mock.Anything, mock.AnythingOfType("string"), models.PushFailed, "", 0).Return(nil)

	svc := NewService(dispatches, devices, bulkExecs, &fakeSender{}, []byte("key"))

	requestID, err := svc.Dispatch(context.Background(), "device-1", models.ActionRing, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)
	dispatches.AssertExpectations(t)
}

func TestDispatchUnknownDeviceFails(t *testing.T) {
	devices := new(mockDeviceRepo)
	dispatches := new(mockDispatchRepo)
	bulkExecs := new(mockBulkExecRepo)

	devices.On("GetByID", mock.Anything, "ghost-device").Return(nil, nil)

	svc := NewService(dispatches, devices, bulkExecs, &fakeSender{}, []byte("key"))
	_, err := svc.Dispatch(context.Background(), "ghost-device", models.ActionPing, nil)
	assert.Error(t, err)
	dispatches.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAckReturnsNotFoundForUnknownRequest(t *testing.T) {
	devices := new(mockDeviceRepo)
	dispatches := new(mockDispatchRepo)
	bulkExecs := new(mockBulkExecRepo)

	dispatches.On("RecordAck", mock.Anything, "unknown-request", models.ResultOK, mock.Anything, mock.Anything, mock.Anything).
		Return(false, "", nil, nil)

	svc := NewService(dispatches, devices, bulkExecs, &fakeSender{}, []byte("key"))
	found, err := svc.Ack(context.Background(), AckOutcome{RequestID: "unknown-request", Outcome: models.ResultOK})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAckAppliedBumpsBulkCounters(t *testing.T) {
	devices := new(mockDeviceRepo)
	dispatches := new(mockDispatchRepo)
	bulkExecs := new(mockBulkExecRepo)

	execID := "exec-1"
	dispatches.On("RecordAck", mock.Anything, "req-1", models.ResultOK, mock.Anything, mock.Anything, mock.Anything).
		Return(true, "device-1", &execID, nil)
	bulkExecs.On("IncrementAckedOrErrored", mock.Anything, execID, models.ResultOK).Return(nil)
	bulkExecs.On("UpdateResult", mock.Anything, mock.AnythingOfType("*models.BulkExecutionResult")).Return(nil)

	svc := NewService(dispatches, devices, bulkExecs, &fakeSender{}, []byte("key"))
	found, err := svc.Ack(context.Background(), AckOutcome{RequestID: "req-1", Outcome: models.ResultOK, Output: "done"})
	require.NoError(t, err)
	assert.True(t, found)
	bulkExecs.AssertExpectations(t)
}
