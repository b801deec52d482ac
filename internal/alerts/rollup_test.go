package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/fleetops/devicecontrol/internal/config"
	"github.com/fleetops/devicecontrol/internal/models"
	"github.com/fleetops/devicecontrol/internal/notify"
)

type fakeNotifier struct {
	mock.Mock
}

func (f *fakeNotifier) Notify(ctx context.Context, n notify.Notification) error {
	args := f.Called(ctx, n)
	return args.Error(0)
}

func (f *fakeNotifier) NotifyRollup(ctx context.Context, n notify.RollupNotification) error {
	args := f.Called(ctx, n)
	return args.Error(0)
}

func TestAdmitRateCapEnforcesGlobalLimit(t *testing.T) {
	e := newTestEngine(config.AlertConfig{GlobalCapPerMinute: 2})
	now := time.Now()

	assert.True(t, e.admitRateCap(now))
	assert.True(t, e.admitRateCap(now))
	assert.False(t, e.admitRateCap(now), "a third call within the same window should be denied")
}

func TestAdmitRateCapResetsOnWindowRollover(t *testing.T) {
	e := newTestEngine(config.AlertConfig{GlobalCapPerMinute: 1})
	now := time.Now()

	assert.True(t, e.admitRateCap(now))
	assert.False(t, e.admitRateCap(now))
	assert.True(t, e.admitRateCap(now.Add(90*time.Second)))
}

func TestRollupAndDispatchCollapsesAboveThreshold(t *testing.T) {
	notifier := new(fakeNotifier)
	notifier.On("NotifyRollup", mock.Anything, mock.AnythingOfType("notify.RollupNotification")).Return(nil)

	e := NewEngine(nil, nil, nil, nil, notifier, config.AlertConfig{RollupThreshold: 2, GlobalCapPerMinute: 100}, discardLogger())

	violations := make([]violation, 0, 5)
	for i := 0; i < 5; i++ {
		violations = append(violations, violation{
			device:     &models.Device{ID: "d", Alias: "alias"},
			condition:  models.ConditionOffline,
			transition: "raise",
		})
	}

	e.rollupAndDispatch(context.Background(), violations, time.Now())

	notifier.AssertCalled(t, "NotifyRollup", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestRollupAndDispatchSendsSinglesBelowThreshold(t *testing.T) {
	notifier := new(fakeNotifier)
	notifier.On("Notify", mock.Anything, mock.AnythingOfType("notify.Notification")).Return(nil)

	e := NewEngine(nil, nil, nil, nil, notifier, config.AlertConfig{RollupThreshold: 10, GlobalCapPerMinute: 100}, discardLogger())

	violations := []violation{
		{device: &models.Device{ID: "d1", Alias: "a1"}, condition: models.ConditionLowBattery, transition: "raise"},
	}

	e.rollupAndDispatch(context.Background(), violations, time.Now())

	notifier.AssertExpectations(t)
	notifier.AssertNotCalled(t, "NotifyRollup", mock.Anything, mock.Anything)
}

func TestRollupAndDispatchDropsWhenRateCapExhausted(t *testing.T) {
	notifier := new(fakeNotifier)

	e := NewEngine(nil, nil, nil, nil, notifier, config.AlertConfig{RollupThreshold: 10, GlobalCapPerMinute: 0}, discardLogger())

	violations := []violation{
		{device: &models.Device{ID: "d1", Alias: "a1"}, condition: models.ConditionLowBattery, transition: "raise"},
	}

	e.rollupAndDispatch(context.Background(), violations, time.Now())

	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}
