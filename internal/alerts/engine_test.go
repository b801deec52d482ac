package alerts

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fleetops/devicecontrol/internal/config"
	"github.com/fleetops/devicecontrol/internal/models"
)

func newTestEngine(cfg config.AlertConfig) *Engine {
	return NewEngine(nil, nil, nil, nil, nil, cfg, discardLogger())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTransitionStateRaisesOnFirstViolation(t *testing.T) {
	e := newTestEngine(config.AlertConfig{DeviceCooldownMinutes: 30})
	state := &models.AlertState{State: models.AlertOK}
	now := time.Now()

	transition := e.transitionState(state, true, 1, "5%", now)

	assert.Equal(t, "raise", transition)
	assert.Equal(t, models.AlertFiring, state.State)
	assert.NotNil(t, state.LastRaised)
	assert.NotNil(t, state.CooldownUntil)
	assert.True(t, state.CooldownUntil.After(now))
}

func TestTransitionStateSuppressesRepeatedFiring(t *testing.T) {
	e := newTestEngine(config.AlertConfig{DeviceCooldownMinutes: 30})
	now := time.Now()
	state := &models.AlertState{State: models.AlertFiring, ConsecutiveViolations: 3}

	transition := e.transitionState(state, true, 1, "5%", now)

	assert.Empty(t, transition)
	assert.Equal(t, models.AlertFiring, state.State)
}

func TestTransitionStateRecoversAndClearsCooldown(t *testing.T) {
	e := newTestEngine(config.AlertConfig{DeviceCooldownMinutes: 30})
	now := time.Now()
	cooldown := now.Add(10 * time.Minute)
	state := &models.AlertState{State: models.AlertFiring, ConsecutiveViolations: 2, CooldownUntil: &cooldown}

	transition := e.transitionState(state, false, 1, "80%", now)

	assert.Equal(t, "recover", transition)
	assert.Equal(t, models.AlertOK, state.State)
	assert.Nil(t, state.CooldownUntil)
	assert.Equal(t, 0, state.ConsecutiveViolations)
	assert.NotNil(t, state.LastRecovered)
}

func TestTransitionStateOKStaysOKWhenNotViolating(t *testing.T) {
	e := newTestEngine(config.AlertConfig{})
	now := time.Now()
	state := &models.AlertState{State: models.AlertOK, ConsecutiveViolations: 0}

	transition := e.transitionState(state, false, 1, "", now)

	assert.Empty(t, transition)
	assert.Equal(t, models.AlertOK, state.State)
}

func TestTransitionStateRequiresConsecutiveViolationsBeforeRaising(t *testing.T) {
	e := newTestEngine(config.AlertConfig{DeviceCooldownMinutes: 30})
	now := time.Now()
	state := &models.AlertState{State: models.AlertOK}

	first := e.transitionState(state, true, 2, "false", now)
	assert.Empty(t, first, "a single violation should not raise when two consecutive are required")
	assert.Equal(t, models.AlertOK, state.State)
	assert.Equal(t, 1, state.ConsecutiveViolations)

	second := e.transitionState(state, true, 2, "false", now)
	assert.Equal(t, "raise", second)
	assert.Equal(t, models.AlertFiring, state.State)
}
