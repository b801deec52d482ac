// Package alerts implements the periodic alert evaluator over the
// last-status projection: per-device state machines, cooldown, global rate
// cap, and roll-up aggregation.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetops/devicecontrol/internal/config"
	"github.com/fleetops/devicecontrol/internal/dispatch"
	"github.com/fleetops/devicecontrol/internal/middleware"
	"github.com/fleetops/devicecontrol/internal/models"
	"github.com/fleetops/devicecontrol/internal/notify"
	"github.com/fleetops/devicecontrol/internal/repository"
)

// Engine runs one tick of alert evaluation. A tick is expected
// to be serialized process-wide by an advisory lock taken by the caller
// (internal/scheduler); Engine itself only guards its in-process rate
// counter with a mutex.
type Engine struct {
	lastStatus repository.LastStatusRepository
	devices    repository.DeviceRepository
	states     repository.AlertStateRepository
	dispatcher *dispatch.Service
	notifier   notify.Notifier
	cfg        config.AlertConfig
	logger     *slog.Logger

	mu           sync.Mutex
	rateWindowAt time.Time
	rateCount    int
}

// NewEngine constructs an Engine.
func NewEngine(lastStatus repository.LastStatusRepository, devices repository.DeviceRepository, states repository.AlertStateRepository, dispatcher *dispatch.Service, notifier notify.Notifier, cfg config.AlertConfig, logger *slog.Logger) *Engine {
	return &Engine{
		lastStatus: lastStatus,
		devices:    devices,
		states:     states,
		dispatcher: dispatcher,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// violation captures one device's evaluation result for a condition,
// consumed by the roll-up pass after the per-device gates are applied.
type violation struct {
	device    *models.Device
	condition models.AlertCondition
	transition string // "raise" or "recover"
	value     string
}

// Tick evaluates every (device, condition) pair against the last-status
// projection snapshot read once at the top of the tick.
func (e *Engine) Tick(ctx context.Context) error {
	statuses, err := e.lastStatus.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("alerts: list last-status: %w", err)
	}

	devices, err := e.devices.List(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("alerts: list devices: %w", err)
	}
	deviceByID := make(map[string]*models.Device, len(devices))
	for _, d := range devices {
		deviceByID[d.ID] = d
	}

	now := time.Now()
	var toNotify []violation

	for _, status := range statuses {
		device := deviceByID[status.DeviceID]
		if device == nil || !device.MonitoringEnabled {
			continue
		}

		for _, v := range e.evaluateDevice(ctx, device, status, now) {
			toNotify = append(toNotify, v)
		}
	}

	e.rollupAndDispatch(ctx, toNotify, now)
	return nil
}

// evaluateDevice runs the three condition predicates for one device and
// transitions its alert state machines, returning the violations that
// survived the per-device cooldown gate.
func (e *Engine) evaluateDevice(ctx context.Context, device *models.Device, status *models.LastStatus, now time.Time) []violation {
	var out []violation

	checks := []struct {
		condition models.AlertCondition
		firing    bool
		value     string
		tristate  bool // true: this condition must never fire on "unknown"
	}{
		{
			condition: models.ConditionOffline,
			firing:    now.Sub(status.LastTs) > time.Duration(e.cfg.OfflineMinutes)*time.Minute,
			value:     now.Sub(status.LastTs).String(),
		},
		{
			condition: models.ConditionLowBattery,
			firing:    status.BatteryPct < e.cfg.LowBatteryPct,
			value:     fmt.Sprintf("%d%%", status.BatteryPct),
		},
		{
			condition: models.ConditionServiceDown,
			firing:    status.ServiceUp == models.ServiceUpFalse,
			value:     string(status.ServiceUp),
			tristate:  true,
		},
	}

	for _, c := range checks {
		// Tri-state safety: service_up == unknown never raises or recovers
		// the service_down alert; it is observational only.
		if c.tristate && status.ServiceUp == models.ServiceUpUnknown {
			continue
		}

		state, err := e.states.Get(ctx, device.ID, c.condition)
		if err != nil {
			e.logger.Error("alerts: get state", slog.String("device_id", device.ID), slog.Any("error", err))
			continue
		}
		if state == nil {
			state = &models.AlertState{DeviceID: device.ID, Condition: c.condition, State: models.AlertOK}
		}

		requireConsecutive := 1
		if c.condition == models.ConditionServiceDown && e.cfg.ServiceDownRequireConsec {
			requireConsecutive = 2
		}

		// Capture the cooldown in effect before this tick's transition
		// mutates it: a fresh raise always sets a future cooldown_until, so
		// gating on the post-transition value would suppress every raise.
		cooldownBefore := state.CooldownUntil

		transition := e.transitionState(state, c.firing, requireConsecutive, c.value, now)
		if err := e.states.Upsert(ctx, state); err != nil {
			e.logger.Error("alerts: upsert state", slog.String("device_id", device.ID), slog.Any("error", err))
			continue
		}

		if transition == "" {
			continue
		}

		// The cooldown gate only applies to raises — it
		// catches a rapid recover/re-raise cycle inside the previous firing
		// episode's cooldown window. Recoveries are never rate-limited.
		if transition == "raise" && cooldownBefore != nil && cooldownBefore.After(now) {
			middleware.IncrementAlertDedupeHit()
			continue
		}

		out = append(out, violation{device: device, condition: c.condition, transition: transition, value: c.value})
	}

	return out
}

// transitionState applies the state machine: ok->firing raises, firing->ok
// recovers, firing->firing is suppressed.
func (e *Engine) transitionState(state *models.AlertState, violating bool, requireConsecutive int, value string, now time.Time) string {
	state.LastValue = value

	if violating {
		state.ConsecutiveViolations++
		if state.State == models.AlertOK && state.ConsecutiveViolations >= requireConsecutive {
			state.State = models.AlertFiring
			state.LastRaised = &now
			cooldown := now.Add(time.Duration(e.cfg.DeviceCooldownMinutes) * time.Minute)
			state.CooldownUntil = &cooldown
			return "raise"
		}
		return ""
	}

	if state.State == models.AlertFiring {
		state.State = models.AlertOK
		state.LastRecovered = &now
		state.CooldownUntil = nil
		state.ConsecutiveViolations = 0
		return "recover"
	}
	state.ConsecutiveViolations = 0
	return ""
}
