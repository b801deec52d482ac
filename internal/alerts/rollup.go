package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/fleetops/devicecontrol/internal/middleware"
	"github.com/fleetops/devicecontrol/internal/models"
	"github.com/fleetops/devicecontrol/internal/notify"
)

// maxRollupAliases is the cap on aliases named in a roll-up message before
// the "and M more" tail.
const maxRollupAliases = 20

// rollupAndDispatch applies the global rate cap and roll-up policy to a
// tick's surviving violations (after the per-device cooldown gate), then
// dispatches notifications and any enabled auto-remediation.
func (e *Engine) rollupAndDispatch(ctx context.Context, violations []violation, now time.Time) {
	if len(violations) == 0 {
		return
	}

	byConditionRaise := make(map[models.AlertCondition][]violation)
	var singles []violation

	for _, v := range violations {
		if v.transition == "raise" {
			byConditionRaise[v.condition] = append(byConditionRaise[v.condition], v)
		} else {
			singles = append(singles, v)
		}
	}

	// Roll-up policy: collapse a condition's simultaneous raises into one
	// summary message when more than RollupThreshold devices fire within the
	// tick.
	for condition, raises := range byConditionRaise {
		if len(raises) > e.cfg.RollupThreshold {
			e.emitRollup(ctx, condition, raises)
			continue
		}
		singles = append(singles, raises...)
	}

	for _, v := range singles {
		if !e.admitRateCap(now) {
			middleware.IncrementAlertRateLimited()
			continue
		}
		e.emitSingle(ctx, v)
	}
}

// admitRateCap enforces the global cap across all devices, tracked as a fixed 1-minute window reset on rollover —
// adequate for the 60s tick cadence this engine runs at.
func (e *Engine) admitRateCap(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if now.Sub(e.rateWindowAt) >= time.Minute {
		e.rateWindowAt = now
		e.rateCount = 0
	}
	if e.rateCount >= e.cfg.GlobalCapPerMinute {
		return false
	}
	e.rateCount++
	return true
}

func (e *Engine) emitSingle(ctx context.Context, v violation) {
	kind := "raise"
	if v.transition == "recover" {
		kind = "recover"
	}

	n := notify.Notification{
		Condition: string(v.condition),
		DeviceID:  v.device.ID,
		Alias:     v.device.Alias,
		Kind:      kind,
		Detail:    v.value,
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("alerts: notify failed", slog.String("device_id", v.device.ID), slog.Any("error", err))
	}
	middleware.IncrementAlert(string(v.condition), kind)

	if v.transition == "raise" {
		e.maybeAutoRemediate(ctx, v)
	}
}

func (e *Engine) emitRollup(ctx context.Context, condition models.AlertCondition, raises []violation) {
	aliases := make([]string, 0, len(raises))
	for _, v := range raises {
		aliases = append(aliases, v.device.Alias)
	}
	shown := len(aliases)
	if shown > maxRollupAliases {
		shown = maxRollupAliases
	}

	r := notify.RollupNotification{
		Condition:    string(condition),
		Aliases:      aliases,
		TotalFiring:  len(raises),
		ShownAliases: shown,
	}
	if err := e.notifier.NotifyRollup(ctx, r); err != nil {
		e.logger.Warn("alerts: rollup notify failed", slog.String("condition", string(condition)), slog.Any("error", err))
	}
	middleware.IncrementAlert(string(condition), "rollup")

	for _, v := range raises {
		e.maybeAutoRemediate(ctx, v)
	}
}

// maybeAutoRemediate dispatches the condition's remediation command when
// ALERTS_ENABLE_AUTOREMEDIATION is set.
// Auto-remediations flow through the same allow-listed, HMAC-signed
// dispatch primitive as any operator-issued command.
func (e *Engine) maybeAutoRemediate(ctx context.Context, v violation) {
	if !e.cfg.EnableAutoRemediation || e.dispatcher == nil {
		return
	}

	var action models.DispatchAction
	switch v.condition {
	case models.ConditionOffline:
		action = models.ActionPing
	case models.ConditionServiceDown:
		action = models.ActionLaunchApp
	default:
		return
	}

	if _, err := e.dispatcher.Dispatch(ctx, v.device.ID, action, nil); err != nil {
		e.logger.Warn("alerts: auto-remediation dispatch failed",
			slog.String("device_id", v.device.ID), slog.String("action", string(action)), slog.Any("error", err))
	}
}
