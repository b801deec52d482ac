package models

import "time"

// ServiceUpState is the tri-state evaluation of the monitored package's
// liveness.
type ServiceUpState string

const (
	ServiceUpTrue    ServiceUpState = "true"
	ServiceUpFalse   ServiceUpState = "false"
	ServiceUpUnknown ServiceUpState = "unknown"
)

// LastStatus is the read-optimized projection kept in sync with the
// heartbeat history under an ordering guard: it is only ever overwritten by
// a strictly newer timestamp. One row per device.
type LastStatus struct {
	DeviceID          string         `db:"device_id"`
	LastTs            time.Time      `db:"last_ts"`
	BatteryPct        int            `db:"battery_pct"`
	Charging          bool           `db:"charging"`
	NetworkType       string         `db:"network_type"`
	SignalDBM         int            `db:"signal_dbm"`
	UptimeSeconds     int64          `db:"uptime_s"`
	RAMUsedMB         int            `db:"ram_used_mb"`
	ForegroundRecentS int64          `db:"monitored_foreground_recent_s"`
	AgentVersion      string         `db:"agent_version"`
	ServiceUp         ServiceUpState `db:"service_up"`
	// ThresholdMinutesSnapshot captures the monitoring config in effect at
	// evaluation time, so a later threshold change takes effect on the next
	// heartbeat without recomputing history.
	ThresholdMinutesSnapshot int       `db:"threshold_minutes_snapshot"`
	UpdatedAt                time.Time `db:"updated_at"`
}

// EvaluateServiceUp computes the tri-state service_up projection.
func EvaluateServiceUp(appInstalled bool, foregroundRecentS int64, thresholdMinutes int) ServiceUpState {
	if !appInstalled {
		return ServiceUpUnknown
	}
	if IsForegroundUnknown(foregroundRecentS) {
		return ServiceUpUnknown
	}
	thresholdSeconds := int64(thresholdMinutes) * 60
	if foregroundRecentS <= thresholdSeconds {
		return ServiceUpTrue
	}
	return ServiceUpFalse
}

// StateTransitionEvent is emitted on the internal channel for each accepted
// heartbeat and when a device comes online or its service_up state changes,
// consumed by the admin WebSocket hub. Service transitions touching Unknown
// are never emitted (tri-state safety).
type StateTransitionEvent struct {
	Type     string // "device.heartbeat", "device.online", "service.up", "service.down"
	DeviceID string
	At       time.Time
}
