package models

import "time"

// AppVersion is the reported install state of a single package on the
// device, keyed by package name in the heartbeat payload's app_versions
// map. Tagged as a typed variant per the Design Note on duck-typed JSON
// payloads, instead of a bare map[string]any.
type AppVersion struct {
	Installed   bool   `json:"installed"`
	VersionCode int64  `json:"version_code"`
	VersionName string `json:"version_name"`
}

// Heartbeat is a single append-only row in a day's partition. Primary key
// is (device_id, ts, monotonic_id); uniqueness within a 10-second dedupe
// bucket is enforced at the storage layer, not here.
type Heartbeat struct {
	DeviceID      string    `db:"device_id"`
	Ts            time.Time `db:"ts"`
	MonotonicID   string    `db:"monotonic_id"`
	BatteryPct    int       `db:"battery_pct"`
	Charging      bool      `db:"charging"`
	NetworkType   string    `db:"network_type"`
	SignalDBM     int       `db:"signal_dbm"`
	UptimeSeconds int64     `db:"uptime_s"`
	RAMUsedMB     int       `db:"ram_used_mb"`
	// ForegroundRecentS is the monitored package's foreground-recency in
	// seconds; negative is the "unknown" sentinel.
	ForegroundRecentS int64                 `db:"monitored_foreground_recent_s"`
	AgentVersion      string                `db:"agent_version"`
	AppVersions       map[string]AppVersion `db:"app_versions"`
}

// DedupeBucket computes the (minute, 10-second-slot) key used for the
// unique constraint on a day's partition.
func DedupeBucket(ts time.Time) (minute int, bucket int) {
	minute = ts.Hour()*60 + ts.Minute()
	bucket = ts.Second() / 10
	return minute, bucket
}

// ForegroundUnknown is the sentinel value meaning "foreground recency is
// unknown" — either the payload omitted it or reported a negative value.
const ForegroundUnknown int64 = -1

// IsForegroundUnknown reports whether a foreground-recency reading should
// be treated as unknown.
func IsForegroundUnknown(fg int64) bool {
	return fg < 0
}
