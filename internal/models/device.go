package models

import "time"

// Device is the authoritative enrollment record for a managed endpoint.
// The last-status projection is derived from it and from the heartbeat
// history; Device itself never embeds either (no cyclic object references,
// id references only).
type Device struct {
	ID                string     `json:"id" db:"id"`
	Alias             string     `json:"alias" db:"alias"`
	TokenID           string     `json:"-" db:"token_id"`
	TokenHash         string     `json:"-" db:"token_hash"`
	TokenRevokedAt    *time.Time `json:"-" db:"token_revoked_at"`
	PushToken         string     `json:"-" db:"push_token"`
	MonitoredPackage  string     `json:"monitored_package" db:"monitored_package"`
	MonitoredDisplay  string     `json:"monitored_display_name" db:"monitored_display_name"`
	ThresholdMinutes  int        `json:"threshold_minutes" db:"threshold_minutes"`
	MonitoringEnabled bool       `json:"monitoring_enabled" db:"monitoring_enabled"`
	DeviceOwnerMode   bool       `json:"device_owner_mode" db:"device_owner_mode"`
	LastHeartbeatAt   *time.Time `json:"last_heartbeat_at" db:"last_heartbeat_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTokenRevoked reports whether the device's bearer token has been revoked.
func (d *Device) IsTokenRevoked() bool {
	return d.TokenRevokedAt != nil
}

// EnrollmentToken is the plaintext bearer token minted at enrollment time
// (returned once, never stored). TokenID is the first 8 characters used
// for O(1) lookup; Secret is the remainder, bcrypt-hashed at rest.
type EnrollmentToken struct {
	TokenID string
	Secret  string
}

// Bearer reconstructs the wire-format bearer token from its two parts.
func (t EnrollmentToken) Bearer() string {
	return t.TokenID + "." + t.Secret
}
