package api

import "time"

// Device mirrors the admin device-list/get response wire shape. The server
// never sends push_token, so PushToken is always empty.
type Device struct {
	ID               string     `json:"id"`
	Alias            string     `json:"alias"`
	MonitoredPackage string     `json:"monitored_package"`
	PushToken        string     `json:"push_token"`
	LastHeartbeatAt  *time.Time `json:"last_heartbeat_at"`
	StalenessMinutes int        `json:"staleness_minutes"`
}

// DispatchRequest is the body for POST /v1/devices/{id}/command.
type DispatchRequest struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

// DispatchResponse is the response from a single-device dispatch.
type DispatchResponse struct {
	RequestID string `json:"request_id"`
}

// BulkTargetFilter mirrors the targeting filter sub-object.
type BulkTargetFilter struct {
	Online *bool `json:"online,omitempty"`
}

// BulkTargets mirrors the targeting spec accepted by the bulk dispatch endpoint.
type BulkTargets struct {
	All     bool              `json:"all,omitempty"`
	Aliases []string          `json:"aliases,omitempty"`
	Filter  *BulkTargetFilter `json:"filter,omitempty"`
}

// BulkDispatchRequest is the body for POST /v1/remote-exec.
type BulkDispatchRequest struct {
	Mode    string      `json:"mode"`
	Action  string      `json:"action,omitempty"`
	Command string      `json:"command,omitempty"`
	Targets BulkTargets `json:"targets"`
}

// BulkDispatchResponse is the response from a bulk fan-out dispatch.
type BulkDispatchResponse struct {
	ExecID string `json:"exec_id"`
}

// BulkExecution mirrors GET /v1/remote-exec/{execID}.
type BulkExecution struct {
	ExecID    string    `json:"ExecID"`
	Mode      string    `json:"mode"`
	Total     int       `json:"Sent"`
	Acked     int       `json:"acked"`
	Errored   int       `json:"errored"`
	CreatedAt time.Time `json:"CreatedAt"`
}

// OTAStageRequest is the body for POST /v1/admin/ota/builds.
type OTAStageRequest struct {
	PackageName       string `json:"package_name"`
	VersionCode       int64  `json:"version_code"`
	VersionName       string `json:"version_name"`
	SHA256            string `json:"sha256"`
	SignerFingerprint string `json:"signer_fingerprint"`
	StorageURL        string `json:"storage_url"`
	WifiOnly          bool   `json:"wifi_only,omitempty"`
	MustInstall       bool   `json:"must_install,omitempty"`
}

// OTABuild mirrors the build object returned from staging and promotion.
type OTABuild struct {
	BuildID          string `json:"BuildID"`
	PackageName      string `json:"PackageName"`
	VersionCode      int64  `json:"VersionCode"`
	VersionName      string `json:"VersionName"`
	StagedRolloutPct int    `json:"StagedRolloutPct"`
}

// OTAPromoteRequest is the body for POST /v1/admin/ota/promote.
type OTAPromoteRequest struct {
	PackageName string `json:"package_name"`
	BuildID     string `json:"build_id"`
	PromotedBy  string `json:"promoted_by"`
	RolloutPct  int    `json:"rollout_pct"`
}

// OTAPromoteResponse is the response from a promotion.
type OTAPromoteResponse struct {
	BuildID             string  `json:"build_id"`
	RollbackFromBuildID *string `json:"rollback_from_build_id"`
}

// OTARolloutRequest is the body for POST /v1/admin/ota/rollout.
type OTARolloutRequest struct {
	BuildID string `json:"build_id"`
	Pct     int    `json:"pct"`
}

// OTARollbackRequest is the body for POST /v1/admin/ota/rollback.
type OTARollbackRequest struct {
	BuildID        string `json:"build_id"`
	Operator       string `json:"operator"`
	Pct            int    `json:"pct"`
	ForceDowngrade bool   `json:"force_downgrade,omitempty"`
}

// OTARollbackResponse is the response from a rollback.
type OTARollbackResponse struct {
	RolledBackTo *string `json:"rolled_back_to"`
}

// OTANudgeRequest is the body for POST /v1/admin/ota/nudge.
type OTANudgeRequest struct {
	DeviceID string `json:"device_id"`
}

// JobResponse is the response shape for the admin job-trigger endpoints.
type JobResponse struct {
	Job string `json:"job"`
}

// Partition mirrors an entry in GET /v1/admin/partitions.
type Partition struct {
	Name       string     `json:"name"`
	Status     string     `json:"State"`
	FromTS     time.Time  `json:"RangeStart"`
	ToTS       time.Time  `json:"RangeEnd"`
	RowCount   int64      `json:"RowCount"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// PoolHealth mirrors GET /v1/admin/pool-health.
type PoolHealth struct {
	Overloaded bool `json:"overloaded"`
}
