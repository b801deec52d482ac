package models

import "time"

// DispatchAction is a member of the closed allow-list of remote command
// actions. No interactive shell sessions; exec_shell covers
// only an allow-listed fire-and-forget subset.
type DispatchAction string

const (
	ActionPing            DispatchAction = "ping"
	ActionRing            DispatchAction = "ring"
	ActionLaunchApp       DispatchAction = "launch_app"
	ActionInstallAPK      DispatchAction = "install_apk"
	ActionUpdate          DispatchAction = "update"
	ActionGrantPermission DispatchAction = "grant_permissions"
	ActionWifiConnect     DispatchAction = "wifi_connect"
	ActionExecShell       DispatchAction = "exec_shell"
)

// AllowedActions is the closed set dispatch() validates against.
var AllowedActions = map[DispatchAction]bool{
	ActionPing:            true,
	ActionRing:            true,
	ActionLaunchApp:       true,
	ActionInstallAPK:      true,
	ActionUpdate:          true,
	ActionGrantPermission: true,
	ActionWifiConnect:     true,
	ActionExecShell:       true,
}

// DispatchResult is the terminal (or pending) outcome of a command dispatch.
type DispatchResult string

const (
	ResultPending DispatchResult = "pending"
	ResultOK      DispatchResult = "ok"
	ResultFailed  DispatchResult = "failed"
	ResultTimeout DispatchResult = "timeout"
	ResultDenied  DispatchResult = "denied"
)

// IsTerminal reports whether the result is a terminal state; once reached,
// the row is immutable.
func (r DispatchResult) IsTerminal() bool {
	switch r {
	case ResultOK, ResultFailed, ResultTimeout, ResultDenied:
		return true
	default:
		return false
	}
}

// PushStatus is the fcm_status field tracking the push-provider call
// lifecycle, distinct from the device's eventual ack (DispatchResult).
type PushStatus string

const (
	PushPending PushStatus = "pending"
	PushSent    PushStatus = "sent"
	PushFailed  PushStatus = "failed"
	PushTimeout PushStatus = "timeout"
)

// Dispatch is a single command-dispatch row, keyed by request-id.
type Dispatch struct {
	RequestID        string         `db:"request_id"`
	DeviceID         string         `db:"device_id"`
	Action           DispatchAction `db:"action"`
	PayloadHash      string         `db:"payload_hash"`
	SentAt           time.Time      `db:"sent_at"`
	PushMessageID    string         `db:"push_message_id"`
	PushHTTPStatus   int            `db:"push_http_status"`
	PushStatus       PushStatus     `db:"push_status"`
	Result           DispatchResult `db:"result"`
	ResultMessage    string         `db:"result_message"`
	ExitCode         *int           `db:"exit_code"`
	OutputPreview    string         `db:"output_preview"`
	CompletedAt      *time.Time     `db:"completed_at"`
	RetryCount       int            `db:"retry_count"`
	BulkExecID       *string        `db:"bulk_exec_id"`
	CreatedAt        time.Time      `db:"created_at"`
}
