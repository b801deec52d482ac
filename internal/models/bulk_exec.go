package models

import "time"

// BulkExecMode distinguishes a push-command fan-out from an allow-listed
// shell command fan-out. Both ultimately flow through the
// same dispatch primitive.
type BulkExecMode string

const (
	BulkExecModePush  BulkExecMode = "push"
	BulkExecModeShell BulkExecMode = "shell"
)

// BulkExecStatus is the parent run's aggregate status.
type BulkExecStatus string

const (
	BulkExecRunning   BulkExecStatus = "running"
	BulkExecCompleted BulkExecStatus = "completed"
	BulkExecFailed    BulkExecStatus = "failed"
)

// BulkExecution is the parent record for a fan-out dispatch run.
type BulkExecution struct {
	ExecID      string         `db:"exec_id"`
	Mode        BulkExecMode   `db:"mode"`
	Action      string         `db:"action"`
	RawRequest  string         `db:"raw_request"`
	TargetSpec  string         `db:"target_spec"`
	Sent        int            `db:"sent"`
	Acked       int            `db:"acked"`
	Errored     int            `db:"errored"`
	Status      BulkExecStatus `db:"status"`
	CreatedAt   time.Time      `db:"created_at"`
	CompletedAt *time.Time     `db:"completed_at"`
}

// IsConsistent checks the bulk execution invariant: acked + errored ≤ sent,
// and status is completed iff acked + errored == sent.
func (b *BulkExecution) IsConsistent() bool {
	if b.Acked+b.Errored > b.Sent {
		return false
	}
	if (b.Status == BulkExecCompleted) != (b.Acked+b.Errored == b.Sent) {
		return false
	}
	return true
}

// BulkExecutionResult is a single device's child row within a bulk run,
// keyed by (exec_id, device_id).
type BulkExecutionResult struct {
	ExecID    string         `db:"exec_id"`
	DeviceID  string         `db:"device_id"`
	RequestID string         `db:"request_id"`
	Status    DispatchResult `db:"status"`
	ExitCode  *int           `db:"exit_code"`
	Output    string         `db:"output"`
	Error     string         `db:"error"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}
