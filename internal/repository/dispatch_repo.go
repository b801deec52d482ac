package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicecontrol/internal/models"
)

// DispatchRepository owns the command dispatch row created by the dispatch
// primitive and mutated by the push-provider call and the
// device's action-result ack.
type DispatchRepository interface {
	Create(ctx context.Context, d *models.Dispatch) error
	GetByRequestID(ctx context.Context, requestID string) (*models.Dispatch, error)
	UpdatePushResult(ctx context.Context, requestID string, status models.PushStatus, messageID string, httpStatus int) error
	// RecordAck sets the terminal ack fields iff the row is not already
	// terminal; returns applied=false when the row was already terminal so
	// the caller can answer idempotently without double-counting.
	RecordAck(ctx context.Context, requestID string, result models.DispatchResult, message string, exitCode *int, output string) (applied bool, deviceID string, bulkExecID *string, err error)
	DemoteStaleSent(ctx context.Context, olderThan time.Duration) (int64, error)
}

type dispatchRepo struct {
	pool *pgxpool.Pool
}

// NewDispatchRepository creates a new dispatch repository.
func NewDispatchRepository(pool *pgxpool.Pool) DispatchRepository {
	return &dispatchRepo{pool: pool}
}

const dispatchColumns = `request_id, device_id, action, payload_hash, sent_at, push_message_id,
	push_http_status, push_status, result, result_message, exit_code, output_preview,
	completed_at, retry_count, bulk_exec_id, created_at`

func scanDispatch(row pgx.Row) (*models.Dispatch, error) {
	var d models.Dispatch
	err := row.Scan(
		&d.RequestID, &d.DeviceID, &d.Action, &d.PayloadHash, &d.SentAt, &d.PushMessageID,
		&d.PushHTTPStatus, &d.PushStatus, &d.Result, &d.ResultMessage, &d.ExitCode, &d.OutputPreview,
		&d.CompletedAt, &d.RetryCount, &d.BulkExecID, &d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *dispatchRepo) Create(ctx context.Context, d *models.Dispatch) error {
	query := `
		INSERT INTO dispatches (request_id, device_id, action, payload_hash, sent_at, push_status,
			result, bulk_exec_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		d.RequestID, d.DeviceID, d.Action, d.PayloadHash, d.SentAt, models.PushPending,
		models.ResultPending, d.BulkExecID,
	).Scan(&d.CreatedAt)
}

func (r *dispatchRepo) GetByRequestID(ctx context.Context, requestID string) (*models.Dispatch, error) {
	query := `SELECT ` + dispatchColumns + ` FROM dispatches WHERE request_id = $1`
	return scanDispatch(r.pool.QueryRow(ctx, query, requestID))
}

func (r *dispatchRepo) UpdatePushResult(ctx context.Context, requestID string, status models.PushStatus, messageID string, httpStatus int) error {
	query := `
		UPDATE dispatches SET push_status = $2, push_message_id = $3, push_http_status = $4
		WHERE request_id = $1`
	_, err := r.pool.Exec(ctx, query, requestID, status, messageID, httpStatus)
	return err
}

// RecordAck performs the idempotent terminal-state transition of the
// acknowledgement path: looked up by request_id, only mutated if the row
// is not already terminal. The WHERE clause on result NOT IN
// terminal states makes the guard atomic against concurrent acks.
func (r *dispatchRepo) RecordAck(ctx context.Context, requestID string, result models.DispatchResult, message string, exitCode *int, output string) (bool, string, *string, error) {
	query := `
		UPDATE dispatches SET result = $2, result_message = $3, exit_code = $4,
			output_preview = $5, completed_at = now()
		WHERE request_id = $1
			AND result NOT IN ('ok', 'failed', 'timeout', 'denied')
		RETURNING device_id, bulk_exec_id`

	var deviceID string
	var bulkExecID *string
	err := r.pool.QueryRow(ctx, query, requestID, result, message, exitCode, output).Scan(&deviceID, &bulkExecID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either unknown request-id, or already terminal; disambiguate with
		// a plain lookup so the handler can tell a 404 from an idempotent 200.
		existing, lookupErr := r.GetByRequestID(ctx, requestID)
		if lookupErr != nil {
			return false, "", nil, lookupErr
		}
		if existing == nil {
			return false, "", nil, nil
		}
		return false, existing.DeviceID, existing.BulkExecID, nil
	}
	if err != nil {
		return false, "", nil, err
	}
	return true, deviceID, bulkExecID, nil
}

// DemoteStaleSent demotes dispatches stuck in push_status=sent/result=pending
// past the liveness timeout to result=timeout.
func (r *dispatchRepo) DemoteStaleSent(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE dispatches SET result = 'timeout', completed_at = now()
		WHERE result = 'pending' AND push_status = 'sent' AND sent_at < now() - $1::interval`
	tag, err := r.pool.Exec(ctx, query, olderThan.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ DispatchRepository = (*dispatchRepo)(nil)
