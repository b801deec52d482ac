package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/devicecontrol/internal/models"
)

// BulkExecRepository owns the parent bulk-execution record and its
// per-device child rows.
type BulkExecRepository interface {
	Create(ctx context.Context, b *models.BulkExecution) error
	GetByExecID(ctx context.Context, execID string) (*models.BulkExecution, error)
	CreatePendingResults(ctx context.Context, execID string, deviceIDs []string, requestIDs map[string]string) error
	// IncrementAckedOrErrored applies a database-side c = c + 1 update on the
	// parent's acked or errored counter, never a read-modify-write in
	// application memory, to prevent lost updates under concurrent acks
	//. It also flips status to completed when sent == acked+errored.
	IncrementAckedOrErrored(ctx context.Context, execID string, outcome models.DispatchResult) error
	GetResult(ctx context.Context, execID, deviceID string) (*models.BulkExecutionResult, error)
	UpdateResult(ctx context.Context, r *models.BulkExecutionResult) error
}

type bulkExecRepo struct {
	pool *pgxpool.Pool
}

// NewBulkExecRepository creates a new bulk-execution repository.
func NewBulkExecRepository(pool *pgxpool.Pool) BulkExecRepository {
	return &bulkExecRepo{pool: pool}
}

func (r *bulkExecRepo) Create(ctx context.Context, b *models.BulkExecution) error {
	query := `
		INSERT INTO bulk_executions (exec_id, mode, action, raw_request, target_spec, sent, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		b.ExecID, b.Mode, b.Action, b.RawRequest, b.TargetSpec, b.Sent, models.BulkExecRunning,
	).Scan(&b.CreatedAt)
}

func (r *bulkExecRepo) GetByExecID(ctx context.Context, execID string) (*models.BulkExecution, error) {
	query := `
		SELECT exec_id, mode, action, raw_request, target_spec, sent, acked, errored, status,
			created_at, completed_at
		FROM bulk_executions WHERE exec_id = $1`
	var b models.BulkExecution
	err := r.pool.QueryRow(ctx, query, execID).Scan(
		&b.ExecID, &b.Mode, &b.Action, &b.RawRequest, &b.TargetSpec, &b.Sent, &b.Acked, &b.Errored,
		&b.Status, &b.CreatedAt, &b.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bulkExecRepo) CreatePendingResults(ctx context.Context, execID string, deviceIDs []string, requestIDs map[string]string) error {
	batch := &pgx.Batch{}
	for _, id := range deviceIDs {
		batch.Queue(`
			INSERT INTO bulk_execution_results (exec_id, device_id, request_id, status)
			VALUES ($1, $2, $3, 'pending')`, execID, id, requestIDs[id])
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range deviceIDs {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// IncrementAckedOrErrored performs the atomic counter bump: a single
// UPDATE ... SET c = c + 1, with the completion flip folded into
// the same statement via a CASE so there is no window where a reader can
// observe sent==acked+errored but status still running.
func (r *bulkExecRepo) IncrementAckedOrErrored(ctx context.Context, execID string, outcome models.DispatchResult) error {
	var query string
	if outcome == models.ResultOK {
		query = `
			UPDATE bulk_executions SET
				acked = acked + 1,
				status = CASE WHEN sent = acked + 1 + errored THEN 'completed' ELSE status END,
				completed_at = CASE WHEN sent = acked + 1 + errored THEN now() ELSE completed_at END
			WHERE exec_id = $1`
	} else {
		query = `
			UPDATE bulk_executions SET
				errored = errored + 1,
				status = CASE WHEN sent = acked + errored + 1 THEN 'completed' ELSE status END,
				completed_at = CASE WHEN sent = acked + errored + 1 THEN now() ELSE completed_at END
			WHERE exec_id = $1`
	}
	_, err := r.pool.Exec(ctx, query, execID)
	return err
}

func (r *bulkExecRepo) GetResult(ctx context.Context, execID, deviceID string) (*models.BulkExecutionResult, error) {
	query := `
		SELECT exec_id, device_id, request_id, status, exit_code, output, error, created_at, updated_at
		FROM bulk_execution_results WHERE exec_id = $1 AND device_id = $2`
	var res models.BulkExecutionResult
	err := r.pool.QueryRow(ctx, query, execID, deviceID).Scan(
		&res.ExecID, &res.DeviceID, &res.RequestID, &res.Status, &res.ExitCode, &res.Output,
		&res.Error, &res.CreatedAt, &res.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *bulkExecRepo) UpdateResult(ctx context.Context, res *models.BulkExecutionResult) error {
	query := `
		UPDATE bulk_execution_results SET status = $3, exit_code = $4, output = $5, error = $6,
			updated_at = now()
		WHERE exec_id = $1 AND device_id = $2`
	_, err := r.pool.Exec(ctx, query, res.ExecID, res.DeviceID, res.Status, res.ExitCode, res.Output, res.Error)
	return err
}

var _ BulkExecRepository = (*bulkExecRepo)(nil)
