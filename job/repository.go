package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moltworks/fault"
)

const recordColumns = `
	id::text, title, scope, budget_amount, budget_currency::text, timeline,
	deliverable_format, created_by::text, created_at,
	COALESCE(status::text, ''), COALESCE(escrow_status::text, ''),
	assigned_agent_id::text, COALESCE(claim_count, 0)
`

// PGRepository implements job data access backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert writes a raw posting. Status, escrow status, created_at and
// claim_count stay absent on purpose: the initializer owns the defaults.
func (r *PGRepository) Insert(ctx context.Context, rec Record) (Record, error) {
	const insertSQL = `
		INSERT INTO jobs (id, title, scope, budget_amount, budget_currency, timeline, deliverable_format, created_by)
		VALUES ($1, $2, $3, $4, $5::budget_currency, $6, $7, $8)
		RETURNING ` + recordColumns

	created, err := scanRecord(r.pool.QueryRow(ctx, insertSQL,
		rec.ID,
		rec.Title,
		rec.Scope,
		rec.BudgetAmount,
		rec.BudgetCurrency,
		rec.Timeline,
		rec.DeliverableFormat,
		rec.CreatedBy,
	))
	if err != nil {
		return Record{}, fmt.Errorf("job: insert: %w", err)
	}
	return created, nil
}

// Get returns a job by id.
func (r *PGRepository) Get(ctx context.Context, jobID string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM jobs WHERE id = $1`
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fault.New(fault.NotFound, "job: not found")
		}
		return Record{}, fmt.Errorf("job: get: %w", err)
	}
	return rec, nil
}

// List returns jobs newest first, optionally filtered by status.
func (r *PGRepository) List(ctx context.Context, status Status, limit int) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT ` + recordColumns + ` FROM jobs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1::job_status`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC NULLS LAST LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("job: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("job: scan list row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job: iterate list: %w", err)
	}
	return out, nil
}

// GetForUpdate locks the job row inside the caller's transaction and returns
// its current state.
func GetForUpdate(ctx context.Context, tx pgx.Tx, jobID string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM jobs WHERE id = $1 FOR UPDATE`
	rec, err := scanRecord(tx.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fault.New(fault.NotFound, "job: not found")
		}
		return Record{}, fmt.Errorf("job: lock: %w", err)
	}
	return rec, nil
}

// CreatorOf returns the creator identity of a job, empty when the posting
// carried none.
func (r *PGRepository) CreatorOf(ctx context.Context, jobID string) (string, error) {
	var creator *string
	err := r.pool.QueryRow(ctx, `SELECT created_by::text FROM jobs WHERE id = $1`, jobID).Scan(&creator)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fault.New(fault.NotFound, "job: not found")
		}
		return "", fmt.Errorf("job: creator of: %w", err)
	}
	if creator == nil {
		return "", nil
	}
	return *creator, nil
}

// BackfillDefaults applies the one-shot default merge. The WHERE clause keeps
// it a no-op once every field is present, so repeated delivery of the same
// creation event cannot rewrite a live record.
func (r *PGRepository) BackfillDefaults(ctx context.Context, jobID string) (bool, error) {
	const mergeSQL = `
		UPDATE jobs
		SET status        = COALESCE(status, 'OPEN'),
		    escrow_status = COALESCE(escrow_status, 'NOT_FUNDED'),
		    created_at    = COALESCE(created_at, now()),
		    claim_count   = COALESCE(claim_count, 0)
		WHERE id = $1
		  AND (status IS NULL OR escrow_status IS NULL OR created_at IS NULL OR claim_count IS NULL)
	`
	tag, err := r.pool.Exec(ctx, mergeSQL, jobID)
	if err != nil {
		return false, fmt.Errorf("job: backfill defaults: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ApproveWorkTx completes a submitted job and releases escrow inside the
// caller's transaction. This is the sole path that releases funds.
func (r *PGRepository) ApproveWorkTx(ctx context.Context, tx pgx.Tx, jobID, callerID string) error {
	rec, err := GetForUpdate(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if rec.CreatedBy != callerID {
		return fault.New(fault.PermissionDenied, "job: only the job owner can approve work")
	}
	if rec.Status != StatusSubmitted {
		return fault.Errorf(fault.FailedPrecondition, "job: not ready for approval (status=%s)", rec.Status)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = 'COMPLETED', escrow_status = 'RELEASED'
		WHERE id = $1
	`, jobID); err != nil {
		return fmt.Errorf("job: complete: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec       Record
		createdBy *string
	)
	err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.Scope,
		&rec.BudgetAmount,
		&rec.BudgetCurrency,
		&rec.Timeline,
		&rec.DeliverableFormat,
		&createdBy,
		&rec.CreatedAt,
		&rec.Status,
		&rec.EscrowStatus,
		&rec.AssignedAgentID,
		&rec.ClaimCount,
	)
	if err != nil {
		return Record{}, err
	}
	if createdBy != nil {
		rec.CreatedBy = *createdBy
	}
	return rec, nil
}
