package submission

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moltworks/fault"
	"moltworks/job"
)

// PGRepository implements submission data access backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// SubmitTx creates the deliverable and moves the job to SUBMITTED inside the
// caller's transaction. Only the assigned agent may deliver, and only while
// the job is IN_PROGRESS.
func (r *PGRepository) SubmitTx(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	jobRec, err := job.GetForUpdate(ctx, tx, rec.JobID)
	if err != nil {
		return Record{}, err
	}
	if jobRec.AssignedAgentID == nil || *jobRec.AssignedAgentID != rec.AgentID {
		return Record{}, fault.New(fault.PermissionDenied, "submission: only the assigned agent can submit work")
	}
	if jobRec.Status != job.StatusInProgress {
		return Record{}, fault.Errorf(fault.FailedPrecondition, "submission: job is not in progress (status=%s)", jobRec.Status)
	}

	const insertSQL = `
		INSERT INTO submissions (id, job_id, agent_id, summary, links)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, job_id::text, agent_id::text, summary, links, created_at
	`
	created, err := scanRecord(tx.QueryRow(ctx, insertSQL,
		rec.ID,
		rec.JobID,
		rec.AgentID,
		rec.Summary,
		rec.Links,
	))
	if err != nil {
		return Record{}, fmt.Errorf("submission: insert: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE jobs SET status = 'SUBMITTED' WHERE id = $1`, rec.JobID); err != nil {
		return Record{}, fmt.Errorf("submission: mark job submitted: %w", err)
	}
	return created, nil
}

// ListByJob returns a job's submissions, newest first.
func (r *PGRepository) ListByJob(ctx context.Context, jobID string) ([]Record, error) {
	const query = `
		SELECT id::text, job_id::text, agent_id::text, summary, links, created_at
		FROM submissions
		WHERE job_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("submission: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 4)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("submission: scan list row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("submission: iterate list: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.JobID,
		&rec.AgentID,
		&rec.Summary,
		&rec.Links,
		&rec.CreatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
