package claim

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"moltworks/fault"
	"moltworks/job"
)

const recordColumns = `
	id::text, job_id::text, agent_id::text, approach, eta, questions, created_at,
	COALESCE(status::text, '')
`

// PGRepository implements claim data access backed by PostgreSQL. The
// transactional methods deliberately reach into the jobs table: intake and
// adjudication are single atomic units over both entities.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert writes a raw claim with no status; intake decides it afterwards.
func (r *PGRepository) Insert(ctx context.Context, rec Record) (Record, error) {
	const insertSQL = `
		INSERT INTO claims (id, job_id, agent_id, approach, eta, questions)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + recordColumns

	created, err := scanRecord(r.pool.QueryRow(ctx, insertSQL,
		rec.ID,
		rec.JobID,
		rec.AgentID,
		rec.Approach,
		rec.ETA,
		rec.Questions,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Record{}, fault.New(fault.NotFound, "claim: job not found")
		}
		return Record{}, fmt.Errorf("claim: insert: %w", err)
	}
	return created, nil
}

// Get returns a claim by id.
func (r *PGRepository) Get(ctx context.Context, claimID string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM claims WHERE id = $1`
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, claimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fault.New(fault.NotFound, "claim: not found")
		}
		return Record{}, fmt.Errorf("claim: get: %w", err)
	}
	return rec, nil
}

// ListByJob returns all claims filed against a job, newest first.
func (r *PGRepository) ListByJob(ctx context.Context, jobID string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM claims WHERE job_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, jobID)
}

// ListByAgent returns all claims filed by an agent, newest first.
func (r *PGRepository) ListByAgent(ctx context.Context, agentID string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM claims WHERE agent_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, agentID)
}

func (r *PGRepository) list(ctx context.Context, query, arg string) ([]Record, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("claim: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("claim: scan list row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim: iterate list: %w", err)
	}
	return out, nil
}

// ProcessIntakeTx validates a freshly created claim against the current job
// state and decides it, advancing the job in the same transaction. Replay of
// an already-decided claim is a no-op: the decision is derived purely from
// stored state.
func (r *PGRepository) ProcessIntakeTx(ctx context.Context, tx pgx.Tx, claimID string) (IntakeOutcome, error) {
	var (
		jobID  string
		status string
	)
	if err := tx.QueryRow(ctx, `
		SELECT job_id::text, COALESCE(status::text, '') FROM claims WHERE id = $1
	`, claimID).Scan(&jobID, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fault.New(fault.NotFound, "claim: not found")
		}
		return "", fmt.Errorf("claim: load for intake: %w", err)
	}
	if status != "" {
		return OutcomeAlreadyProcessed, nil
	}

	// Job first, then claim: adjudication locks in the same order.
	jobRec, err := job.GetForUpdate(ctx, tx, jobID)
	if err != nil {
		return "", err
	}

	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(status::text, '') FROM claims WHERE id = $1 FOR UPDATE
	`, claimID).Scan(&status); err != nil {
		return "", fmt.Errorf("claim: lock for intake: %w", err)
	}
	if status != "" {
		return OutcomeAlreadyProcessed, nil
	}

	if !jobRec.Status.Claimable() {
		if _, err := tx.Exec(ctx, `UPDATE claims SET status = 'DECLINED' WHERE id = $1`, claimID); err != nil {
			return "", fmt.Errorf("claim: decline at intake: %w", err)
		}
		return OutcomeDeclined, nil
	}

	next := jobRec.Status
	if next == job.StatusOpen {
		next = job.StatusPendingReview
	}

	if _, err := tx.Exec(ctx, `UPDATE claims SET status = 'PENDING' WHERE id = $1`, claimID); err != nil {
		return "", fmt.Errorf("claim: mark pending: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $2::job_status, claim_count = COALESCE(claim_count, 0) + 1 WHERE id = $1
	`, jobID, next); err != nil {
		return "", fmt.Errorf("claim: advance job: %w", err)
	}
	return OutcomeAccepted, nil
}

// ApproveTx settles the competition for a job: the target claim wins, every
// sibling is declined, and the job moves to IN_PROGRESS with the winner
// assigned. The status precondition is what makes the first commit win;
// a concurrent attempt re-reads IN_PROGRESS and fails here.
func (r *PGRepository) ApproveTx(ctx context.Context, tx pgx.Tx, jobID, claimID, callerID string) error {
	jobRec, err := job.GetForUpdate(ctx, tx, jobID)
	if err != nil {
		return err
	}

	var (
		claimJobID   string
		claimAgentID string
	)
	if err := tx.QueryRow(ctx, `
		SELECT job_id::text, agent_id::text FROM claims WHERE id = $1 FOR UPDATE
	`, claimID).Scan(&claimJobID, &claimAgentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.New(fault.NotFound, "claim: not found")
		}
		return fmt.Errorf("claim: lock for approval: %w", err)
	}

	if jobRec.CreatedBy != callerID {
		return fault.New(fault.PermissionDenied, "claim: only the job owner can approve claims")
	}
	if claimJobID != jobID {
		return fault.New(fault.InvalidArgument, "claim: claim does not match job")
	}
	if !jobRec.Status.Claimable() {
		return fault.Errorf(fault.FailedPrecondition, "claim: job is not open for approval (status=%s)", jobRec.Status)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE claims SET status = 'DECLINED' WHERE job_id = $1 AND id <> $2
	`, jobID, claimID); err != nil {
		return fmt.Errorf("claim: decline siblings: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE claims SET status = 'APPROVED' WHERE id = $1`, claimID); err != nil {
		return fmt.Errorf("claim: approve: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE jobs SET status = 'IN_PROGRESS', assigned_agent_id = $2 WHERE id = $1
	`, jobID, claimAgentID); err != nil {
		return fmt.Errorf("claim: assign job: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.JobID,
		&rec.AgentID,
		&rec.Approach,
		&rec.ETA,
		&rec.Questions,
		&rec.CreatedAt,
		&rec.Status,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
