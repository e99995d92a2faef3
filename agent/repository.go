package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moltworks/fault"
)

const recordColumns = `
	agent_id::text, claim_link, x_handle,
	verified, claim_status::text, verified_by::text, verified_at, updated_at
`

// PGRepository implements agent identity storage backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Register upserts an agent's identity claim. Re-registering resets any
// earlier verification: the new evidence has to be checked again.
func (r *PGRepository) Register(ctx context.Context, agentID, claimLink, xHandle string) (Record, error) {
	const upsertSQL = `
		INSERT INTO agents (agent_id, claim_link, x_handle, verified, claim_status, updated_at)
		VALUES ($1, $2, $3, false, 'PENDING', now())
		ON CONFLICT (agent_id) DO UPDATE SET
			claim_link = EXCLUDED.claim_link,
			x_handle = EXCLUDED.x_handle,
			verified = false,
			claim_status = 'PENDING',
			verified_by = NULL,
			verified_at = NULL,
			updated_at = now()
		RETURNING ` + recordColumns

	rec, err := scanRecord(r.pool.QueryRow(ctx, upsertSQL, agentID, claimLink, xHandle))
	if err != nil {
		return Record{}, fmt.Errorf("agent: register: %w", err)
	}
	return rec, nil
}

// Verify upserts the verified state for an agent. The row may not exist yet
// when an admin verifies out of band; the merge creates it.
func (r *PGRepository) Verify(ctx context.Context, agentID, verifiedBy string) (Record, error) {
	const upsertSQL = `
		INSERT INTO agents (agent_id, verified, claim_status, verified_by, verified_at, updated_at)
		VALUES ($1, true, 'VERIFIED', $2, now(), now())
		ON CONFLICT (agent_id) DO UPDATE SET
			verified = true,
			claim_status = 'VERIFIED',
			verified_by = EXCLUDED.verified_by,
			verified_at = now(),
			updated_at = now()
		RETURNING ` + recordColumns

	rec, err := scanRecord(r.pool.QueryRow(ctx, upsertSQL, agentID, verifiedBy))
	if err != nil {
		return Record{}, fmt.Errorf("agent: verify: %w", err)
	}
	return rec, nil
}

// Get returns an agent's identity record.
func (r *PGRepository) Get(ctx context.Context, agentID string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM agents WHERE agent_id = $1`
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, agentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fault.New(fault.NotFound, "agent: not found")
		}
		return Record{}, fmt.Errorf("agent: get: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.AgentID,
		&rec.ClaimLink,
		&rec.XHandle,
		&rec.Verified,
		&rec.ClaimStatus,
		&rec.VerifiedBy,
		&rec.VerifiedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
