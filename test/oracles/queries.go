package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the cross-table invariants checked while actors run. Each query
// selects violating rows; an empty result means the invariant holds.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_approved_claim",
			SQL: `SELECT job_id, COUNT(*) FROM claims
                  WHERE status = 'APPROVED'
                  GROUP BY job_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_assignment_matches_status",
			SQL: `SELECT id, status, assigned_agent_id FROM jobs
                  WHERE (assigned_agent_id IS NULL AND status IN ('IN_PROGRESS','SUBMITTED','COMPLETED'))
                     OR (assigned_agent_id IS NOT NULL AND status IN ('OPEN','PENDING_REVIEW'))`,
		},
		{
			Name: "O3_escrow_release_gate",
			SQL: `SELECT id, status, escrow_status FROM jobs
                  WHERE escrow_status = 'RELEASED' AND status <> 'COMPLETED'`,
		},
		{
			Name: "O4_winner_is_assignee",
			SQL: `SELECT c.id FROM claims c
                  JOIN jobs j ON j.id = c.job_id
                  WHERE c.status = 'APPROVED'
                    AND (j.assigned_agent_id IS NULL OR j.assigned_agent_id <> c.agent_id)`,
		},
		{
			Name: "O5_submission_by_assignee",
			SQL: `SELECT s.id FROM submissions s
                  JOIN jobs j ON j.id = s.job_id
                  WHERE j.assigned_agent_id IS NULL OR s.agent_id <> j.assigned_agent_id`,
		},
		{
			Name: "O6_claim_count_bounded",
			SQL: `SELECT j.id, j.claim_count FROM jobs j
                  WHERE COALESCE(j.claim_count, 0) >
                        (SELECT COUNT(*) FROM claims c WHERE c.job_id = j.id)`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and a sample
// row) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
