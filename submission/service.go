package submission

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moltworks/db"
	"moltworks/fault"
)

// Repository defines the data access required by the service.
type Repository interface {
	SubmitTx(ctx context.Context, tx pgx.Tx, rec Record) (Record, error)
	ListByJob(ctx context.Context, jobID string) ([]Record, error)
}

type Service struct {
	pool  db.Pool
	repo  Repository
	idGen func() string
}

// SubmitParams carries a deliverable from the assigned agent.
type SubmitParams struct {
	JobID   string
	AgentID string
	Summary string
	Links   []string
}

func NewService(pool *pgxpool.Pool, repo Repository) *Service {
	if repo == nil {
		repo = NewRepository(pool)
	}
	return &Service{
		pool:  pool,
		repo:  repo,
		idGen: func() string { return uuid.NewString() },
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// Submit delivers work for an in-progress job: one submission record plus the
// SUBMITTED transition, committed together or not at all.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (Record, error) {
	if params.AgentID == "" {
		return Record{}, fault.New(fault.Unauthenticated, "submission: authentication required")
	}
	if params.JobID == "" {
		return Record{}, fault.New(fault.InvalidArgument, "submission: jobId is required")
	}
	if strings.TrimSpace(params.Summary) == "" {
		return Record{}, fault.New(fault.InvalidArgument, "submission: summary is required")
	}

	links := params.Links
	if links == nil {
		links = []string{}
	}

	var created Record
	err := db.Serializable(ctx, s.pool, func(tx pgx.Tx) error {
		var txErr error
		created, txErr = s.repo.SubmitTx(ctx, tx, Record{
			ID:      s.idGen(),
			JobID:   params.JobID,
			AgentID: params.AgentID,
			Summary: params.Summary,
			Links:   links,
		})
		return txErr
	})
	if err != nil {
		return Record{}, err
	}
	return created, nil
}

func (s *Service) ListByJob(ctx context.Context, jobID string) ([]Record, error) {
	if jobID == "" {
		return nil, fault.New(fault.InvalidArgument, "submission: jobId is required")
	}
	return s.repo.ListByJob(ctx, jobID)
}
