package claim

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
	Insert(ctx context.Context, rec Record) (Record, error)
	ListByJob(ctx context.Context, jobID string) ([]Record, error)
	ListByAgent(ctx context.Context, agentID string) ([]Record, error)
	ProcessIntakeTx(ctx context.Context, tx pgx.Tx, claimID string) (IntakeOutcome, error)
	ApproveTx(ctx context.Context, tx pgx.Tx, jobID, claimID, callerID string) error
}

// Service carries the claim half of the job lifecycle: filing, intake, and
// the owner's adjudication.
type Service struct {
	pool  db.Pool
	repo  Repository
	idGen func() string
}

// FileParams carries a new claim from an agent.
type FileParams struct {
	JobID     string
	AgentID   string
	Approach  string
	ETA       string
	Questions *string
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

// File stores a raw claim and immediately runs intake on it, mirroring the
// record-creation trigger. The returned outcome tells the caller whether the
// claim entered the competition or was declined on arrival.
func (s *Service) File(ctx context.Context, params FileParams) (Record, IntakeOutcome, error) {
	if params.AgentID == "" {
		return Record{}, "", fault.New(fault.Unauthenticated, "claim: missing agent identity")
	}
	if params.JobID == "" {
		return Record{}, "", fault.New(fault.InvalidArgument, "claim: jobId is required")
	}
	if strings.TrimSpace(params.Approach) == "" {
		return Record{}, "", fault.New(fault.InvalidArgument, "claim: approach is required")
	}
	if strings.TrimSpace(params.ETA) == "" {
		return Record{}, "", fault.New(fault.InvalidArgument, "claim: eta is required")
	}

	rec, err := s.repo.Insert(ctx, Record{
		ID:        s.idGen(),
		JobID:     params.JobID,
		AgentID:   params.AgentID,
		Approach:  params.Approach,
		ETA:       params.ETA,
		Questions: params.Questions,
	})
	if err != nil {
		return Record{}, "", err
	}

	outcome, err := s.Intake(ctx, rec.ID)
	if err != nil {
		return Record{}, "", err
	}
	return rec, outcome, nil
}

// Intake decides one claim against current job state, atomically. Safe under
// at-least-once delivery: replay of a decided claim is a no-op.
func (s *Service) Intake(ctx context.Context, claimID string) (IntakeOutcome, error) {
	if claimID == "" {
		return "", fault.New(fault.InvalidArgument, "claim: claimId is required")
	}

	var outcome IntakeOutcome
	err := db.Serializable(ctx, s.pool, func(tx pgx.Tx) error {
		var txErr error
		outcome, txErr = s.repo.ProcessIntakeTx(ctx, tx, claimID)
		return txErr
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// Approve lets the job owner accept exactly one pending claim. All sibling
// claims are declined and the job moves to IN_PROGRESS in the same atomic
// unit; the first successful approval wins.
func (s *Service) Approve(ctx context.Context, jobID, claimID, callerID string) error {
	if callerID == "" {
		return fault.New(fault.Unauthenticated, "claim: authentication required")
	}
	if jobID == "" {
		return fault.New(fault.InvalidArgument, "claim: jobId is required")
	}
	if claimID == "" {
		return fault.New(fault.InvalidArgument, "claim: claimId is required")
	}

	return db.Serializable(ctx, s.pool, func(tx pgx.Tx) error {
		return s.repo.ApproveTx(ctx, tx, jobID, claimID, callerID)
	})
}

func (s *Service) ListByJob(ctx context.Context, jobID string) ([]Record, error) {
	if jobID == "" {
		return nil, fault.New(fault.InvalidArgument, "claim: jobId is required")
	}
	return s.repo.ListByJob(ctx, jobID)
}

func (s *Service) ListByAgent(ctx context.Context, agentID string) ([]Record, error) {
	if agentID == "" {
		return nil, fault.New(fault.Unauthenticated, "claim: missing agent identity")
	}
	return s.repo.ListByAgent(ctx, agentID)
}
