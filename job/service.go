package job

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moltworks/db"
	"moltworks/fault"
)

// Store is the data access required by the service.
type Store interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, jobID string) (Record, error)
	List(ctx context.Context, status Status, limit int) ([]Record, error)
	ApproveWorkTx(ctx context.Context, tx pgx.Tx, jobID, callerID string) error
}

// Service exposes the posting surface and the owner's work approval.
type Service struct {
	pool  db.Pool
	store Store
	idGen func() string
}

// CreateParams carries a new posting. Status, escrow status and claim count
// are deliberately not accepted here; the initializer assigns them.
type CreateParams struct {
	CreatorUserID     string
	Title             string
	Scope             string
	BudgetAmount      float64
	BudgetCurrency    Currency
	Timeline          string
	DeliverableFormat string
}

func NewService(pool *pgxpool.Pool, store Store) *Service {
	if store == nil {
		store = NewRepository(pool)
	}
	return &Service{
		pool:  pool,
		store: store,
		idGen: func() string { return uuid.NewString() },
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// Create stores a raw posting. Normalization is the initializer's job and is
// triggered by the caller afterwards, mirroring the record-creation event.
func (s *Service) Create(ctx context.Context, params CreateParams) (Record, error) {
	if params.CreatorUserID == "" {
		return Record{}, fault.New(fault.Unauthenticated, "job: missing creator identity")
	}
	if strings.TrimSpace(params.Title) == "" {
		return Record{}, fault.New(fault.InvalidArgument, "job: title is required")
	}
	if params.BudgetAmount <= 0 {
		return Record{}, fault.New(fault.InvalidArgument, "job: budget amount must be positive")
	}
	currency := params.BudgetCurrency
	if currency == "" {
		currency = CurrencyUSD
	}
	if !validCurrency(currency) {
		return Record{}, fault.Errorf(fault.InvalidArgument, "job: unsupported currency %q", currency)
	}

	rec := Record{
		ID:                s.idGen(),
		Title:             params.Title,
		Scope:             params.Scope,
		BudgetAmount:      params.BudgetAmount,
		BudgetCurrency:    currency,
		Timeline:          params.Timeline,
		DeliverableFormat: params.DeliverableFormat,
		CreatedBy:         params.CreatorUserID,
	}
	return s.store.Insert(ctx, rec)
}

func (s *Service) Get(ctx context.Context, jobID string) (Record, error) {
	if jobID == "" {
		return Record{}, fault.New(fault.InvalidArgument, "job: jobId is required")
	}
	return s.store.Get(ctx, jobID)
}

func (s *Service) List(ctx context.Context, status Status, limit int) ([]Record, error) {
	return s.store.List(ctx, status, limit)
}

// ApproveWork accepts a submission: the job completes and escrow is released,
// atomically. Only the job owner may call it, and only while the job is
// SUBMITTED; a repeat call observes COMPLETED and fails FAILED_PRECONDITION.
func (s *Service) ApproveWork(ctx context.Context, jobID, callerID string) error {
	if callerID == "" {
		return fault.New(fault.Unauthenticated, "job: authentication required")
	}
	if jobID == "" {
		return fault.New(fault.InvalidArgument, "job: jobId is required")
	}

	return db.Serializable(ctx, s.pool, func(tx pgx.Tx) error {
		return s.store.ApproveWorkTx(ctx, tx, jobID, callerID)
	})
}
