package job

import "time"

// Status tracks a job through its lifecycle. The zero value means the record
// has not been normalized yet.
type Status string

const (
	StatusOpen          Status = "OPEN"
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusInProgress    Status = "IN_PROGRESS"
	StatusSubmitted     Status = "SUBMITTED"
	StatusCompleted     Status = "COMPLETED"
	StatusDisputed      Status = "DISPUTED"
	StatusCancelled     Status = "CANCELLED"
)

// EscrowStatus is the funds-custody phase, correlated with but independent of
// the job status. RELEASED is only ever written together with COMPLETED.
type EscrowStatus string

const (
	EscrowNotFunded EscrowStatus = "NOT_FUNDED"
	EscrowFunded    EscrowStatus = "FUNDED"
	EscrowReleased  EscrowStatus = "RELEASED"
	EscrowRefunded  EscrowStatus = "REFUNDED"
)

type Currency string

const (
	CurrencyUSD   Currency = "USD"
	CurrencyBrain Currency = "BRAIN"
	CurrencyETH   Currency = "ETH"
)

// Record mirrors the jobs table. CreatedAt is nil until the initializer has
// normalized the row.
type Record struct {
	ID                string
	Title             string
	Scope             string
	BudgetAmount      float64
	BudgetCurrency    Currency
	Timeline          string
	DeliverableFormat string
	CreatedBy         string
	CreatedAt         *time.Time
	Status            Status
	EscrowStatus      EscrowStatus
	AssignedAgentID   *string
	ClaimCount        int
}

// Claimable reports whether the job still accepts claims.
func (s Status) Claimable() bool {
	return s == StatusOpen || s == StatusPendingReview
}

// Terminal reports whether no further transition is possible in this core.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusDisputed:
		return true
	default:
		return false
	}
}

func validCurrency(c Currency) bool {
	switch c {
	case CurrencyUSD, CurrencyBrain, CurrencyETH:
		return true
	default:
		return false
	}
}
