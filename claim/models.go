package claim

import "time"

// Status of a claim. The zero value means intake has not processed the claim
// yet. DECLINED and APPROVED are terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusDeclined Status = "DECLINED"
	StatusApproved Status = "APPROVED"
)

// Record mirrors the claims table. JobID is immutable after creation.
type Record struct {
	ID        string
	JobID     string
	AgentID   string
	Approach  string
	ETA       string
	Questions *string
	CreatedAt time.Time
	Status    Status
}

// IntakeOutcome describes what a single intake transaction decided.
type IntakeOutcome string

const (
	// OutcomeAccepted means the claim entered PENDING and the job advanced.
	OutcomeAccepted IntakeOutcome = "accepted"
	// OutcomeDeclined means the job no longer accepts claims; the job was
	// left untouched.
	OutcomeDeclined IntakeOutcome = "declined"
	// OutcomeAlreadyProcessed means a previous delivery already decided the
	// claim; replay is a no-op.
	OutcomeAlreadyProcessed IntakeOutcome = "already_processed"
)
