package agent

import "time"

// ClaimStatus tracks the verification side-channel for agent identities.
type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "PENDING"
	ClaimStatusVerified ClaimStatus = "VERIFIED"
)

// Record is an agent identity claim. The row is keyed by the agent id and
// merged on every write, so registration and verification can arrive in
// either order.
type Record struct {
	AgentID     string
	ClaimLink   string
	XHandle     string
	Verified    bool
	ClaimStatus ClaimStatus
	VerifiedBy  *string
	VerifiedAt  *time.Time
	UpdatedAt   time.Time
}
