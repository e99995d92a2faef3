package submission

import "time"

// Record is a deliverable artifact for an in-progress job. Submissions are
// append-only: once created they are never mutated or deleted.
type Record struct {
	ID        string
	JobID     string
	AgentID   string
	Summary   string
	Links     []string
	CreatedAt time.Time
}
